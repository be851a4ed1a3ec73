package simulate

// Concordance returns the share of pairs in ranked (best first) whose order
// agrees with quality. Lists with fewer than two entries agree trivially.
func Concordance(ranked []string, quality map[string]float64) float64 {
	n := len(ranked)
	if n < 2 {
		return 1
	}
	var agree, total int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			total++
			if quality[ranked[i]] > quality[ranked[j]] {
				agree++
			}
		}
	}
	return float64(agree) / float64(total)
}

// bandAgreement scores each band and returns the pair-weighted mean.
func bandAgreement(bands []bandRanking, quality map[string]float64) (float64, map[string]float64) {
	per := make(map[string]float64, len(bands))
	var sum, weight float64
	for _, b := range bands {
		urls := make([]string, 0, len(b.Listings))
		for _, l := range b.Listings {
			if _, ok := quality[l.URL]; ok {
				urls = append(urls, l.URL)
			}
		}
		c := Concordance(urls, quality)
		per[b.Band] = c
		w := float64(len(urls) * (len(urls) - 1) / 2)
		sum += c * w
		weight += w
	}
	if weight == 0 {
		return 1, per
	}
	return sum / weight, per
}

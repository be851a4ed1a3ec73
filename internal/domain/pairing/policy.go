package pairing

import (
	"sort"

	"github.com/okian/flatrank/internal/domain/model"
)

// Policy narrows the unjudged pairs of a band to the ones worth asking about.
// It must return a subset of Unjudged(items, judged), or nil when no pair is left.
type Policy interface {
	Candidates(items []model.RatedListing, judged model.PairKeySet) []model.PairKey
}

// MaxDeviationPolicy prefers pairs touching a listing whose deviation equals
// the band maximum, and falls back to every unjudged pair when none does.
type MaxDeviationPolicy struct{}

// Candidates implements Policy.
func (MaxDeviationPolicy) Candidates(items []model.RatedListing, judged model.PairKeySet) []model.PairKey {
	open := Unjudged(items, judged)
	if len(open) == 0 {
		return nil
	}
	if preferred := TouchingMaxDeviation(items, open); len(preferred) > 0 {
		return preferred
	}
	return open
}

// UniformPolicy treats every unjudged pair equally.
type UniformPolicy struct{}

// Candidates implements Policy.
func (UniformPolicy) Candidates(items []model.RatedListing, judged model.PairKeySet) []model.PairKey {
	return Unjudged(items, judged)
}

// Unjudged enumerates every unordered pair of items that has no outcome yet,
// in ascending (Lo, Hi) order. This is O(n^2) in the band size.
func Unjudged(items []model.RatedListing, judged model.PairKeySet) []model.PairKey {
	ids := make([]model.ListingID, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []model.PairKey
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[i] == ids[j] {
				continue
			}
			k := model.PairKey{Lo: ids[i], Hi: ids[j]}
			if !judged.Has(k) {
				out = append(out, k)
			}
		}
	}
	return out
}

// TouchingMaxDeviation keeps the pairs that include at least one item whose
// deviation equals the maximum over the whole band. A max-deviation item
// whose pairs are all judged contributes nothing.
func TouchingMaxDeviation(items []model.RatedListing, pairs []model.PairKey) []model.PairKey {
	if len(items) == 0 {
		return nil
	}
	maxDev := items[0].Rating.Deviation
	for _, it := range items[1:] {
		if it.Rating.Deviation > maxDev {
			maxDev = it.Rating.Deviation
		}
	}
	top := make(map[model.ListingID]struct{})
	for _, it := range items {
		if it.Rating.Deviation == maxDev {
			top[it.ID] = struct{}{}
		}
	}
	var out []model.PairKey
	for _, k := range pairs {
		_, lo := top[k.Lo]
		_, hi := top[k.Hi]
		if lo || hi {
			out = append(out, k)
		}
	}
	return out
}

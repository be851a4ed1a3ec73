package simulate

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/google/uuid"

	"github.com/okian/flatrank/internal/domain/model"
)

// GeneratorConfig shapes the synthetic listings.
type GeneratorConfig struct {
	Rooms           []int
	MinPricePerArea float64
	MaxPricePerArea float64
	MinArea         float64
	MaxArea         float64
	// BaseURL prefixes every listing URL.
	BaseURL string
}

// DefaultGeneratorConfig spreads listings over the default band grid.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Rooms:           []int{1, 2, 3},
		MinPricePerArea: 1700,
		MaxPricePerArea: 2400,
		MinArea:         30,
		MaxArea:         120,
		BaseURL:         "https://sim.flatrank.local",
	}
}

// Listing is a synthetic listing and its hidden quality.
type Listing struct {
	URL        string
	Attributes model.Attributes
	// Quality decides every judgment; higher wins.
	Quality float64
}

// Generate creates n listings with distinct URLs and qualities.
func Generate(n int, seed int64, cfg GeneratorConfig) []Listing {
	if len(cfg.Rooms) == 0 {
		cfg = DefaultGeneratorConfig()
	}
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // reproducible test data
	run := uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("flatrank-sim-%d", seed)))

	out := make([]Listing, n)
	for i := range out {
		ppa := cfg.MinPricePerArea + rng.Float64()*(cfg.MaxPricePerArea-cfg.MinPricePerArea)
		area := cfg.MinArea + rng.Float64()*(cfg.MaxArea-cfg.MinArea)
		ppa = math.Round(ppa*100) / 100
		area = math.Round(area*10) / 10
		out[i] = Listing{
			URL: fmt.Sprintf("%s/%s/%d", cfg.BaseURL, run, i),
			Attributes: model.Attributes{
				Rooms:        cfg.Rooms[rng.Intn(len(cfg.Rooms))],
				Price:        math.Round(ppa * area),
				PricePerArea: ppa,
				Area:         area,
				Location:     fmt.Sprintf("district %d", rng.Intn(10)+1),
			},
			// Offset by i so qualities never tie.
			Quality: rng.Float64() + float64(i)*1e-9,
		}
	}
	return out
}

package simulate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/flatrank/pkg/logger"
)

// ErrNotSettled is returned when listings are still being scraped at SettleTimeout.
var ErrNotSettled = errors.New("listings not settled")

// Run executes a full simulation against cfg.BaseURL using the given listings,
// which the service's resolver must be able to resolve.
func Run(ctx context.Context, cfg Config, listings []Listing) (*Stats, error) {
	cfg.withDefaults()
	log := logger.Get().Named("simulate")
	stats := &Stats{StartTime: time.Now()}
	client := newAPIClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting simulation",
		logger.String("base_url", cfg.BaseURL),
		logger.Int("listings", len(listings)),
		logger.Int("judgments", cfg.Judgments),
		logger.Int("workers", cfg.Workers),
		logger.Int64("seed", cfg.Seed))

	// Step 1: Check service health
	if err := client.health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Add listings concurrently
	if err := addListings(ctx, cfg, client, listings, stats); err != nil {
		return stats, fmt.Errorf("adding listings failed: %w", err)
	}

	// Step 3: Wait for the scrape pipeline
	quality, err := waitSettled(ctx, cfg, client, listings, stats)
	if err != nil {
		return stats, err
	}
	log.Info(ctx, "listings settled",
		logger.Int("eligible", stats.ListingsEligible), logger.Int("failed", stats.ListingsFailed))

	// Step 4: Judge pairs until the budget or the pairs run out
	if err := judgePairs(ctx, cfg, client, quality, stats, log); err != nil {
		return stats, fmt.Errorf("judging failed: %w", err)
	}

	// Step 5: Compare rankings to the hidden order
	bands, err := client.rankings(ctx)
	if err != nil {
		return stats, fmt.Errorf("ranking retrieval failed: %w", err)
	}
	agreement, per := bandAgreement(bands, quality)
	stats.Bands = len(per)
	stats.Agreement = agreement
	for b, c := range per {
		log.Debug(ctx, "band agreement", logger.String("band", b), logger.Float64("concordance", c))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)
	return stats, nil
}

func addListings(ctx context.Context, cfg Config, client *apiClient, listings []Listing, stats *Stats) error {
	var added atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, l := range listings {
		g.Go(func() error {
			code, err := client.addListing(gctx, l.URL)
			switch {
			case err == nil:
				added.Add(1)
				return nil
			case code == http.StatusConflict:
				// Already present from an earlier run.
				return nil
			default:
				return err
			}
		})
	}
	err := g.Wait()
	stats.ListingsAdded = int(added.Load())
	return err
}

// waitSettled polls until every listing is eligible or failed and returns
// the quality of each eligible listing keyed by URL.
func waitSettled(ctx context.Context, cfg Config, client *apiClient, listings []Listing, stats *Stats) (map[string]float64, error) {
	want := make(map[string]float64, len(listings))
	for _, l := range listings {
		want[l.URL] = l.Quality
	}

	deadline := time.NewTimer(cfg.SettleTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(cfg.PollInterval)
	defer tick.Stop()

	for {
		all, err := client.listings(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing poll failed: %w", err)
		}
		quality := make(map[string]float64, len(listings))
		var eligible, failed int
		for _, l := range all {
			q, ours := want[l.URL]
			if !ours {
				continue
			}
			switch l.Status {
			case "eligible":
				eligible++
				quality[l.URL] = q
			case "failed":
				failed++
			}
		}
		stats.ListingsEligible, stats.ListingsFailed = eligible, failed
		if eligible+failed >= len(listings) {
			return quality, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("%w: %d of %d done", ErrNotSettled, eligible+failed, len(listings))
		case <-tick.C:
		}
	}
}

func judgePairs(ctx context.Context, cfg Config, client *apiClient, quality map[string]float64, stats *Stats, log logger.Logger) error {
	var (
		submitted, partial, failed atomic.Int64
		exhausted                  atomic.Bool
		mu                         sync.Mutex
		firstErr                   error
	)
	budgetLeft := func() bool {
		return cfg.Judgments <= 0 || submitted.Load() < int64(cfg.Judgments)
	}

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil && !exhausted.Load() && budgetLeft() {
				p, err := client.nextPair(ctx)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
				if p == nil {
					exhausted.Store(true)
					return
				}

				winner, loser := p.Left, p.Right
				if quality[p.Right.URL] > quality[p.Left.URL] {
					winner, loser = loser, winner
				}
				status, err := client.judge(ctx, judgment{
					WinnerID:     winner.ID,
					LoserID:      loser.ID,
					SubmissionID: uuid.NewString(),
				})
				submitted.Add(1)
				switch {
				case err != nil:
					failed.Add(1)
					log.Warn(ctx, "judgment failed", logger.Error(err))
				case status == "partial":
					partial.Add(1)
				}
				if cfg.Verbose {
					log.Info(ctx, "judged", logger.String("band", p.Band),
						logger.Int64("winner_id", winner.ID), logger.Int64("loser_id", loser.ID))
				}
			}
		}()
	}
	wg.Wait()

	stats.JudgmentsSubmitted = int(submitted.Load())
	stats.JudgmentsPartial = int(partial.Load())
	stats.JudgmentsFailed = int(failed.Load())
	return firstErr
}

func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.JudgmentsSubmitted) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("listings_added", stats.ListingsAdded),
		logger.Int("listings_eligible", stats.ListingsEligible),
		logger.Int("listings_failed", stats.ListingsFailed),
		logger.Int("judgments", stats.JudgmentsSubmitted),
		logger.Int("judgments_partial", stats.JudgmentsPartial),
		logger.Int("judgments_failed", stats.JudgmentsFailed),
		logger.Int("bands", stats.Bands),
		logger.Float64("agreement", stats.Agreement),
		logger.Duration("duration", stats.Duration),
		logger.Float64("judgments_per_second", perSecond))
}

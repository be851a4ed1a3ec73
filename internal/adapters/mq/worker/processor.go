package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/flatrank/internal/adapters/events"
	"github.com/okian/flatrank/internal/adapters/mq/queue"
	"github.com/okian/flatrank/internal/domain/band"
	"github.com/okian/flatrank/internal/domain/model"
	"github.com/okian/flatrank/internal/domain/ranking"
	"github.com/okian/flatrank/pkg/logger"
	"github.com/okian/flatrank/pkg/metrics"
)

const defaultScrapeTimeout = 25 * time.Second

// Scraper resolves a listing's attributes from its URL.
type Scraper interface {
	Scrape(ctx context.Context, url string) (model.Attributes, error)
}

// Listings is the part of the listing store the pipeline writes to.
type Listings interface {
	FindByID(ctx context.Context, id model.ListingID) (model.RatedListing, error)
	SetStatus(ctx context.Context, id model.ListingID, status model.Status) error
	UpdateAttributes(ctx context.Context, id model.ListingID, attrs model.Attributes, b band.ID, status model.Status) error
}

// Ranker recomputes the bands touched by a classification change.
type Ranker interface {
	AttributesResolved(ctx context.Context, id model.ListingID, previous band.ID) ([]ranking.Result, error)
}

// Processor runs one scrape job: resolve, classify, store, recompute, notify.
type Processor struct {
	scraper   Scraper
	listings  Listings
	ranker    Ranker
	publisher events.Publisher
	bands     band.Config
	timeout   time.Duration
	logger    logger.Logger
}

// NewProcessor creates the scrape pipeline.
func NewProcessor(s Scraper, l Listings, r Ranker, p events.Publisher, opts ...ProcessorOption) *Processor {
	pr := &Processor{
		scraper:   s,
		listings:  l,
		ranker:    r,
		publisher: p,
		bands:     band.DefaultConfig(),
		timeout:   defaultScrapeTimeout,
		logger:    logger.Get().Named("scrape"),
	}
	for _, opt := range opts {
		opt(pr)
	}
	return pr
}

// Process handles a job. Jobs for unknown or withdrawn listings are skipped.
func (p *Processor) Process(ctx context.Context, j queue.Job) error {
	start := time.Now()
	metrics.AddWorkerActive(1)
	defer metrics.AddWorkerActive(-1)

	l, err := p.listings.FindByID(ctx, j.ListingID)
	if errors.Is(err, model.ErrNotFound) {
		p.logger.Debug(ctx, "skipping job for unknown listing", logger.Int64("listing_id", int64(j.ListingID)))
		return nil
	}
	if err != nil {
		return fmt.Errorf("find listing %d: %w", j.ListingID, err)
	}
	if !l.Active {
		p.logger.Debug(ctx, "skipping job for withdrawn listing", logger.Int64("listing_id", int64(l.ID)))
		return nil
	}

	if err := p.listings.SetStatus(ctx, l.ID, model.StatusProcessing); err != nil {
		return fmt.Errorf("mark listing %d processing: %w", l.ID, err)
	}

	sctx, cancel := context.WithTimeout(ctx, p.timeout)
	attrs, err := p.scraper.Scrape(sctx, l.URL)
	cancel()
	if err != nil {
		metrics.RecordScrape(metrics.ScrapeFailed, msSince(start))
		return p.fail(ctx, l, err)
	}

	b, ok := band.Classify(attrs.Rooms, attrs.PricePerArea, p.bands)
	if !ok {
		b = ""
	}
	if err := p.listings.UpdateAttributes(ctx, l.ID, attrs, b, model.StatusEligible); err != nil {
		metrics.RecordScrape(metrics.ScrapeFailed, msSince(start))
		return fmt.Errorf("store attributes for listing %d: %w", l.ID, err)
	}
	metrics.RecordScrape(metrics.ScrapeSuccess, msSince(start))

	updated := l
	updated.Attributes = attrs
	updated.Band = b
	updated.Status = model.StatusEligible
	p.publisher.Publish(ctx, events.New(events.TypeScrapeSuccess, l.ID, b).WithData(updated.Listing))
	p.logger.Info(ctx, "listing resolved",
		logger.Int64("listing_id", int64(l.ID)),
		logger.String("band", string(b)),
		logger.String("previous_band", string(l.Band)))

	return p.recompute(ctx, l.ID, l.Band)
}

// fail marks the listing failed. A listing that was ranked leaves its band, so
// that band is recomputed.
func (p *Processor) fail(ctx context.Context, l model.RatedListing, cause error) error {
	p.logger.Error(ctx, "scrape failed", logger.Int64("listing_id", int64(l.ID)), logger.Error(cause))
	if err := p.listings.SetStatus(ctx, l.ID, model.StatusFailed); err != nil {
		return errors.Join(cause, fmt.Errorf("mark listing %d failed: %w", l.ID, err))
	}
	p.publisher.Publish(ctx, events.New(events.TypeScrapeError, l.ID, l.Band).WithMessage(cause.Error()))
	if l.Comparable() {
		if err := p.recompute(ctx, l.ID, l.Band); err != nil {
			return errors.Join(cause, err)
		}
	}
	return fmt.Errorf("scrape listing %d: %w", l.ID, cause)
}

func (p *Processor) recompute(ctx context.Context, id model.ListingID, previous band.ID) error {
	results, err := p.ranker.AttributesResolved(ctx, id, previous)
	for _, r := range results {
		p.publisher.Publish(ctx, RecalculatedEvent(r))
	}
	if err != nil {
		return fmt.Errorf("recompute after listing %d: %w", id, err)
	}
	return nil
}

// RecalculatedEvent describes a band recomputation for subscribers.
func RecalculatedEvent(r ranking.Result) events.Event {
	return events.New(events.TypeRatingsRecalculated, 0, r.Band).WithData(map[string]any{
		"members":  r.Members,
		"outcomes": r.Outcomes,
		"failed":   r.Failed,
	})
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}

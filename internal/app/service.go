// Package service composes the listing, pairing and ranking use cases that
// the HTTP API exposes.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/flatrank/internal/adapters/events"
	"github.com/okian/flatrank/internal/adapters/mq/queue"
	"github.com/okian/flatrank/internal/adapters/mq/worker"
	"github.com/okian/flatrank/internal/adapters/repository"
	"github.com/okian/flatrank/internal/domain/band"
	"github.com/okian/flatrank/internal/domain/dedupe"
	"github.com/okian/flatrank/internal/domain/model"
	"github.com/okian/flatrank/internal/domain/pairing"
	"github.com/okian/flatrank/internal/domain/ranking"
	"github.com/okian/flatrank/pkg/logger"
	"github.com/okian/flatrank/pkg/metrics"
)

// ListingDetail is a listing with its comparison count.
type ListingDetail struct {
	model.RatedListing
	Comparisons int `json:"comparisons"`
}

// RankedListing is one row of a band ranking. Equal ratings share a rank.
type RankedListing struct {
	Rank int `json:"rank"`
	model.RatedListing
}

// BandRanking is the ranking of one band.
type BandRanking struct {
	Band     band.ID         `json:"band"`
	Listings []RankedListing `json:"listings"`
}

// BandSummary describes a configured band.
type BandSummary struct {
	ID      band.ID `json:"id"`
	Members int     `json:"members"`
}

// JudgmentOutcome is what SubmitJudgment reports back.
type JudgmentOutcome struct {
	Duplicate bool                    `json:"duplicate"`
	Result    *ranking.JudgmentResult `json:"-"`
}

// Stats is a point-in-time summary of the system.
type Stats struct {
	Listings    map[model.Status]int `json:"listings"`
	QueueLength int                  `json:"queue_length"`
	DedupeSize  int64                `json:"dedupe_size"`
	Bands       int                  `json:"bands"`
	ReplayMode  ranking.ReplayMode   `json:"replay_mode"`
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, events.Event) {}

// Service implements the API dependencies for the ranking system.
type Service struct {
	store     repository.Store
	queue     queue.Queue
	orch      *ranking.Orchestrator
	selector  *pairing.Selector
	deduper   dedupe.Deduper
	publisher events.Publisher
	bands     band.Config
	logger    logger.Logger
}

var _ pairing.BandSource = (*Service)(nil)

// New constructs a Service over the given store, scrape queue and orchestrator.
func New(store repository.Store, q queue.Queue, orch *ranking.Orchestrator, opts ...Option) *Service {
	s := &Service{
		store:     store,
		queue:     q,
		orch:      orch,
		selector:  pairing.NewSelector(),
		deduper:   dedupe.NewInMemoryDeduper(),
		publisher: nopPublisher{},
		bands:     band.DefaultConfig(),
		logger:    logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BandConfig returns the configured grid.
func (s *Service) BandConfig() band.Config { return s.bands }

func (s *Service) enqueue(ctx context.Context, l model.RatedListing) error {
	if !s.queue.Enqueue(ctx, queue.NewJob(l.ID, l.URL)) {
		s.logger.Warn(ctx, "scrape job rejected", logger.Int64("listing_id", int64(l.ID)))
		return fmt.Errorf("listing %d: %w", l.ID, ErrQueueFull)
	}
	return nil
}

// AddListing registers a URL and queues it for scraping. A withdrawn listing
// with the same URL is restored instead of duplicated.
func (s *Service) AddListing(ctx context.Context, rawURL string) (model.RatedListing, error) {
	url, err := model.NormalizeURL(rawURL)
	if err != nil {
		return model.RatedListing{}, err
	}

	existing, err := s.store.FindByURL(ctx, url)
	switch {
	case err == nil && existing.Active:
		return existing, fmt.Errorf("url %s: %w", url, ErrAlreadyExists)
	case err == nil:
		if err := s.orch.Reactivate(ctx, existing.ID); err != nil {
			return model.RatedListing{}, err
		}
		l, err := s.store.FindByID(ctx, existing.ID)
		if err != nil {
			return model.RatedListing{}, err
		}
		s.logger.Info(ctx, "listing restored", logger.Int64("listing_id", int64(l.ID)))
		return l, s.enqueue(ctx, l)
	case !errors.Is(err, model.ErrNotFound):
		return model.RatedListing{}, err
	}

	l, err := s.store.Create(ctx, url)
	if errors.Is(err, repository.ErrDuplicate) {
		return model.RatedListing{}, fmt.Errorf("url %s: %w", url, ErrAlreadyExists)
	}
	if err != nil {
		return model.RatedListing{}, err
	}
	s.logger.Info(ctx, "listing added", logger.Int64("listing_id", int64(l.ID)), logger.String("url", url))
	return l, s.enqueue(ctx, l)
}

// RemoveListing withdraws the listing at rawURL. It reports false when no
// active listing has that URL.
func (s *Service) RemoveListing(ctx context.Context, rawURL string) (bool, error) {
	url, err := model.NormalizeURL(rawURL)
	if err != nil {
		return false, err
	}
	l, err := s.store.FindByURL(ctx, url)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !l.Active {
		return false, nil
	}

	res, err := s.orch.Withdraw(ctx, l.ID)
	if res != nil {
		s.publisher.Publish(ctx, worker.RecalculatedEvent(*res))
	}
	if err != nil && !errors.Is(err, ranking.ErrPartialPersistence) {
		return false, err
	}
	s.publisher.Publish(ctx, events.New(events.TypeListingWithdrawn, l.ID, l.Band))
	s.logger.Info(ctx, "listing withdrawn", logger.Int64("listing_id", int64(l.ID)), logger.String("band", string(l.Band)))
	return true, err
}

// GetListing returns a listing, withdrawn ones included.
func (s *Service) GetListing(ctx context.Context, id model.ListingID) (ListingDetail, error) {
	l, err := s.store.FindByID(ctx, id)
	if err != nil {
		return ListingDetail{}, err
	}
	n, err := s.store.CountByListing(ctx, id)
	if err != nil {
		return ListingDetail{}, err
	}
	return ListingDetail{RatedListing: l, Comparisons: n}, nil
}

// ListListings returns listings ordered by id.
func (s *Service) ListListings(ctx context.Context, includeInactive bool) ([]model.RatedListing, error) {
	return s.store.ListAll(ctx, includeInactive)
}

// ReloadListing queues a fresh scrape of an active listing.
func (s *Service) ReloadListing(ctx context.Context, id model.ListingID) error {
	l, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !l.Active {
		return fmt.Errorf("listing %d: %w", id, ErrWithdrawn)
	}
	return s.enqueue(ctx, l)
}

// ReloadAll queues every active listing and returns how many were queued.
func (s *Service) ReloadAll(ctx context.Context) (int, error) {
	all, err := s.store.ListAll(ctx, false)
	if err != nil {
		return 0, err
	}
	for i, l := range all {
		if err := s.enqueue(ctx, l); err != nil {
			return i, err
		}
	}
	return len(all), nil
}

// BandCandidates implements pairing.BandSource.
func (s *Service) BandCandidates(ctx context.Context, id band.ID) ([]model.RatedListing, model.PairKeySet, error) {
	members, err := s.store.ListEligibleActiveByBand(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	judged, err := s.store.JudgedPairKeys(ctx, repository.IDs(members))
	if err != nil {
		return nil, nil, err
	}
	return members, judged, nil
}

// Bands lists every configured band with its member count.
func (s *Service) Bands(ctx context.Context) ([]BandSummary, error) {
	ids := band.AllIDs(s.bands)
	out := make([]BandSummary, 0, len(ids))
	for _, id := range ids {
		members, err := s.store.ListEligibleActiveByBand(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, BandSummary{ID: id, Members: len(members)})
	}
	return out, nil
}

// RankedBands returns each non-empty band's members by rating desc, then id.
func (s *Service) RankedBands(ctx context.Context) ([]BandRanking, error) {
	var out []BandRanking
	for _, id := range band.AllIDs(s.bands) {
		members, err := s.store.ListEligibleActiveByBand(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(members) == 0 {
			continue
		}
		out = append(out, BandRanking{Band: id, Listings: assignRanks(members)})
	}
	return out, nil
}

// assignRanks gives consecutive ranks; equal ratings share one.
func assignRanks(members []model.RatedListing) []RankedListing {
	out := make([]RankedListing, len(members))
	rank := 0
	for i, m := range members {
		if i == 0 || m.Rating.Rating != members[i-1].Rating.Rating {
			rank++
		}
		out[i] = RankedListing{Rank: rank, RatedListing: m}
	}
	return out
}

// NextPair picks the next pair to judge, from bandID or from any band when
// bandID is empty.
func (s *Service) NextPair(ctx context.Context, bandID band.ID) (pairing.Pair, bool, error) {
	var (
		p   pairing.Pair
		ok  bool
		err error
	)
	if bandID == "" {
		p, ok, err = s.selector.SelectAcross(ctx, band.AllIDs(s.bands), s)
	} else {
		if !band.Known(bandID, s.bands) {
			return pairing.Pair{}, false, fmt.Errorf("band %s: %w", bandID, ErrUnknownBand)
		}
		p, ok, err = s.selector.SelectInBand(ctx, bandID, s)
	}
	if err != nil {
		return pairing.Pair{}, false, err
	}
	if ok {
		metrics.RecordPair(metrics.PairServed)
	} else {
		metrics.RecordPair(metrics.PairNone)
	}
	return p, ok, nil
}

// SubmitJudgment records "winner beat loser". A repeated non-empty
// submissionID is acknowledged without recording anything.
func (s *Service) SubmitJudgment(ctx context.Context, winner, loser model.ListingID, submissionID string) (JudgmentOutcome, error) {
	if submissionID != "" && s.deduper.SeenAndRecord(ctx, submissionID) {
		metrics.RecordJudgmentDuplicate()
		s.logger.Debug(ctx, "duplicate submission", logger.String("submission_id", submissionID))
		return JudgmentOutcome{Duplicate: true}, nil
	}

	res, err := s.orch.RecordJudgment(ctx, winner, loser)
	if err != nil && res.Recompute == nil {
		if submissionID != "" {
			s.deduper.Unrecord(ctx, submissionID)
		}
		return JudgmentOutcome{}, err
	}
	if res.Recompute != nil {
		s.publisher.Publish(ctx, worker.RecalculatedEvent(*res.Recompute))
	}
	return JudgmentOutcome{Result: &res}, err
}

// Stats summarizes listings, queue and dedupe state.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}
	for st, n := range counts {
		metrics.UpdateListingsByStatus(string(st), n)
	}
	return Stats{
		Listings:    counts,
		QueueLength: s.queue.Len(ctx),
		DedupeSize:  s.deduper.Size(),
		Bands:       len(band.AllIDs(s.bands)),
		ReplayMode:  s.orch.ReplayMode(),
	}, nil
}

// Ping checks the store and, when it supports it, the queue.
func (s *Service) Ping(ctx context.Context) map[string]error {
	checks := map[string]error{"store": s.store.Ping(ctx)}
	if p, ok := s.queue.(interface{ Ping(context.Context) error }); ok {
		checks["queue"] = p.Ping(ctx)
	}
	return checks
}

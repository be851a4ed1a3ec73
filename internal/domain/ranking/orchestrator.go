// Package ranking keeps band ratings consistent with the comparison log.
//
// Every event that changes a band's comparison set (a judgment, a withdrawal,
// a band change) runs under that band's lock and ends with a full replay of
// the band's outcomes through the rating engine.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/flatrank/internal/domain/band"
	"github.com/okian/flatrank/internal/domain/glicko"
	"github.com/okian/flatrank/internal/domain/model"
	"github.com/okian/flatrank/pkg/logger"
	"github.com/okian/flatrank/pkg/metrics"
)

// ReplayMode selects the state each band member starts a recomputation from.
// Initial keeps ratings a function of the surviving outcomes, so a withdrawn
// listing leaves no trace and a failed write heals on the next event. Stored
// continues from the persisted ratings, so history before a restart counts twice.
type ReplayMode string

const (
	// ReplayFromInitial starts every member from model.NewRating(), making a
	// recomputation a pure function of the band's outcome log.
	ReplayFromInitial ReplayMode = "initial"
	// ReplayFromStored starts from the currently persisted ratings.
	ReplayFromStored ReplayMode = "stored"
)

// maxBandRetries bounds how often RecordJudgment re-locks after the winner
// moved to another band while it waited.
const maxBandRetries = 3

// Listings is the part of the listing store the orchestrator needs.
type Listings interface {
	FindByID(ctx context.Context, id model.ListingID) (model.RatedListing, error)
	ListEligibleActiveByBand(ctx context.Context, id band.ID) ([]model.RatedListing, error)
	UpdateRating(ctx context.Context, id model.ListingID, r model.Rating) error
	Deactivate(ctx context.Context, id model.ListingID) error
	Reactivate(ctx context.Context, id model.ListingID) error
}

// Outcomes is the part of the comparison log the orchestrator needs.
type Outcomes interface {
	Append(ctx context.Context, o model.Outcome) error
	ListOutcomesAmong(ctx context.Context, ids []model.ListingID) ([]model.Outcome, error)
}

// Result describes one band recomputation.
type Result struct {
	Band     band.ID
	Members  int
	Outcomes int
	Ratings  []glicko.State
	Failed   []model.ListingID
	Duration time.Duration
}

// JudgmentResult describes a recorded judgment.
type JudgmentResult struct {
	Outcome model.Outcome
	Band    band.ID
	// Mismatch is set when winner and loser were in different bands.
	Mismatch bool
	// Recompute is nil when the winner has no band.
	Recompute *Result
}

// Orchestrator serializes rating updates per band.
type Orchestrator struct {
	listings Listings
	outcomes Outcomes
	engine   *glicko.Engine
	local    *KeyedMutex
	shared   Locker

	replay      ReplayMode
	parallelism int
	now         func() time.Time
	logger      logger.Logger
}

// New creates an orchestrator over the given stores.
func New(listings Listings, outcomes Outcomes, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		listings:    listings,
		outcomes:    outcomes,
		engine:      glicko.New(),
		local:       NewKeyedMutex(),
		replay:      ReplayFromInitial,
		parallelism: runtime.NumCPU(),
		now:         time.Now,
		logger:      logger.Get().Named("ranking"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ReplayMode returns the configured replay baseline.
func (o *Orchestrator) ReplayMode() ReplayMode { return o.replay }

func (o *Orchestrator) lock(ctx context.Context, b band.ID) (func(), error) {
	unlock, err := o.local.Lock(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("lock band %s: %w", b, err)
	}
	if o.shared == nil {
		return unlock, nil
	}
	unlockShared, err := o.shared.Lock(ctx, b)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("lock band %s: %w", b, err)
	}
	return func() {
		unlockShared()
		unlock()
	}, nil
}

func (o *Orchestrator) find(ctx context.Context, id model.ListingID) (model.RatedListing, error) {
	l, err := o.listings.FindByID(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return model.RatedListing{}, fmt.Errorf("listing %d: %w", id, ErrUnknownListing)
	}
	if err != nil {
		return model.RatedListing{}, fmt.Errorf("find listing %d: %w", id, err)
	}
	return l, nil
}

// RecordJudgment appends "winner beat loser" and recomputes the winner's band.
// Nothing is appended when either listing is unknown.
func (o *Orchestrator) RecordJudgment(ctx context.Context, winnerID, loserID model.ListingID) (JudgmentResult, error) {
	if winnerID == loserID {
		return JudgmentResult{}, fmt.Errorf("listing %d: %w", winnerID, ErrSelfComparison)
	}
	winner, err := o.find(ctx, winnerID)
	if err != nil {
		return JudgmentResult{}, err
	}
	loser, err := o.find(ctx, loserID)
	if err != nil {
		return JudgmentResult{}, err
	}

	winner, unlock, err := o.lockWinnerBand(ctx, winner)
	if err != nil {
		return JudgmentResult{}, err
	}
	defer unlock()

	res := JudgmentResult{Band: winner.Band}
	res.Outcome = model.NewOutcome(winnerID, loserID, o.now())
	if err := o.outcomes.Append(ctx, res.Outcome); err != nil {
		return JudgmentResult{}, fmt.Errorf("append outcome: %w", err)
	}
	metrics.RecordJudgment()

	if winner.Band == "" {
		o.logger.Warn(ctx, "judgment recorded for unclassified winner, no recompute",
			logger.Int64("winner_id", int64(winnerID)), logger.Int64("loser_id", int64(loserID)))
		return res, nil
	}
	if winner.Band != loser.Band {
		res.Mismatch = true
		metrics.RecordBandMismatch()
		o.logger.Warn(ctx, "judgment across bands, recomputing winner band",
			logger.Int64("winner_id", int64(winnerID)),
			logger.Int64("loser_id", int64(loserID)),
			logger.String("winner_band", string(winner.Band)),
			logger.String("loser_band", string(loser.Band)))
	}

	rc, err := o.recompute(ctx, winner.Band)
	res.Recompute = &rc
	return res, err
}

// lockWinnerBand locks the winner's band and re-reads the winner under the
// lock. If a scrape moved it meanwhile, the lock is swapped for the new band.
func (o *Orchestrator) lockWinnerBand(ctx context.Context, winner model.RatedListing) (model.RatedListing, func(), error) {
	for range maxBandRetries {
		if winner.Band == "" {
			return winner, func() {}, nil
		}
		unlock, err := o.lock(ctx, winner.Band)
		if err != nil {
			return model.RatedListing{}, nil, err
		}
		current, err := o.find(ctx, winner.ID)
		if err != nil {
			unlock()
			return model.RatedListing{}, nil, err
		}
		if current.Band == winner.Band {
			return current, unlock, nil
		}
		unlock()
		o.logger.Debug(ctx, "winner changed band before lock, retrying",
			logger.Int64("winner_id", int64(winner.ID)),
			logger.String("from", string(winner.Band)),
			logger.String("to", string(current.Band)))
		winner = current
	}
	return model.RatedListing{}, nil, fmt.Errorf("listing %d: %w", winner.ID, ErrBandUnstable)
}

// Withdraw deactivates a listing and recomputes the band it belonged to using
// only outcomes among the remaining members. It returns nil when the listing
// had no band.
func (o *Orchestrator) Withdraw(ctx context.Context, id model.ListingID) (*Result, error) {
	l, err := o.find(ctx, id)
	if err != nil {
		return nil, err
	}
	b := l.Band
	if b == "" {
		if err := o.listings.Deactivate(ctx, id); err != nil {
			return nil, fmt.Errorf("deactivate listing %d: %w", id, err)
		}
		metrics.RecordListingWithdrawn()
		return nil, nil
	}

	unlock, err := o.lock(ctx, b)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := o.listings.Deactivate(ctx, id); err != nil {
		return nil, fmt.Errorf("deactivate listing %d: %w", id, err)
	}
	metrics.RecordListingWithdrawn()
	res, err := o.recompute(ctx, b)
	return &res, err
}

// Reactivate restores a withdrawn listing as pending. Ratings are not touched
// until the listing is classified again.
func (o *Orchestrator) Reactivate(ctx context.Context, id model.ListingID) error {
	if _, err := o.find(ctx, id); err != nil {
		return err
	}
	if err := o.listings.Reactivate(ctx, id); err != nil {
		return fmt.Errorf("reactivate listing %d: %w", id, err)
	}
	return nil
}

// AttributesResolved recomputes the previous and the current band of a
// listing whose attributes were just stored.
func (o *Orchestrator) AttributesResolved(ctx context.Context, id model.ListingID, previous band.ID) ([]Result, error) {
	l, err := o.find(ctx, id)
	if err != nil {
		return nil, err
	}
	var bands []band.ID
	if previous != "" {
		bands = append(bands, previous)
	}
	if l.Band != "" && l.Band != previous {
		bands = append(bands, l.Band)
	}
	if len(bands) == 0 {
		return nil, nil
	}
	sort.Slice(bands, func(i, j int) bool { return bands[i] < bands[j] })

	var (
		results []Result
		errs    []error
	)
	for _, b := range bands {
		res, err := o.RecomputeBand(ctx, b)
		results = append(results, res)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}

// RecomputeBand replays a band's outcomes under its lock.
func (o *Orchestrator) RecomputeBand(ctx context.Context, b band.ID) (Result, error) {
	unlock, err := o.lock(ctx, b)
	if err != nil {
		return Result{Band: b}, err
	}
	defer unlock()
	return o.recompute(ctx, b)
}

// RecomputeAll recomputes the given bands in parallel. A band with partial
// write failures does not stop the others; any other error cancels the rest.
func (o *Orchestrator) RecomputeAll(ctx context.Context, bands []band.ID) ([]Result, error) {
	results := make([]Result, len(bands))
	var (
		mu       sync.Mutex
		partials []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallelism)
	for i, b := range bands {
		g.Go(func() error {
			res, err := o.RecomputeBand(gctx, b)
			results[i] = res
			if errors.Is(err, ErrPartialPersistence) {
				mu.Lock()
				partials = append(partials, err)
				mu.Unlock()
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, errors.Join(partials...)
}

// recompute must be called with the band lock held.
func (o *Orchestrator) recompute(ctx context.Context, b band.ID) (Result, error) {
	start := time.Now()
	res := Result{Band: b}

	members, err := o.listings.ListEligibleActiveByBand(ctx, b)
	if err != nil {
		metrics.RecordRecompute(metrics.OutcomeError, msSince(start))
		return res, fmt.Errorf("list band %s: %w", b, err)
	}
	res.Members = len(members)
	if len(members) == 0 {
		res.Duration = time.Since(start)
		metrics.RecordRecompute(metrics.OutcomeOK, msSince(start))
		return res, nil
	}

	ids := make([]model.ListingID, len(members))
	states := make([]glicko.State, len(members))
	stored := make(map[model.ListingID]model.Rating, len(members))
	for i, m := range members {
		ids[i] = m.ID
		stored[m.ID] = m.Rating
		states[i] = glicko.State{ID: m.ID, Rating: m.Rating}
		if o.replay == ReplayFromInitial {
			states[i].Rating = model.NewRating()
		}
	}

	outcomes, err := o.outcomes.ListOutcomesAmong(ctx, ids)
	if err != nil {
		metrics.RecordRecompute(metrics.OutcomeError, msSince(start))
		return res, fmt.Errorf("list outcomes for band %s: %w", b, err)
	}
	res.Outcomes = len(outcomes)
	res.Ratings = o.engine.Recompute(states, outcomes)

	var firstErr error
	for _, s := range res.Ratings {
		if s.Rating == stored[s.ID] {
			continue
		}
		if err := o.listings.UpdateRating(ctx, s.ID, s.Rating); err != nil {
			res.Failed = append(res.Failed, s.ID)
			if firstErr == nil {
				firstErr = err
			}
			o.logger.Error(ctx, "rating write failed",
				logger.String("band", string(b)), logger.Int64("listing_id", int64(s.ID)), logger.Error(err))
		}
	}
	res.Duration = time.Since(start)

	if len(res.Failed) > 0 {
		metrics.RecordRecompute(metrics.OutcomePartial, msSince(start))
		metrics.RecordRatingWriteFailures(len(res.Failed))
		return res, &PartialFailureError{Band: b, Failed: res.Failed, Err: firstErr}
	}
	metrics.RecordRecompute(metrics.OutcomeOK, msSince(start))
	o.logger.Debug(ctx, "band recomputed",
		logger.String("band", string(b)),
		logger.Int("members", res.Members),
		logger.Int("outcomes", res.Outcomes),
		logger.Duration("took", res.Duration))
	return res, nil
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}

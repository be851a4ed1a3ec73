// Package pairing chooses the next two listings to show for a judgment.
package pairing

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/okian/flatrank/internal/domain/band"
	"github.com/okian/flatrank/internal/domain/model"
)

// Pair is a presentation-ordered pair of listings.
type Pair struct {
	Band  band.ID
	Left  model.RatedListing
	Right model.RatedListing
}

// Key returns the unordered key of the pair.
func (p Pair) Key() model.PairKey {
	return model.NewPairKey(p.Left.ID, p.Right.ID)
}

// BandSource supplies the candidates of one band.
type BandSource interface {
	// BandCandidates returns the band's comparable listings with ratings
	// and the set of pairs already judged among them.
	BandCandidates(ctx context.Context, id band.ID) ([]model.RatedListing, model.PairKeySet, error)
}

// Selector picks pairs. It is safe for concurrent use.
type Selector struct {
	policy Policy

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a selector with the max-deviation policy.
func NewSelector(opts ...Option) *Selector {
	s := &Selector{
		policy: MaxDeviationPolicy{},
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // pair choice is not security sensitive
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select picks a pair from one band's items. The second result is false when
// fewer than two comparable items exist or every pair has been judged.
func (s *Selector) Select(items []model.RatedListing, judged model.PairKeySet) (Pair, bool) {
	eligible := make([]model.RatedListing, 0, len(items))
	byID := make(map[model.ListingID]model.RatedListing, len(items))
	for _, it := range items {
		if !it.Comparable() {
			continue
		}
		if _, dup := byID[it.ID]; dup {
			continue
		}
		eligible = append(eligible, it)
		byID[it.ID] = it
	}
	if len(eligible) < 2 {
		return Pair{}, false
	}
	if judged == nil {
		judged = model.PairKeySet{}
	}

	candidates := s.policy.Candidates(eligible, judged)
	if len(candidates) == 0 {
		return Pair{}, false
	}

	s.mu.Lock()
	k := candidates[s.rng.Intn(len(candidates))]
	swap := s.rng.Intn(2) == 1
	s.mu.Unlock()

	left, right := byID[k.Lo], byID[k.Hi]
	if swap {
		left, right = right, left
	}
	return Pair{Band: left.Band, Left: left, Right: right}, true
}

// SelectAcross tries bands in random order until one yields a pair.
func (s *Selector) SelectAcross(ctx context.Context, ids []band.ID, src BandSource) (Pair, bool, error) {
	order := append([]band.ID(nil), ids...)
	s.mu.Lock()
	s.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	s.mu.Unlock()

	for _, id := range order {
		if err := ctx.Err(); err != nil {
			return Pair{}, false, err
		}
		p, ok, err := s.SelectInBand(ctx, id, src)
		if err != nil {
			return Pair{}, false, err
		}
		if ok {
			return p, true, nil
		}
	}
	return Pair{}, false, nil
}

// SelectInBand loads one band from src and selects from it.
func (s *Selector) SelectInBand(ctx context.Context, id band.ID, src BandSource) (Pair, bool, error) {
	items, judged, err := src.BandCandidates(ctx, id)
	if err != nil {
		return Pair{}, false, fmt.Errorf("load band %s: %w", id, err)
	}
	p, ok := s.Select(items, judged)
	return p, ok, nil
}

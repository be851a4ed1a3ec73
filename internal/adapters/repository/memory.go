package repository

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/okian/flatrank/internal/domain/band"
	"github.com/okian/flatrank/internal/domain/model"
)

// MemoryStore is an in-process Store. Listings and ratings are kept in
// separate maps; a treap per band keeps the comparable members ranked.
type MemoryStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	rng      *rand.Rand
	nextID   model.ListingID
	listings map[model.ListingID]model.Listing
	ratings  map[model.ListingID]model.Rating
	byURL    map[string]model.ListingID
	outcomes []model.Outcome
	index    *bandIndex
	closed   bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // treap priorities only
		listings: make(map[model.ListingID]model.Listing),
		ratings:  make(map[model.ListingID]model.Rating),
		byURL:    make(map[string]model.ListingID),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.index = newBandIndex(s.rng)
	return s
}

// Ping implements Store.
func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) rated(id model.ListingID) model.RatedListing {
	return model.RatedListing{Listing: s.listings[id], Rating: s.ratings[id]}
}

// mutate applies fn to a listing under the write lock and reindexes it.
func (s *MemoryStore) mutate(id model.ListingID, fn func(*model.Listing)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return fmt.Errorf("listing %d: %w", id, ErrNotFound)
	}
	fn(&l)
	l.UpdatedAt = s.now()
	s.listings[id] = l
	s.index.sync(s.rated(id))
	return nil
}

// Create implements ListingStore.
func (s *MemoryStore) Create(_ context.Context, url string) (model.RatedListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byURL[url]; dup {
		return model.RatedListing{}, fmt.Errorf("url %s: %w", url, ErrDuplicate)
	}
	s.nextID++
	now := s.now()
	l := model.Listing{ID: s.nextID, URL: url, Status: model.StatusPending, Active: true, CreatedAt: now, UpdatedAt: now}
	s.listings[l.ID] = l
	s.ratings[l.ID] = model.NewRating()
	s.byURL[url] = l.ID
	return s.rated(l.ID), nil
}

// FindByID implements ListingStore.
func (s *MemoryStore) FindByID(_ context.Context, id model.ListingID) (model.RatedListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.listings[id]; !ok {
		return model.RatedListing{}, fmt.Errorf("listing %d: %w", id, ErrNotFound)
	}
	return s.rated(id), nil
}

// FindByURL implements ListingStore.
func (s *MemoryStore) FindByURL(_ context.Context, url string) (model.RatedListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byURL[url]
	if !ok {
		return model.RatedListing{}, fmt.Errorf("url %s: %w", url, ErrNotFound)
	}
	return s.rated(id), nil
}

// ListAll implements ListingStore.
func (s *MemoryStore) ListAll(_ context.Context, includeInactive bool) ([]model.RatedListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.RatedListing, 0, len(s.listings))
	for id, l := range s.listings {
		if l.Active || includeInactive {
			out = append(out, s.rated(id))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListEligibleActiveByBand implements ListingStore.
func (s *MemoryStore) ListEligibleActiveByBand(_ context.Context, id band.ID) ([]model.RatedListing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.index.ranked(string(id))
	out := make([]model.RatedListing, len(ids))
	for i, lid := range ids {
		out[i] = s.rated(lid)
	}
	return out, nil
}

// UpdateAttributes implements ListingStore.
func (s *MemoryStore) UpdateAttributes(_ context.Context, id model.ListingID, attrs model.Attributes, b band.ID, status model.Status) error {
	return s.mutate(id, func(l *model.Listing) {
		l.Attributes = attrs
		l.Band = b
		l.Status = status
	})
}

// SetStatus implements ListingStore.
func (s *MemoryStore) SetStatus(_ context.Context, id model.ListingID, status model.Status) error {
	return s.mutate(id, func(l *model.Listing) { l.Status = status })
}

// UpdateRating implements ListingStore.
func (s *MemoryStore) UpdateRating(_ context.Context, id model.ListingID, r model.Rating) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[id]; !ok {
		return fmt.Errorf("listing %d: %w", id, ErrNotFound)
	}
	s.ratings[id] = r
	s.index.sync(s.rated(id))
	return nil
}

// Deactivate implements ListingStore.
func (s *MemoryStore) Deactivate(_ context.Context, id model.ListingID) error {
	return s.mutate(id, func(l *model.Listing) { l.Active = false })
}

// Reactivate implements ListingStore.
func (s *MemoryStore) Reactivate(_ context.Context, id model.ListingID) error {
	return s.mutate(id, func(l *model.Listing) {
		l.Active = true
		l.Status = model.StatusPending
	})
}

// CountByStatus implements ListingStore.
func (s *MemoryStore) CountByStatus(_ context.Context) (map[model.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.Status]int, 4)
	for _, st := range model.Statuses() {
		out[st] = 0
	}
	for _, l := range s.listings {
		if l.Active {
			out[l.Status]++
		}
	}
	return out, nil
}

// BandSize returns the number of comparable listings in a band.
func (s *MemoryStore) BandSize(id band.ID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.size(string(id))
}

// Append implements ComparisonLog.
func (s *MemoryStore) Append(_ context.Context, o model.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, o)
	return nil
}

func idSet(ids []model.ListingID) map[model.ListingID]struct{} {
	set := make(map[model.ListingID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// ListOutcomesAmong implements ComparisonLog.
func (s *MemoryStore) ListOutcomesAmong(_ context.Context, ids []model.ListingID) ([]model.Outcome, error) {
	set := idSet(ids)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Outcome
	for _, o := range s.outcomes {
		_, w := set[o.WinnerID]
		_, l := set[o.LoserID]
		if w && l {
			out = append(out, o)
		}
	}
	return out, nil
}

// JudgedPairKeys implements ComparisonLog.
func (s *MemoryStore) JudgedPairKeys(ctx context.Context, ids []model.ListingID) (model.PairKeySet, error) {
	outcomes, err := s.ListOutcomesAmong(ctx, ids)
	if err != nil {
		return nil, err
	}
	keys := make(model.PairKeySet, len(outcomes))
	for _, o := range outcomes {
		keys.Add(o.Key())
	}
	return keys, nil
}

// CountByListing implements ComparisonLog.
func (s *MemoryStore) CountByListing(_ context.Context, id model.ListingID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, o := range s.outcomes {
		if o.WinnerID == id || o.LoserID == id {
			n++
		}
	}
	return n, nil
}

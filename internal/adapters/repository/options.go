package repository

import (
	"math/rand"
	"time"
)

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIndexSeed makes the band index priorities reproducible.
func WithIndexSeed(seed int64) Option {
	return func(s *MemoryStore) {
		s.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // treap priorities only
	}
}

package pairing

import "math/rand"

// Option configures a Selector.
type Option func(*Selector)

// WithRand injects the random source, e.g. a seeded one in tests.
func WithRand(r *rand.Rand) Option {
	return func(s *Selector) {
		if r != nil {
			s.rng = r
		}
	}
}

// WithPolicy replaces the candidate policy.
func WithPolicy(p Policy) Option {
	return func(s *Selector) {
		if p != nil {
			s.policy = p
		}
	}
}

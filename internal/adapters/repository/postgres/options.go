package postgres

import "github.com/okian/flatrank/pkg/logger"

// Option configures a Store.
type Option func(*Store)

// WithMaxOpenConns caps the pool size.
func WithMaxOpenConns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

package service

import (
	"github.com/okian/flatrank/internal/adapters/events"
	"github.com/okian/flatrank/internal/domain/band"
	"github.com/okian/flatrank/internal/domain/dedupe"
	"github.com/okian/flatrank/internal/domain/pairing"
	"github.com/okian/flatrank/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithBands sets the band grid.
func WithBands(cfg band.Config) Option {
	return func(s *Service) {
		s.bands = cfg
	}
}

// WithSelector replaces the pair selector.
func WithSelector(sel *pairing.Selector) Option {
	return func(s *Service) {
		if sel != nil {
			s.selector = sel
		}
	}
}

// WithDeduper replaces the submission id deduper.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Service) {
		if d != nil {
			s.deduper = d
		}
	}
}

// WithPublisher sets where notifications go.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

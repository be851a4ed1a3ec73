package worker

import (
	"time"

	"github.com/okian/flatrank/internal/domain/band"
	"github.com/okian/flatrank/pkg/logger"
)

// Option applies a configuration option to the ScrapeWorker.
type Option func(*ScrapeWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *ScrapeWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *ScrapeWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithBands sets the band configuration used to classify listings.
func WithBands(cfg band.Config) ProcessorOption {
	return func(p *Processor) {
		p.bands = cfg
	}
}

// WithScrapeTimeout bounds a single scrape.
func WithScrapeTimeout(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithProcessorLogger sets a custom logger for the pipeline.
func WithProcessorLogger(l logger.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

package ranking

import (
	"time"

	"github.com/okian/flatrank/internal/domain/glicko"
	"github.com/okian/flatrank/pkg/logger"
)

// Option applies a configuration option to the Orchestrator.
type Option func(*Orchestrator)

// WithEngine sets the rating engine.
func WithEngine(e *glicko.Engine) Option {
	return func(o *Orchestrator) {
		if e != nil {
			o.engine = e
		}
	}
}

// WithReplayMode chooses the starting state of each recomputation.
func WithReplayMode(m ReplayMode) Option {
	return func(o *Orchestrator) {
		if m == ReplayFromInitial || m == ReplayFromStored {
			o.replay = m
		}
	}
}

// WithParallelism bounds how many bands RecomputeAll processes at once.
func WithParallelism(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.parallelism = n
		}
	}
}

// WithLocker adds a cross-process band lock taken after the in-process one.
func WithLocker(l Locker) Option {
	return func(o *Orchestrator) {
		o.shared = l
	}
}

// WithClock overrides the time source for outcome timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

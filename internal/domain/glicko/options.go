package glicko

// Option configures an Engine.
type Option func(*Engine)

// WithTau sets the system constant constraining volatility change.
func WithTau(tau float64) Option {
	return func(e *Engine) {
		if tau > 0 {
			e.tau = tau
		}
	}
}

// WithEpsilon sets the volatility convergence tolerance.
func WithEpsilon(eps float64) Option {
	return func(e *Engine) {
		if eps > 0 {
			e.epsilon = eps
		}
	}
}

// WithDeviationBounds clamps every computed deviation to [lo, hi].
func WithDeviationBounds(lo, hi float64) Option {
	return func(e *Engine) {
		if lo > 0 && hi >= lo {
			e.minDeviation = lo
			e.maxDeviation = hi
		}
	}
}

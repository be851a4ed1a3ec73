package events

import "github.com/okian/flatrank/pkg/logger"

// Option configures a Hub.
type Option func(*Hub)

// WithSubscriberBuffer sets each subscriber's channel size.
func WithSubscriberBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithHistorySize sets how many events Recent can return.
func WithHistorySize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.historySize = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

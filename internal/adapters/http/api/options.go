package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/okian/flatrank/pkg/logger"
)

// Option configures a Server.
type Option func(*Server)

// WithEventStream mounts the websocket event stream at /events/ws.
func WithEventStream(es EventStream) Option {
	return func(s *Server) {
		s.stream = es
	}
}

// WithMount registers extra routes, such as API docs.
func WithMount(fn func(chi.Router)) Option {
	return func(s *Server) {
		if fn != nil {
			s.mounts = append(s.mounts, fn)
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

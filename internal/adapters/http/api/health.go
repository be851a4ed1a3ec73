package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/flatrank/internal/adapters/events"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Checks: map[string]string{}}
	status := http.StatusOK
	for name, err := range s.deps.Ping(r.Context()) {
		if err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Stats(r.Context())
	if err != nil {
		s.fail(w, r, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxEventLimit {
			s.fail(w, r, "recent events", fmt.Errorf("%w: limit must be 1..%d", ErrBadRequest, maxEventLimit))
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, map[string][]events.Event{"events": s.stream.Recent(limit)})
}

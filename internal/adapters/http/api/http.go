// Package api exposes the ranking system over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/flatrank/internal/adapters/events"
	service "github.com/okian/flatrank/internal/app"
	"github.com/okian/flatrank/internal/domain/band"
	"github.com/okian/flatrank/internal/domain/model"
	"github.com/okian/flatrank/internal/domain/pairing"
	"github.com/okian/flatrank/internal/domain/ranking"
	"github.com/okian/flatrank/pkg/logger"
	"github.com/okian/flatrank/pkg/metrics"
)

// Dependencies required by HTTP handlers. Implemented by service.Service.
type Dependencies interface {
	AddListing(ctx context.Context, url string) (model.RatedListing, error)
	RemoveListing(ctx context.Context, url string) (bool, error)
	GetListing(ctx context.Context, id model.ListingID) (service.ListingDetail, error)
	ListListings(ctx context.Context, includeInactive bool) ([]model.RatedListing, error)
	ReloadListing(ctx context.Context, id model.ListingID) error
	ReloadAll(ctx context.Context) (int, error)

	Bands(ctx context.Context) ([]service.BandSummary, error)
	RankedBands(ctx context.Context) ([]service.BandRanking, error)
	NextPair(ctx context.Context, b band.ID) (pairing.Pair, bool, error)
	SubmitJudgment(ctx context.Context, winner, loser model.ListingID, submissionID string) (service.JudgmentOutcome, error)

	Stats(ctx context.Context) (service.Stats, error)
	Ping(ctx context.Context) map[string]error
}

// EventStream serves live notifications and recent history.
type EventStream interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
	Recent(n int) []events.Event
}

// Server wires HTTP routes for the API.
type Server struct {
	deps     Dependencies
	stream   EventStream
	validate *validator.Validate
	logger   logger.Logger
	mounts   []func(chi.Router)
}

// NewServer creates a new API server.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.Get().Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(MetricsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	r.Get("/stats", s.handleStats)

	r.Route("/listings", func(r chi.Router) {
		r.Get("/", s.handleListListings)
		r.Post("/", s.handleAddListing)
		r.Delete("/", s.handleRemoveListing)
		r.Post("/reload", s.handleReloadAll)
		r.Get("/{id}", s.handleGetListing)
		r.Post("/{id}/reload", s.handleReloadListing)
	})

	r.Get("/bands", s.handleBands)
	r.Get("/rankings", s.handleRankings)
	r.Get("/pair", s.handleNextPair)
	r.Post("/judgments", s.handleSubmitJudgment)

	if s.stream != nil {
		r.Get("/events", s.handleRecentEvents)
		r.Get("/events/ws", s.stream.ServeWS)
	}
	for _, mount := range s.mounts {
		mount(r)
	}
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// statusFor maps domain errors to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, model.ErrInvalidURL), errors.Is(err, ranking.ErrSelfComparison):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, model.ErrNotFound), errors.Is(err, ranking.ErrUnknownListing):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrUnknownBand):
		return http.StatusNotFound, "unknown_band"
	case errors.Is(err, service.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, service.ErrWithdrawn):
		return http.StatusConflict, "withdrawn"
	case errors.Is(err, service.ErrQueueFull), errors.Is(err, ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), errors.Is(err, ranking.ErrBandUnstable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", logger.String("op", op), logger.Error(err))
	}
	writeError(w, status, code, err)
}

// decode reads a JSON body into v and validates it.
func (s *Server) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return s.check(v)
}

func (s *Server) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, len(verrs))
			for i, fe := range verrs {
				fields[i] = strings.ToLower(fe.Field()) + " " + fe.Tag()
			}
			return fmt.Errorf("%w: %s", ErrBadRequest, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

// Package scraper talks to the listing resolver service, which fetches a
// listing page and returns its parsed attributes as JSON.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/okian/flatrank/internal/domain/model"
	"github.com/okian/flatrank/pkg/logger"
	"github.com/okian/flatrank/pkg/metrics"
)

const (
	DefaultTimeout         = 25 * time.Second
	defaultRatePerSecond   = 2
	defaultBurst           = 4
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30 * time.Second
	maxResponseBytes       = 1 << 20
	breakerName            = "resolver"
)

type resolveRequest struct {
	URL string `json:"url"`
}

type resolvedAttributes struct {
	Rooms        int     `json:"rooms"`
	Price        float64 `json:"price"`
	PricePerArea float64 `json:"price_per_area"`
	Area         float64 `json:"area"`
	Location     string  `json:"location"`
	ImageURL     string  `json:"image_url"`
	ListedAt     string  `json:"listed_at"`
}

type resolveResponse struct {
	Success bool                `json:"success"`
	Data    *resolvedAttributes `json:"data"`
	Error   string              `json:"error"`
}

// Client resolves listing attributes through the resolver service. Calls are
// rate limited, bounded by a timeout and guarded by a circuit breaker.
type Client struct {
	resolverURL string
	http        *http.Client
	timeout     time.Duration
	limiter     *rate.Limiter
	cb          *gobreaker.CircuitBreaker[model.Attributes]
	logger      logger.Logger

	ratePerSecond   float64
	burst           int
	breakerFailures uint32
	breakerCooldown time.Duration
}

// New creates a resolver client for resolverURL.
func New(resolverURL string, opts ...Option) *Client {
	c := &Client{
		resolverURL:     resolverURL,
		http:            &http.Client{},
		timeout:         DefaultTimeout,
		logger:          logger.Get().Named("scraper"),
		ratePerSecond:   defaultRatePerSecond,
		burst:           defaultBurst,
		breakerFailures: defaultBreakerFailures,
		breakerCooldown: defaultBreakerCooldown,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.limiter = rate.NewLimiter(rate.Limit(c.ratePerSecond), c.burst)
	metrics.UpdateBreakerState(breakerName, stateToFloat(gobreaker.StateClosed))
	c.cb = gobreaker.NewCircuitBreaker[model.Attributes](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     c.breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.breakerFailures
		},
		// A listing the resolver cannot parse says nothing about its health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrResolverFailed) || errors.Is(err, ErrIncomplete)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn(context.Background(), "circuit breaker state change",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
			metrics.UpdateBreakerState(name, stateToFloat(to))
		},
	})
	return c
}

// Scrape resolves the attributes of the listing at url.
func (c *Client) Scrape(ctx context.Context, url string) (model.Attributes, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return model.Attributes{}, fmt.Errorf("rate limit: %w", err)
	}

	attrs, err := c.cb.Execute(func() (model.Attributes, error) {
		return c.resolve(ctx, url)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return model.Attributes{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return attrs, err
}

// State reports the circuit breaker state.
func (c *Client) State() string {
	return c.cb.State().String()
}

func (c *Client) resolve(ctx context.Context, url string) (model.Attributes, error) {
	body, err := json.Marshal(resolveRequest{URL: url})
	if err != nil {
		return model.Attributes{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolverURL, bytes.NewReader(body))
	if err != nil {
		return model.Attributes{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return model.Attributes{}, fmt.Errorf("call resolver: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return model.Attributes{}, fmt.Errorf("%w: status %d", ErrBadResponse, resp.StatusCode)
	}

	var out resolveResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return model.Attributes{}, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "no reason given"
		}
		return model.Attributes{}, fmt.Errorf("%w: %s", ErrResolverFailed, msg)
	}
	if out.Data == nil {
		return model.Attributes{}, fmt.Errorf("%w: missing data", ErrBadResponse)
	}
	return toAttributes(*out.Data)
}

func toAttributes(d resolvedAttributes) (model.Attributes, error) {
	if d.Rooms <= 0 || d.Price <= 0 {
		return model.Attributes{}, fmt.Errorf("%w: rooms=%d price=%v", ErrIncomplete, d.Rooms, d.Price)
	}
	attrs := model.Attributes{
		Rooms:        d.Rooms,
		Price:        d.Price,
		PricePerArea: d.PricePerArea,
		Area:         d.Area,
		Location:     d.Location,
		ImageURL:     d.ImageURL,
	}
	if attrs.PricePerArea <= 0 && attrs.Area > 0 {
		attrs.PricePerArea = attrs.Price / attrs.Area
	}
	if attrs.PricePerArea <= 0 {
		return model.Attributes{}, fmt.Errorf("%w: no price per area", ErrIncomplete)
	}
	if d.ListedAt != "" {
		if t, err := time.Parse(time.RFC3339, d.ListedAt); err == nil {
			t = t.UTC()
			attrs.ListedAt = &t
		}
	}
	return attrs, nil
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// listing mirrors the API's listing representation.
type listing struct {
	ID     int64  `json:"id"`
	URL    string `json:"url"`
	Band   string `json:"band"`
	Status string `json:"status"`
}

type rankedListing struct {
	listing
	Rank int `json:"rank"`
}

type bandRanking struct {
	Band     string          `json:"band"`
	Listings []rankedListing `json:"listings"`
}

type pair struct {
	Band  string  `json:"band"`
	Left  listing `json:"left"`
	Right listing `json:"right"`
}

type judgment struct {
	WinnerID     int64  `json:"winner_id"`
	LoserID      int64  `json:"loser_id"`
	SubmissionID string `json:"submission_id"`
}

type judgmentAck struct {
	Status string `json:"status"`
}

// apiClient wraps http.Client with JSON helpers.
type apiClient struct {
	base   string
	client *http.Client
}

func newAPIClient(base string, timeout time.Duration) *apiClient {
	return &apiClient{base: base, client: &http.Client{Timeout: timeout}}
}

// do sends body as JSON when non-nil and decodes a 2xx response into out.
// It returns the status code.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp.StatusCode, fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}

func (c *apiClient) health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil)
	return err
}

func (c *apiClient) addListing(ctx context.Context, url string) (int, error) {
	return c.do(ctx, http.MethodPost, "/listings", map[string]string{"url": url}, nil)
}

func (c *apiClient) listings(ctx context.Context) ([]listing, error) {
	var out struct {
		Listings []listing `json:"listings"`
	}
	_, err := c.do(ctx, http.MethodGet, "/listings", nil, &out)
	return out.Listings, err
}

// nextPair returns nil when every pair has been judged.
func (c *apiClient) nextPair(ctx context.Context) (*pair, error) {
	var out struct {
		Pair *pair `json:"pair"`
	}
	_, err := c.do(ctx, http.MethodGet, "/pair", nil, &out)
	return out.Pair, err
}

func (c *apiClient) judge(ctx context.Context, j judgment) (string, error) {
	var ack judgmentAck
	_, err := c.do(ctx, http.MethodPost, "/judgments", j, &ack)
	return ack.Status, err
}

func (c *apiClient) rankings(ctx context.Context) ([]bandRanking, error) {
	var out struct {
		Bands []bandRanking `json:"bands"`
	}
	_, err := c.do(ctx, http.MethodGet, "/rankings", nil, &out)
	return out.Bands, err
}

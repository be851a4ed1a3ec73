package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/flatrank/internal/adapters/events"
	"github.com/okian/flatrank/internal/adapters/http/api"
	"github.com/okian/flatrank/internal/adapters/mq/queue"
	"github.com/okian/flatrank/internal/adapters/repository"
	service "github.com/okian/flatrank/internal/app"
	"github.com/okian/flatrank/internal/domain/band"
	"github.com/okian/flatrank/internal/domain/model"
	"github.com/okian/flatrank/internal/domain/ranking"
	"github.com/okian/flatrank/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const testBand = band.ID("2-room_1800-1900")

type env struct {
	store  *repository.MemoryStore
	queue  *queue.InMemoryQueue
	svc    *service.Service
	server *httptest.Server
}

func newEnv(queueSize int) *env {
	e := &env{
		store: repository.NewMemoryStore(repository.WithIndexSeed(1)),
		queue: queue.NewInMemoryQueue(queue.WithCapacity(queueSize)),
	}
	hub := events.NewHub()
	e.svc = service.New(e.store, e.queue, ranking.New(e.store, e.store), service.WithPublisher(hub))
	e.server = httptest.NewServer(api.NewServer(e.svc, api.WithEventStream(hub)).Router())
	return e
}

func (e *env) do(method, path, body string) (*http.Response, map[string]any) {
	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	So(err, ShouldBeNil)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	So(err, ShouldBeNil)
	defer resp.Body.Close()
	var out map[string]any
	if resp.Header.Get("Content-Type") == "application/json; charset=utf-8" {
		So(json.NewDecoder(resp.Body).Decode(&out), ShouldBeNil)
	}
	return resp, out
}

func (e *env) addEligible(url string) model.RatedListing {
	ctx := context.Background()
	l, err := e.svc.AddListing(ctx, url)
	So(err, ShouldBeNil)
	So(e.store.UpdateAttributes(ctx, l.ID, model.Attributes{Rooms: 2, Price: 90000, PricePerArea: 1850}, testBand, model.StatusEligible), ShouldBeNil)
	got, err := e.store.FindByID(ctx, l.ID)
	So(err, ShouldBeNil)
	return got
}

func TestListingEndpoints(t *testing.T) {
	Convey("Given an API server over an in-memory stack", t, func() {
		e := newEnv(10)
		defer e.server.Close()

		Convey("When a listing is added", func() {
			resp, body := e.do(http.MethodPost, "/listings", `{"url":"https://listings.example/flat/1?utm=x"}`)

			Convey("Then it is created and queued", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusCreated)
				So(body["queued"], ShouldEqual, true)
				listing := body["listing"].(map[string]any)
				So(listing["url"], ShouldEqual, "https://listings.example/flat/1")
				So(listing["status"], ShouldEqual, string(model.StatusPending))
				So(e.queue.Len(context.Background()), ShouldEqual, 1)
			})

			Convey("Then adding it again conflicts", func() {
				resp, body := e.do(http.MethodPost, "/listings", `{"url":"https://listings.example/flat/1"}`)
				So(resp.StatusCode, ShouldEqual, http.StatusConflict)
				So(body["code"], ShouldEqual, "already_exists")
			})

			Convey("Then it can be fetched by id", func() {
				id := int64(body["listing"].(map[string]any)["id"].(float64))
				resp, got := e.do(http.MethodGet, fmt.Sprintf("/listings/%d", id), "")
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(got["comparisons"], ShouldEqual, float64(0))
				So(got["rating"].(map[string]any)["rating"], ShouldEqual, float64(1500))
			})

			Convey("Then removing it withdraws it", func() {
				resp, got := e.do(http.MethodDelete, "/listings?url=https://listings.example/flat/1", "")
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(got["removed"], ShouldEqual, true)

				resp, got = e.do(http.MethodDelete, "/listings", `{"url":"https://listings.example/flat/1"}`)
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(got["removed"], ShouldEqual, false)

				_, list := e.do(http.MethodGet, "/listings", "")
				So(list["listings"], ShouldBeEmpty)
				_, list = e.do(http.MethodGet, "/listings?include_inactive=true", "")
				So(list["listings"], ShouldHaveLength, 1)
			})
		})

		Convey("When the body is invalid", func() {
			for _, body := range []string{`{"url":""}`, `{"url":"not a url"}`, `{"link":"https://x.example"}`, `{`} {
				resp, got := e.do(http.MethodPost, "/listings", body)
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
				So(got["code"], ShouldEqual, "bad_request")
			}
		})

		Convey("When the scrape queue is full", func() {
			e.do(http.MethodPost, "/listings", `{"url":"https://listings.example/a"}`)
			for i := 0; i < 10; i++ {
				e.do(http.MethodPost, "/listings", fmt.Sprintf(`{"url":"https://listings.example/fill/%d"}`, i))
			}
			resp, body := e.do(http.MethodPost, "/listings", `{"url":"https://listings.example/overflow"}`)

			Convey("Then the listing is accepted but not queued", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusAccepted)
				So(body["queued"], ShouldEqual, false)
			})
		})

		Convey("When unknown or malformed ids are requested", func() {
			resp, _ := e.do(http.MethodGet, "/listings/999", "")
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			resp, _ = e.do(http.MethodGet, "/listings/abc", "")
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			resp, _ = e.do(http.MethodPost, "/listings/999/reload", "")
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
		})

		Convey("When all listings are reloaded", func() {
			e.addEligible("https://listings.example/r1")
			e.addEligible("https://listings.example/r2")
			resp, body := e.do(http.MethodPost, "/listings/reload", "")

			Convey("Then every active listing is queued", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusAccepted)
				So(body["queued"], ShouldEqual, float64(2))
			})
		})
	})
}

func TestJudgmentEndpoints(t *testing.T) {
	Convey("Given two eligible listings in one band", t, func() {
		e := newEnv(10)
		defer e.server.Close()
		a := e.addEligible("https://listings.example/a")
		b := e.addEligible("https://listings.example/b")

		Convey("When a pair is requested", func() {
			resp, body := e.do(http.MethodGet, "/pair?band="+string(testBand), "")

			Convey("Then both listings are offered", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				pair := body["pair"].(map[string]any)
				So(pair["band"], ShouldEqual, string(testBand))
				ids := []float64{
					pair["left"].(map[string]any)["id"].(float64),
					pair["right"].(map[string]any)["id"].(float64),
				}
				So(ids, ShouldContain, float64(a.ID))
				So(ids, ShouldContain, float64(b.ID))
			})
		})

		Convey("When a judgment is submitted", func() {
			payload := fmt.Sprintf(`{"winner_id":%d,"loser_id":%d,"submission_id":"s-1"}`, a.ID, b.ID)
			resp, body := e.do(http.MethodPost, "/judgments", payload)

			Convey("Then ratings are recomputed and the pair is exhausted", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(body["status"], ShouldEqual, "ok")
				So(body["band"], ShouldEqual, string(testBand))

				_, pair := e.do(http.MethodGet, "/pair?band="+string(testBand), "")
				So(pair["pair"], ShouldBeNil)

				_, rankings := e.do(http.MethodGet, "/rankings?band="+string(testBand), "")
				bands := rankings["bands"].([]any)
				So(bands, ShouldHaveLength, 1)
				rows := bands[0].(map[string]any)["listings"].([]any)
				So(rows, ShouldHaveLength, 2)
				So(rows[0].(map[string]any)["id"], ShouldEqual, float64(a.ID))
				So(rows[0].(map[string]any)["rank"], ShouldEqual, float64(1))
			})

			Convey("Then a recalculation event is published", func() {
				resp, body := e.do(http.MethodGet, "/events?limit=5", "")
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				evs := body["events"].([]any)
				So(evs, ShouldNotBeEmpty)
				last := evs[len(evs)-1].(map[string]any)
				So(last["type"], ShouldEqual, string(events.TypeRatingsRecalculated))
				So(last["band"], ShouldEqual, string(testBand))

				resp, _ = e.do(http.MethodGet, "/events?limit=0", "")
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			})

			Convey("Then a resubmission is acknowledged as a duplicate", func() {
				resp, body := e.do(http.MethodPost, "/judgments", payload)
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(body["status"], ShouldEqual, "duplicate")
			})
		})

		Convey("When a judgment is invalid", func() {
			resp, _ := e.do(http.MethodPost, "/judgments", fmt.Sprintf(`{"winner_id":%d,"loser_id":%d}`, a.ID, a.ID))
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			resp, body := e.do(http.MethodPost, "/judgments", fmt.Sprintf(`{"winner_id":%d,"loser_id":999}`, a.ID))
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			So(body["code"], ShouldEqual, "not_found")
		})

		Convey("When an unknown band is asked for", func() {
			resp, body := e.do(http.MethodGet, "/pair?band=9-room_0-1", "")
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			So(body["code"], ShouldEqual, "unknown_band")
		})
	})
}

func TestOperationalEndpoints(t *testing.T) {
	Convey("Given an API server", t, func() {
		e := newEnv(10)
		defer e.server.Close()

		Convey("Then health, stats, bands and metrics respond", func() {
			resp, body := e.do(http.MethodGet, "/healthz", "")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(body["status"], ShouldEqual, "ok")

			resp, body = e.do(http.MethodGet, "/stats", "")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(body["replay_mode"], ShouldEqual, string(ranking.ReplayFromInitial))

			resp, body = e.do(http.MethodGet, "/bands", "")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(body["bands"], ShouldNotBeEmpty)

			resp, _ = e.do(http.MethodGet, "/metrics", "")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
		})

		Convey("When the store is closed", func() {
			So(e.store.Close(), ShouldBeNil)
			resp, body := e.do(http.MethodGet, "/healthz", "")

			Convey("Then health reports degraded", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusServiceUnavailable)
				So(body["status"], ShouldEqual, "degraded")
			})
		})
	})
}

// failingDeps reports a recorded judgment whose recompute returned err.
type failingDeps struct {
	*service.Service
	recompute *ranking.Result
	err       error
}

func (f failingDeps) SubmitJudgment(context.Context, model.ListingID, model.ListingID, string) (service.JudgmentOutcome, error) {
	res := &ranking.JudgmentResult{Band: testBand, Recompute: f.recompute}
	return service.JudgmentOutcome{Result: res}, f.err
}

func postJudgment(deps api.Dependencies) (*http.Response, map[string]any) {
	srv := httptest.NewServer(api.NewServer(deps).Router())
	defer srv.Close()
	resp, err := http.Post(srv.URL+"/judgments", "application/json", strings.NewReader(`{"winner_id":1,"loser_id":2}`))
	So(err, ShouldBeNil)
	defer resp.Body.Close()
	var body map[string]any
	So(json.NewDecoder(resp.Body).Decode(&body), ShouldBeNil)
	return resp, body
}

func TestJudgmentRecomputeFailures(t *testing.T) {
	Convey("Given a judgment that was recorded", t, func() {
		e := newEnv(10)
		defer e.server.Close()

		Convey("When some rating writes fail", func() {
			resp, body := postJudgment(failingDeps{
				Service:   e.svc,
				recompute: &ranking.Result{Band: testBand, Failed: []model.ListingID{2}},
				err:       &ranking.PartialFailureError{Band: testBand, Failed: []model.ListingID{2}, Err: errors.New("disk full")},
			})

			Convey("Then the outcome is reported with the failed listings", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(body["status"], ShouldEqual, "partial")
				So(body["failed"], ShouldResemble, []any{float64(2)})
			})
		})

		Convey("When the band could not be read back", func() {
			resp, body := postJudgment(failingDeps{
				Service:   e.svc,
				recompute: &ranking.Result{Band: testBand},
				err:       fmt.Errorf("list outcomes for band %s: %w", testBand, errors.New("connection reset")),
			})

			Convey("Then it is reported as a recompute failure, not a partial write", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(body["status"], ShouldEqual, "recompute_failed")
				So(body["failed"], ShouldBeNil)
				So(body["error"], ShouldContainSubstring, "connection reset")
			})
		})
	})
}

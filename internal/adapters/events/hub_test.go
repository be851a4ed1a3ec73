package events_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/flatrank/internal/adapters/events"
	"github.com/okian/flatrank/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func receive(sub *events.Subscription) (events.Event, bool) {
	select {
	case e, ok := <-sub.C:
		return e, ok
	case <-time.After(time.Second):
		return events.Event{}, false
	}
}

func TestHub(t *testing.T) {
	Convey("Given a hub with a small history", t, func() {
		hub := events.NewHub(events.WithHistorySize(2), events.WithSubscriberBuffer(1))
		ctx := context.Background()

		Convey("When an event is published to two subscribers", func() {
			a, b := hub.Subscribe(), hub.Subscribe()
			hub.Publish(ctx, events.New(events.TypeScrapeSuccess, 7, "2-room_1800-1900"))

			Convey("Then both receive it", func() {
				So(hub.Subscribers(), ShouldEqual, 2)
				ea, ok := receive(a)
				So(ok, ShouldBeTrue)
				So(ea.Type, ShouldEqual, events.TypeScrapeSuccess)
				So(ea.ListingID, ShouldEqual, 7)
				eb, ok := receive(b)
				So(ok, ShouldBeTrue)
				So(eb.ID, ShouldEqual, ea.ID)
			})
		})

		Convey("When a subscriber does not drain its channel", func() {
			slow := hub.Subscribe()
			hub.Publish(ctx, events.New(events.TypeScrapeError, 1, ""))
			hub.Publish(ctx, events.New(events.TypeScrapeError, 2, ""))

			Convey("Then it is dropped", func() {
				So(hub.Subscribers(), ShouldEqual, 0)
				_, ok := receive(slow)
				So(ok, ShouldBeTrue)
				_, ok = receive(slow)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When more events than the history size are published", func() {
			for i := 1; i <= 3; i++ {
				hub.Publish(ctx, events.New(events.TypeRatingsRecalculated, 0, "b").WithData(i))
			}

			Convey("Then only the latest are kept, oldest first", func() {
				recent := hub.Recent(0)
				So(recent, ShouldHaveLength, 2)
				So(recent[0].Data, ShouldEqual, 2)
				So(recent[1].Data, ShouldEqual, 3)
				So(hub.Recent(1)[0].Data, ShouldEqual, 3)
			})
		})

		Convey("When a subscription is cancelled twice", func() {
			sub := hub.Subscribe()
			sub.Cancel()
			sub.Cancel()

			Convey("Then its channel is closed once", func() {
				_, ok := <-sub.C
				So(ok, ShouldBeFalse)
				So(hub.Subscribers(), ShouldEqual, 0)
			})
		})

		Convey("When the hub is served until its context ends", func() {
			sub := hub.Subscribe()
			sctx, cancel := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func() { done <- hub.Serve(sctx) }()
			cancel()

			Convey("Then subscribers are closed and later publishes are ignored", func() {
				So(<-done, ShouldEqual, context.Canceled)
				_, ok := <-sub.C
				So(ok, ShouldBeFalse)
				hub.Publish(ctx, events.New(events.TypeListingWithdrawn, 3, ""))
				So(hub.Recent(0), ShouldBeEmpty)
				late := hub.Subscribe()
				_, ok = <-late.C
				So(ok, ShouldBeFalse)
			})
		})
	})
}

func TestServeWS(t *testing.T) {
	Convey("Given a websocket client connected to the hub", t, func() {
		hub := events.NewHub()
		srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
		defer srv.Close()

		url := "ws" + strings.TrimPrefix(srv.URL, "http")
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		So(err, ShouldBeNil)
		defer conn.Close()

		deadline := time.Now().Add(time.Second)
		for hub.Subscribers() == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		So(hub.Subscribers(), ShouldEqual, 1)

		Convey("When an event is published", func() {
			hub.Publish(context.Background(), events.New(events.TypeListingWithdrawn, 42, "1-room_2000-2100").WithMessage("gone"))

			Convey("Then the client receives it as JSON", func() {
				_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
				var got events.Event
				So(conn.ReadJSON(&got), ShouldBeNil)
				So(got.Type, ShouldEqual, events.TypeListingWithdrawn)
				So(got.ListingID, ShouldEqual, 42)
				So(got.Message, ShouldEqual, "gone")
			})
		})
	})
}

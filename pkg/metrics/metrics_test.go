package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should register under the default namespace", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "flatrank")
				So(manager.subsystem, ShouldEqual, "ranking")
				manager.judgmentsRecorded.Inc()
				n, err := testutil.GatherAndCount(registry, "flatrank_ranking_judgments_recorded_total")
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("sub"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options should be applied", func() {
				So(manager.namespace, ShouldEqual, "test")
				So(manager.subsystem, ShouldEqual, "sub")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
			})
		})

		Convey("When empty options are passed", func() {
			manager := NewManager(WithNamespace(""), WithSubsystem(""), WithHistogramBuckets(nil),
				WithPrometheusRegistry(prometheus.NewRegistry()))

			Convey("Then defaults should be kept", func() {
				So(manager.namespace, ShouldEqual, "flatrank")
				So(manager.subsystem, ShouldEqual, "ranking")
				So(manager.histogramBuckets, ShouldNotBeEmpty)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording ranking metrics", func() {
			before := testutil.ToFloat64(globalManager.judgmentsRecorded)
			RecordJudgment()
			RecordJudgment()
			RecordBandMismatch()
			RecordRecompute(OutcomeOK, 3)
			RecordRecompute(OutcomePartial, 7)
			RecordRatingWriteFailures(2)
			RecordPair(PairServed)
			RecordPair(PairNone)

			Convey("Then the counters should move", func() {
				So(testutil.ToFloat64(globalManager.judgmentsRecorded)-before, ShouldEqual, 2)
				So(testutil.ToFloat64(globalManager.recomputes.WithLabelValues(OutcomePartial)), ShouldBeGreaterThanOrEqualTo, 1)
				So(testutil.ToFloat64(globalManager.pairs.WithLabelValues(PairNone)), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When updating gauges", func() {
			UpdateListingsByStatus("eligible", 12)
			UpdateQueueSize(5)
			UpdateQueueCapacity(100)
			UpdateWorkerCount(4)
			UpdateEventSubscribers(3)
			UpdateBreakerState("resolver", 2)

			Convey("Then the gauges should hold the last value", func() {
				So(testutil.ToFloat64(globalManager.listingsByStatus.WithLabelValues("eligible")), ShouldEqual, 12)
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 5)
				So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 100)
				So(testutil.ToFloat64(globalManager.eventSubscribers), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.breakerState.WithLabelValues("resolver")), ShouldEqual, 2)
			})
		})

		Convey("When recording pipeline and HTTP metrics", func() {
			So(func() {
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				AddWorkerActive(1)
				AddWorkerActive(-1)
				RecordScrape(ScrapeSuccess, 120)
				RecordScrape(ScrapeFailed, 25000)
				RecordEventPublished("scrape.success")
				RecordHTTPRequest("/pair", "GET", "200")
				RecordHTTPRequestDuration("/pair", "GET", "200", 1.5)
				RecordErrorByEndpoint("/judgments", "POST", "not_found")
				RecordJudgmentDuplicate()
				RecordListingWithdrawn()
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(10)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
		})

		Convey("When fetching the registry", func() {
			So(GetRegistry(), ShouldEqual, customRegistry)
		})
	})
}

// Package metrics provides Prometheus metrics for the flatrank service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values shared by callers.
const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
	OutcomeError   = "error"

	PairServed = "served"
	PairNone   = "none"

	ScrapeSuccess = "success"
	ScrapeFailed  = "failed"
)

// Manager manages all Prometheus metrics for the flatrank service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Ranking
	judgmentsRecorded   prometheus.Counter
	judgmentsDuplicate  prometheus.Counter
	bandMismatches      prometheus.Counter
	recomputes          *prometheus.CounterVec
	recomputeDuration   prometheus.Histogram
	ratingWriteFailures prometheus.Counter
	pairs               *prometheus.CounterVec

	// Listings
	listingsByStatus  *prometheus.GaugeVec
	listingsWithdrawn prometheus.Counter

	// Scrape pipeline
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	workerCount        prometheus.Gauge
	workerActive       prometheus.Gauge
	scrapeJobs         *prometheus.CounterVec
	scrapeLatency      prometheus.Histogram
	breakerState       *prometheus.GaugeVec

	// Event stream
	eventSubscribers prometheus.Gauge
	eventsPublished  *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "flatrank",
		subsystem:        "ranking",
		histogramBuckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 25000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

func (m *Manager) initializeMetrics() {
	m.judgmentsRecorded = m.counter("judgments_recorded_total", "Total number of pairwise judgments appended to the comparison log")
	m.judgmentsDuplicate = m.counter("judgments_duplicate_total", "Total number of judgment submissions dropped as duplicates")
	m.bandMismatches = m.counter("band_mismatch_total", "Judgments whose winner and loser were in different bands")
	m.recomputes = m.counterVec("recomputes_total", "Band recomputations by outcome", "outcome")
	m.recomputeDuration = m.histogram("recompute_duration_milliseconds", "Band recomputation duration in milliseconds", m.histogramBuckets)
	m.ratingWriteFailures = m.counter("rating_write_failures_total", "Individual rating writes that failed during recomputation")
	m.pairs = m.counterVec("pairs_total", "Pair selection requests by result", "result")

	m.listingsByStatus = m.gaugeVec("listings", "Active listings by status", "status")
	m.listingsWithdrawn = m.counter("listings_withdrawn_total", "Total number of withdrawn listings")

	m.queueSize = m.gauge("scrape_queue_size", "Current number of pending scrape jobs")
	m.queueCapacity = m.gauge("scrape_queue_capacity", "Maximum scrape queue capacity")
	m.queueEnqueued = m.counter("scrape_queue_enqueue_total", "Total number of scrape jobs enqueued")
	m.queueDequeued = m.counter("scrape_queue_dequeue_total", "Total number of scrape jobs dequeued")
	m.queueEnqueueErrors = m.counter("scrape_queue_enqueue_errors_total", "Total number of scrape jobs rejected by the queue")
	m.workerCount = m.gauge("scrape_worker_count", "Configured number of scrape workers")
	m.workerActive = m.gauge("scrape_worker_active", "Scrape workers currently processing a job")
	m.scrapeJobs = m.counterVec("scrape_jobs_total", "Processed scrape jobs by result", "result")
	m.scrapeLatency = m.histogram("scrape_latency_milliseconds", "Scrape job latency in milliseconds", m.histogramBuckets)
	m.breakerState = m.gaugeVec("circuit_breaker_state", "Circuit breaker state (0=closed, 1=half-open, 2=open)", "name")

	m.eventSubscribers = m.gauge("event_subscribers", "Connected event stream subscribers")
	m.eventsPublished = m.counterVec("events_published_total", "Published notification events by type", "type")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "Total number of errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordJudgment increments the judgments counter.
func RecordJudgment() { globalManager.judgmentsRecorded.Inc() }

// RecordJudgmentDuplicate increments the duplicate submissions counter.
func RecordJudgmentDuplicate() { globalManager.judgmentsDuplicate.Inc() }

// RecordBandMismatch counts a judgment between listings of different bands.
func RecordBandMismatch() { globalManager.bandMismatches.Inc() }

// RecordRecompute records one band recomputation with its outcome label and duration.
func RecordRecompute(outcome string, durationMs float64) {
	globalManager.recomputes.WithLabelValues(outcome).Inc()
	globalManager.recomputeDuration.Observe(durationMs)
}

// RecordRatingWriteFailures adds n failed rating writes.
func RecordRatingWriteFailures(n int) { globalManager.ratingWriteFailures.Add(float64(n)) }

// RecordPair counts a pair request by result (PairServed or PairNone).
func RecordPair(result string) { globalManager.pairs.WithLabelValues(result).Inc() }

// UpdateListingsByStatus sets the gauge for one listing status.
func UpdateListingsByStatus(status string, count int) {
	globalManager.listingsByStatus.WithLabelValues(status).Set(float64(count))
}

// RecordListingWithdrawn increments the withdrawn listings counter.
func RecordListingWithdrawn() { globalManager.listingsWithdrawn.Inc() }

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// AddWorkerActive adjusts the number of busy workers by delta.
func AddWorkerActive(delta int) { globalManager.workerActive.Add(float64(delta)) }

// RecordScrape records a processed scrape job.
func RecordScrape(result string, latencyMs float64) {
	globalManager.scrapeJobs.WithLabelValues(result).Inc()
	globalManager.scrapeLatency.Observe(latencyMs)
}

// UpdateBreakerState sets the circuit breaker state gauge.
func UpdateBreakerState(name string, state float64) {
	globalManager.breakerState.WithLabelValues(name).Set(state)
}

// UpdateEventSubscribers sets the number of connected subscribers.
func UpdateEventSubscribers(count int) { globalManager.eventSubscribers.Set(float64(count)) }

// RecordEventPublished counts a published notification.
func RecordEventPublished(eventType string) {
	globalManager.eventsPublished.WithLabelValues(eventType).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

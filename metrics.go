package sentry_transport

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sentry_transport"

// metricsCollector implements prometheus.Collector for the transport
// counters. Counters are plain atomics so the hot path never touches
// prometheus locking.
type metricsCollector struct {
	sentEvents         *uint64 // deliveries confirmed by a 2xx response
	skippedEvents      *uint64 // sends skipped because no DSN is configured
	rateLimitedEvents  *uint64 // sends rejected by a backoff window or a 429
	failedEvents       *uint64 // deliveries that failed on the wire or server-side
	initiationFailures *uint64 // sends that could not be started at all

	sentEventsDesc         *prometheus.Desc
	skippedEventsDesc      *prometheus.Desc
	rateLimitedEventsDesc  *prometheus.Desc
	failedEventsDesc       *prometheus.Desc
	initiationFailuresDesc *prometheus.Desc

	eventsByCategory *prometheus.CounterVec
}

func newMetricsCollector() *metricsCollector {
	return &metricsCollector{
		sentEvents:         ptrTo(uint64(0)),
		skippedEvents:      ptrTo(uint64(0)),
		rateLimitedEvents:  ptrTo(uint64(0)),
		failedEvents:       ptrTo(uint64(0)),
		initiationFailures: ptrTo(uint64(0)),

		sentEventsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sent_events_total"),
			"Total number of events delivered with a 2xx response",
			nil, nil),

		skippedEventsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "skipped_events_total"),
			"Total number of events skipped because no DSN is configured",
			nil, nil),

		rateLimitedEventsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "rate_limited_events_total"),
			"Total number of events rejected by an active rate limit or a 429 response",
			nil, nil),

		failedEventsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "failed_events_total"),
			"Total number of events whose background delivery failed",
			nil, nil),

		initiationFailuresDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "initiation_failures_total"),
			"Total number of sends that could not be started",
			nil, nil),

		eventsByCategory: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prometheus.BuildFQName(namespace, "", "events_by_category_total"),
				Help: "Total number of dispatched events by data category",
			},
			[]string{"category"}),
	}
}

// IncSentEvents increments the delivered events counter.
func (mc *metricsCollector) IncSentEvents() {
	atomic.AddUint64(mc.sentEvents, 1)
}

// IncSkippedEvents increments the skipped events counter.
func (mc *metricsCollector) IncSkippedEvents() {
	atomic.AddUint64(mc.skippedEvents, 1)
}

// IncRateLimitedEvents increments the rate-limited events counter.
func (mc *metricsCollector) IncRateLimitedEvents() {
	atomic.AddUint64(mc.rateLimitedEvents, 1)
}

// IncFailedEvents increments the failed deliveries counter.
func (mc *metricsCollector) IncFailedEvents() {
	atomic.AddUint64(mc.failedEvents, 1)
}

// IncInitiationFailures increments the initiation failures counter.
func (mc *metricsCollector) IncInitiationFailures() {
	atomic.AddUint64(mc.initiationFailures, 1)
}

// IncEventsByCategory increments the dispatch counter for a data category.
func (mc *metricsCollector) IncEventsByCategory(category string) {
	mc.eventsByCategory.WithLabelValues(category).Inc()
}

// Describe sends all metric descriptions to Prometheus.
func (mc *metricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- mc.sentEventsDesc
	ch <- mc.skippedEventsDesc
	ch <- mc.rateLimitedEventsDesc
	ch <- mc.failedEventsDesc
	ch <- mc.initiationFailuresDesc

	mc.eventsByCategory.Describe(ch)
}

// Collect sends current metric values to Prometheus.
func (mc *metricsCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(
		mc.sentEventsDesc,
		prometheus.CounterValue,
		float64(atomic.LoadUint64(mc.sentEvents)))

	ch <- prometheus.MustNewConstMetric(
		mc.skippedEventsDesc,
		prometheus.CounterValue,
		float64(atomic.LoadUint64(mc.skippedEvents)))

	ch <- prometheus.MustNewConstMetric(
		mc.rateLimitedEventsDesc,
		prometheus.CounterValue,
		float64(atomic.LoadUint64(mc.rateLimitedEvents)))

	ch <- prometheus.MustNewConstMetric(
		mc.failedEventsDesc,
		prometheus.CounterValue,
		float64(atomic.LoadUint64(mc.failedEvents)))

	ch <- prometheus.MustNewConstMetric(
		mc.initiationFailuresDesc,
		prometheus.CounterValue,
		float64(atomic.LoadUint64(mc.initiationFailures)))

	mc.eventsByCategory.Collect(ch)
}

func ptrTo[T any](v T) *T {
	return &v
}

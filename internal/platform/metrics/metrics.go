package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for stream sessions.
type Metrics struct {
	registry            *prometheus.Registry
	fetchesTotal        *prometheus.CounterVec
	fetchErrorsTotal    *prometheus.CounterVec
	recordsEmittedTotal *prometheus.CounterVec
	reloadsTotal        prometheus.Counter
	unchangedTotal      prometheus.Counter
	segmentsReusedTotal prometheus.Counter
	outstandingFetches  prometheus.Gauge
	httpRequestsTotal   prometheus.Counter
	httpErrorsTotal     prometheus.Counter
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	fetchesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hls_fetches_total",
		Help: "Total number of resource fetches started, by resource kind",
	}, []string{"kind"})
	fetchErrorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hls_fetch_errors_total",
		Help: "Total number of failed resource fetches, by resource kind",
	}, []string{"kind"})
	recordsEmittedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hls_records_emitted_total",
		Help: "Total number of records delivered to the output sequence, by record kind",
	}, []string{"kind"})
	reloadsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_playlist_reloads_total",
		Help: "Total number of media playlist reloads scheduled",
	})
	unchangedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_playlist_unchanged_total",
		Help: "Total number of reloads whose content fingerprint was unchanged",
	})
	segmentsReusedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_segments_reused_total",
		Help: "Total number of segments carried over from a previous playlist version",
	})
	outstandingFetches := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hls_outstanding_operations",
		Help: "Number of in-flight operations not yet resolved",
	})
	httpRequestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_http_requests_total",
		Help: "Total number of outbound HTTP requests",
	})
	httpErrorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hls_http_errors_total",
		Help: "Total number of outbound HTTP requests that failed or returned 4xx/5xx",
	})

	registry.MustRegister(
		fetchesTotal,
		fetchErrorsTotal,
		recordsEmittedTotal,
		reloadsTotal,
		unchangedTotal,
		segmentsReusedTotal,
		outstandingFetches,
		httpRequestsTotal,
		httpErrorsTotal,
	)

	return &Metrics{
		registry:            registry,
		fetchesTotal:        fetchesTotal,
		fetchErrorsTotal:    fetchErrorsTotal,
		recordsEmittedTotal: recordsEmittedTotal,
		reloadsTotal:        reloadsTotal,
		unchangedTotal:      unchangedTotal,
		segmentsReusedTotal: segmentsReusedTotal,
		outstandingFetches:  outstandingFetches,
		httpRequestsTotal:   httpRequestsTotal,
		httpErrorsTotal:     httpErrorsTotal,
	}
}

// IncFetches counts a fetch of the given resource kind.
func (m *Metrics) IncFetches(kind string) {
	m.fetchesTotal.WithLabelValues(kind).Inc()
}

// IncFetchErrors counts a failed fetch of the given resource kind.
func (m *Metrics) IncFetchErrors(kind string) {
	m.fetchErrorsTotal.WithLabelValues(kind).Inc()
}

// IncEmitted counts a record of the given kind delivered to the consumer.
func (m *Metrics) IncEmitted(kind string) {
	m.recordsEmittedTotal.WithLabelValues(kind).Inc()
}

// IncReloads increments the playlist reload counter.
func (m *Metrics) IncReloads() {
	m.reloadsTotal.Inc()
}

// IncUnchanged increments the unchanged reload counter.
func (m *Metrics) IncUnchanged() {
	m.unchangedTotal.Inc()
}

// AddSegmentsReused adds n to the reused segment counter.
func (m *Metrics) AddSegmentsReused(n int) {
	m.segmentsReusedTotal.Add(float64(n))
}

// SetOutstanding sets the outstanding operations gauge.
func (m *Metrics) SetOutstanding(n int) {
	m.outstandingFetches.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

package api

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects server metrics. Atomic counters back /metricz; the same events feed a
// per-server Prometheus registry served on /metrics.
type Metrics struct {
	startTime      time.Time
	requests       atomic.Int64
	serverErrors   atomic.Int64
	clientErrors   atomic.Int64
	docReads       atomic.Int64
	docWrites      atomic.Int64
	writeConflicts atomic.Int64

	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	writesTotal     *prometheus.CounterVec
	docBytes        prometheus.Histogram
}

// MetricsSnapshot is a point-in-time view of server metrics.
type MetricsSnapshot struct {
	UptimeSeconds  float64 `json:"uptime_seconds"`
	Requests       int64   `json:"requests"`
	ServerErrors   int64   `json:"server_errors"`
	ClientErrors   int64   `json:"client_errors"`
	DocReads       int64   `json:"doc_reads"`
	DocWrites      int64   `json:"doc_writes"`
	WriteConflicts int64   `json:"write_conflicts"`
}

// NewMetrics creates a new Metrics instance with the current time as start.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		startTime: time.Now(),
		registry:  reg,
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dealbook_store",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dealbook_store",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		writesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dealbook_store",
			Name:      "document_writes_total",
			Help:      "Document writes by result (ok, conflict).",
		}, []string{"result"}),
		docBytes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dealbook_store",
			Name:      "document_bytes",
			Help:      "Size of written documents.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 9),
		}),
	}
}

// RecordRequest counts a finished request.
func (m *Metrics) RecordRequest(method string, code int, dur time.Duration) {
	m.requests.Add(1)
	switch {
	case code >= 500:
		m.serverErrors.Add(1)
	case code >= 400:
		m.clientErrors.Add(1)
	}
	m.requestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(dur.Seconds())
}

// RecordRead increments the document read counter.
func (m *Metrics) RecordRead() {
	m.docReads.Add(1)
}

// RecordWrite records a committed write of n bytes.
func (m *Metrics) RecordWrite(n int) {
	m.docWrites.Add(1)
	m.writesTotal.WithLabelValues("ok").Inc()
	m.docBytes.Observe(float64(n))
}

// RecordConflict records a write rejected by its precondition.
func (m *Metrics) RecordConflict() {
	m.writeConflicts.Add(1)
	m.writesTotal.WithLabelValues("conflict").Inc()
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		UptimeSeconds:  time.Since(m.startTime).Seconds(),
		Requests:       m.requests.Load(),
		ServerErrors:   m.serverErrors.Load(),
		ClientErrors:   m.clientErrors.Load(),
		DocReads:       m.docReads.Load(),
		DocWrites:      m.docWrites.Load(),
		WriteConflicts: m.writeConflicts.Load(),
	}
}

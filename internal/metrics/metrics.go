package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "studyroom"

// Registry holds the server's collectors. A nil *Registry records nothing.
type Registry struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	appends       *prometheus.CounterVec
	uploads       *prometheus.CounterVec
	uploadBytes   prometheus.Counter
	rateLimited   *prometheus.CounterVec
	sweptUploads  prometheus.Counter
	snapshotsSent prometheus.Counter
	activeStreams prometheus.Gauge
}

// NewRegistry creates a registry with the process and Go runtime collectors
// plus the application metrics.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		appends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_appended_total",
			Help:      "Log appends by message kind and outcome (created or duplicate).",
		}, []string{"kind", "outcome"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Upload attempts by outcome.",
		}, []string{"outcome"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_bytes_total",
			Help:      "Bytes stored by successful uploads.",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-user rate limiter.",
		}, []string{"route"}),
		sweptUploads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_uploads_total",
			Help:      "Orphaned uploads removed by the retention sweeper.",
		}),
		snapshotsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_snapshots_sent_total",
			Help:      "Snapshots written to websocket subscribers.",
		}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_subscribers",
			Help:      "Open websocket subscriptions.",
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.httpRequests,
		r.httpDuration,
		r.appends,
		r.uploads,
		r.uploadBytes,
		r.rateLimited,
		r.sweptUploads,
		r.snapshotsSent,
		r.activeStreams,
	)
	return r
}

// Gatherer exposes the underlying registry for tests and custom exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler serves the registry in the prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Registry) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (r *Registry) MessageAppended(kind string, created bool) {
	if r == nil {
		return
	}
	outcome := "created"
	if !created {
		outcome = "duplicate"
	}
	r.appends.WithLabelValues(kind, outcome).Inc()
}

func (r *Registry) UploadStored(size int64) {
	if r == nil {
		return
	}
	r.uploads.WithLabelValues("stored").Inc()
	r.uploadBytes.Add(float64(size))
}

func (r *Registry) UploadRejected() {
	if r == nil {
		return
	}
	r.uploads.WithLabelValues("rejected").Inc()
}

func (r *Registry) RateLimited(route string) {
	if r == nil {
		return
	}
	r.rateLimited.WithLabelValues(route).Inc()
}

func (r *Registry) UploadsSwept(n int) {
	if r == nil {
		return
	}
	r.sweptUploads.Add(float64(n))
}

func (r *Registry) SnapshotSent() {
	if r == nil {
		return
	}
	r.snapshotsSent.Inc()
}

// StreamOpened and StreamClosed track live websocket subscriptions.
func (r *Registry) StreamOpened() {
	if r == nil {
		return
	}
	r.activeStreams.Inc()
}

func (r *Registry) StreamClosed() {
	if r == nil {
		return
	}
	r.activeStreams.Dec()
}

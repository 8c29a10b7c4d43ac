// Package metrics holds the Prometheus collectors for swapd. Each Metrics
// value owns its registry so tests and embedded hosts do not collide.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hedera-swap-plugin/pkg/plugin"
)

const defaultNamespace = "swapd"

// OutcomeSuccess labels a tool invocation that produced a result.
const OutcomeSuccess = "success"

// Metrics groups every collector exported by the daemon.
type Metrics struct {
	registry *prometheus.Registry

	ToolInvocations *prometheus.CounterVec
	ToolDuration    *prometheus.HistogramVec

	MirrorLookups *prometheus.CounterVec
	MirrorLatency *prometheus.HistogramVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	JobsCompleted *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ToolInvocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tool",
			Name:      "invocations_total",
			Help:      "Tool invocations by method and outcome code",
		}, []string{"method", "outcome"}),
		ToolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tool",
			Name:      "duration_seconds",
			Help:      "Tool invocation latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method"}),
		MirrorLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "lookups_total",
			Help:      "Mirror node lookups by endpoint and HTTP status",
		}, []string{"endpoint", "status"}),
		MirrorLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "lookup_latency_seconds",
			Help:      "Mirror node lookup latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"route", "method"}),
		JobsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "completed_total",
			Help:      "Asynchronous jobs by method and final status",
		}, []string{"method", "status"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveTool satisfies plugin.InvocationObserver.
func (m *Metrics) ObserveTool(method string, result plugin.Result, elapsed time.Duration) {
	outcome := OutcomeSuccess
	if !result.Succeeded {
		outcome = result.Code
		if outcome == "" {
			outcome = "UNKNOWN"
		}
	}
	m.ToolInvocations.WithLabelValues(method, outcome).Inc()
	m.ToolDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveMirror satisfies mirror.Observer. A zero status means the request
// never produced a response.
func (m *Metrics) ObserveMirror(endpoint string, status int, elapsed time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.MirrorLookups.WithLabelValues(endpoint, label).Inc()
	m.MirrorLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func (m *Metrics) ObserveHTTPRequest(route, method string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// ObserveJob records the terminal status of an asynchronous job.
func (m *Metrics) ObserveJob(method, status string) {
	m.JobsCompleted.WithLabelValues(method, status).Inc()
}

// Middleware records HTTP metrics labelled by the matched chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.ObserveHTTPRequest(route, r.Method, status, time.Since(started))
	})
}

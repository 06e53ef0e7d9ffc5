// Package metrics exposes call lifecycle and HTTP metrics for Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yegors/voice-agent/internal/call"
	"github.com/yegors/voice-agent/pkg/logger"
)

// Recorder implements call.Observer on top of a private registry
type Recorder struct {
	registry *prometheus.Registry

	attemptsTotal prometheus.Counter
	startsTotal   prometheus.Counter
	stopsTotal    prometheus.Counter
	failuresTotal *prometheus.CounterVec
	eventsTotal   *prometheus.CounterVec
	staleTotal    prometheus.Counter
	callActive    prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	logger        *logger.Logger
}

// NewRecorder creates a recorder with all collectors registered under namespace
func NewRecorder(namespace string, log *logger.Logger) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &Recorder{
		registry: reg,
		logger:   log.Named("metrics"),
	}

	r.attemptsTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "call_attempts_total",
		Help:      "Total number of call start attempts",
	})
	r.startsTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "calls_started_total",
		Help:      "Total number of calls that became active",
	})
	r.stopsTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "calls_stopped_total",
		Help:      "Total number of active calls that ended or were stopped",
	})
	r.failuresTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "call_failures_total",
		Help:      "Total number of call failures by kind",
	}, []string{"kind"})
	r.eventsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transport_events_total",
		Help:      "Total number of transport events by kind",
	}, []string{"event"})
	r.staleTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_attempts_total",
		Help:      "Total number of start attempts discarded after being superseded",
	})
	r.callActive = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "call_active",
		Help:      "1 while a call is active",
	})
	r.httpRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "route", "status"})
	r.httpDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	r.logger.Debug("Metrics registered", logger.String("namespace", namespace))
	return r
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) AttemptStarted() { r.attemptsTotal.Inc() }

func (r *Recorder) CallStarted() {
	r.startsTotal.Inc()
	r.callActive.Set(1)
}

func (r *Recorder) CallStopped() {
	r.stopsTotal.Inc()
	r.callActive.Set(0)
}

func (r *Recorder) CallFailed(kind call.ErrorKind) {
	r.failuresTotal.WithLabelValues(string(kind)).Inc()
	r.callActive.Set(0)
}

func (r *Recorder) EventReceived(kind call.EventKind) {
	r.eventsTotal.WithLabelValues(string(kind)).Inc()
}

func (r *Recorder) StaleAttemptDiscarded() { r.staleTotal.Inc() }

// Middleware records request counts and latencies by chi route pattern
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		route := "unmatched"
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		r.httpRequests.WithLabelValues(req.Method, route, strconv.Itoa(status)).Inc()
		r.httpDuration.WithLabelValues(req.Method, route).Observe(time.Since(start).Seconds())
	})
}

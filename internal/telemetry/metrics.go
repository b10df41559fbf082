package telemetry

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	httpDur = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	SSEClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sse_clients",
		Help: "Number of currently connected SSE clients",
	})
	RulesStored = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rules_stored",
		Help: "Number of rules in the current snapshot",
	})
	ParseFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rules_parse_failures_total",
			Help: "Rule strings rejected by the parser, by operation",
		},
		[]string{"operation"},
	)
	Evaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rules_evaluations_total",
			Help: "Rule evaluations by outcome (true, false, error)",
		},
		[]string{"result"},
	)
	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_dropped_total",
			Help: "Rule change events dropped, by reason",
		},
		[]string{"reason"},
	)

	initOnce sync.Once
)

// Init registers all collectors with the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpReqs, httpDur, SSEClients, RulesStored, ParseFailures, Evaluations, EventsDropped)
	})
}

// ObserveEvaluation counts one evaluation outcome.
func ObserveEvaluation(result bool, err error) {
	switch {
	case err != nil:
		Evaluations.WithLabelValues("error").Inc()
	default:
		Evaluations.WithLabelValues(strconv.FormatBool(result)).Inc()
	}
}

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(ww, r)

		// route pattern is only complete after routing
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}

		httpReqs.WithLabelValues(route, r.Method, http.StatusText(ww.status)).Inc()
		httpDur.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

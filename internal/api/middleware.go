package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type ctxKey string

const ctxRequestID ctxKey = "requestID"

type metrics struct {
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	failures      *prometheus.CounterVec
	sweepFailures prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "posledger_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "posledger_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "posledger_ledger_failures_total",
				Help: "Ledger operations rejected or failed, by error kind",
			},
			[]string{"kind"},
		),
		sweepFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "posledger_sweep_failures_total",
				Help: "Opportunistic expiry sweeps that failed before a request",
			},
		),
	}
	reg.MustRegister(m.requests, m.latency, m.failures, m.sweepFailures)
	return m
}

// requestID tags every request with an id, reusing X-Request-ID when the
// caller sent one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxRequestID, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(ctxRequestID).(string); ok {
		return id
	}
	return ""
}

// observe logs one line per request and records it in the HTTP metrics.
func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		duration := time.Since(start)
		h.metrics.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		h.metrics.latency.WithLabelValues(r.Method, route).Observe(duration.Seconds())

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = h.log.Error()
		case status >= 400:
			event = h.log.Warn()
		default:
			event = h.log.Info()
		}
		event.
			Str("request_id", requestIDFrom(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", duration).
			Msg("HTTP request completed")
	})
}

// sweepFirst runs the daily expiry sweep before the request touches the
// ledgers. A failed sweep is logged and counted but does not fail the request.
func (h *Handler) sweepFirst(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.sweeper.MaybeSweep(r.Context()); err != nil {
			h.metrics.sweepFailures.Inc()
			h.log.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Msg("expiry sweep failed")
		}
		next.ServeHTTP(w, r)
	})
}

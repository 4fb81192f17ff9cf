// SPDX-License-Identifier: MIT

package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// routeUnmatched labels requests that reached no registered route. Raw paths
// never become label values.
const routeUnmatched = "unmatched"

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assplayer_http_requests_total",
		Help: "HTTP requests by route, status and handler outcome",
	}, []string{"method", "route", "status", "outcome"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "assplayer_http_request_duration_seconds",
		Help: "HTTP request latency by route",
		// A resolution spans up to two upstream round trips plus retries.
		Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2, 4, 8, 12},
	}, []string{"method", "route"})

	httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assplayer_http_requests_in_flight",
		Help: "HTTP requests currently being served",
	})
)

type outcomeKey struct{}

type outcomeLabel struct{ value string }

// SetOutcome records what the handler did with r, e.g. the resolution
// strategy that produced a link or the failure code. It is a no-op outside
// the Metrics middleware.
func SetOutcome(r *http.Request, outcome string) {
	if l, ok := r.Context().Value(outcomeKey{}).(*outcomeLabel); ok {
		l.value = outcome
	}
}

// Metrics records request counts and latency labelled by chi route pattern.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			httpRequestsInFlight.Inc()
			defer httpRequestsInFlight.Dec()

			label := &outcomeLabel{value: "none"}
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), outcomeKey{}, label)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routePattern(r)
			httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status), label.value).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return routeUnmatched
}

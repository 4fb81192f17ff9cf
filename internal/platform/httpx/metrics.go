// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package httpx

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upstream hosts are a short fixed list (api, www, b23.tv) so host is a
// safe label.
var (
	upstreamAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assplayer_upstream_attempts_total",
		Help: "Upstream HTTP attempts by host and outcome.",
	}, []string{"host", "outcome"})

	upstreamRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assplayer_upstream_retries_total",
		Help: "Upstream attempts that were followed by a retry, by the outcome that caused it.",
	}, []string{"host", "outcome"})

	upstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assplayer_upstream_attempt_duration_seconds",
		Help:    "Time to response headers for one upstream attempt.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
	}, []string{"host"})

	upstreamThrottleWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "assplayer_upstream_throttle_wait_seconds",
		Help:    "Time spent waiting on the outbound rate limiter before an attempt.",
		Buckets: []float64{0, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
	})
)

// attemptOutcome folds a transport error or status code into a label value.
func attemptOutcome(err error, status int) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case err != nil:
		return "transport_error"
	case status == http.StatusTooManyRequests:
		return "throttled"
	case status >= 500:
		return "server_error"
	case status >= 400:
		return "client_error"
	case status >= 300:
		return "redirect"
	case status >= 200:
		return "ok"
	}
	return "unknown"
}

func observeAttempt(host string, status int, took time.Duration, err error, retry bool) {
	outcome := attemptOutcome(err, status)
	upstreamAttempts.WithLabelValues(host, outcome).Inc()
	upstreamLatency.WithLabelValues(host).Observe(took.Seconds())
	if retry {
		upstreamRetries.WithLabelValues(host, outcome).Inc()
	}
}

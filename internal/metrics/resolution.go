// SPDX-License-Identifier: MIT
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Resolver metrics
	resolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assplayer_resolve_total",
		Help: "Resolution requests by final result and winning strategy",
	}, []string{"result", "strategy"}) // result=found|not_found|malformed

	resolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assplayer_resolve_duration_seconds",
		Help:    "End-to-end resolution latency",
		Buckets: []float64{0.005, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"result"})

	strategyOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assplayer_strategy_outcomes_total",
		Help: "Strategy attempts by outcome",
	}, []string{"strategy", "outcome"}) // outcome=found|not_found|blocked|error

	// Cache metrics
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assplayer_cache_lookups_total",
		Help: "Resolution cache lookups by tier and result",
	}, []string{"tier", "result"}) // tier=memory|durable, result=hit|miss|expired|error

	cacheWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assplayer_cache_writes_total",
		Help: "Resolution cache writes by tier and result",
	}, []string{"tier", "result"})

	cacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assplayer_cache_entries",
		Help: "Entries currently held by the in-memory cache tier",
	})

	// CDN metrics
	cdnRewrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assplayer_cdn_rewrites_total",
		Help: "CDN rewrite decisions",
	}, []string{"decision"}) // decision=domestic|rewritten_best|rewritten_default|unmatched|invalid

	cdnReports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assplayer_cdn_reports_total",
		Help: "Client CDN load reports by region of the reported host",
	}, []string{"region"})

	cdnTrackedHosts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assplayer_cdn_tracked_hosts",
		Help: "Hostnames tracked by the CDN optimizer",
	})

	configReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assplayer_config_reloads_total",
		Help: "Configuration hot reloads by result",
	}, []string{"result"}) // result=success|failure
)

// RecordResolve records one finished resolution.
func RecordResolve(result, strategy string, d time.Duration) {
	if strategy == "" {
		strategy = "none"
	}
	resolveTotal.WithLabelValues(result, strategy).Inc()
	resolveDuration.WithLabelValues(result).Observe(d.Seconds())
}

// RecordStrategyOutcome records one strategy attempt.
func RecordStrategyOutcome(strategy, outcome string) {
	strategyOutcomes.WithLabelValues(strategy, outcome).Inc()
}

// RecordCacheLookup records a lookup against one cache tier.
func RecordCacheLookup(tier, result string) {
	cacheLookups.WithLabelValues(tier, result).Inc()
}

// RecordCacheWrite records a write against one cache tier.
func RecordCacheWrite(tier string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	cacheWrites.WithLabelValues(tier, result).Inc()
}

// SetCacheEntries sets the in-memory entry gauge.
func SetCacheEntries(n int) {
	cacheEntries.Set(float64(n))
}

// RecordCDNRewrite records a rewrite decision.
func RecordCDNRewrite(decision string) {
	cdnRewrites.WithLabelValues(decision).Inc()
}

// RecordCDNReport records a client load report.
func RecordCDNReport(region string) {
	cdnReports.WithLabelValues(region).Inc()
}

// SetCDNTrackedHosts sets the tracked host gauge.
func SetCDNTrackedHosts(n int) {
	cdnTrackedHosts.Set(float64(n))
}

// RecordConfigReload records a hot reload attempt.
func RecordConfigReload(success bool) {
	if success {
		configReloads.WithLabelValues("success").Inc()
		return
	}
	configReloads.WithLabelValues("failure").Inc()
}

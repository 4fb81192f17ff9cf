// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Span attribute keys owned by the resolver. Upstream HTTP attempts use the
// semantic-convention keys instead.
const (
	ShortIDKey   = attribute.Key("assplayer.short_id")
	CacheKeyKey  = attribute.Key("assplayer.cache_key")
	StrategyKey  = attribute.Key("assplayer.strategy")
	OutcomeKey   = attribute.Key("assplayer.outcome")
	QualityKey   = attribute.Key("assplayer.quality")
	CachedKey    = attribute.Key("assplayer.cached")
	RewrittenKey = attribute.Key("assplayer.cdn.rewritten")
	AttemptKey   = attribute.Key("assplayer.upstream.attempt")
)

// ResolveAttributes describes one resolution request. A page URL without a
// short ID only carries its cache key.
func ResolveAttributes(shortID, cacheKey string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if shortID != "" {
		attrs = append(attrs, ShortIDKey.String(shortID))
	}
	if cacheKey != "" && cacheKey != shortID {
		attrs = append(attrs, CacheKeyKey.String(cacheKey))
	}
	return attrs
}

func StrategyAttributes(strategy, outcome string) []attribute.KeyValue {
	return []attribute.KeyValue{StrategyKey.String(strategy), OutcomeKey.String(outcome)}
}

func ResultAttributes(strategy, quality string, cached, rewritten bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		StrategyKey.String(strategy),
		QualityKey.String(quality),
		CachedKey.Bool(cached),
		RewrittenKey.Bool(rewritten),
	}
}

// UpstreamAttempt describes one outbound try. Status 0 means no response
// arrived and is left off. The query string is never recorded: playurl
// requests carry the video ID and signed parameters.
func UpstreamAttempt(method, host, path string, attempt, status int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.HTTPRequestMethodKey.String(method),
		semconv.ServerAddress(host),
		semconv.URLPath(path),
		AttemptKey.Int(attempt),
	}
	if status > 0 {
		attrs = append(attrs, semconv.HTTPResponseStatusCode(status))
	}
	return attrs
}

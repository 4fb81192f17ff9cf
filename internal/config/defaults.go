// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"net"
	"strconv"
	"time"

	"github.com/ManuGH/assplayer/internal/bilibili"
	"github.com/ManuGH/assplayer/internal/cache"
	"github.com/ManuGH/assplayer/internal/cdn"
	"github.com/ManuGH/assplayer/internal/media"
)

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	policy := cdn.DefaultPolicy()
	return AppConfig{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			RateLimit:       time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Parser: ParserConfig{
			Timeout:          8 * time.Second,
			Retries:          3,
			UpstreamRPS:      10,
			PreferredQuality: int(media.Quality720P),
			APIBase:          bilibili.DefaultAPIBase,
			Referer:          bilibili.DefaultReferer,
			UserAgent:        bilibili.DefaultUserAgent,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTL:        cache.DefaultTTL,
			MaxEntries: cache.DefaultMaxEntries,
			Backend:    CacheBackendSQLite,
			Redis:      RedisConfig{Addr: "localhost:6379"},
		},
		Storage: StorageConfig{
			Backend: StorageBackendSQLite,
			Path:    "data/assplayer.db",
		},
		CDN: CDNConfig{
			DefaultHost:      policy.DefaultHost,
			DomesticKeywords: policy.DomesticKeywords,
			ForeignKeywords:  policy.ForeignKeywords,
			GeoIP: GeoIPConfig{
				ReloadSchedule:    cdn.DefaultGeoIPReloadSchedule,
				DomesticCountries: []string{"CN"},
			},
		},
		Log: LogConfig{Level: "info"},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "production",
		},
	}
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

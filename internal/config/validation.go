// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/assplayer/internal/media"
	"github.com/ManuGH/assplayer/internal/validate"
)

// Validate reports every invalid field of cfg in one ValidationError.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.NotEmpty("server.host", cfg.Server.Host)
	v.Port("server.port", cfg.Server.Port)
	validate.Between(v, "server.rateLimit", cfg.Server.RateLimit, 0, time.Minute)
	validate.Between(v, "server.shutdownTimeout", cfg.Server.ShutdownTimeout, time.Second, 5*time.Minute)
	v.AddrsOrPrefixes("server.trustedProxies", cfg.Server.TrustedProxies)

	// Every upstream call must finish within single-digit seconds.
	validate.Between(v, "parser.timeout", cfg.Parser.Timeout, time.Second, 9*time.Second)
	validate.Between(v, "parser.retries", cfg.Parser.Retries, 0, 5)
	validate.Between(v, "parser.upstreamRps", cfg.Parser.UpstreamRPS, 0.1, 1000)
	if media.QualityFromID(cfg.Parser.PreferredQuality) == media.QualityUnknown {
		v.AddError("parser.preferredQuality", "unknown quality id", cfg.Parser.PreferredQuality)
	}
	v.URL("parser.apiBase", cfg.Parser.APIBase, "http", "https")
	v.URL("parser.referer", cfg.Parser.Referer, "http", "https")
	v.NotEmpty("parser.userAgent", cfg.Parser.UserAgent)

	v.OneOf("storage.backend", cfg.Storage.Backend,
		[]string{StorageBackendSQLite, StorageBackendFile, StorageBackendNone})
	if cfg.Storage.Backend != StorageBackendNone {
		v.NotEmpty("storage.path", cfg.Storage.Path)
	}

	if cfg.Cache.Enabled {
		validate.Between(v, "cache.ttl", cfg.Cache.TTL, time.Second, 7*24*time.Hour)
		v.AtLeast("cache.maxEntries", cfg.Cache.MaxEntries, 1)
		v.OneOf("cache.backend", cfg.Cache.Backend,
			[]string{CacheBackendMemory, CacheBackendSQLite, CacheBackendRedis, CacheBackendBadger})
		switch cfg.Cache.Backend {
		case CacheBackendSQLite:
			if cfg.Storage.Backend != StorageBackendSQLite {
				v.AddError("cache.backend", "sqlite cache requires storage.backend sqlite", cfg.Cache.Backend)
			}
		case CacheBackendRedis:
			v.NotEmpty("cache.redis.addr", cfg.Cache.Redis.Addr)
			validate.Between(v, "cache.redis.db", cfg.Cache.Redis.DB, 0, 15)
		}
	}

	v.Host("cdn.defaultHost", cfg.CDN.DefaultHost)
	v.Keywords("cdn.domesticKeywords", cfg.CDN.DomesticKeywords)
	v.Keywords("cdn.foreignKeywords", cfg.CDN.ForeignKeywords)
	if cfg.CDN.GeoIP.Path != "" {
		v.CronSpec("cdn.geoip.reloadSchedule", cfg.CDN.GeoIP.ReloadSchedule)
		if len(cfg.CDN.GeoIP.DomesticCountries) == 0 {
			v.AddError("cdn.geoip.domesticCountries", "at least one country code is required", nil)
		}
	}

	if _, err := validate.ParseLogLevel(cfg.Log.Level); err != nil {
		v.AddError("log.level", err.Error(), cfg.Log.Level)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		validate.Between(v, "telemetry.samplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	return v.Err()
}

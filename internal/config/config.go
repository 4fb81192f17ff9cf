// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"slices"
	"time"
)

// Cache backends.
const (
	CacheBackendMemory = "memory"
	CacheBackendSQLite = "sqlite"
	CacheBackendRedis  = "redis"
	CacheBackendBadger = "badger"
)

// Storage backends for CDN statistics.
const (
	StorageBackendSQLite = "sqlite"
	StorageBackendFile   = "file"
	StorageBackendNone   = "none"
)

// AppConfig is the complete service configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	Server    ServerConfig    `yaml:"server"`
	Parser    ParserConfig    `yaml:"parser"`
	Cache     CacheConfig     `yaml:"cache"`
	Storage   StorageConfig   `yaml:"storage"`
	CDN       CDNConfig       `yaml:"cdn"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// RateLimit is the minimum interval between resolutions per client.
	RateLimit       time.Duration `yaml:"rateLimit"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// TrustedProxies lists CIDRs whose X-Forwarded-For header is honoured.
	TrustedProxies []string `yaml:"trustedProxies"`
}

// ParserConfig configures the upstream client and the resolution strategies.
type ParserConfig struct {
	Timeout          time.Duration `yaml:"timeout"`
	Retries          int           `yaml:"retries"`
	UpstreamRPS      float64       `yaml:"upstreamRps"`
	BruteSearch      bool          `yaml:"bruteSearch"`
	PreferredQuality int           `yaml:"preferredQuality"`
	APIBase          string        `yaml:"apiBase"`
	Referer          string        `yaml:"referer"`
	UserAgent        string        `yaml:"userAgent"`
}

// CacheConfig configures the resolution cache.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"maxEntries"`
	Backend    string        `yaml:"backend"`
	Redis      RedisConfig   `yaml:"redis"`
	BadgerPath string        `yaml:"badgerPath"`
}

// RedisConfig configures the redis cache tier.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StorageConfig configures where CDN statistics (and the sqlite cache tier) live.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// CDNConfig configures host rewriting.
type CDNConfig struct {
	DefaultHost      string      `yaml:"defaultHost"`
	DomesticKeywords []string    `yaml:"domesticKeywords"`
	ForeignKeywords  []string    `yaml:"foreignKeywords"`
	GeoIP            GeoIPConfig `yaml:"geoip"`
}

// GeoIPConfig enables country classification of resolved CDN addresses.
type GeoIPConfig struct {
	Path              string   `yaml:"path"`
	ReloadSchedule    string   `yaml:"reloadSchedule"`
	DomesticCountries []string `yaml:"domesticCountries"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}

// Clone returns a deep copy.
func (c AppConfig) Clone() AppConfig {
	out := c
	out.Server.TrustedProxies = slices.Clone(c.Server.TrustedProxies)
	out.CDN.DomesticKeywords = slices.Clone(c.CDN.DomesticKeywords)
	out.CDN.ForeignKeywords = slices.Clone(c.CDN.ForeignKeywords)
	out.CDN.GeoIP.DomesticCountries = slices.Clone(c.CDN.GeoIP.DomesticCountries)
	return out
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return joinHostPort(s.Host, s.Port)
}

func (s ServerConfig) equal(o ServerConfig) bool {
	return s.Host == o.Host &&
		s.Port == o.Port &&
		s.RateLimit == o.RateLimit &&
		s.ShutdownTimeout == o.ShutdownTimeout &&
		slices.Equal(s.TrustedProxies, o.TrustedProxies)
}

// Durable reports whether the cache uses a durable tier.
func (c CacheConfig) Durable() bool {
	return c.Enabled && c.Backend != CacheBackendMemory
}

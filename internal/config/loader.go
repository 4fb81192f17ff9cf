// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path is the YAML file the loader reads, empty for ENV-only configuration.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

func (l *Loader) envList(key string, defaultVal []string) []string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseList(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults.
// The merged result is validated before it is returned.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes a YAML file over cfg with STRICT parsing.
// Unknown fields are fatal to prevent silent misconfiguration.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("%w: %q (only .yaml and .yml)", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return ErrMultipleDocuments
	}
	return nil
}

// mergeEnvConfig applies ASS_* overrides. The first block keeps the variable
// names the service has always read.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.Server.Host = l.envString("ASS_PLAYER_HOST", cfg.Server.Host)
	cfg.Server.Port = l.envInt("ASS_PLAYER_PORT", cfg.Server.Port)
	cfg.Server.RateLimit = l.envDuration("ASS_PLAYER_RATE_LIMIT", cfg.Server.RateLimit)
	cfg.Parser.Timeout = l.envDuration("ASS_PARSER_TIMEOUT", cfg.Parser.Timeout)
	cfg.Parser.Retries = l.envInt("ASS_PARSER_RETRIES", cfg.Parser.Retries)
	cfg.Cache.Enabled = l.envBool("ASS_CACHE_ENABLED", cfg.Cache.Enabled)
	cfg.Cache.TTL = l.envDuration("ASS_CACHE_TTL", cfg.Cache.TTL)
	cfg.Log.Level = l.envString("ASS_LOG_LEVEL", cfg.Log.Level)

	cfg.Server.ShutdownTimeout = l.envDuration("ASS_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.TrustedProxies = l.envList("ASS_TRUSTED_PROXIES", cfg.Server.TrustedProxies)

	cfg.Parser.UpstreamRPS = l.envFloat("ASS_PARSER_UPSTREAM_RPS", cfg.Parser.UpstreamRPS)
	cfg.Parser.BruteSearch = l.envBool("ASS_PARSER_BRUTE_SEARCH", cfg.Parser.BruteSearch)
	cfg.Parser.PreferredQuality = l.envInt("ASS_PARSER_PREFERRED_QUALITY", cfg.Parser.PreferredQuality)
	cfg.Parser.APIBase = l.envString("ASS_PARSER_API_BASE", cfg.Parser.APIBase)
	cfg.Parser.Referer = l.envString("ASS_PARSER_REFERER", cfg.Parser.Referer)
	cfg.Parser.UserAgent = l.envString("ASS_PARSER_USER_AGENT", cfg.Parser.UserAgent)

	cfg.Cache.MaxEntries = l.envInt("ASS_CACHE_MAX_ENTRIES", cfg.Cache.MaxEntries)
	cfg.Cache.Backend = strings.ToLower(l.envString("ASS_CACHE_BACKEND", cfg.Cache.Backend))
	cfg.Cache.BadgerPath = l.envString("ASS_CACHE_BADGER_PATH", cfg.Cache.BadgerPath)
	cfg.Cache.Redis.Addr = l.envString("ASS_REDIS_ADDR", cfg.Cache.Redis.Addr)
	cfg.Cache.Redis.Password = l.envString("ASS_REDIS_PASSWORD", cfg.Cache.Redis.Password)
	cfg.Cache.Redis.DB = l.envInt("ASS_REDIS_DB", cfg.Cache.Redis.DB)

	cfg.Storage.Backend = strings.ToLower(l.envString("ASS_STORAGE_BACKEND", cfg.Storage.Backend))
	cfg.Storage.Path = l.envString("ASS_STORAGE_PATH", cfg.Storage.Path)

	cfg.CDN.DefaultHost = l.envString("ASS_CDN_DEFAULT_HOST", cfg.CDN.DefaultHost)
	cfg.CDN.DomesticKeywords = l.envList("ASS_CDN_DOMESTIC_KEYWORDS", cfg.CDN.DomesticKeywords)
	cfg.CDN.ForeignKeywords = l.envList("ASS_CDN_FOREIGN_KEYWORDS", cfg.CDN.ForeignKeywords)
	cfg.CDN.GeoIP.Path = l.envString("ASS_GEOIP_PATH", cfg.CDN.GeoIP.Path)
	cfg.CDN.GeoIP.ReloadSchedule = l.envString("ASS_GEOIP_RELOAD_SCHEDULE", cfg.CDN.GeoIP.ReloadSchedule)
	cfg.CDN.GeoIP.DomesticCountries = l.envList("ASS_GEOIP_DOMESTIC_COUNTRIES", cfg.CDN.GeoIP.DomesticCountries)

	cfg.Telemetry.Enabled = l.envBool("ASS_TRACING_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("ASS_TRACING_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("ASS_TRACING_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("ASS_TRACING_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
	cfg.Telemetry.Environment = l.envString("ASS_ENV", cfg.Telemetry.Environment)
}

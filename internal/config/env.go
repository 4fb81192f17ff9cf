// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/assplayer/internal/log"
	"github.com/rs/zerolog"
)

// Every ASS_* lookup goes through lookupEnv so the chosen source is logged
// the same way for each type. An unset or empty variable yields the default;
// an unparsable one yields the default with a warning.
func lookupEnv[T any](key string, def T, parse func(string) (T, error)) T {
	logger := log.WithComponent("config")
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		logger.Debug().Str("key", key).Interface("default", def).Str("source", "default").Msg("using default value")
		return def
	}
	v, err := parse(raw)
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Str("value", redact(key, raw)).Interface("default", def).
			Msg("invalid environment variable, using default")
		return def
	}
	logEnvSource(logger, key, raw)
	return v
}

func logEnvSource(logger zerolog.Logger, key, raw string) {
	ev := logger.Debug().Str("key", key).Str("source", "environment")
	if sensitive(key) {
		ev = ev.Bool("sensitive", true)
	} else {
		ev = ev.Str("value", raw)
	}
	ev.Msg("using environment variable")
}

func sensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "password") || strings.Contains(k, "token")
}

func redact(key, raw string) string {
	if sensitive(key) {
		return "***"
	}
	return raw
}

// ParseString reads key, falling back to def when unset or empty.
func ParseString(key, def string) string {
	return lookupEnv(key, def, func(s string) (string, error) { return s, nil })
}

// ParseInt reads a base-10 integer.
func ParseInt(key string, def int) int {
	return lookupEnv(key, def, func(s string) (int, error) { return strconv.Atoi(strings.TrimSpace(s)) })
}

// ParseFloat reads a float64.
func ParseFloat(key string, def float64) float64 {
	return lookupEnv(key, def, func(s string) (float64, error) { return strconv.ParseFloat(strings.TrimSpace(s), 64) })
}

// ParseDuration reads a Go duration ("90s", "1m30s") or bare seconds ("90").
func ParseDuration(key string, def time.Duration) time.Duration {
	return lookupEnv(key, def, parseDurationValue)
}

// ParseBool accepts true/false, 1/0, yes/no and on/off, case-insensitive.
func ParseBool(key string, def bool) bool {
	return lookupEnv(key, def, parseBoolValue)
}

// ParseList reads a comma-separated list. Blank items are dropped.
func ParseList(key string, def []string) []string {
	return lookupEnv(key, def, func(s string) ([]string, error) {
		var out []string
		for _, item := range strings.Split(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("no items in %q", s)
		}
		return out, nil
	})
}

func parseBoolValue(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}

func parseDurationValue(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

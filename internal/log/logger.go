// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level   string    // optional log level ("debug", "info", etc.)
	Output  io.Writer // optional writer (defaults to os.Stdout)
	Service string    // optional service name attached to every log entry
	Version string    // optional build version attached to every log entry
}

var (
	mu         sync.RWMutex
	configured bool
	base       zerolog.Logger
)

// Configure initialises the global zerolog logger. Later calls replace the
// base logger so the daemon can reconfigure once its config is loaded.
func Configure(cfg Config) {
	level := parseLevel(cfg.Level, zerolog.InfoLevel)
	if cfg.Level == "" {
		if env := os.Getenv("ASS_LOG_LEVEL"); env != "" {
			level = parseLevel(env, level)
		}
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	writer := cfg.Output
	if writer == nil {
		writer = os.Stdout
	}

	service := cfg.Service
	if service == "" {
		service = os.Getenv("LOG_SERVICE")
		if service == "" {
			service = "assplayer"
		}
	}

	version := cfg.Version
	if version == "" {
		version = os.Getenv("VERSION")
	}

	l := zerolog.New(writer).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Logger()

	mu.Lock()
	base = l
	configured = true
	mu.Unlock()
}

// SetLevel changes the global level at runtime. Unknown levels are ignored
// and reported as false.
func SetLevel(level string) bool {
	parsed := parseLevel(level, zerolog.NoLevel)
	if parsed == zerolog.NoLevel {
		return false
	}
	zerolog.SetGlobalLevel(parsed)
	return true
}

func parseLevel(raw string, fallback zerolog.Level) zerolog.Level {
	raw = strings.ToLower(strings.TrimSpace(raw))
	// warning and critical are accepted for older config files.
	if raw == "warning" {
		raw = "warn"
	}
	if raw == "critical" {
		raw = "fatal"
	}
	if raw == "" {
		return fallback
	}
	parsed, err := zerolog.ParseLevel(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func logger() zerolog.Logger {
	mu.RLock()
	ok := configured
	l := base
	mu.RUnlock()
	if ok {
		return l
	}
	Configure(Config{})
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Base returns the configured base logger instance.
func Base() zerolog.Logger {
	return logger()
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return logger().With().Str(FieldComponent, component).Logger()
}

// Derive attaches arbitrary fields to a child logger using the provided builder function.
func Derive(build func(*zerolog.Context)) zerolog.Logger {
	ctx := logger().With()
	if build != nil {
		build(&ctx)
	}
	return ctx.Logger()
}

// SPDX-License-Identifier: MIT

package validate

import (
	"errors"
	"strings"
)

// LogLevel is a level name accepted in config files and ASS_LOG_LEVEL.
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var ErrInvalidLogLevel = errors.New("invalid log level (want trace, debug, info, warn or error)")

// ParseLogLevel is case-insensitive; "warning" reads as warn.
func ParseLogLevel(s string) (LogLevel, error) {
	switch l := LogLevel(strings.ToLower(strings.TrimSpace(s))); l {
	case LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return l, nil
	case "warning":
		return LogLevelWarn, nil
	}
	return "", ErrInvalidLogLevel
}

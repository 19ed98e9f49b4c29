// Package logging
// Author: momentics <momentics@gmail.com>
//
// zerolog setup shared by the dispatcher, the connection bridge and the
// example tools.

package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel   = "HIOLOAD_LOG_LEVEL"
	EnvLogConsole = "HIOLOAD_LOG_CONSOLE"
)

var (
	baseOnce sync.Once
	base     zerolog.Logger
)

// Base returns the process-wide root logger, configured from the
// environment on first use.
func Base() zerolog.Logger {
	baseOnce.Do(func() {
		base = newRoot(os.Stderr)
	})
	return base
}

// New returns a child of the root logger tagged with component.
func New(component string) zerolog.Logger {
	return Base().With().Str("component", component).Logger()
}

func newRoot(out io.Writer) zerolog.Logger {
	if console, ok := parseBool(os.Getenv(EnvLogConsole)); ok && console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	level, ok := ParseLevel(os.Getenv(EnvLogLevel))
	if !ok {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// ParseLevel maps a textual level to zerolog. The second result is false
// for empty or unknown input.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

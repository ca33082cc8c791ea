// Package envconfig reads the handful of environment knobs the library
// honors transparently, without a CLI or config file.
package envconfig

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// LogLevel reads MOCKHTTP_LOG ("debug"|"info"|"warn"|"error"), the closest
// Go equivalent of a RUST_LOG-style hook, defaulting to Warn so a test run
// stays quiet unless the caller opts in.
func LogLevel() slog.Level {
	switch strings.ToLower(os.Getenv("MOCKHTTP_LOG")) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// ColorEnabled reports whether assertion diagnostics should be colorized,
// respecting the conventional NO_COLOR opt-out alongside an explicit
// MOCKHTTP_COLOR override.
func ColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if v := os.Getenv("MOCKHTTP_COLOR"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			return enabled
		}
	}
	return false
}

// RingCapacity reads MOCKHTTP_RING_SIZE, the bound on the unmatched/matched
// diagnostic rings.
func RingCapacity() int {
	if v := os.Getenv("MOCKHTTP_RING_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 1
}

// PoolCapacity reads MOCKHTTP_POOL_MAX, the pool's concurrently-live server
// cap; 0 means unbounded.
func PoolCapacity() int64 {
	if v := os.Getenv("MOCKHTTP_POOL_MAX"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

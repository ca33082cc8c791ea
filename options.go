package mockhttp

import (
	"log/slog"

	"go.mockhttp.dev/mockhttp/internal/diag"
)

// EnableColor turns on ANSI highlighting in assertion diagnostics.
func EnableColor() { diag.Colorize = true }

// DisableColor turns off ANSI highlighting in assertion diagnostics.
func DisableColor() { diag.Colorize = false }

// ServerOption configures a Server at acquisition time.
type ServerOption func(*Server)

// WithLogger routes log into the acquired server's worker, overriding
// whatever logger the pool it came from installs by default.
func WithLogger(log *slog.Logger) ServerOption {
	return func(s *Server) { s.handle.Worker.SetLogger(log) }
}

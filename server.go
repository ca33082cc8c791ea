package mockhttp

import (
	"context"
	"fmt"
	"net"

	"go.mockhttp.dev/mockhttp/internal/capture"
	"go.mockhttp.dev/mockhttp/internal/pool"
)

// Server is an ephemeral local HTTP endpoint issued by the pool. It owns
// one listener, one registry, and the two diagnostic rings.
type Server struct {
	handle *pool.Handle
}

// RequestRecord pairs a captured request with the id of the mock it matched.
type RequestRecord struct {
	Request capture.Request
	MockID  string
}

// NewServer acquires a Server from the process-global pool, blocking if the
// pool is bounded and saturated.
func NewServer(opts ...ServerOption) (*Server, error) {
	return NewServerContext(context.Background(), opts...)
}

// NewServerContext is NewServer's suspension-aware form.
func NewServerContext(ctx context.Context, opts ...ServerOption) (*Server, error) {
	h, err := pool.Global().AcquireContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("mockhttp: acquire server: %w", err)
	}
	s := &Server{handle: h}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Release resets the registry and rings and returns the server to the pool.
// Safe to call more than once.
func (s *Server) Release() {
	s.handle.Release()
}

// URL returns "http://127.0.0.1:<port>".
func (s *Server) URL() string {
	return "http://" + s.HostWithPort()
}

// HostWithPort returns "127.0.0.1:<port>".
func (s *Server) HostWithPort() string {
	return s.handle.Worker.Addr().String()
}

// SocketAddress returns the listener's IP and port.
func (s *Server) SocketAddress() (net.IP, int) {
	addr := s.handle.Worker.Addr().(*net.TCPAddr)
	return addr.IP, addr.Port
}

// Mock starts declaring a new mock: a builder, not yet visible
// to matching until Create is called.
func (s *Server) Mock(method, path string) *MockBuilder {
	return newBuilder(s, method, path)
}

// Requests returns every request the server has matched against any mock,
// oldest first, bounded by the matched-request ring capacity — a read-only
// companion to per-mock Assert, for callers that want to inspect traffic
// across the whole server rather than one mock at a time.
func (s *Server) Requests() []RequestRecord {
	entries := s.handle.Registry.Requests()
	out := make([]RequestRecord, len(entries))
	for i, e := range entries {
		out[i] = RequestRecord{Request: e.Request, MockID: e.MockID}
	}
	return out
}

// ServerGuard wraps a Server and releases it automatically via the supplied
// TestingT's Cleanup hook.
type ServerGuard struct {
	*Server
}

// NewServerGuard acquires a Server and registers its Release with t.Cleanup,
// so tests don't need their own defer.
func NewServerGuard(t TestingT, opts ...ServerOption) (*ServerGuard, error) {
	s, err := NewServer(opts...)
	if err != nil {
		return nil, err
	}
	t.Cleanup(s.Release)
	return &ServerGuard{Server: s}, nil
}

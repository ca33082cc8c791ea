package mockhttp

import (
	"context"

	"go.mockhttp.dev/mockhttp/internal/pool"
)

// Pool is a bounded server pool, for callers that want a cap on concurrently
// live servers distinct from the process-global pool.
type Pool struct {
	inner *pool.Pool
}

// NewPool builds a pool capped at maxLive concurrently acquired servers; 0
// means unbounded. opts configure the underlying pool (e.g. pool.WithLogger).
func NewPool(maxLive int64, opts ...pool.Option) *Pool {
	return &Pool{inner: pool.New(maxLive, opts...)}
}

// Acquire blocks until a slot is free, then returns a new Server.
func (p *Pool) Acquire(opts ...ServerOption) (*Server, error) {
	return p.AcquireContext(context.Background(), opts...)
}

// AcquireContext is Acquire's suspension-aware form.
func (p *Pool) AcquireContext(ctx context.Context, opts ...ServerOption) (*Server, error) {
	h, err := p.inner.AcquireContext(ctx)
	if err != nil {
		return nil, err
	}
	s := &Server{handle: h}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

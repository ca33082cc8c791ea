// Package pool implements the process-global server pool: it hands out
// Workers on distinct ports, optionally bounds how many may be live at
// once, and closes released listeners while returning their slots.
package pool

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"go.mockhttp.dev/mockhttp/internal/envconfig"
	"go.mockhttp.dev/mockhttp/internal/registry"
	"go.mockhttp.dev/mockhttp/internal/worker"
)

// Handle is a leased server: its worker, its registry, and a back-reference
// to the pool slot it occupies.
type Handle struct {
	Worker   *worker.Worker
	Registry *registry.Registry
	pool     *Pool
	released atomic.Bool
}

// Release resets the handle's registry (clears mocks and rings) and returns
// its slot to the pool. The listener is closed — ports are not reused
// across process-visible handles, since a closed listener frees its port
// back to the OS immediately and pool capacity is what's actually recycled.
// Calls after the first do nothing.
func (h *Handle) Release() {
	if !h.released.CompareAndSwap(false, true) {
		return
	}
	h.Registry.Clear()
	_ = h.Worker.Close()
	h.pool.release()
}

// Pool is the process-global allocator. Acquire/AcquireContext are safe to
// call from multiple goroutines.
type Pool struct {
	sem *semaphore.Weighted
	log *slog.Logger

	mu   sync.Mutex
	ring int
}

var (
	globalOnce sync.Once
	global     *Pool
)

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithLogger installs a logger used by workers acquired from the pool.
func WithLogger(log *slog.Logger) Option {
	return func(p *Pool) { p.log = log }
}

// WithUnmatchedRingCapacity sets the diagnostic ring size new handles are
// built with; n < 1 is clamped to 1.
func WithUnmatchedRingCapacity(n int) Option {
	return func(p *Pool) { p.SetUnmatchedRingCapacity(n) }
}

// Global returns the process-wide pool, initializing it lazily on first use.
func Global() *Pool {
	globalOnce.Do(func() {
		global = New(envconfig.PoolCapacity(),
			WithUnmatchedRingCapacity(envconfig.RingCapacity()),
			WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: envconfig.LogLevel(),
			}))),
		)
	})
	return global
}

// New builds a pool capped at maxLive concurrently acquired servers; 0 means
// unbounded. opts apply in order after the defaults are set.
func New(maxLive int64, opts ...Option) *Pool {
	p := &Pool{log: slog.New(slog.DiscardHandler), ring: 1}
	if maxLive > 0 {
		p.sem = semaphore.NewWeighted(maxLive)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetLogger installs a logger used by workers acquired from this pool.
func (p *Pool) SetLogger(log *slog.Logger) { p.log = log }

// SetUnmatchedRingCapacity configures the diagnostic ring size new handles
// are built with.
func (p *Pool) SetUnmatchedRingCapacity(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n < 1 {
		n = 1
	}
	p.ring = n
}

// Acquire blocks the calling goroutine until a slot is free (if the pool is
// bounded), then listens on an ephemeral localhost port and returns a Handle.
func (p *Pool) Acquire() (*Handle, error) {
	return p.AcquireContext(context.Background())
}

// AcquireContext is Acquire's suspension-aware form: it returns ctx.Err() if
// ctx is done before a slot frees up.
func (p *Pool) AcquireContext(ctx context.Context) (*Handle, error) {
	if p.sem != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	ringCap := p.ring
	p.mu.Unlock()

	reg := registry.New(ringCap)
	w, err := worker.Listen("127.0.0.1:0", reg, p.log)
	if err != nil {
		if p.sem != nil {
			p.sem.Release(1)
		}
		return nil, err
	}

	go func() {
		if err := w.Serve(); err != nil {
			p.log.Debug("pool: worker stopped", "error", err)
		}
	}()

	return &Handle{Worker: w, Registry: reg, pool: p}, nil
}

func (p *Pool) release() {
	if p.sem != nil {
		p.sem.Release(1)
	}
}

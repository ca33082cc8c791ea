package pool_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mockhttp.dev/mockhttp/internal/pool"
)

func TestAcquireUnboundedServesAndReleases(t *testing.T) {
	p := pool.New(0)

	h, err := p.Acquire()
	require.NoError(t, err)

	go h.Worker.Serve()
	defer h.Release()

	resp, err := http.Get("http://" + h.Worker.Addr().String() + "/anything")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

// TestAcquireBoundedBlocksUntilReleased exercises the §4.6 bounded-pool
// suspension point: a second Acquire on a capacity-1 pool blocks until the
// first handle is released.
func TestAcquireBoundedBlocksUntilReleased(t *testing.T) {
	p := pool.New(1)

	h1, err := p.Acquire()
	require.NoError(t, err)
	go h1.Worker.Serve()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.AcquireContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	h1.Release()

	h2, err := p.Acquire()
	require.NoError(t, err)
	defer h2.Release()
	go h2.Worker.Serve()
}

func TestReleaseClosesTheListener(t *testing.T) {
	p := pool.New(0)
	h, err := p.Acquire()
	require.NoError(t, err)
	go h.Worker.Serve()

	addr := h.Worker.Addr().String()
	h.Release()

	_, err = http.Get("http://" + addr + "/anything")
	assert.Error(t, err)
}

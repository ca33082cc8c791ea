package worker_test

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mockhttp.dev/mockhttp/internal/matching"
	"go.mockhttp.dev/mockhttp/internal/registry"
	"go.mockhttp.dev/mockhttp/internal/respbuild"
	"go.mockhttp.dev/mockhttp/internal/worker"
)

func TestServeMatchedMock(t *testing.T) {
	reg := registry.New(4)
	reg.Register(&registry.Mock{
		MethodMatcher: matching.Exact("GET"),
		PathMatcher:   matching.Exact("/hello"),
		BodyMatcher:   matching.BodyString(matching.Any()),
		Expected:      registry.AtLeastOnce,
		Response: respbuild.Spec{
			Kind:    respbuild.Literal,
			Status:  200,
			Body:    []byte("world"),
			Headers: map[string][]string{},
		},
	})

	w, err := worker.Listen("127.0.0.1:0", reg, nil)
	require.NoError(t, err)
	go w.Serve()
	defer w.Close()

	resp, err := http.Get("http://" + w.Addr().String() + "/hello")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "world", string(body))
}

func TestServeFallbackWhenUnmatched(t *testing.T) {
	reg := registry.New(4)

	w, err := worker.Listen("127.0.0.1:0", reg, nil)
	require.NoError(t, err)
	go w.Serve()
	defer w.Close()

	resp, err := http.Get("http://" + w.Addr().String() + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	assert.Contains(t, string(body), "no mock matches")
}

func TestCloseStopsServing(t *testing.T) {
	reg := registry.New(4)
	w, err := worker.Listen("127.0.0.1:0", reg, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Serve() }()

	require.NoError(t, w.Close())
	assert.NoError(t, <-done)
}

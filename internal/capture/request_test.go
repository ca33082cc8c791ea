package capture_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mockhttp.dev/mockhttp/internal/capture"
)

func TestFromHTTPBasics(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "http://example.test/p/q?b=2&a=1", strings.NewReader("payload"))
	require.NoError(t, err)
	req.Header.Add("X-Trace", "one")
	req.Header.Add("X-Trace", "two")

	captured, err := capture.FromHTTP(req)
	require.NoError(t, err)

	assert.Equal(t, "POST", captured.Method)
	assert.Equal(t, "/p/q", captured.Path)
	assert.Equal(t, []byte("payload"), captured.Body)
	assert.Equal(t, []string{"one", "two"}, captured.Headers.Values("x-trace"))
	assert.True(t, captured.Headers.Has("X-Trace"))
	assert.False(t, captured.Headers.Has("X-Missing"))
}

func TestFromHTTPUppercasesMethod(t *testing.T) {
	req, err := http.NewRequest("get", "http://example.test/", nil)
	require.NoError(t, err)

	captured, err := capture.FromHTTP(req)
	require.NoError(t, err)
	assert.Equal(t, "GET", captured.Method)
}

func TestQueryPreservesFirstSeenOrder(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://example.test/p?b=2&a=1&b=3", nil)
	require.NoError(t, err)

	captured, err := capture.FromHTTP(req)
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "a"}, captured.Query.Names())
	assert.Equal(t, []string{"2", "3"}, captured.Query.Values("b"))
	assert.True(t, captured.Query.Has("a"))
	assert.False(t, captured.Query.Has("c"))
}

func TestBodyAsURLValues(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "http://example.test/", strings.NewReader("name=john+doe&age=30"))
	require.NoError(t, err)

	captured, err := capture.FromHTTP(req)
	require.NoError(t, err)

	values, err := captured.BodyAsURLValues()
	require.NoError(t, err)
	assert.Equal(t, "john doe", values.Get("name"))
	assert.Equal(t, "30", values.Get("age"))
}

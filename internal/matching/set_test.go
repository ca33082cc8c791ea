package matching_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mockhttp.dev/mockhttp/internal/capture"
	"go.mockhttp.dev/mockhttp/internal/matching"
)

func TestHeaderMatcher(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://example.test/", nil)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	captured, err := capture.FromHTTP(req)
	require.NoError(t, err)

	m := matching.Header("content-type", matching.Exact("application/json"))
	assert.True(t, m.MatchHeaders(captured.Headers))

	m2 := matching.Header("content-type", matching.Exact("text/plain"))
	assert.False(t, m2.MatchHeaders(captured.Headers))

	m3 := matching.Header("x-missing", matching.Missing())
	assert.True(t, m3.MatchHeaders(captured.Headers))
}

func TestQueryMatcher(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://example.test/p?name=bob&name=alice", nil)
	require.NoError(t, err)

	captured, err := capture.FromHTTP(req)
	require.NoError(t, err)

	m := matching.Query("name", matching.OneOf("bob", "alice"))
	assert.True(t, m.MatchQuery(captured.Query))

	m2 := matching.Query("missing", matching.Missing())
	assert.True(t, m2.MatchQuery(captured.Query))
}

func TestUrlEncodedQuery(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://example.test/p?a=1&b=2", nil)
	require.NoError(t, err)

	captured, err := capture.FromHTTP(req)
	require.NoError(t, err)

	assert.True(t, matching.UrlEncodedQuery("a", "1").MatchQuery(captured.Query))
	assert.False(t, matching.UrlEncodedQuery("a", "2").MatchQuery(captured.Query))
}

package mockhttp_test

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mockhttp.dev/mockhttp"
)

// TestBasicExactMatch is S1: a single mock for GET /ping answers with the
// configured status and body, and is satisfied after one request.
func TestBasicExactMatch(t *testing.T) {
	srv, err := mockhttp.NewServer()
	require.NoError(t, err)
	defer srv.Release()

	mock, err := srv.Mock(http.MethodGet, "/ping").
		WithStatus(200).
		WithBodyString("pong").
		Create()
	require.NoError(t, err)

	resp, err := http.Get(srv.URL() + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "pong", string(body))
	assert.True(t, mock.Matched())
	assert.EqualValues(t, 1, mock.Hits())
}

// TestUnmatchedRequestGets501 is S2: a request matching no mock gets the
// 501 fallback, and every created mock remains unsatisfied.
func TestUnmatchedRequestGets501(t *testing.T) {
	srv, err := mockhttp.NewServer()
	require.NoError(t, err)
	defer srv.Release()

	mock, err := srv.Mock(http.MethodGet, "/known").Create()
	require.NoError(t, err)

	resp, err := http.Get(srv.URL() + "/unknown")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	assert.False(t, mock.Matched())
}

// TestPartialJsonBody is S3: a PartialJson matcher accepts a superset body
// and rejects a body whose required field carries a different value.
func TestPartialJsonBody(t *testing.T) {
	srv, err := mockhttp.NewServer()
	require.NoError(t, err)
	defer srv.Release()

	_, err = srv.Mock(http.MethodPost, "/orders").
		MatchBody(mockhttp.PartialJson(map[string]any{"sku": "widget"})).
		WithStatus(201).
		Create()
	require.NoError(t, err)

	ok, err := http.Post(srv.URL()+"/orders", "application/json", jsonBody(`{"sku":"widget","qty":3}`))
	require.NoError(t, err)
	defer ok.Body.Close()
	assert.Equal(t, 201, ok.StatusCode)

	bad, err := http.Post(srv.URL()+"/orders", "application/json", jsonBody(`{"sku":"other"}`))
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, bad.StatusCode)
}

// TestLoadBalancingAcrossEqualMocks is S4: two mocks for the same route with
// no expectations split 3/2 over five requests, lower-hit-first.
func TestLoadBalancingAcrossEqualMocks(t *testing.T) {
	srv, err := mockhttp.NewServer()
	require.NoError(t, err)
	defer srv.Release()

	m1, err := srv.Mock(http.MethodGet, "/p").WithBodyString("one").Create()
	require.NoError(t, err)
	m2, err := srv.Mock(http.MethodGet, "/p").WithBodyString("two").Create()
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		resp, err := http.Get(srv.URL() + "/p")
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.EqualValues(t, 3, m1.Hits())
	assert.EqualValues(t, 2, m2.Hits())
}

// TestExpectRangeAssertion is S5: a mock with ExpectRange reports Matched()
// false (so Assert would fail) until its hit count enters the range, then true.
func TestExpectRangeAssertion(t *testing.T) {
	srv, err := mockhttp.NewServer()
	require.NoError(t, err)
	defer srv.Release()

	mock, err := srv.Mock(http.MethodGet, "/limited").ExpectRange(2, 3).Create()
	require.NoError(t, err)

	resp, err := http.Get(srv.URL() + "/limited")
	require.NoError(t, err)
	resp.Body.Close()
	assert.False(t, mock.Matched())

	resp, err = http.Get(srv.URL() + "/limited")
	require.NoError(t, err)
	resp.Body.Close()
	assert.True(t, mock.Matched())
}

// TestServerResetClearsMocksAndHits is S6: Release resets the server so a
// reacquired handle starts with an empty registry.
func TestServerResetClearsMocksAndHits(t *testing.T) {
	srv, err := mockhttp.NewServer()
	require.NoError(t, err)

	_, err = srv.Mock(http.MethodGet, "/will-vanish").Create()
	require.NoError(t, err)
	srv.Release()

	srv2, err := mockhttp.NewServer()
	require.NoError(t, err)
	defer srv2.Release()

	resp, err := http.Get(srv2.URL() + "/will-vanish")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestWithBodyFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resp.http")
	require.NoError(t, os.WriteFile(path, []byte("HTTP/1.1 202 Accepted\r\nX-From-File: yes\r\n\r\nfiled"), 0o644))

	srv, err := mockhttp.NewServer()
	require.NoError(t, err)
	defer srv.Release()

	_, err = srv.Mock(http.MethodGet, "/file").WithBodyFromFile(path).Create()
	require.NoError(t, err)

	resp, err := http.Get(srv.URL() + "/file")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, 202, resp.StatusCode)
	assert.Equal(t, "yes", resp.Header.Get("X-From-File"))
	assert.Equal(t, "filed", string(body))
}

func TestServerGuardReleasesOnCleanup(t *testing.T) {
	guard, err := mockhttp.NewServerGuard(t)
	require.NoError(t, err)

	_, err = guard.Mock(http.MethodGet, "/g").Create()
	require.NoError(t, err)

	resp, err := http.Get(guard.URL() + "/g")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

// TestServerRequestsTracksMatchedTraffic covers Server.Requests(): every
// matched request is recorded server-wide, tagged with the id of the mock it
// hit, regardless of which mock's own Requests() a caller happens to check.
func TestServerRequestsTracksMatchedTraffic(t *testing.T) {
	srv, err := mockhttp.NewServer()
	require.NoError(t, err)
	defer srv.Release()

	mock, err := srv.Mock(http.MethodGet, "/ping").WithStatus(200).Create()
	require.NoError(t, err)

	resp, err := http.Get(srv.URL() + "/ping")
	require.NoError(t, err)
	resp.Body.Close()

	records := srv.Requests()
	require.Len(t, records, 1)
	assert.Equal(t, mock.ID(), records[0].MockID)
	assert.Equal(t, "/ping", records[0].Request.Path)
}

// TestWithLoggerOption covers mockhttp.WithLogger: the acquired server keeps
// working normally with a caller-supplied logger wired in, overriding
// whatever the pool installs by default.
func TestWithLoggerOption(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := mockhttp.NewServer(mockhttp.WithLogger(log))
	require.NoError(t, err)
	defer srv.Release()

	_, err = srv.Mock(http.MethodGet, "/ping").WithStatus(200).Create()
	require.NoError(t, err)

	resp, err := http.Get(srv.URL() + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}

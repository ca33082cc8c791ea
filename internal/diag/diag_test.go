package diag_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mockhttp.dev/mockhttp/internal/capture"
	"go.mockhttp.dev/mockhttp/internal/diag"
	"go.mockhttp.dev/mockhttp/internal/matching"
	"go.mockhttp.dev/mockhttp/internal/registry"
)

func TestRenderWithoutUnmatched(t *testing.T) {
	mock := &registry.Mock{
		Method:      "GET",
		PathMatcher: matching.Exact("/ping"),
		Expected:    registry.Range{Lower: 1, Upper: registry.Unbounded},
	}

	out := diag.Render(mock, capture.Request{}, false)
	assert.Contains(t, out, "GET")
	assert.Contains(t, out, `equalTo("/ping")`)
	assert.Contains(t, out, ">= 1")
	assert.NotContains(t, out, "last unmatched")
}

func TestRenderWithUnmatchedIncludesRequestDetails(t *testing.T) {
	mock := &registry.Mock{
		Method:      "POST",
		PathMatcher: matching.Exact("/orders"),
		Expected:    registry.Range{Lower: 1, Upper: 1},
	}

	req, err := http.NewRequest("POST", "http://example.test/other?x=1", nil)
	require.NoError(t, err)
	captured, err := capture.FromHTTP(req)
	require.NoError(t, err)
	captured.Body = []byte(`{"b":[2,1],"a":1}`)

	out := diag.Render(mock, captured, true)
	assert.Contains(t, out, "last unmatched request:")
	assert.Contains(t, out, "/other")
	assert.Contains(t, out, `"a": 1`)
}

func TestRenderDescribesHeaderAndBodyMatchers(t *testing.T) {
	mock := &registry.Mock{
		Method:      "POST",
		PathMatcher: matching.Exact("/orders"),
		HeaderMatchers: []matching.HeaderMatcher{
			matching.Header("X-Api-Key", matching.Exact("secret")),
		},
		BodyMatcher: matching.BodyString(matching.Exact("hello")),
		Expected:    registry.Range{Lower: 1, Upper: registry.Unbounded},
	}

	out := diag.Render(mock, capture.Request{}, false)
	assert.Contains(t, out, `equalTo("secret")`)
	assert.Contains(t, out, `body:    body:equalTo("hello")`)
}

func TestRenderWithUnmatchedDiffsHeadersAndBody(t *testing.T) {
	mock := &registry.Mock{
		Method:      "POST",
		PathMatcher: matching.Exact("/orders"),
		HeaderMatchers: []matching.HeaderMatcher{
			matching.Header("X-Api-Key", matching.Exact("secret")),
		},
		BodyMatcher: matching.BodyString(matching.Exact("expected-body")),
		Expected:    registry.Range{Lower: 1, Upper: 1},
	}

	req, err := http.NewRequest("POST", "http://example.test/orders", nil)
	require.NoError(t, err)
	req.Header.Set("X-Other-Header", "actual-value")
	captured, err := capture.FromHTTP(req)
	require.NoError(t, err)
	captured.Body = []byte("actual-body")

	out := diag.Render(mock, captured, true)
	assert.Contains(t, out, `equalTo("secret")`)
	assert.Contains(t, out, "x-other-header")
	assert.Contains(t, out, "actual-value")
	assert.Contains(t, out, "actual-body")
}

package respbuild_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mockhttp.dev/mockhttp/internal/capture"
	"go.mockhttp.dev/mockhttp/internal/respbuild"
)

func TestParseBytes(t *testing.T) {
	doc := "HTTP/1.1 201 Created\r\nX-Custom: yes\r\nContent-Type: text/plain\r\n\r\nhello world"
	parsed, err := respbuild.ParseBytes([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, 201, parsed.Status)
	assert.Equal(t, []string{"yes"}, parsed.Headers["X-Custom"])
	assert.Equal(t, "hello world", string(parsed.Body))
}

func TestParseBytesLFOnly(t *testing.T) {
	doc := "HTTP/1.1 404 Not Found\nContent-Type: text/plain\n\nmissing"
	parsed, err := respbuild.ParseBytes([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 404, parsed.Status)
	assert.Equal(t, "missing", string(parsed.Body))
}

// TestFromFileRoundTrip covers the round-trip property: writing a response
// to a file in the documented format and serving it yields the same status,
// headers, and body bytes.
func TestFromFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "response.http")
	doc := "HTTP/1.1 418 I'm a teapot\r\nX-Teapot: true\r\n\r\nshort and stout"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	spec := respbuild.Spec{Kind: respbuild.FromFile, FilePath: path}
	built, err := respbuild.Build(spec, capture.Request{}, false)
	require.NoError(t, err)

	assert.Equal(t, 418, built.Status)
	assert.Equal(t, []string{"true"}, built.Headers["X-Teapot"])
	assert.Equal(t, "short and stout", string(built.Body))
}

// TestFromFileRoundTripPreservesCRLFInBody guards against normalizing line
// endings across the whole file: a body that itself contains "\r\n" bytes
// (simulating binary content or Windows-line-ended text) must come back out
// unchanged, not collapsed to "\n".
func TestFromFileRoundTripPreservesCRLFInBody(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "response.http")
	body := "line one\r\nline two\r\nline three"
	doc := "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\n\r\n" + body
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	spec := respbuild.Spec{Kind: respbuild.FromFile, FilePath: path}
	built, err := respbuild.Build(spec, capture.Request{}, false)
	require.NoError(t, err)

	assert.Equal(t, body, string(built.Body))
}

func TestBuildDefaults(t *testing.T) {
	spec := respbuild.Spec{Kind: respbuild.Literal, Body: []byte("hi")}
	built, err := respbuild.Build(spec, capture.Request{}, false)
	require.NoError(t, err)

	assert.Equal(t, 200, built.Status)
	assert.Equal(t, []string{"2"}, built.Headers["Content-Length"])
	assert.Equal(t, []string{"close"}, built.Headers["Connection"])
	assert.Equal(t, []string{"text/plain"}, built.Headers["Content-Type"])
}

func TestBuildHTTP2OmitsConnectionClose(t *testing.T) {
	spec := respbuild.Spec{Kind: respbuild.Literal, Body: []byte("hi")}
	built, err := respbuild.Build(spec, capture.Request{}, true)
	require.NoError(t, err)
	_, hasConnection := built.Headers["Connection"]
	assert.False(t, hasConnection)
}

func TestBuildExplicitContentLengthNotOverwritten(t *testing.T) {
	spec := respbuild.Spec{
		Kind:    respbuild.Literal,
		Body:    []byte("hi"),
		Headers: map[string][]string{"Content-Length": {"999"}},
	}
	built, err := respbuild.Build(spec, capture.Request{}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"999"}, built.Headers["Content-Length"])
}

func TestBuildDynamic(t *testing.T) {
	spec := respbuild.Spec{
		Kind: respbuild.Dynamic,
		BodyFn: func(req capture.Request) []byte {
			return []byte("method=" + req.Method)
		},
	}
	built, err := respbuild.Build(spec, capture.Request{Method: "GET"}, false)
	require.NoError(t, err)
	assert.Equal(t, "method=GET", string(built.Body))
}

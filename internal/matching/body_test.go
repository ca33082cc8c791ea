package matching_test

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mockhttp.dev/mockhttp/internal/matching"
)

func TestBinary(t *testing.T) {
	m := matching.Binary([]byte{1, 2, 3})
	assert.True(t, m.MatchBody([]byte{1, 2, 3}))
	assert.False(t, m.MatchBody([]byte{1, 2}))
}

func TestJson(t *testing.T) {
	m := matching.Json(map[string]any{"a": 1, "b": "x"})
	assert.True(t, m.MatchBody([]byte(`{"b":"x","a":1}`)))
	assert.False(t, m.MatchBody([]byte(`{"a":1}`)))
	assert.False(t, m.MatchBody([]byte(`not json`)))
}

func TestJsonString(t *testing.T) {
	m, err := matching.JsonString(`{"a":1}`)
	require.NoError(t, err)
	assert.True(t, m.MatchBody([]byte(`  {  "a" : 1 }  `)))
}

func TestPartialJson(t *testing.T) {
	m := matching.PartialJson(map[string]any{"a": int64(1)})

	// S3: {"a":1,"b":2} matches, {"a":2} rejects.
	assert.True(t, m.MatchBody([]byte(`{"a":1,"b":2}`)))
	assert.False(t, m.MatchBody([]byte(`{"a":2}`)))
}

func TestPartialJsonArrayElementwise(t *testing.T) {
	m := matching.PartialJson(map[string]any{"items": []any{"x"}})
	assert.True(t, m.MatchBody([]byte(`{"items":["x","y","z"]}`)))
	assert.False(t, m.MatchBody([]byte(`{"items":["y","x"]}`)))
}

func TestPartialJsonNested(t *testing.T) {
	m := matching.PartialJson(map[string]any{"user": map[string]any{"name": "bob"}})
	assert.True(t, m.MatchBody([]byte(`{"user":{"name":"bob","age":30}}`)))
	assert.False(t, m.MatchBody([]byte(`{"user":{"name":"alice"}}`)))
}

func TestUrlEncodedBody(t *testing.T) {
	m := matching.UrlEncodedBody("name", "john doe")
	assert.True(t, m.MatchBody([]byte(`name=john+doe&age=30`)))
	assert.False(t, m.MatchBody([]byte(`name=jane&age=30`)))
}

func TestBodyString(t *testing.T) {
	m := matching.BodyString(matching.Exact("hello"))
	assert.True(t, m.MatchBody([]byte("hello")))
	assert.False(t, m.MatchBody([]byte("world")))
}

func TestBodyStringRegexValidUTF8(t *testing.T) {
	re, err := matching.Regex(`^he\w+$`)
	require.NoError(t, err)
	m := matching.BodyString(re)
	assert.True(t, m.MatchBody([]byte("hello")))
	assert.False(t, m.MatchBody([]byte("goodbye")))
}

// TestBodyStringRegexInvalidUTF8FallsBackToBytes covers a body that isn't
// valid UTF-8 (a 0xff byte up front, which never occurs in UTF-8): the regex still has to
// see the trailing literal bytes through the MatchBytes fallback rather
// than bailing out because the body as a whole isn't a clean string.
func TestBodyStringRegexInvalidUTF8FallsBackToBytes(t *testing.T) {
	re, err := matching.Regex(`binary$`)
	require.NoError(t, err)
	m := matching.BodyString(re)

	body := []byte{0xff, 'b', 'i', 'n', 'a', 'r', 'y'}
	require.False(t, utf8.Valid(body))
	assert.True(t, m.MatchBody(body))
	assert.False(t, m.MatchBody([]byte{0xff, 'o', 't', 'h', 'e', 'r'}))
}

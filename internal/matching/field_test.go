package matching_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"go.mockhttp.dev/mockhttp/internal/matching"
)

func TestExact(t *testing.T) {
	m := matching.Exact("hello")
	assert.True(t, m.MatchField([]string{"hello"}, true))
	assert.False(t, m.MatchField([]string{"world"}, true))
	assert.False(t, m.MatchField(nil, false))
}

func TestMissing(t *testing.T) {
	m := matching.Missing()
	assert.True(t, m.MatchField(nil, false))
	assert.False(t, m.MatchField([]string{"x"}, true))
}

func TestAny(t *testing.T) {
	m := matching.Any()
	assert.True(t, m.MatchField(nil, false))
	assert.True(t, m.MatchField([]string{"x"}, true))
}

func TestRegex(t *testing.T) {
	m, err := matching.Regex(`^\d+$`)
	assert.NoError(t, err)
	assert.True(t, m.MatchField([]string{"123"}, true))
	assert.False(t, m.MatchField([]string{"abc"}, true))
	assert.False(t, m.MatchField(nil, false))

	_, err = matching.Regex(`(unterminated`)
	assert.Error(t, err)
}

func TestAllOf(t *testing.T) {
	any, err := matching.Regex(".*")
	assert.NoError(t, err)

	m := matching.AllOf(matching.Exact("foo"), any)
	assert.True(t, m.MatchField([]string{"foo"}, true))
	assert.False(t, m.MatchField([]string{"bar"}, true))
}

func TestAnyOf(t *testing.T) {
	m := matching.AnyOf(matching.Exact("a"), matching.Exact("b"))
	assert.True(t, m.MatchField([]string{"a"}, true))
	assert.True(t, m.MatchField([]string{"b"}, true))
	assert.False(t, m.MatchField([]string{"c"}, true))
}

func TestOneOf(t *testing.T) {
	m := matching.OneOf("a", "b", "c")
	assert.True(t, m.MatchField([]string{"b"}, true))
	assert.False(t, m.MatchField([]string{"z"}, true))
}

package registry_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mockhttp.dev/mockhttp/internal/capture"
	"go.mockhttp.dev/mockhttp/internal/matching"
	"go.mockhttp.dev/mockhttp/internal/registry"
)

func newMock(path string) *registry.Mock {
	return &registry.Mock{
		MethodMatcher: matching.Exact("GET"),
		PathMatcher:   matching.Exact(path),
		BodyMatcher:   matching.BodyString(matching.Any()),
		Expected:      registry.AtLeastOnce,
	}
}

func TestRegisterAssignsIDAndOrder(t *testing.T) {
	r := registry.New(4)
	m1 := newMock("/p")
	m2 := newMock("/p")

	id1 := r.Register(m1)
	id2 := r.Register(m2)

	assert.NotEmpty(t, id1)
	assert.NotEqual(t, id1, id2)
	assert.EqualValues(t, 0, m1.CreationOrder)
	assert.EqualValues(t, 1, m2.CreationOrder)
	assert.True(t, m1.Created)
}

func TestFindNoMatchPushesUnmatched(t *testing.T) {
	r := registry.New(4)
	req := capture.Request{Method: "GET", Path: "/missing"}

	_, ok := r.Find(req)
	assert.False(t, ok)

	entry, ok := r.LastUnmatched()
	require.True(t, ok)
	assert.Equal(t, "/missing", entry.Request.Path)
}

// TestFindLowestHitsTiebreak covers the load-balancing property: two mocks
// for the same route with no expectations, issued five requests, split 3/2
// in creation order because Find always prefers the lowest-hit mock.
func TestFindLowestHitsTiebreak(t *testing.T) {
	r := registry.New(8)
	m1 := newMock("/p")
	m2 := newMock("/p")
	id1 := r.Register(m1)
	id2 := r.Register(m2)

	req := capture.Request{Method: "GET", Path: "/p"}
	var hitIDs []string
	for i := 0; i < 5; i++ {
		m, ok := r.Find(req)
		require.True(t, ok)
		hitIDs = append(hitIDs, m.ID)
	}

	assert.Equal(t, []string{id1, id2, id1, id2, id1}, hitIDs)
	assert.EqualValues(t, 3, m1.Hits())
	assert.EqualValues(t, 2, m2.Hits())
}

func TestFindRecordsLastMatchedAndRing(t *testing.T) {
	r := registry.New(8)
	m := newMock("/p")
	id := r.Register(m)

	req := capture.Request{Method: "GET", Path: "/p"}
	_, ok := r.Find(req)
	require.True(t, ok)

	assert.Equal(t, id, r.LastMatchedID())
	assert.Len(t, r.MatchedFor(id), 1)
	assert.Empty(t, r.MatchedFor("other"))
}

func TestMatchedRingIsBounded(t *testing.T) {
	r := registry.New(2)
	m := newMock("/p")
	id := r.Register(m)

	req := capture.Request{Method: "GET", Path: "/p"}
	for i := 0; i < 5; i++ {
		_, ok := r.Find(req)
		require.True(t, ok)
	}

	assert.Len(t, r.MatchedFor(id), 2)
}

// TestRequestsSpansAllMocksInArrivalOrder covers Registry.Requests(): unlike
// MatchedFor(id), it returns matches across every mock in the registry,
// oldest first.
func TestRequestsSpansAllMocksInArrivalOrder(t *testing.T) {
	r := registry.New(8)
	m1 := newMock("/a")
	m2 := newMock("/b")
	id1 := r.Register(m1)
	id2 := r.Register(m2)

	_, ok := r.Find(capture.Request{Method: "GET", Path: "/a"})
	require.True(t, ok)
	_, ok = r.Find(capture.Request{Method: "GET", Path: "/b"})
	require.True(t, ok)
	_, ok = r.Find(capture.Request{Method: "GET", Path: "/a"})
	require.True(t, ok)

	all := r.Requests()
	require.Len(t, all, 3)
	assert.Equal(t, []string{id1, id2, id1}, []string{all[0].MockID, all[1].MockID, all[2].MockID})
	assert.Equal(t, "/a", all[0].Request.Path)
	assert.Equal(t, "/b", all[1].Request.Path)
}

// TestRequestsRingIsBounded mirrors TestMatchedRingIsBounded for the
// all-mocks view: the ring capacity bounds Requests() too.
func TestRequestsRingIsBounded(t *testing.T) {
	r := registry.New(2)
	m := newMock("/p")
	r.Register(m)

	req := capture.Request{Method: "GET", Path: "/p"}
	for i := 0; i < 5; i++ {
		_, ok := r.Find(req)
		require.True(t, ok)
	}

	assert.Len(t, r.Requests(), 2)
}

func TestRemove(t *testing.T) {
	r := registry.New(4)
	m := newMock("/p")
	id := r.Register(m)
	r.Remove(id)

	_, ok := r.Find(capture.Request{Method: "GET", Path: "/p"})
	assert.False(t, ok)
	assert.Empty(t, r.IterCreated())
}

func TestClearResetsEverything(t *testing.T) {
	r := registry.New(4)
	m := newMock("/p")
	r.Register(m)
	r.Find(capture.Request{Method: "GET", Path: "/p"})

	r.Clear()

	assert.Empty(t, r.IterCreated())
	assert.Equal(t, "", r.LastMatchedID())
	_, ok := r.LastUnmatched()
	assert.False(t, ok)
}

func TestMockExpectedRange(t *testing.T) {
	m := newMock("/p")
	m.Expected = registry.Range{Lower: 2, Upper: 3}

	assert.False(t, m.Matched())
	m.Hits()

	r := registry.New(4)
	r.Register(m)
	req := capture.Request{Method: "GET", Path: "/p"}

	r.Find(req)
	assert.False(t, m.Matched())
	r.Find(req)
	assert.True(t, m.Matched())
	r.Find(req)
	assert.True(t, m.Matched())
	r.Find(req)
	assert.False(t, m.Matched())
}

func TestMockMatchesAllPredicates(t *testing.T) {
	m := newMock("/p")
	m.QueryMatchers = []matching.QueryMatcher{matching.Query("a", matching.Exact("1"))}
	m.HeaderMatchers = []matching.HeaderMatcher{matching.Header("x", matching.Exact("y"))}

	r := registry.New(4)
	r.Register(m)

	okReq, err := http.NewRequest(http.MethodGet, "http://example.test/p?a=1", nil)
	require.NoError(t, err)
	okReq.Header.Set("x", "y")
	ok, err := capture.FromHTTP(okReq)
	require.NoError(t, err)
	_, matched := r.Find(ok)
	assert.True(t, matched)

	badReq, err := http.NewRequest(http.MethodGet, "http://example.test/p?a=2", nil)
	require.NoError(t, err)
	badReq.Header.Set("x", "y")
	bad, err := capture.FromHTTP(badReq)
	require.NoError(t, err)
	_, matched = r.Find(bad)
	assert.False(t, matched)
}

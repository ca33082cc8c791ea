// Package registry holds the per-server ordered list of created mocks and
// implements the matching algorithm: method/path/query/
// header/body predicates, lowest-hits-then-earliest-creation-order selection,
// and the bounded unmatched/matched diagnostic rings.
package registry

import (
	"math"
	"sync/atomic"

	"go.mockhttp.dev/mockhttp/internal/capture"
	"go.mockhttp.dev/mockhttp/internal/matching"
	"go.mockhttp.dev/mockhttp/internal/respbuild"
)

// Unbounded marks an expected-hits range with no upper bound.
const Unbounded = math.MaxInt64

// Range is a mock's expected-hits lower/upper bound, inclusive. Upper ==
// Unbounded means "no upper bound".
type Range struct {
	Lower, Upper int64
}

// AtLeastOnce is the default expected-hits range.
var AtLeastOnce = Range{Lower: 1, Upper: Unbounded}

// Mock is the shared cell backing both the registry entry and the
// user-facing handle: both reference this same struct, guarded by the
// owning Server's mutex except for Hits, which is atomic so readers don't
// need the lock.
type Mock struct {
	ID             string
	Method         string // display form only, e.g. "GET"; MethodMatcher governs matching
	MethodMatcher  matching.FieldMatcher
	PathMatcher    matching.FieldMatcher
	QueryMatchers  []matching.QueryMatcher
	HeaderMatchers []matching.HeaderMatcher
	BodyMatcher    matching.BodyMatcher
	Response       respbuild.Spec
	Expected       Range
	CreationOrder  int64
	Created        bool

	hits atomic.Int64
}

// Hits returns the current monotonic hit count.
func (m *Mock) Hits() int64 { return m.hits.Load() }

// recordHit increments the hit counter; only the registry's find path calls
// this, under the server mutex, so creation-order tiebreaks stay consistent.
func (m *Mock) recordHit() { m.hits.Add(1) }

// Matched reports whether hits falls within the expected range.
func (m *Mock) Matched() bool {
	h := m.Hits()
	if h < m.Expected.Lower {
		return false
	}
	if m.Expected.Upper != Unbounded && h > m.Expected.Upper {
		return false
	}
	return true
}

// matches evaluates every predicate: method, path, query, headers, body.
func (m *Mock) matches(req capture.Request) bool {
	if !m.Created {
		return false
	}
	if m.MethodMatcher != nil && !m.MethodMatcher.MatchField([]string{req.Method}, true) {
		return false
	}
	if m.PathMatcher != nil && !m.PathMatcher.MatchField([]string{req.Path}, true) {
		return false
	}
	for _, qm := range m.QueryMatchers {
		if !qm.MatchQuery(req.Query) {
			return false
		}
	}
	for _, hm := range m.HeaderMatchers {
		if !hm.MatchHeaders(req.Headers) {
			return false
		}
	}
	if m.BodyMatcher != nil && !m.BodyMatcher.MatchBody(req.Body) {
		return false
	}
	return true
}

package registry

import (
	"sync"

	"github.com/google/uuid"

	"go.mockhttp.dev/mockhttp/internal/capture"
)

// UnmatchedEntry is one request the registry failed to match, kept for
// assertion diagnostics.
type UnmatchedEntry struct {
	Request capture.Request
}

// MatchedEntry is one request that did match, paired with the mock it hit.
type MatchedEntry struct {
	Request capture.Request
	MockID  string
}

// Registry is the per-server ordered list of created mocks plus the two
// diagnostic rings, all guarded by one mutex.
type Registry struct {
	mu sync.Mutex

	mocks       []*Mock
	nextOrder   int64
	lastMatched string

	unmatchedCap int
	unmatched    []UnmatchedEntry

	matchedCap int
	matched    []MatchedEntry
}

// New returns an empty registry. ringCap bounds both diagnostic rings,
// default 1.
func New(ringCap int) *Registry {
	if ringCap < 1 {
		ringCap = 1
	}
	return &Registry{unmatchedCap: ringCap, matchedCap: ringCap}
}

// Register assigns an id and creation-order, marks the mock created, and
// appends it to the ordered list. Returns the id.
func (r *Registry) Register(m *Mock) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreationOrder = r.nextOrder
	r.nextOrder++
	m.Created = true
	r.mocks = append(r.mocks, m)
	return m.ID
}

// Remove expunges the mock with id from the registry. O(n).
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, m := range r.mocks {
		if m.ID == id {
			r.mocks = append(r.mocks[:i], r.mocks[i+1:]...)
			return
		}
	}
}

// Clear empties the registry and both diagnostic rings, as on a server reset.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.mocks = nil
	r.unmatched = nil
	r.matched = nil
	r.lastMatched = ""
}

// IterCreated returns a snapshot of every created mock, for assertion
// reporting.
func (r *Registry) IterCreated() []*Mock {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Mock, len(r.mocks))
	copy(out, r.mocks)
	return out
}

// Find selects the best matching mock for req: among all matching mocks,
// lowest hits count, tiebreak earliest creation-order. On a
// match, the mock's hit counter is incremented and the last-matched slot
// updated, under the same lock that performed the selection so creation-order
// tiebreaks observe a consistent hit snapshot.
func (r *Registry) Find(req capture.Request) (*Mock, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *Mock
	for _, m := range r.mocks {
		if !m.matches(req) {
			continue
		}
		if best == nil {
			best = m
			continue
		}
		if m.Hits() < best.Hits() {
			best = m
		} else if m.Hits() == best.Hits() && m.CreationOrder < best.CreationOrder {
			best = m
		}
	}

	if best == nil {
		r.pushUnmatched(UnmatchedEntry{Request: req})
		return nil, false
	}

	best.recordHit()
	r.lastMatched = best.ID
	r.pushMatched(MatchedEntry{Request: req, MockID: best.ID})
	return best, true
}

func (r *Registry) pushUnmatched(e UnmatchedEntry) {
	r.unmatched = append(r.unmatched, e)
	if len(r.unmatched) > r.unmatchedCap {
		r.unmatched = r.unmatched[len(r.unmatched)-r.unmatchedCap:]
	}
}

func (r *Registry) pushMatched(e MatchedEntry) {
	r.matched = append(r.matched, e)
	if len(r.matched) > r.matchedCap {
		r.matched = r.matched[len(r.matched)-r.matchedCap:]
	}
}

// LastUnmatched returns the most recently recorded unmatched request, used
// to render the assertion-failure diff.
func (r *Registry) LastUnmatched() (UnmatchedEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.unmatched) == 0 {
		return UnmatchedEntry{}, false
	}
	return r.unmatched[len(r.unmatched)-1], true
}

// MatchedFor returns the matched-request ring entries whose MockID equals id,
// in arrival order.
func (r *Registry) MatchedFor(id string) []capture.Request {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []capture.Request
	for _, e := range r.matched {
		if e.MockID == id {
			out = append(out, e.Request)
		}
	}
	return out
}

// Requests returns a copy of the whole matched-request ring, across every
// mock, in arrival order.
func (r *Registry) Requests() []MatchedEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]MatchedEntry, len(r.matched))
	copy(out, r.matched)
	return out
}

// LastMatchedID returns the id of the most recently matched mock, or "" if
// none yet.
func (r *Registry) LastMatchedID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastMatched
}

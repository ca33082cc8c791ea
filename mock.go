package mockhttp

import (
	"context"
	"fmt"
	"strings"

	"go.mockhttp.dev/mockhttp/internal/capture"
	"go.mockhttp.dev/mockhttp/internal/diag"
	"go.mockhttp.dev/mockhttp/internal/registry"
	"go.mockhttp.dev/mockhttp/internal/respbuild"
)

// ConfigError wraps a failure detected while creating a mock: an unreadable
// FromFile path or a malformed response document (e.g. its status line). A
// bad regex is not wrapped here: Regex returns its own error before any
// builder sees the matcher.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("mockhttp: %s: %v", e.Op, e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

// MockBuilder declares a mock's matchers and response before Create freezes
// it into the server's registry. A builder dropped without Create has zero
// side effects.
type MockBuilder struct {
	server *Server

	method        string
	methodMatcher FieldMatcher
	path          FieldMatcher
	queries       []QueryMatcher
	headers       []HeaderMatcher
	body          BodyMatcher
	spec          respbuild.Spec
	expect        registry.Range

	err error // first configuration error encountered, surfaced at Create
}

func newBuilder(s *Server, method, path string) *MockBuilder {
	upper := strings.ToUpper(method)
	return &MockBuilder{
		server:        s,
		method:        upper,
		methodMatcher: Exact(upper),
		path:          Exact(path),
		expect:        registry.AtLeastOnce,
		spec:          respbuild.Spec{Status: 200, Headers: map[string][]string{}},
	}
}

// MatchMethod overrides the default exact-method matcher, e.g. Any() for a
// mock that should answer every verb on a path.
func (b *MockBuilder) MatchMethod(m FieldMatcher) *MockBuilder {
	b.methodMatcher = m
	return b
}

// MatchPath overrides the default exact-path matcher.
func (b *MockBuilder) MatchPath(m FieldMatcher) *MockBuilder {
	b.path = m
	return b
}

// MatchHeader attaches a header-set matcher; ALL attached header matchers
// must match.
func (b *MockBuilder) MatchHeader(name string, m FieldMatcher) *MockBuilder {
	b.headers = append(b.headers, Header(name, m))
	return b
}

// MatchQuery attaches a query-set matcher; ALL attached query matchers must
// match.
func (b *MockBuilder) MatchQuery(name string, m FieldMatcher) *MockBuilder {
	b.queries = append(b.queries, Query(name, m))
	return b
}

// MatchQueryMatcher attaches a whole-query matcher such as UrlEncodedQuery.
func (b *MockBuilder) MatchQueryMatcher(m QueryMatcher) *MockBuilder {
	b.queries = append(b.queries, m)
	return b
}

// MatchBody sets the body matcher (default Any).
func (b *MockBuilder) MatchBody(m BodyMatcher) *MockBuilder {
	b.body = m
	return b
}

// WithStatus sets the response status code (default 200).
func (b *MockBuilder) WithStatus(code int) *MockBuilder {
	b.spec.Status = code
	return b
}

// WithHeader adds a response header; user-supplied headers override defaults.
func (b *MockBuilder) WithHeader(name, value string) *MockBuilder {
	b.spec.Headers[name] = append(b.spec.Headers[name], value)
	return b
}

// WithBody sets a literal response body.
func (b *MockBuilder) WithBody(body []byte) *MockBuilder {
	b.spec.Kind = respbuild.Literal
	b.spec.Body = body
	return b
}

// WithBodyString is WithBody for a string literal.
func (b *MockBuilder) WithBodyString(body string) *MockBuilder {
	return b.WithBody([]byte(body))
}

// WithBodyFromFile sources status, headers and body from the response
// document at path.
func (b *MockBuilder) WithBodyFromFile(path string) *MockBuilder {
	b.spec.Kind = respbuild.FromFile
	b.spec.FilePath = path
	return b
}

// WithBodyFromRequest sets a Dynamic response body function, called with the
// matched request from the worker's goroutine.
func (b *MockBuilder) WithBodyFromRequest(fn func(req capture.Request) []byte) *MockBuilder {
	b.spec.Kind = respbuild.Dynamic
	b.spec.BodyFn = fn
	return b
}

// Expect requires exactly n hits for Matched/Assert to succeed.
func (b *MockBuilder) Expect(n int64) *MockBuilder {
	b.expect = registry.Range{Lower: n, Upper: n}
	return b
}

// ExpectAtLeast requires at least n hits, no upper bound.
func (b *MockBuilder) ExpectAtLeast(n int64) *MockBuilder {
	b.expect = registry.Range{Lower: n, Upper: registry.Unbounded}
	return b
}

// ExpectAtMost requires at most n hits, lower bound 0.
func (b *MockBuilder) ExpectAtMost(n int64) *MockBuilder {
	b.expect = registry.Range{Lower: 0, Upper: n}
	return b
}

// ExpectRange requires hits in [lower, upper].
func (b *MockBuilder) ExpectRange(lower, upper int64) *MockBuilder {
	b.expect = registry.Range{Lower: lower, Upper: upper}
	return b
}

// Create validates and freezes the builder into the server's registry,
// returning a Mock handle backed by the shared cell.
func (b *MockBuilder) Create() (*Mock, error) {
	return b.CreateContext(context.Background())
}

// CreateContext is Create's suspension-aware form. Cancelling ctx before
// completion leaves the registry either fully applied or untouched, never
// partial.
func (b *MockBuilder) CreateContext(ctx context.Context) (*Mock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.err != nil {
		return nil, &ConfigError{Op: "create", Err: b.err}
	}
	if b.spec.Kind == respbuild.FromFile {
		if _, err := respbuild.ParseFile(b.spec.FilePath); err != nil {
			return nil, &ConfigError{Op: "create", Err: err}
		}
	}

	rm := &registry.Mock{
		Method:         b.method,
		MethodMatcher:  b.methodMatcher,
		PathMatcher:    b.path,
		QueryMatchers:  b.queries,
		HeaderMatchers: b.headers,
		BodyMatcher:    b.body,
		Response:       b.spec,
		Expected:       b.expect,
	}
	if rm.BodyMatcher == nil {
		rm.BodyMatcher = BodyString(Any())
	}

	id := b.server.handle.Registry.Register(rm)
	return &Mock{server: b.server, id: id, record: rm}, nil
}

// Mock is a created mock's handle: it observes hit increments the worker
// performs concurrently, and can be queried or removed.
type Mock struct {
	server *Server
	id     string
	record *registry.Mock
}

// ID returns the mock's unique (per-server) identifier.
func (m *Mock) ID() string { return m.id }

// Hits returns the current monotonic hit count.
func (m *Mock) Hits() int64 { return m.record.Hits() }

// Matched reports whether hits falls within the expected range.
func (m *Mock) Matched() bool { return m.record.Matched() }

// Requests returns every captured request that hit this mock, oldest first,
// bounded by the server's matched-request ring capacity.
func (m *Mock) Requests() []capture.Request {
	return m.server.handle.Registry.MatchedFor(m.id)
}

// Remove expunges the mock from its server's registry. The handle remains
// queryable for its final hit count afterward.
func (m *Mock) Remove() {
	m.server.handle.Registry.Remove(m.id)
}

// Assert fails t with a rendered diagnostic if Matched() is false.
func (m *Mock) Assert(t TestingT) {
	t.Helper()
	if m.record.Matched() {
		return
	}
	unmatched, ok := m.server.handle.Registry.LastUnmatched()
	t.Fatalf("mock was not satisfied:\n%s", diag.Render(m.record, unmatched.Request, ok))
}

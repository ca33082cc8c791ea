package matching

import (
	"fmt"
	"strings"

	"go.mockhttp.dev/mockhttp/internal/capture"
)

// HeaderMatcher evaluates against the full header multimap of a request.
type HeaderMatcher interface {
	fmt.Stringer
	MatchHeaders(h capture.Header) bool
}

// QueryMatcher evaluates against the full parsed-query multimap of a request.
type QueryMatcher interface {
	fmt.Stringer
	MatchQuery(q capture.Query) bool
}

// namedHeader pairs a header name with the FieldMatcher it must satisfy. ALL
// header matchers attached to a mock must match (§4.3).
type namedHeader struct {
	name    string
	matcher FieldMatcher
}

func Header(name string, matcher FieldMatcher) HeaderMatcher {
	return namedHeader{name: strings.ToLower(name), matcher: matcher}
}

func (h namedHeader) MatchHeaders(headers capture.Header) bool {
	return h.matcher.MatchField(headers.Values(h.name), headers.Has(h.name))
}

func (h namedHeader) String() string { return fmt.Sprintf("header[%s]: %s", h.name, h.matcher) }

type namedQuery struct {
	name    string
	matcher FieldMatcher
}

func Query(name string, matcher FieldMatcher) QueryMatcher {
	return namedQuery{name: name, matcher: matcher}
}

func (q namedQuery) MatchQuery(query capture.Query) bool {
	return q.matcher.MatchField(query.Values(q.name), query.Has(q.name))
}

func (q namedQuery) String() string { return fmt.Sprintf("query[%s]: %s", q.name, q.matcher) }

// urlEncodedQuery matches iff the parsed query string contains at least one
// name=value pair equal byte-for-byte to the given decoded name and value.
type urlEncodedQuery struct{ name, value string }

func UrlEncodedQuery(name, value string) QueryMatcher {
	return urlEncodedQuery{name, value}
}

func (m urlEncodedQuery) MatchQuery(q capture.Query) bool {
	for _, v := range q.Values(m.name) {
		if v == m.value {
			return true
		}
	}
	return false
}

func (m urlEncodedQuery) String() string {
	return fmt.Sprintf("urlEncoded(%s=%s)", m.name, m.value)
}

package mockhttp

import "go.mockhttp.dev/mockhttp/internal/matching"

// FieldMatcher evaluates a matcher against the value(s) of one field: a
// header, a query parameter, a path, or (via BodyString) a whole body
// interpreted as a string.
type FieldMatcher = matching.FieldMatcher

// BodyMatcher evaluates a matcher against the raw request body.
type BodyMatcher = matching.BodyMatcher

// HeaderMatcher evaluates against the full header multimap of a request.
type HeaderMatcher = matching.HeaderMatcher

// QueryMatcher evaluates against the full parsed-query multimap of a request.
type QueryMatcher = matching.QueryMatcher

// Exact matches a field whose value is byte-identical to want.
func Exact(want string) FieldMatcher { return matching.Exact(want) }

// Missing matches iff the named field has no occurrence at all.
func Missing() FieldMatcher { return matching.Missing() }

// Any always matches.
func Any() FieldMatcher { return matching.Any() }

// Regex compiles pattern and matches unanchored unless the pattern anchors.
func Regex(pattern string) (FieldMatcher, error) { return matching.Regex(pattern) }

// MustRegex is Regex but panics on a bad pattern.
func MustRegex(pattern string) FieldMatcher { return matching.MustRegex(pattern) }

// AllOf short-circuits false in declaration order.
func AllOf(matchers ...FieldMatcher) FieldMatcher { return matching.AllOf(matchers...) }

// AnyOf short-circuits true in declaration order.
func AnyOf(matchers ...FieldMatcher) FieldMatcher { return matching.AnyOf(matchers...) }

// OneOf is sugar for AnyOf(Exact(v1), Exact(v2), ...).
func OneOf(values ...string) FieldMatcher { return matching.OneOf(values...) }

// BodyString adapts a FieldMatcher to the whole body interpreted as a string.
func BodyString(inner FieldMatcher) BodyMatcher { return matching.BodyString(inner) }

// Binary matches the body byte-for-byte.
func Binary(want []byte) BodyMatcher { return matching.Binary(want) }

// Json matches iff the body parses as JSON and equals v modulo whitespace and
// object-key order.
func Json(v any) BodyMatcher { return matching.Json(v) }

// JsonString is Json given pre-serialized JSON text.
func JsonString(s string) (BodyMatcher, error) { return matching.JsonString(s) }

// PartialJson matches iff every path present in v exists in the body JSON
// with an equal value (arrays compared element-wise; extra keys/elements in
// the body are tolerated).
func PartialJson(v any) BodyMatcher { return matching.PartialJson(v) }

// PartialJsonString is PartialJson given pre-serialized JSON text.
func PartialJsonString(s string) (BodyMatcher, error) { return matching.PartialJsonString(s) }

// UrlEncodedBody matches iff the body, parsed as
// application/x-www-form-urlencoded, contains the given name=value pair.
func UrlEncodedBody(name, value string) BodyMatcher { return matching.UrlEncodedBody(name, value) }

// UrlEncodedQuery matches iff the parsed query string contains the given
// name=value pair.
func UrlEncodedQuery(name, value string) QueryMatcher { return matching.UrlEncodedQuery(name, value) }

// Header builds a header-set entry requiring name to satisfy matcher.
func Header(name string, matcher FieldMatcher) HeaderMatcher { return matching.Header(name, matcher) }

// Query builds a query-set entry requiring name to satisfy matcher.
func Query(name string, matcher FieldMatcher) QueryMatcher { return matching.Query(name, matcher) }

package matching

import (
	"bytes"
	"fmt"
	"net/url"
	"unicode/utf8"

	"github.com/ohler55/ojg/oj"
)

// BodyMatcher evaluates a matcher against the raw request body.
type BodyMatcher interface {
	fmt.Stringer
	MatchBody(body []byte) bool
}

// bodyField adapts a FieldMatcher (Exact, Missing, Any, Regex, AllOf, AnyOf)
// to the whole body interpreted as a string.
type bodyField struct{ inner FieldMatcher }

func BodyString(inner FieldMatcher) BodyMatcher { return bodyField{inner} }

// MatchBody matches the whole body as a string when it's valid UTF-8; a
// matcher that can also evaluate raw bytes (regexMatcher, via byteMatcher)
// gets the chance to match non-UTF-8 bodies that would otherwise never match
// anything once converted to a (possibly mangled) Go string.
func (b bodyField) MatchBody(body []byte) bool {
	present := len(body) > 0
	if present && !utf8.Valid(body) {
		if bm, ok := b.inner.(byteMatcher); ok {
			return bm.MatchBytes(body)
		}
	}
	return b.inner.MatchField([]string{string(body)}, present)
}

func (b bodyField) String() string { return "body:" + b.inner.String() }

type binaryMatcher struct{ want []byte }

// Binary matches the body byte-for-byte.
func Binary(want []byte) BodyMatcher { return binaryMatcher{want} }

func (m binaryMatcher) MatchBody(body []byte) bool { return bytes.Equal(body, m.want) }
func (m binaryMatcher) String() string             { return fmt.Sprintf("binary(%d bytes)", len(m.want)) }

type jsonEqualMatcher struct {
	want any
	raw  string
}

// Json matches iff the body parses as JSON and is equal to v modulo
// whitespace and object-key order.
func Json(v any) BodyMatcher {
	raw := mustEncode(v)
	return jsonEqualMatcher{want: normalizeJSON(v, raw), raw: raw}
}

// JsonString is Json given pre-serialized JSON text instead of a Go value.
func JsonString(s string) (BodyMatcher, error) {
	v, err := oj.ParseString(s)
	if err != nil {
		return nil, fmt.Errorf("matching: parse json string: %w", err)
	}
	return jsonEqualMatcher{want: v, raw: s}, nil
}

func (m jsonEqualMatcher) MatchBody(body []byte) bool {
	actual, err := oj.Parse(body)
	if err != nil {
		return false
	}
	return jsonValueEqual(m.want, actual)
}

func (m jsonEqualMatcher) String() string { return fmt.Sprintf("equalToJson(%s)", m.raw) }

type partialJSONMatcher struct {
	want any
	raw  string
}

// PartialJson matches iff every path present in v exists in the body JSON
// with an equal value; arrays match element-wise at the same indices; extra
// keys/elements in the body are tolerated.
func PartialJson(v any) BodyMatcher {
	raw := mustEncode(v)
	return partialJSONMatcher{want: normalizeJSON(v, raw), raw: raw}
}

// PartialJsonString is PartialJson given pre-serialized JSON text.
func PartialJsonString(s string) (BodyMatcher, error) {
	v, err := oj.ParseString(s)
	if err != nil {
		return nil, fmt.Errorf("matching: parse json string: %w", err)
	}
	return partialJSONMatcher{want: v, raw: s}, nil
}

func (m partialJSONMatcher) MatchBody(body []byte) bool {
	actual, err := oj.Parse(body)
	if err != nil {
		return false
	}
	return jsonSubsetOf(m.want, actual)
}

func (m partialJSONMatcher) String() string { return fmt.Sprintf("partialJson(%s)", m.raw) }

func mustEncode(v any) string {
	b, err := oj.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// normalizeJSON re-parses v's JSON encoding so the expected side has the same
// shapes as a parsed body (map[string]any, []any, int64, float64, ...) whatever
// Go types the caller passed in; v is kept as-is if the encoding doesn't parse.
func normalizeJSON(v any, raw string) any {
	if parsed, err := oj.ParseString(raw); err == nil {
		return parsed
	}
	return v
}

// jsonValueEqual compares two decoded JSON values: key order is irrelevant
// for objects, and number equality is textual when both sides are integers,
// numeric to double precision otherwise.
func jsonValueEqual(want, got any) bool {
	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok || len(g) != len(w) {
			return false
		}
		for k, wv := range w {
			gv, ok := g[k]
			if !ok || !jsonValueEqual(wv, gv) {
				return false
			}
		}
		return true
	case []any:
		g, ok := got.([]any)
		if !ok || len(g) != len(w) {
			return false
		}
		for i := range w {
			if !jsonValueEqual(w[i], g[i]) {
				return false
			}
		}
		return true
	default:
		return jsonScalarEqual(want, got)
	}
}

// jsonSubsetOf reports whether want's shape is a structural subset of got:
// objects compare only keys present in want, arrays compare element-wise at
// matching indices (want may be shorter than got), scalars compare equal.
func jsonSubsetOf(want, got any) bool {
	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			return false
		}
		for k, wv := range w {
			gv, ok := g[k]
			if !ok || !jsonSubsetOf(wv, gv) {
				return false
			}
		}
		return true
	case []any:
		g, ok := got.([]any)
		if !ok || len(g) < len(w) {
			return false
		}
		for i := range w {
			if !jsonSubsetOf(w[i], g[i]) {
				return false
			}
		}
		return true
	default:
		return jsonScalarEqual(want, got)
	}
}

func jsonScalarEqual(want, got any) bool {
	if wi, ok := asInt(want); ok {
		if gi, ok := asInt(got); ok {
			return wi == gi
		}
	}
	if wf, ok := asFloat(want); ok {
		if gf, ok := asFloat(got); ok {
			return wf == gf
		}
	}
	return want == got
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// urlEncodedBodyMatcher matches iff the body, parsed as
// application/x-www-form-urlencoded, contains at least one name=value pair
// equal byte-for-byte to the given (decoded) name and value.
type urlEncodedBodyMatcher struct{ name, value string }

func UrlEncodedBody(name, value string) BodyMatcher {
	return urlEncodedBodyMatcher{name, value}
}

func (m urlEncodedBodyMatcher) MatchBody(body []byte) bool {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return false
	}
	for _, v := range values[m.name] {
		if v == m.value {
			return true
		}
	}
	return false
}

func (m urlEncodedBodyMatcher) String() string {
	return fmt.Sprintf("urlEncoded(%s=%s)", m.name, m.value)
}

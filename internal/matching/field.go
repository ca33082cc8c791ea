// Package matching implements the matcher algebra: predicates over one field
// of a captured request (internal/capture.Request), composed into the mock
// record's method/path/query/header/body matchers.
package matching

import (
	"fmt"
	"regexp"
	"strings"
)

// FieldMatcher evaluates a matcher against the values of one named field
// (a header or query parameter may repeat; method and path never do, and are
// represented as a single-element values slice).
type FieldMatcher interface {
	fmt.Stringer
	MatchField(values []string, present bool) bool
}

type exactMatcher struct{ want string }

// Exact matches a field whose value is byte-identical to want. For headers,
// the name side of the comparison is already case-insensitive (capture.Header
// folds names); the value side is byte-exact per spec.
func Exact(want string) FieldMatcher { return exactMatcher{want} }

func (m exactMatcher) MatchField(values []string, present bool) bool {
	if !present {
		return false
	}
	for _, v := range values {
		if v == m.want {
			return true
		}
	}
	return false
}

func (m exactMatcher) String() string { return fmt.Sprintf("equalTo(%q)", m.want) }

type missingMatcher struct{}

// Missing matches iff the named field has no occurrence at all.
func Missing() FieldMatcher { return missingMatcher{} }

func (missingMatcher) MatchField(_ []string, present bool) bool { return !present }
func (missingMatcher) String() string                           { return "absent" }

type anyMatcher struct{}

// Any always matches.
func Any() FieldMatcher { return anyMatcher{} }

func (anyMatcher) MatchField([]string, bool) bool { return true }
func (anyMatcher) String() string                 { return "any" }

type regexMatcher struct {
	pattern string
	re      *regexp.Regexp
}

// Regex compiles pattern with Go's RE2 engine and matches unanchored unless
// the pattern itself anchors with ^/$.
func Regex(pattern string) (FieldMatcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("matching: compile regex %q: %w", pattern, err)
	}
	return regexMatcher{pattern: pattern, re: re}, nil
}

// MustRegex panics on a bad pattern; for call sites whose pattern is known to
// be valid.
func MustRegex(pattern string) FieldMatcher {
	m, err := Regex(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

func (m regexMatcher) MatchField(values []string, present bool) bool {
	if !present {
		return false
	}
	for _, v := range values {
		if m.re.MatchString(v) {
			return true
		}
	}
	return false
}

func (m regexMatcher) String() string { return fmt.Sprintf("matches(%q)", m.pattern) }

// MatchBytes runs the same pattern against raw bytes, for callers (body
// matching) that fall back to it when the subject isn't valid UTF-8.
func (m regexMatcher) MatchBytes(b []byte) bool { return m.re.Match(b) }

// byteMatcher is implemented by FieldMatchers that can evaluate against raw
// bytes directly, without a UTF-8 string conversion. Only regexMatcher does;
// bodyField probes for it as an optional capability.
type byteMatcher interface {
	MatchBytes(b []byte) bool
}

type allOfMatcher struct{ matchers []FieldMatcher }

// AllOf short-circuits false in declaration order.
func AllOf(matchers ...FieldMatcher) FieldMatcher { return allOfMatcher{matchers} }

func (m allOfMatcher) MatchField(values []string, present bool) bool {
	for _, inner := range m.matchers {
		if !inner.MatchField(values, present) {
			return false
		}
	}
	return true
}

func (m allOfMatcher) String() string { return joinMatchers("allOf", m.matchers) }

type anyOfMatcher struct{ matchers []FieldMatcher }

// AnyOf short-circuits true in declaration order.
func AnyOf(matchers ...FieldMatcher) FieldMatcher { return anyOfMatcher{matchers} }

func (m anyOfMatcher) MatchField(values []string, present bool) bool {
	for _, inner := range m.matchers {
		if inner.MatchField(values, present) {
			return true
		}
	}
	return false
}

func (m anyOfMatcher) String() string { return joinMatchers("anyOf", m.matchers) }

func joinMatchers(op string, matchers []FieldMatcher) string {
	parts := make([]string, len(matchers))
	for i, m := range matchers {
		parts[i] = m.String()
	}
	return op + "(" + strings.Join(parts, ", ") + ")"
}

// OneOf is sugar over AnyOf(Exact(...)) for each candidate, ported from the
// original mockito crate's query/header "one of these values" helper.
func OneOf(values ...string) FieldMatcher {
	matchers := make([]FieldMatcher, len(values))
	for i, v := range values {
		matchers[i] = Exact(v)
	}
	return AnyOf(matchers...)
}

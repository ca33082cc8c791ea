// Package diag renders the assertion-failure diagnostic: a mock description,
// observed-vs-expected hit counts, and a field-by-field diff against the
// last unmatched request.
package diag

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/google/go-cmp/cmp"

	"go.mockhttp.dev/mockhttp/internal/capture"
	"go.mockhttp.dev/mockhttp/internal/envconfig"
	"go.mockhttp.dev/mockhttp/internal/jsonutil"
	"go.mockhttp.dev/mockhttp/internal/registry"
)

// Colorize governs whether Render applies ANSI highlighting, the §6
// "enable/disable knob supplied at build time." Defaults from envconfig
// (NO_COLOR / MOCKHTTP_COLOR); callers flip it with mockhttp.EnableColor().
var Colorize = envconfig.ColorEnabled()

// Render describes a mock — method, path matcher, header matchers, body
// matcher — and, if provided, a field-by-field diff against the last
// unmatched request.
func Render(mock *registry.Mock, unmatched capture.Request, haveUnmatched bool) string {
	var b strings.Builder

	bold := pick(color.New(color.Bold).Sprint, fmt.Sprint)
	red := pick(color.New(color.FgRed).Sprint, fmt.Sprint)

	fmt.Fprintf(&b, "%s %s %s\n", bold("mock"), mock.Method, describePath(mock))
	fmt.Fprintf(&b, "  headers: %s\n", describeHeaders(mock))
	fmt.Fprintf(&b, "  body:    %s\n", describeBody(mock))
	fmt.Fprintf(&b, "  expected: %s\n", rangeString(mock.Expected))
	fmt.Fprintf(&b, "  actual hits: %d\n", mock.Hits())

	if !haveUnmatched {
		return b.String()
	}

	fmt.Fprintf(&b, "%s\n", red("last unmatched request:"))
	if diff := cmp.Diff(mock.Method, unmatched.Method); diff != "" {
		fmt.Fprintf(&b, "  method:\n%s", diff)
	} else {
		fmt.Fprintf(&b, "  method: %s\n", unmatched.Method)
	}
	if diff := cmp.Diff(describePath(mock), unmatched.Path); diff != "" {
		fmt.Fprintf(&b, "  path:\n%s", diff)
	} else {
		fmt.Fprintf(&b, "  path: %s\n", unmatched.Path)
	}
	if unmatched.RawQuery != "" {
		fmt.Fprintf(&b, "  query:  %s\n", unmatched.RawQuery)
	}
	fmt.Fprintf(&b, "  headers:\n%s\n", diffHeaders(mock, unmatched))
	fmt.Fprintf(&b, "  body:\n%s\n", diffBody(mock, unmatched))
	return b.String()
}

// canonicalBody renders a request body for display. JSON bodies get their
// arrays sorted (jsonutil.SortArrays) so two semantically-similar payloads
// that only differ in array order produce a stable, readable diff; anything
// that doesn't parse as JSON is shown verbatim.
func canonicalBody(body []byte) string {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return string(body)
	}
	canon, err := json.MarshalIndent(jsonutil.SortArrays(v), "", "  ")
	if err != nil {
		return string(body)
	}
	return string(canon)
}

func describePath(mock *registry.Mock) string {
	if mock.PathMatcher == nil {
		return "<any path>"
	}
	return mock.PathMatcher.String()
}

func describeHeaders(mock *registry.Mock) string {
	if len(mock.HeaderMatchers) == 0 {
		return "<none>"
	}
	parts := make([]string, len(mock.HeaderMatchers))
	for i, hm := range mock.HeaderMatchers {
		parts[i] = hm.String()
	}
	return strings.Join(parts, ", ")
}

func describeBody(mock *registry.Mock) string {
	if mock.BodyMatcher == nil {
		return "<any>"
	}
	return mock.BodyMatcher.String()
}

func rangeString(r registry.Range) string {
	if r.Upper == registry.Unbounded {
		return fmt.Sprintf(">= %d", r.Lower)
	}
	return fmt.Sprintf("%d..%d", r.Lower, r.Upper)
}

// fieldView pairs a mock's expectation for one field (rendered as its
// matcher description) with what the unmatched request actually carried, so
// cmp.Diff can render both sides of the same shape.
type fieldView struct {
	Expected any
	Actual   any
}

func diffHeaders(mock *registry.Mock, req capture.Request) string {
	want := make([]string, len(mock.HeaderMatchers))
	for i, hm := range mock.HeaderMatchers {
		want[i] = hm.String()
	}
	got := make(map[string][]string, len(req.Headers.Names()))
	for _, name := range req.Headers.Names() {
		got[name] = req.Headers.Values(name)
	}
	return cmp.Diff(fieldView{Expected: want, Actual: nil}, fieldView{Expected: nil, Actual: got})
}

func diffBody(mock *registry.Mock, req capture.Request) string {
	want := describeBody(mock)
	got := canonicalBody(req.Body)
	return cmp.Diff(fieldView{Expected: want, Actual: nil}, fieldView{Expected: nil, Actual: got})
}

func pick(colorFn, plainFn func(...any) string) func(...any) string {
	if Colorize {
		return colorFn
	}
	return plainFn
}

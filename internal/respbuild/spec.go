// Package respbuild composes the HTTP response for a matched mock: literal,
// file-sourced, or dynamically produced bodies, with default-header and
// Content-Length rules applied afterward.
package respbuild

import (
	"fmt"
	"strconv"

	"go.mockhttp.dev/mockhttp/internal/capture"
)

// BodyFunc produces a response body from the matched request. It must be
// safe to call from the worker goroutine.
type BodyFunc func(req capture.Request) []byte

// Kind discriminates the three response variants: literal, file-sourced,
// dynamic.
type Kind int

const (
	Literal Kind = iota
	FromFile
	Dynamic
)

// Spec is the union of the three response-spec variants. Exactly one of
// Body, FilePath or BodyFn is meaningful, selected by Kind.
type Spec struct {
	Kind     Kind
	Status   int
	Headers  map[string][]string
	Body     []byte
	FilePath string
	BodyFn   BodyFunc
}

// Built is a fully materialized response, ready to write to the wire.
type Built struct {
	Status  int
	Headers map[string][]string
	Body    []byte
}

// Build materializes spec against req, applying status default, FromFile
// parsing, Dynamic invocation and the default-header rules.
func Build(spec Spec, req capture.Request, http2 bool) (Built, error) {
	status := spec.Status
	if status == 0 {
		status = 200
	}
	headers := cloneHeaders(spec.Headers)
	var body []byte

	switch spec.Kind {
	case Literal:
		body = spec.Body
	case Dynamic:
		if spec.BodyFn == nil {
			return Built{}, fmt.Errorf("respbuild: dynamic spec has no body function")
		}
		body = spec.BodyFn(req)
	case FromFile:
		parsed, err := ParseFile(spec.FilePath)
		if err != nil {
			return Built{}, fmt.Errorf("respbuild: load response file %q: %w", spec.FilePath, err)
		}
		if parsed.Status != 0 {
			status = parsed.Status
		}
		for k, v := range parsed.Headers {
			headers[k] = v
		}
		body = parsed.Body
	default:
		return Built{}, fmt.Errorf("respbuild: unknown response kind %d", spec.Kind)
	}

	applyDefaults(headers, body, http2)
	return Built{Status: status, Headers: headers, Body: body}, nil
}

func cloneHeaders(h map[string][]string) map[string][]string {
	out := make(map[string][]string, len(h))
	for k, v := range h {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func applyDefaults(headers map[string][]string, body []byte, http2 bool) {
	if !hasHeader(headers, "Content-Length") && !hasHeader(headers, "Transfer-Encoding") {
		headers["Content-Length"] = []string{strconv.Itoa(len(body))}
	}
	if !http2 && !hasHeader(headers, "Connection") {
		headers["Connection"] = []string{"close"}
	}
	if len(body) > 0 && !hasHeader(headers, "Content-Type") {
		headers["Content-Type"] = []string{"text/plain"}
	}
}

func hasHeader(headers map[string][]string, name string) bool {
	for k := range headers {
		if equalFold(k, name) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

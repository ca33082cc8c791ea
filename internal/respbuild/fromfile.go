package respbuild

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ParsedFile is the result of parsing a FromFile response document: an
// ASCII status line, zero or more header lines, a blank line, then the raw
// body. Line endings may be \n or \r\n in the status line and header block;
// the body is never touched.
type ParsedFile struct {
	Status  int
	Headers map[string][]string
	Body    []byte
}

// ParseFile reads and parses the response document at path.
func ParseFile(path string) (ParsedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ParsedFile{}, err
	}
	return ParseBytes(data)
}

// ParseBytes parses a response document already held in memory, split out
// so the round-trip property can be tested without a filesystem.
//
// Line-ending normalization applies only while scanning the status line and
// header block; the body is whatever bytes remain after the blank line,
// sliced straight out of the original input. A body that itself contains
// "\r\n" (binary content, or text with Windows line endings) comes back out
// exactly as it went in.
func ParseBytes(data []byte) (ParsedFile, error) {
	statusLine, rest, ok := cutLine(data)
	if !ok && statusLine == "" {
		return ParsedFile{}, fmt.Errorf("respbuild: empty response file")
	}
	status, err := parseStatusLine(statusLine)
	if err != nil {
		return ParsedFile{}, err
	}

	headers := make(map[string][]string)
	for {
		line, next, lineOK := cutLine(rest)
		rest = next
		if line != "" {
			idx := strings.IndexByte(line, ':')
			if idx < 0 {
				return ParsedFile{}, fmt.Errorf("respbuild: malformed header line %q", line)
			}
			name := strings.TrimSpace(line[:idx])
			value := strings.TrimSpace(line[idx+1:])
			headers[name] = append(headers[name], value)
		}
		if !lineOK || line == "" {
			break
		}
	}

	if rest == nil {
		rest = []byte{}
	}
	return ParsedFile{Status: status, Headers: headers, Body: rest}, nil
}

// cutLine splits data at the first '\n', trimming a trailing '\r' from the
// returned line. remainder is the untouched slice of data after the
// newline — never copied, never normalized. ok is false when data holds no
// '\n' at all, in which case line is data verbatim and remainder is nil.
func cutLine(data []byte) (line string, remainder []byte, ok bool) {
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		return string(data), nil, false
	}
	l := bytes.TrimSuffix(data[:idx], []byte("\r"))
	return string(l), data[idx+1:], true
}

func parseStatusLine(line string) (int, error) {
	// "HTTP/1.x <code> <reason>"
	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return 0, fmt.Errorf("respbuild: malformed status line %q", line)
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, fmt.Errorf("respbuild: malformed status code in %q: %w", line, err)
	}
	return code, nil
}

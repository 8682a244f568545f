package util

import (
	"regexp"
	"strings"
)

var (
	reListMarker = regexp.MustCompile(`^\s*(?:[-*•·]+|\(?\d{1,3}[.)]|[a-zA-Z][.)])\s+`)
	reTrailNoise = regexp.MustCompile(`[\s,;:|\-]+$`)
)

type ParsedQuery struct {
	Query string
	Code  *string
}

// ParseQuery turns one request line into a lookup query. List markers are stripped. When
// the line carries a code-shaped token the code is returned as well, so callers can try an
// exact code hit before falling back to the whole text.
func ParseQuery(input string) ParsedQuery {
	line := strings.ReplaceAll(input, " ", " ")
	line = reListMarker.ReplaceAllString(line, "")
	line = reSpaces.ReplaceAllString(line, " ")
	line = reTrailNoise.ReplaceAllString(strings.TrimSpace(line), "")

	parsed := ParsedQuery{Query: line}
	if code, ok := FindCode(line); ok {
		parsed.Code = StringPtr(code)
	}
	return parsed
}

func StringPtr(s string) *string {
	return &s
}

func IntPtr(v int) *int {
	return &v
}

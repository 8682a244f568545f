package util

import (
	"regexp"
	"strings"
)

var (
	reCode      = regexp.MustCompile(`^[A-Z][0-9][0-9A-Z](?:\.?[0-9A-Z]{1,4})?$`)
	reCodeInRow = regexp.MustCompile(`\b([A-Za-z][0-9][0-9A-Za-z](?:\.[0-9A-Za-z]{1,4}|[0-9A-Za-z]{1,4})?)\b`)
	reQuotes    = regexp.MustCompile(`["'` + "`" + `«»“”]`)
	reSpaces    = regexp.MustCompile(`\s+`)
)

// NormalizeText lowercases, drops quotes and collapses whitespace.
func NormalizeText(input string) string {
	s := strings.ToLower(input)
	s = strings.ReplaceAll(s, " ", " ")
	s = reQuotes.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeCode upper-cases a code and keeps letters, digits and the dot. The dot is then
// removed because the CMS listings store codes without it ("E11.9" -> "E119").
func NormalizeCode(input string) string {
	s := strings.ToUpper(strings.TrimSpace(input))
	out := strings.Builder{}
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out.WriteRune(r)
		}
	}
	return out.String()
}

// LooksLikeCode reports whether input has the shape of an ICD-10 code, with or without the dot.
func LooksLikeCode(input string) bool {
	s := strings.ToUpper(strings.TrimSpace(input))
	if len(s) < 3 || len(s) > 8 {
		return false
	}
	return reCode.MatchString(s)
}

// FindCode returns the first code-shaped token of a line.
func FindCode(line string) (string, bool) {
	for _, m := range reCodeInRow.FindAllStringSubmatch(line, -1) {
		if LooksLikeCode(m[1]) {
			return m[1], true
		}
	}
	return "", false
}

// Tokenize splits normalized text into words of at least two runes.
func Tokenize(input string) []string {
	parts := strings.Fields(NormalizeText(input))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, ".,;:()[]")
		if len([]rune(p)) >= 2 {
			out = append(out, p)
		}
	}
	return out
}

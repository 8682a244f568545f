package lookup

import (
	"sort"
	"strings"

	"icdlookup/internal"
)

const DefaultSuggestLimit = 5

// ValidQuery reports whether text is long enough to search on.
func ValidQuery(text string, minLength int) bool {
	if minLength <= 0 {
		minLength = MinQueryLength
	}
	return len([]rune(strings.TrimSpace(text))) >= minLength
}

// Suggest lists codes, in table order, starting with the typed text. Text shorter than
// minLength yields no suggestions.
func Suggest(table internal.CanonicalTable, text string, minLength, limit int) []string {
	if limit <= 0 {
		limit = DefaultSuggestLimit
	}
	out := []string{}
	if !ValidQuery(text, minLength) {
		return out
	}
	prefix := strings.ToLower(strings.TrimSpace(text))
	for _, rec := range table.Records {
		if strings.HasPrefix(strings.ToLower(rec.Code), prefix) {
			out = append(out, rec.Code)
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}

// Related returns the other records of matched that share rec's category.
func Related(matched []internal.CanonicalRecord, rec internal.CanonicalRecord) []internal.CanonicalRecord {
	out := []internal.CanonicalRecord{}
	for _, r := range matched {
		if r.Category != rec.Category || r.Code == rec.Code {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Chapters lists the distinct chapter names of the table, sorted.
func Chapters(table internal.CanonicalTable) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, rec := range table.Records {
		if rec.Chapter == "" {
			continue
		}
		if _, ok := seen[rec.Chapter]; ok {
			continue
		}
		seen[rec.Chapter] = struct{}{}
		out = append(out, rec.Chapter)
	}
	sort.Strings(out)
	return out
}

// FindCode returns the first record whose code equals code, ignoring case and surrounding space.
func FindCode(table internal.CanonicalTable, code string) (internal.CanonicalRecord, bool) {
	code = strings.TrimSpace(code)
	for _, rec := range table.Records {
		if strings.EqualFold(rec.Code, code) {
			return rec, true
		}
	}
	return internal.CanonicalRecord{}, false
}

// Records strips scores from a ranked set.
func Records(ranked []ScoredRecord) []internal.CanonicalRecord {
	out := make([]internal.CanonicalRecord, 0, len(ranked))
	for _, sr := range ranked {
		out = append(out, sr.Record)
	}
	return out
}

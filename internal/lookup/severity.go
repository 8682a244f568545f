package lookup

import (
	"sort"
	"strings"
	"unicode"

	"github.com/kljensen/snowball"

	"icdlookup/internal"
)

type SeverityLevel string

const (
	SeverityHigh     SeverityLevel = "high"
	SeverityModerate SeverityLevel = "moderate"
	SeverityLow      SeverityLevel = "low"
)

type SeverityResult struct {
	Level   SeverityLevel `json:"level"`
	Score   float64       `json:"score"`
	Matched []string      `json:"matched"`
}

// Keyword weights for the severity heuristic. Only a hint for display; it says nothing
// about the clinical state of a patient.
var severityKeywords = map[string]float64{
	"malignant":   0.6,
	"sepsis":      0.6,
	"septic":      0.6,
	"failure":     0.6,
	"hemorrhage":  0.6,
	"infarction":  0.6,
	"shock":       0.6,
	"coma":        0.6,
	"arrest":      0.6,
	"embolism":    0.6,
	"meningitis":  0.6,
	"acute":       0.3,
	"fracture":    0.3,
	"pneumonia":   0.3,
	"obstruction": 0.3,
	"injury":      0.3,
	"infection":   0.3,
	"ulcer":       0.3,
	"severe":      0.3,
	"poisoning":   0.3,
}

var stemmedSeverity = stemKeywords(severityKeywords)

// Severity scores a record by keyword hits in its descriptions.
func Severity(rec internal.CanonicalRecord) SeverityResult {
	text := rec.ShortDescription
	if rec.LongDescription != rec.ShortDescription {
		text += " " + rec.LongDescription
	}

	hits := map[string]float64{}
	for _, word := range splitWords(text) {
		stem := stem(word)
		if kw, ok := stemmedSeverity[stem]; ok {
			hits[kw] = severityKeywords[kw]
		}
	}

	score := 0.0
	matched := make([]string, 0, len(hits))
	for kw, w := range hits {
		score += w
		matched = append(matched, kw)
	}
	sort.Strings(matched)
	if score > 1 {
		score = 1
	}

	level := SeverityLow
	if score >= 0.6 {
		level = SeverityHigh
	} else if score >= 0.3 {
		level = SeverityModerate
	}
	return SeverityResult{Level: level, Score: score, Matched: matched}
}

func stemKeywords(weights map[string]float64) map[string]string {
	out := make(map[string]string, len(weights))
	for kw := range weights {
		out[stem(kw)] = kw
	}
	return out
}

func stem(word string) string {
	stemmed, err := snowball.Stem(word, "english", true)
	if err != nil {
		return word
	}
	return stemmed
}

func splitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

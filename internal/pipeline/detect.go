package pipeline

import (
	"strings"

	"icdlookup/internal/util"
)

type DetectResult struct {
	IsLookup bool
	Score    float64
	Reason   string
}

var detectKeywords = []string{"icd", "code", "diagnos", "look up", "lookup", "billing", "dx", "claim"}

// DetectLookupRequest scores whether a message asks for code lookups.
func DetectLookupRequest(subject, text, html string, attachmentNames []string) DetectResult {
	subject = strings.ToLower(subject)
	text = strings.ToLower(text)
	html = strings.ToLower(html)

	score := 0.0
	for _, kw := range detectKeywords {
		if strings.Contains(subject, kw) {
			score += 0.2
		}
		if strings.Contains(text, kw) || strings.Contains(html, kw) {
			score += 0.1
		}
	}

	codeHits := countCodeTokens(text)
	if codeHits >= 2 {
		score += 0.4
	} else if codeHits == 1 {
		score += 0.2
	}

	for _, name := range attachmentNames {
		ln := strings.ToLower(name)
		if strings.HasSuffix(ln, ".xlsx") || strings.HasSuffix(ln, ".xlsm") || strings.HasSuffix(ln, ".pdf") {
			score += 0.25
			break
		}
	}

	if strings.Contains(html, "<table") {
		score += 0.25
	}
	if score > 1 {
		score = 1
	}

	isLookup := score >= 0.45
	reason := "rules_negative"
	if isLookup {
		reason = "rules_positive"
	}

	return DetectResult{IsLookup: isLookup, Score: score, Reason: reason}
}

func countCodeTokens(text string) int {
	count := 0
	for _, token := range util.Tokenize(text) {
		if util.LooksLikeCode(token) {
			count++
		}
	}
	return count
}

package lookup

import (
	"regexp"
	"sort"
	"strings"

	"icdlookup/internal"
)

const (
	DefaultPageSize = 30
	MinQueryLength  = 2

	scoreCodeExact     = 120
	scoreCodePrefix    = 80
	scoreShortWord     = 70
	scoreShortContains = 50
	scoreLongContains  = 25
	scoreCategory      = 15
)

// Query describes one search request. Page is 1-based.
type Query struct {
	Text           string `json:"text"`
	CategoryFilter string `json:"category"`
	ChapterFilter  string `json:"chapter"`
	ExactPrefix    bool   `json:"exact"`
	Page           int    `json:"page"`
	PageSize       int    `json:"page_size"`
}

type ResultPage struct {
	Records      []internal.CanonicalRecord `json:"records"`
	TotalMatches int                        `json:"total_matches"`
	Page         int                        `json:"page"`
	PageSize     int                        `json:"page_size"`
}

type ScoredRecord struct {
	Record internal.CanonicalRecord
	Score  int
}

// Search filters, ranks and paginates the table. It never fails: empty tables and empty
// queries produce well-defined pages. Page numbers past the end yield an empty page.
func Search(table internal.CanonicalTable, q Query) ResultPage {
	page, size := q.Page, q.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}

	ranked := Rank(table, q)
	out := ResultPage{
		Records:      []internal.CanonicalRecord{},
		TotalMatches: len(ranked),
		Page:         page,
		PageSize:     size,
	}

	start, end := PageBounds(page, size, len(ranked))
	for _, sr := range ranked[start:end] {
		out.Records = append(out.Records, sr.Record)
	}
	return out
}

// Rank returns every record matching the query, in result order.
func Rank(table internal.CanonicalTable, q Query) []ScoredRecord {
	candidates := filterFacets(table.Records, q.CategoryFilter, q.ChapterFilter)

	text := strings.ToLower(strings.TrimSpace(q.Text))
	out := make([]ScoredRecord, 0, len(candidates))

	if text == "" {
		for _, rec := range candidates {
			out = append(out, ScoredRecord{Record: rec})
		}
		return out
	}

	if q.ExactPrefix {
		for _, rec := range candidates {
			if strings.HasPrefix(strings.ToLower(rec.Code), text) {
				out = append(out, ScoredRecord{Record: rec})
			}
		}
		return out
	}

	word := regexp.MustCompile(`\b` + regexp.QuoteMeta(text) + `\b`)
	for _, rec := range candidates {
		if score := scoreRecord(rec, text, word); score > 0 {
			out = append(out, ScoredRecord{Record: rec, Score: score})
		}
	}
	SortResults(out)
	return out
}

// SortResults orders by score (descending), then by lower-cased code (ascending).
func SortResults(results []ScoredRecord) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return strings.ToLower(results[i].Record.Code) < strings.ToLower(results[j].Record.Code)
		}
		return results[i].Score > results[j].Score
	})
}

// Score computes the ranked-mode score of a single record.
func Score(rec internal.CanonicalRecord, text string) int {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return 0
	}
	return scoreRecord(rec, text, regexp.MustCompile(`\b`+regexp.QuoteMeta(text)+`\b`))
}

func scoreRecord(rec internal.CanonicalRecord, text string, word *regexp.Regexp) int {
	code := strings.ToLower(rec.Code)
	short := strings.ToLower(rec.ShortDescription)

	score := 0
	if code == text {
		score += scoreCodeExact
	}
	if strings.HasPrefix(code, text) {
		score += scoreCodePrefix
	}
	if word.MatchString(short) {
		score += scoreShortWord
	}
	if strings.Contains(short, text) {
		score += scoreShortContains
	}
	if strings.Contains(strings.ToLower(rec.LongDescription), text) {
		score += scoreLongContains
	}
	if strings.Contains(strings.ToLower(rec.Category), text) {
		score += scoreCategory
	}
	return score
}

func filterFacets(records []internal.CanonicalRecord, category, chapter string) []internal.CanonicalRecord {
	category = strings.ToLower(strings.TrimSpace(category))
	chapterActive := chapter != "" && !IsAllChapters(chapter)
	if category == "" && !chapterActive {
		return records
	}

	out := make([]internal.CanonicalRecord, 0, len(records))
	for _, rec := range records {
		if category != "" && !strings.HasPrefix(strings.ToLower(rec.Category), category) {
			continue
		}
		if chapterActive && rec.Chapter != chapter {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// IsAllChapters reports whether a chapter filter is the "no filter" sentinel.
func IsAllChapters(chapter string) bool {
	c := strings.ToLower(strings.TrimSpace(chapter))
	return c == "all" || c == "all chapters"
}

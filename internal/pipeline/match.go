package pipeline

import (
	"strings"

	"icdlookup/internal"
	"icdlookup/internal/lookup"
	"icdlookup/internal/util"
)

const maxCandidates = 5

// Resolver turns extracted items into lookup results against one code table.
type Resolver struct {
	table internal.CanonicalTable
}

func NewResolver(table internal.CanonicalTable) *Resolver {
	return &Resolver{table: table}
}

// Resolve tries an exact code hit first, then a ranked search of the query text.
func (r *Resolver) Resolve(item internal.ExtractionItem) internal.LookupResult {
	query := strings.TrimSpace(item.Query)
	if query == "" {
		query = util.ParseQuery(item.RawLine).Query
	}

	if parsed := util.ParseQuery(query); parsed.Code != nil {
		code := *parsed.Code
		rec, ok := lookup.FindCode(r.table, code)
		if !ok {
			rec, ok = lookup.FindCode(r.table, util.NormalizeCode(code))
		}
		if ok {
			ranked := lookup.Rank(r.table, lookup.Query{Text: rec.Code})
			return internal.LookupResult{
				Status:       internal.MatchOK,
				Reason:       internal.ReasonCode,
				TotalMatches: len(ranked),
				Record:       &rec,
				Candidates:   toCandidates(ranked),
			}
		}
		if util.NormalizeText(query) == strings.ToLower(code) {
			query = util.NormalizeCode(code)
		}
	}

	ranked := lookup.Rank(r.table, lookup.Query{Text: query})
	switch len(ranked) {
	case 0:
		return internal.LookupResult{Status: internal.MatchNotFound, Reason: internal.ReasonNone, Candidates: []internal.MatchCandidate{}}
	case 1:
		rec := ranked[0].Record
		return internal.LookupResult{
			Status:       internal.MatchOK,
			Reason:       internal.ReasonSingle,
			TotalMatches: 1,
			Record:       &rec,
			Candidates:   toCandidates(ranked),
		}
	}

	top := ranked[0].Record
	result := internal.LookupResult{
		Status:       internal.MatchReview,
		Reason:       internal.ReasonRanked,
		TotalMatches: len(ranked),
		Record:       &top,
		Candidates:   toCandidates(ranked),
	}
	if strings.EqualFold(top.Code, query) {
		result.Status = internal.MatchOK
		result.Reason = internal.ReasonCode
	}
	return result
}

// ResolveAll resolves items in order.
func (r *Resolver) ResolveAll(items []internal.ExtractionItem) []internal.LookupResult {
	out := make([]internal.LookupResult, 0, len(items))
	for _, item := range items {
		out = append(out, r.Resolve(item))
	}
	return out
}

func toCandidates(ranked []lookup.ScoredRecord) []internal.MatchCandidate {
	limit := len(ranked)
	if limit > maxCandidates {
		limit = maxCandidates
	}
	out := make([]internal.MatchCandidate, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, internal.MatchCandidate{
			Code:             ranked[i].Record.Code,
			ShortDescription: ranked[i].Record.ShortDescription,
			Score:            ranked[i].Score,
		})
	}
	return out
}

// ToExportRow flattens an item and its lookup result into an export row.
func ToExportRow(item internal.ExtractionItem, result internal.LookupResult) internal.LookupExportRow {
	row := internal.LookupExportRow{
		InputLineNo:  item.LineNo,
		Source:       string(item.Source),
		RawLine:      item.RawLine,
		Query:        item.Query,
		MatchStatus:  string(result.Status),
		MatchReason:  string(result.Reason),
		TotalMatches: result.TotalMatches,
	}
	if rec := result.Record; rec != nil {
		row.Code = util.StringPtr(rec.Code)
		row.ShortDescription = util.StringPtr(rec.ShortDescription)
		row.LongDescription = util.StringPtr(rec.LongDescription)
		row.Category = util.StringPtr(rec.Category)
		row.Chapter = util.StringPtr(rec.Chapter)
	}
	if len(result.Candidates) > 1 {
		row.Candidate2Code = util.StringPtr(result.Candidates[1].Code)
		row.Candidate2Score = util.IntPtr(result.Candidates[1].Score)
	}
	return row
}

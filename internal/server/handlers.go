package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"icdlookup/internal"
	"icdlookup/internal/explain"
	"icdlookup/internal/lookup"
	"icdlookup/internal/pipeline"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type searchResponse struct {
	Query        lookup.Query               `json:"query"`
	Records      []internal.CanonicalRecord `json:"records"`
	TotalMatches int                        `json:"total_matches"`
	Page         int                        `json:"page"`
	PageSize     int                        `json:"page_size"`
	Pages        int                        `json:"pages"`
	From         int                        `json:"from"`
	To           int                        `json:"to"`
	Suggestions  []string                   `json:"suggestions"`
}

type codeResponse struct {
	Record   internal.CanonicalRecord   `json:"record"`
	Related  []internal.CanonicalRecord `json:"related"`
	Severity lookup.SeverityResult      `json:"severity"`
}

func (s *Server) table(c *gin.Context) (internal.CanonicalTable, bool) {
	table, err := s.tables()
	if err != nil {
		_ = c.Error(err)
		abortJSON(c, http.StatusServiceUnavailable, fmt.Sprintf("dataset unavailable: %v", err))
		return internal.CanonicalTable{}, false
	}
	return table, true
}

// queryFromRequest reads the search parameters and applies the minimum length guard.
func (s *Server) queryFromRequest(c *gin.Context) (lookup.Query, bool) {
	q := lookup.Query{
		Text:           strings.TrimSpace(c.Query("q")),
		CategoryFilter: c.Query("category"),
		ChapterFilter:  c.Query("chapter"),
		Page:           atoiDefault(c.Query("page"), 1),
		PageSize:       atoiDefault(c.Query("page_size"), s.cfg.PageSize),
	}
	if exact, err := strconv.ParseBool(c.DefaultQuery("exact", "false")); err == nil {
		q.ExactPrefix = exact
	}
	if q.PageSize <= 0 {
		q.PageSize = lookup.DefaultPageSize
	}
	if q.Text != "" && !lookup.ValidQuery(q.Text, s.cfg.MinQueryLength) {
		abortJSON(c, http.StatusBadRequest, fmt.Sprintf("query must be at least %d characters", minLength(s.cfg.MinQueryLength)))
		return q, false
	}
	return q, true
}

func (s *Server) handleHealth(c *gin.Context) {
	table, err := s.tables()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "records": table.Len()})
}

func (s *Server) handleSearch(c *gin.Context) {
	q, ok := s.queryFromRequest(c)
	if !ok {
		return
	}
	table, ok := s.table(c)
	if !ok {
		return
	}

	page := lookup.Search(table, q)
	if clamped := lookup.ClampPage(q.Page, page.TotalMatches, page.PageSize); clamped != page.Page {
		q.Page = clamped
		page = lookup.Search(table, q)
	}
	from, to := lookup.PageBounds(page.Page, page.PageSize, page.TotalMatches)

	resp := searchResponse{
		Query:        q,
		Records:      page.Records,
		TotalMatches: page.TotalMatches,
		Page:         page.Page,
		PageSize:     page.PageSize,
		Pages:        lookup.PageCount(page.TotalMatches, page.PageSize),
		From:         from + 1,
		To:           to,
		Suggestions:  lookup.Suggest(table, q.Text, s.cfg.MinQueryLength, s.cfg.SuggestLimit),
	}
	if page.TotalMatches == 0 {
		resp.From = 0
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSuggest(c *gin.Context) {
	table, ok := s.table(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": lookup.Suggest(table, c.Query("q"), s.cfg.MinQueryLength, s.cfg.SuggestLimit)})
}

func (s *Server) handleChapters(c *gin.Context) {
	table, ok := s.table(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"chapters": lookup.Chapters(table)})
}

func (s *Server) handleCode(c *gin.Context) {
	table, ok := s.table(c)
	if !ok {
		return
	}
	rec, found := lookup.FindCode(table, c.Param("code"))
	if !found {
		abortJSON(c, http.StatusNotFound, fmt.Sprintf("code %s not found", c.Param("code")))
		return
	}

	matched := table.Records
	if text := strings.TrimSpace(c.Query("q")); text != "" {
		matched = lookup.Records(lookup.Rank(table, lookup.Query{Text: text}))
	}
	c.JSON(http.StatusOK, codeResponse{
		Record:   rec,
		Related:  lookup.Related(matched, rec),
		Severity: lookup.Severity(rec),
	})
}

func (s *Server) handleExplain(c *gin.Context) {
	audience, err := explain.ParseAudience(c.Query("audience"))
	if err != nil {
		abortJSON(c, http.StatusBadRequest, err.Error())
		return
	}
	table, ok := s.table(c)
	if !ok {
		return
	}
	rec, found := lookup.FindCode(table, c.Param("code"))
	if !found {
		abortJSON(c, http.StatusNotFound, fmt.Sprintf("code %s not found", c.Param("code")))
		return
	}
	c.JSON(http.StatusOK, s.explainer.Explain(c.Request.Context(), rec, audience))
}

func (s *Server) matchedRecords(c *gin.Context) ([]internal.CanonicalRecord, bool) {
	q, ok := s.queryFromRequest(c)
	if !ok {
		return nil, false
	}
	table, ok := s.table(c)
	if !ok {
		return nil, false
	}
	return lookup.Records(lookup.Rank(table, q)), true
}

func (s *Server) handleExportCSV(c *gin.Context) {
	records, ok := s.matchedRecords(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := pipeline.ExportRecordsCSV(&buf, records); err != nil {
		_ = c.Error(err)
		abortJSON(c, http.StatusInternalServerError, "export failed")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="icd10_results.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *Server) handleExportXLSX(c *gin.Context) {
	records, ok := s.matchedRecords(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := pipeline.WriteRecordsXLSX(&buf, records); err != nil {
		_ = c.Error(err)
		abortJSON(c, http.StatusInternalServerError, "export failed")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="icd10_results.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func atoiDefault(value string, fallback int) int {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func minLength(n int) int {
	if n <= 0 {
		return lookup.MinQueryLength
	}
	return n
}

package pipeline

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"icdlookup/internal"
	"icdlookup/internal/storage"
)

// TableFunc returns the current code table. dataset.Cache.Get bound to a path fits.
type TableFunc func() (internal.CanonicalTable, error)

type ProcessingService struct {
	db     *storage.DB
	tables TableFunc
}

func NewProcessingService(db *storage.DB, tables TableFunc) *ProcessingService {
	return &ProcessingService{db: db, tables: tables}
}

type ProcessResult struct {
	EmailID   int
	Processed int
	OK        int
	Review    int
	NotFound  int
	Skipped   bool
}

func (s *ProcessingService) ProcessByProviderMessageID(provider, messageID string) (ProcessResult, error) {
	email, err := s.db.MustEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return ProcessResult{}, err
	}
	return s.ProcessEmail(email)
}

func (s *ProcessingService) ProcessPending(limit int, provider string) (int, int, error) {
	pending, err := s.db.ListEmailsByStatus("fetched", limit)
	if err != nil {
		return 0, 0, err
	}
	processedEmails := 0
	processedLines := 0
	for _, email := range pending {
		if provider != "" && email.Provider != provider {
			continue
		}
		res, err := s.ProcessEmail(email)
		if err != nil {
			return processedEmails, processedLines, err
		}
		processedEmails++
		processedLines += res.Processed
	}
	return processedEmails, processedLines, nil
}

func (s *ProcessingService) ProcessEmail(email internal.EmailRow) (ProcessResult, error) {
	start := time.Now()
	raw, err := os.ReadFile(email.RawRef)
	if err != nil {
		return ProcessResult{}, err
	}

	items, subject, text, html, attachmentNames, err := ExtractItemsFromEmailRaw(raw)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("parse email %d: %w", email.ID, err)
	}

	detect := DetectLookupRequest(firstNonEmpty(subject, email.Subject), text, html, attachmentNames)
	if err := s.db.ClearEmailProcessing(email.ID); err != nil {
		return ProcessResult{}, err
	}

	if !detect.IsLookup || len(items) == 0 {
		_ = s.db.UpdateEmailStatus(email.ID, "skipped")
		_ = s.db.InsertRun(traceID(), email.ID, map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())}, map[string]int{"extracted": 0, "ok": 0, "review": 0, "notFound": 0})
		return ProcessResult{EmailID: email.ID, Skipped: true}, nil
	}

	table, err := s.tables()
	if err != nil {
		return ProcessResult{}, err
	}
	resolver := NewResolver(table)

	res := ProcessResult{EmailID: email.ID}
	for _, item := range items {
		lookupResult := resolver.Resolve(item)
		extractionID, err := s.db.InsertExtraction(email.ID, item)
		if err != nil {
			return ProcessResult{}, err
		}
		if err := s.db.InsertLookup(extractionID, lookupResult); err != nil {
			return ProcessResult{}, err
		}

		switch lookupResult.Status {
		case internal.MatchOK:
			res.OK++
		case internal.MatchReview:
			res.Review++
		case internal.MatchNotFound:
			res.NotFound++
		}
	}
	res.Processed = len(items)

	if err := s.db.UpdateEmailStatus(email.ID, "processed"); err != nil {
		return ProcessResult{}, err
	}
	_ = s.db.InsertRun(traceID(), email.ID, map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())}, map[string]int{"extracted": len(items), "ok": res.OK, "review": res.Review, "notFound": res.NotFound})

	return res, nil
}

func traceID() string {
	return uuid.NewString()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

package storage

import (
	"path/filepath"
	"testing"
	"time"

	"icdlookup/internal"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestEmailLookupsAndExportRows(t *testing.T) {
	db := openTestDB(t)

	email, err := db.UpsertEmail("imap", "<1@x>", "codes please", "doc@example.com", "2026-01-02T10:00:00Z", "abc", "data/raw/abc.eml", "fetched")
	if err != nil {
		t.Fatal(err)
	}
	again, err := db.UpsertEmail("imap", "<1@x>", "codes please (fwd)", "doc@example.com", "2026-01-02T10:00:00Z", "abc", "data/raw/abc.eml", "fetched")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != email.ID || again.Subject != "codes please (fwd)" {
		t.Fatalf("upsert did not update in place: %+v", again)
	}

	missID, err := db.InsertExtraction(email.ID, internal.ExtractionItem{LineNo: 1, Source: internal.SourceEmailText, RawLine: "- zzz", Query: "zzz"})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.InsertLookup(missID, internal.LookupResult{Status: internal.MatchNotFound, Reason: internal.ReasonNone}); err != nil {
		t.Fatal(err)
	}

	hitID, err := db.InsertExtraction(email.ID, internal.ExtractionItem{LineNo: 2, Source: internal.SourceEmailText, RawLine: "- E119", Query: "E119"})
	if err != nil {
		t.Fatal(err)
	}
	rec := internal.CanonicalRecord{Code: "E119", ShortDescription: "Type 2 diabetes", LongDescription: "Type 2 diabetes mellitus", Category: "E11", Chapter: "Endocrine & Metabolic"}
	err = db.InsertLookup(hitID, internal.LookupResult{
		Status:       internal.MatchOK,
		Reason:       internal.ReasonCode,
		TotalMatches: 2,
		Record:       &rec,
		Candidates: []internal.MatchCandidate{
			{Code: "E119", ShortDescription: "Type 2 diabetes", Score: 200},
			{Code: "E1190", ShortDescription: "Type 2 diabetes other", Score: 80},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	rows, err := db.GetExportRows(email.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("len=%d", len(rows))
	}
	if rows[0].MatchStatus != "OK" || rows[0].Code == nil || *rows[0].Code != "E119" {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[0].Candidate2Code == nil || *rows[0].Candidate2Code != "E1190" || *rows[0].Candidate2Score != 80 {
		t.Fatalf("unexpected second candidate: %+v", rows[0])
	}
	if rows[1].MatchStatus != "NOT_FOUND" || rows[1].Code != nil {
		t.Fatalf("unexpected last row: %+v", rows[1])
	}

	if err := db.ClearEmailProcessing(email.ID); err != nil {
		t.Fatal(err)
	}
	rows, err = db.GetExportRows(email.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("len=%d after clear", len(rows))
	}
}

func TestEmailStatusListing(t *testing.T) {
	db := openTestDB(t)
	a, _ := db.UpsertEmail("gmail", "a", "", "", "2026-01-02T10:00:00Z", "h1", "r1", "fetched")
	_, _ = db.UpsertEmail("gmail", "b", "", "", "2026-01-01T10:00:00Z", "h2", "r2", "fetched")
	if err := db.UpdateEmailStatus(a.ID, "processed"); err != nil {
		t.Fatal(err)
	}

	fetched, err := db.ListEmailsByStatus("fetched", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(fetched) != 1 || fetched[0].MessageID != "b" {
		t.Fatalf("fetched=%+v", fetched)
	}
	if row, _ := db.GetEmailByID(a.ID); row == nil || row.Status != "processed" {
		t.Fatalf("row=%+v", row)
	}
	if _, err := db.MustEmailByProviderMessageID("gmail", "missing"); err == nil {
		t.Fatal("expected error for missing email")
	}
}

func TestExplanationCache(t *testing.T) {
	db := openTestDB(t)
	got, err := db.GetExplanation("E119", "patient")
	if err != nil || got != nil {
		t.Fatalf("got=%v err=%v", got, err)
	}
	if err := db.PutExplanation("E119", "patient", "m1", "first"); err != nil {
		t.Fatal(err)
	}
	if err := db.PutExplanation("E119", "patient", "m2", "second"); err != nil {
		t.Fatal(err)
	}
	got, err = db.GetExplanation("E119", "patient")
	if err != nil || got == nil || *got != "second" {
		t.Fatalf("got=%v err=%v", got, err)
	}
	if other, _ := db.GetExplanation("E119", "clinician"); other != nil {
		t.Fatalf("audiences must not share entries")
	}
}

func TestDatasetLoadsAndMetadata(t *testing.T) {
	db := openTestDB(t)
	mod := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	for i, n := range []int{10, 20} {
		err := db.InsertDatasetLoad(DatasetLoad{
			Path:       "codes.xlsx",
			ModTime:    mod.Add(time.Duration(i) * time.Hour),
			Records:    n,
			Excluded:   1,
			Columns:    internal.ColumnMapping{Code: "CODE", ShortDescription: "SHORT", LongDescription: "LONG"},
			DurationMs: 5,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	loads, err := db.ListDatasetLoads(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(loads) != 2 || loads[0].Records != 20 || loads[0].Columns.Code != "CODE" || !loads[0].ModTime.Equal(mod.Add(time.Hour)) {
		t.Fatalf("loads=%+v", loads)
	}

	if err := db.SetMetadata("dataset_path", "codes.xlsx"); err != nil {
		t.Fatal(err)
	}
	v, err := db.GetMetadata("dataset_path")
	if err != nil || v == nil || *v != "codes.xlsx" {
		t.Fatalf("v=%v err=%v", v, err)
	}
	if err := db.InsertRun("trace", 0, map[string]float64{"total": 1}, map[string]int{"items": 0}); err != nil {
		t.Fatal(err)
	}
}

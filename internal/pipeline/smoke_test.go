package pipeline

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"icdlookup/internal"
	"icdlookup/internal/storage"
)

func TestSmokeEmailToXLSX(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	raw := buildEmail(t, "ICD code lookup", "Hello,\n- E11.9\n- hypertension\n- zzzz unknown thing\nThanks\n", "", nil)
	rawPath := filepath.Join(tmp, "fixture.eml")
	if err := os.WriteFile(rawPath, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	email, err := db.UpsertEmail("imap", "<fixture-1@clinic.example.com>", "ICD code lookup", "desk@clinic.example.com", "2026-02-08T00:00:00Z", "hash", rawPath, "fetched")
	if err != nil {
		t.Fatal(err)
	}

	loads := 0
	proc := NewProcessingService(db, func() (internal.CanonicalTable, error) {
		loads++
		return testTable(), nil
	})
	res, err := proc.ProcessEmail(email)
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 3 || res.OK != 2 || res.NotFound != 1 || loads != 1 {
		t.Fatalf("res=%+v loads=%d", res, loads)
	}

	rows, err := db.GetExportRows(email.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[2].MatchStatus != "NOT_FOUND" {
		t.Fatalf("rows=%+v", rows)
	}

	out := filepath.Join(tmp, "out", "result.xlsx")
	if err := ExportRowsToXLSX(rows, out); err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenFile(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	sheetRows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		t.Fatal(err)
	}
	if len(sheetRows) != 4 || sheetRows[0][0] != "input_line_no" || sheetRows[1][7] != "E119" {
		t.Fatalf("sheet=%v", sheetRows)
	}
}

func TestProcessSkipsNonLookupMail(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	raw := buildEmail(t, "Lunch", "See you at noon on Friday\n", "", nil)
	rawPath := filepath.Join(tmp, "lunch.eml")
	if err := os.WriteFile(rawPath, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	email, err := db.UpsertEmail("imap", "<lunch@x>", "Lunch", "a@b", "2026-02-08T00:00:00Z", "h", rawPath, "fetched")
	if err != nil {
		t.Fatal(err)
	}

	proc := NewProcessingService(db, func() (internal.CanonicalTable, error) {
		t.Fatal("table should not be loaded for skipped mail")
		return internal.CanonicalTable{}, nil
	})
	emails, lines, err := proc.ProcessPending(10, "imap")
	if err != nil {
		t.Fatal(err)
	}
	if emails != 1 || lines != 0 {
		t.Fatalf("emails=%d lines=%d", emails, lines)
	}
	row, _ := db.GetEmailByID(email.ID)
	if row == nil || row.Status != "skipped" {
		t.Fatalf("row=%+v", row)
	}
}

func TestExportRecords(t *testing.T) {
	recs := testTable().Records[:2]
	var buf bytes.Buffer
	if err := ExportRecordsCSV(&buf, recs); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 || lines[0] != "code,short_description,long_description,category,chapter,status" {
		t.Fatalf("csv=%q", buf.String())
	}
	if lines[1] != "E119,Type 2 diabetes mellitus without complications,Type 2 diabetes mellitus without complications,E11,Endocrine & Metabolic," {
		t.Fatalf("line=%q", lines[1])
	}

	out := filepath.Join(t.TempDir(), "records.xlsx")
	if err := ExportRecordsXLSX(recs, out); err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenFile(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	v, _ := f.GetCellValue(f.GetSheetName(0), "A3")
	if v != "E11" {
		t.Fatalf("A3=%q", v)
	}
}

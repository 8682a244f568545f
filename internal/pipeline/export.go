package pipeline

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"icdlookup/internal"
)

var recordHeaders = []string{"code", "short_description", "long_description", "category", "chapter", "status"}

func recordRow(rec internal.CanonicalRecord) []string {
	return []string{rec.Code, rec.ShortDescription, rec.LongDescription, rec.Category, rec.Chapter, string(rec.Status)}
}

// ExportRecordsCSV writes a result set as CSV with a header row.
func ExportRecordsCSV(w io.Writer, records []internal.CanonicalRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(recordHeaders); err != nil {
		return err
	}
	for _, rec := range records {
		if err := cw.Write(recordRow(rec)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRecordsXLSX writes a result set as a one-sheet workbook.
func WriteRecordsXLSX(w io.Writer, records []internal.CanonicalRecord) error {
	f := buildRecordsWorkbook(records)
	defer f.Close()
	_, err := f.WriteTo(w)
	return err
}

func ExportRecordsXLSX(records []internal.CanonicalRecord, outputPath string) error {
	f := buildRecordsWorkbook(records)
	defer f.Close()
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func buildRecordsWorkbook(records []internal.CanonicalRecord) *excelize.File {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, h := range recordHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, rec := range records {
		for c, v := range recordRow(rec) {
			cell, _ := excelize.CoordinatesToCellName(c+1, i+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	return f
}

func ExportRowsToXLSX(rows []internal.LookupExportRow, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	headers := []string{
		"input_line_no", "source", "raw_line", "query",
		"match_status", "match_reason", "total_matches",
		"code", "short_description", "long_description", "category", "chapter",
		"candidate2_code", "candidate2_score",
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, row := range rows {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, row.InputLineNo)
		set(2, row.Source)
		set(3, row.RawLine)
		set(4, row.Query)
		set(5, row.MatchStatus)
		set(6, row.MatchReason)
		set(7, row.TotalMatches)
		set(8, derefString(row.Code))
		set(9, derefString(row.ShortDescription))
		set(10, derefString(row.LongDescription))
		set(11, derefString(row.Category))
		set(12, derefString(row.Chapter))
		set(13, derefString(row.Candidate2Code))
		set(14, derefInt(row.Candidate2Score))
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefInt(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}

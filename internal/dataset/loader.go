package dataset

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"icdlookup/internal"
	"icdlookup/internal/schema"
)

var ErrUnsupportedFormat = errors.New("unsupported dataset format")

// Options control how a dataset file is read and normalized.
type Options struct {
	Keywords      schema.RoleKeywords
	ExcludedSheet string
}

// Sheet is one raw tabular block: the header row and every data row keyed by header.
type Sheet struct {
	Name    string
	Headers []string
	Rows    []internal.RawRow
}

// LoadFile reads a dataset file and normalizes it into a canonical table.
func LoadFile(path string, opts Options) (internal.CanonicalTable, error) {
	table, err := loadFile(path, opts)
	if err != nil {
		return internal.CanonicalTable{}, fmt.Errorf("load dataset %s: %w", path, err)
	}
	return table, nil
}

func loadFile(path string, opts Options) (internal.CanonicalTable, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		valid, excluded, err := readXLSX(path, opts.ExcludedSheet)
		if err != nil {
			return internal.CanonicalTable{}, err
		}
		return normalizeSheets(opts.Keywords, valid, excluded)
	case ".csv":
		sheet, err := readCSV(path)
		if err != nil {
			return internal.CanonicalTable{}, err
		}
		return normalizeSheets(opts.Keywords, sheet, nil)
	case ".html", ".htm":
		sheet, err := readHTML(path)
		if err != nil {
			return internal.CanonicalTable{}, err
		}
		return normalizeSheets(opts.Keywords, sheet, nil)
	case ".pdf":
		sheet, err := readPDF(path)
		if err != nil {
			return internal.CanonicalTable{}, err
		}
		return normalizeSheets(opts.Keywords, sheet, nil)
	case ".txt":
		sheet, err := readText(path)
		if err != nil {
			return internal.CanonicalTable{}, err
		}
		return normalizeSheets(opts.Keywords, sheet, nil)
	default:
		return internal.CanonicalTable{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// normalizeSheets normalizes the valid sheet and, when present, unions the excluded sheet
// after it with the excluded status tag.
func normalizeSheets(keywords schema.RoleKeywords, valid Sheet, excluded *Sheet) (internal.CanonicalTable, error) {
	table, err := schema.NormalizeWith(keywords, valid.Headers, valid.Rows)
	if err != nil {
		return internal.CanonicalTable{}, err
	}
	for i := range table.Records {
		table.Records[i].Status = internal.StatusValid
	}
	if excluded == nil || len(excluded.Headers) == 0 {
		return table, nil
	}

	extra, err := schema.NormalizeWith(keywords, excluded.Headers, excluded.Rows)
	if err != nil {
		return internal.CanonicalTable{}, fmt.Errorf("sheet %s: %w", excluded.Name, err)
	}
	for _, rec := range extra.Records {
		rec.Status = internal.StatusExcluded
		table.Records = append(table.Records, rec)
	}
	return table, nil
}

// sheetFromRows turns a cell grid into a Sheet. The first non-empty row is the header row.
func sheetFromRows(name string, grid [][]string) Sheet {
	sheet := Sheet{Name: name}
	headerAt := -1
	for i, row := range grid {
		if !rowIsEmpty(row) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return sheet
	}

	sheet.Headers = uniqueHeaders(grid[headerAt])
	for _, row := range grid[headerAt+1:] {
		if rowIsEmpty(row) {
			continue
		}
		raw := make(internal.RawRow, len(sheet.Headers))
		for c, h := range sheet.Headers {
			value := ""
			if c < len(row) {
				value = cleanCell(row[c])
			}
			raw[h] = value
		}
		sheet.Rows = append(sheet.Rows, raw)
	}
	return sheet
}

// uniqueHeaders names blank headers by position and suffixes repeats until every name is
// distinct, so no column overwrites another in a RawRow.
func uniqueHeaders(row []string) []string {
	out := make([]string, 0, len(row))
	used := map[string]bool{}
	for i, cell := range row {
		h := cleanCell(cell)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		name := h
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%s (%d)", h, n)
		}
		used[name] = true
		out = append(out, name)
	}
	return out
}

func rowIsEmpty(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// cleanCell applies NFKC normalization, drops control characters and trims.
func cleanCell(value string) string {
	value = norm.NFKC.String(value)
	value = strings.Map(func(r rune) rune {
		if r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	return strings.TrimSpace(value)
}

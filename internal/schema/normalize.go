package schema

import (
	"fmt"
	"strings"

	"icdlookup/internal"
)

// SchemaError reports a dataset whose shape cannot provide a mandatory column.
type SchemaError struct {
	Role   string
	Header string
	Row    int
}

func (e *SchemaError) Error() string {
	if e.Header == "" {
		return fmt.Sprintf("schema: no column for role %q", e.Role)
	}
	return fmt.Sprintf("schema: row %d has no column %q for role %q", e.Row, e.Header, e.Role)
}

// Normalize resolves columns with the default keyword table and builds the canonical table.
func Normalize(headers []string, rows []internal.RawRow) (internal.CanonicalTable, error) {
	return NormalizeWith(DefaultRoleKeywords(), headers, rows)
}

func NormalizeWith(keywords RoleKeywords, headers []string, rows []internal.RawRow) (internal.CanonicalTable, error) {
	columns, err := ResolveColumns(keywords, headers)
	if err != nil {
		return internal.CanonicalTable{}, err
	}

	records := make([]internal.CanonicalRecord, 0, len(rows))
	for i, row := range rows {
		rawCode, ok := row[columns.Code]
		if !ok {
			return internal.CanonicalTable{}, &SchemaError{Role: "code", Header: columns.Code, Row: i + 1}
		}
		code := strings.TrimSpace(rawCode)
		if code == "" {
			continue
		}

		rec := internal.CanonicalRecord{
			Code:             code,
			ShortDescription: row[columns.ShortDescription],
			LongDescription:  row[columns.LongDescription],
		}
		if columns.Category != "" {
			rec.Category = strings.TrimSpace(row[columns.Category])
		}
		if rec.Category == "" {
			rec.Category = CategoryFor(code)
		}
		if columns.Chapter != "" {
			rec.Chapter = strings.TrimSpace(row[columns.Chapter])
		}
		if rec.Chapter == "" {
			rec.Chapter = ChapterFor(code)
		}
		records = append(records, rec)
	}

	return internal.CanonicalTable{Records: records, Columns: columns}, nil
}

// ResolveColumns assigns an original header to every canonical role. Each role is scanned
// independently, so one header may serve several roles.
func ResolveColumns(keywords RoleKeywords, headers []string) (internal.ColumnMapping, error) {
	if len(headers) == 0 {
		return internal.ColumnMapping{}, &SchemaError{Role: "code"}
	}
	keywords = keywords.WithDefaults()

	lowered := make([]string, 0, len(headers))
	for _, h := range headers {
		lowered = append(lowered, strings.ToLower(strings.TrimSpace(h)))
	}

	var m internal.ColumnMapping
	if idx := findHeaderIndex(lowered, keywords.Code); idx >= 0 {
		m.Code = headers[idx]
	} else {
		m.Code = headers[0]
	}

	if idx := findHeaderIndex(lowered, keywords.ShortDescription); idx >= 0 {
		m.ShortDescription = headers[idx]
	} else if len(headers) > 1 {
		m.ShortDescription = headers[1]
	} else {
		m.ShortDescription = m.Code
	}

	if idx := findHeaderIndex(lowered, keywords.LongDescription); idx >= 0 {
		m.LongDescription = headers[idx]
	} else {
		m.LongDescription = m.ShortDescription
	}

	if idx := findHeaderIndex(lowered, keywords.Category); idx >= 0 {
		m.Category = headers[idx]
	}
	if idx := findHeaderIndex(lowered, keywords.Chapter); idx >= 0 {
		m.Chapter = headers[idx]
	}
	return m, nil
}

func findHeaderIndex(headers []string, names []string) int {
	for i, h := range headers {
		for _, name := range names {
			if name != "" && strings.Contains(h, strings.ToLower(name)) {
				return i
			}
		}
	}
	return -1
}

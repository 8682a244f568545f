package dataset

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// readCSV reads a comma separated export. Files that are not valid UTF-8 are decoded
// as Windows-1252, the encoding spreadsheet tools use for "CSV (Windows)".
func readCSV(path string) (Sheet, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return Sheet{}, err
	}
	blob = bytes.TrimPrefix(blob, []byte("\xef\xbb\xbf"))

	var r io.Reader = bytes.NewReader(blob)
	if !utf8.Valid(blob) {
		r = transform.NewReader(r, charmap.Windows1252.NewDecoder())
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	grid, err := reader.ReadAll()
	if err != nil {
		return Sheet{}, err
	}
	return sheetFromRows("csv", grid), nil
}

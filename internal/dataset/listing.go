package dataset

import (
	"bytes"
	"os"
	"regexp"
	"strings"

	pdf "github.com/ledongthuc/pdf"

	"icdlookup/internal"
)

const (
	listingCodeHeader = "CODE"
	listingDescHeader = "DESCRIPTION"
)

var listingLine = regexp.MustCompile(`^([A-Za-z][0-9][0-9A-Za-z]{1,5}(?:\.[0-9A-Za-z]{1,4})?)\s+(.+)$`)

// readText reads a plain code listing, one "CODE  description" pair per line.
func readText(path string) (Sheet, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return Sheet{}, err
	}
	return ParseListing(string(blob)), nil
}

// readPDF extracts the text of every page and parses it as a code listing.
func readPDF(path string) (Sheet, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return Sheet{}, err
	}
	r, err := pdf.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return Sheet{}, err
	}

	var text strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		text.WriteString(pageText)
		text.WriteString("\n")
	}
	return ParseListing(text.String()), nil
}

// ParseListing turns "CODE  description" lines into a two-column sheet. Lines that do not
// start with a code are skipped.
func ParseListing(text string) Sheet {
	sheet := Sheet{Name: "listing", Headers: []string{listingCodeHeader, listingDescHeader}}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, line := range strings.Split(text, "\n") {
		line = cleanCell(line)
		m := listingLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		sheet.Rows = append(sheet.Rows, internal.RawRow{
			listingCodeHeader: m[1],
			listingDescHeader: strings.TrimSpace(m[2]),
		})
	}
	return sheet
}

package pipeline

import (
	"fmt"
	"os"

	"icdlookup/internal"
)

// ExtractItemsFromInput extracts lookup items from raw text, an HTML snippet, or a file.
func ExtractItemsFromInput(inputType string, input string) ([]internal.ExtractionItem, error) {
	var items []internal.ExtractionItem
	switch inputType {
	case "email_text", "text":
		items = parseEmailText(input)
	case "email_table", "html":
		items = parseEmailHTMLTable(input)
	case "xlsx", "pdf", "eml":
		blob, err := os.ReadFile(input)
		if err != nil {
			return nil, err
		}
		switch inputType {
		case "xlsx":
			items, err = parseXLSX(blob)
		case "pdf":
			items, err = parsePDF(blob)
		default:
			items, _, _, _, _, err = ExtractItemsFromEmailRaw(blob)
		}
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported input type: %s", inputType)
	}
	return dedupeItems(items), nil
}

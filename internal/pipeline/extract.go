package pipeline

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"icdlookup/internal"
	"icdlookup/internal/util"
)

var ignorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^--+$`),
	regexp.MustCompile(`(?i)^(hi|hello|dear|good (morning|afternoon|evening))\b`),
	regexp.MustCompile(`(?i)^(thanks|thank you|best|regards|kind regards|sincerely|cheers)\b`),
	regexp.MustCompile(`(?i)^(tel|phone|fax|e-?mail|from|sent|to|subject)[:\s]`),
	regexp.MustCompile(`(?i)^http`),
	regexp.MustCompile(`(?i)^(please|could you|can you|i need|we need)\b.*[:?]$`),
	regexp.MustCompile(`^>`),
}

var (
	reLetters = regexp.MustCompile(`[A-Za-z]`)
	reSpaces  = regexp.MustCompile(`\s+`)
)

const maxQueryRunes = 160

var (
	codeHeaderProbes  = []string{"icd", "code"}
	queryHeaderProbes = []string{"diagnos", "description", "condition", "term", "query", "name", "desc"}
)

// ExtractItemsFromEmailRaw parses an .eml message and returns the lookup items found in the
// text body, HTML tables, and xlsx or pdf attachments, plus the subject, text body, html
// body and attachment names.
func ExtractItemsFromEmailRaw(raw []byte) ([]internal.ExtractionItem, string, string, string, []string, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, "", "", "", nil, err
	}

	items := make([]internal.ExtractionItem, 0)
	if env.HTML != "" {
		items = append(items, parseEmailHTMLTable(env.HTML)...)
	}
	if env.Text != "" && len(items) == 0 {
		items = append(items, parseEmailText(env.Text)...)
	}

	attachmentNames := make([]string, 0, len(env.Attachments))
	for _, att := range env.Attachments {
		filename := strings.TrimSpace(att.FileName)
		if filename == "" {
			filename = "attachment"
		}
		attachmentNames = append(attachmentNames, filename)
		lower := strings.ToLower(filename)

		var extra []internal.ExtractionItem
		switch {
		case strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xlsm"):
			extra, err = parseXLSX(att.Content)
		case strings.HasSuffix(lower, ".pdf"):
			extra, err = parsePDF(att.Content)
		default:
			continue
		}
		if err != nil {
			continue
		}
		for i := range extra {
			extra[i].Meta["attachment"] = filename
		}
		items = append(items, extra...)
	}

	items = dedupeItems(items)
	for i := range items {
		items[i].LineNo = i + 1
	}

	return items, env.GetHeader("Subject"), env.Text, env.HTML, attachmentNames, nil
}

func parseEmailText(text string) []internal.ExtractionItem {
	lines := splitLines(text)
	out := make([]internal.ExtractionItem, 0, len(lines))
	lineNo := 0
	for _, line := range lines {
		lineNo++
		item := lineToExtractionItem(internal.SourceEmailText, lineNo, line)
		if item == nil {
			continue
		}
		out = append(out, *item)
	}
	return out
}

func parseEmailHTMLTable(html string) []internal.ExtractionItem {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	out := []internal.ExtractionItem{}
	globalLine := 0
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := table.Find("tr")
		if rows.Length() < 2 {
			return
		}

		headers := []string{}
		rows.First().Find("th,td").Each(func(_ int, cell *goquery.Selection) {
			headers = append(headers, strings.ToLower(strings.TrimSpace(cell.Text())))
		})
		codeIdx, queryIdx := inferQueryColumns(headers)

		rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
			cells := []string{}
			row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, normalizeSpaces(cell.Text()))
			})
			query := pickQuery(cells, codeIdx, queryIdx)
			if query == "" {
				return
			}

			globalLine++
			out = append(out, internal.ExtractionItem{
				LineNo:  globalLine,
				Source:  internal.SourceEmailHTMLTable,
				RawLine: strings.Join(cells, " | "),
				Query:   query,
				Meta:    map[string]any{"row": cells},
			})
		})
	})

	return out
}

func parseXLSX(content []byte) ([]internal.ExtractionItem, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lineNo := 0
	out := []internal.ExtractionItem{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}

		codeIdx, queryIdx := -1, -1
		headerSeen := false
		for i, row := range rows {
			cells := normalizeCells(row)
			if len(cells) == 0 {
				continue
			}
			if i < 3 && !headerSeen {
				codeIdx, queryIdx = inferQueryColumns(lowerCells(cells))
				if codeIdx >= 0 || queryIdx >= 0 {
					headerSeen = true
					continue
				}
			}

			query := pickQuery(cells, codeIdx, queryIdx)
			if query == "" {
				continue
			}
			lineNo++
			out = append(out, internal.ExtractionItem{
				LineNo:  lineNo,
				Source:  internal.SourceXLSX,
				RawLine: strings.Join(cells, " | "),
				Query:   query,
				Meta:    map[string]any{"sheet": sheet, "rowNumber": i + 1},
			})
		}
	}

	return out, nil
}

func parsePDF(content []byte) ([]internal.ExtractionItem, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}

	out := []internal.ExtractionItem{}
	lineNo := 0
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		for _, line := range splitLines(text) {
			lineNo++
			item := lineToExtractionItem(internal.SourcePDF, lineNo, line)
			if item == nil {
				continue
			}
			item.Meta["page"] = i
			out = append(out, *item)
		}
	}
	return out, nil
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func lineToExtractionItem(source internal.ItemSource, lineNo int, rawLine string) *internal.ExtractionItem {
	compact := normalizeSpaces(rawLine)
	if compact == "" || isLikelyNoise(compact) || !reLetters.MatchString(compact) {
		return nil
	}

	parsed := util.ParseQuery(compact)
	if len([]rune(parsed.Query)) < 3 || len([]rune(parsed.Query)) > maxQueryRunes {
		return nil
	}

	item := internal.ExtractionItem{
		LineNo:  lineNo,
		Source:  source,
		RawLine: compact,
		Query:   parsed.Query,
		Meta:    map[string]any{},
	}
	if parsed.Code != nil {
		item.Meta["code"] = *parsed.Code
	}
	return &item
}

func normalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

func isLikelyNoise(line string) bool {
	for _, re := range ignorePatterns {
		if re.MatchString(strings.TrimSpace(line)) {
			return true
		}
	}
	return false
}

func dedupeItems(items []internal.ExtractionItem) []internal.ExtractionItem {
	seen := map[string]struct{}{}
	out := make([]internal.ExtractionItem, 0, len(items))
	for _, item := range items {
		key := util.NormalizeText(item.Query)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func findHeaderIndex(headers []string, keywords []string) int {
	for i, h := range headers {
		for _, kw := range keywords {
			if strings.Contains(h, kw) {
				return i
			}
		}
	}
	return -1
}

// inferQueryColumns finds the code column and the free-text column of a header row.
func inferQueryColumns(headers []string) (codeIdx, queryIdx int) {
	codeIdx = findHeaderIndex(headers, codeHeaderProbes)
	queryIdx = findHeaderIndex(headers, queryHeaderProbes)
	if queryIdx == codeIdx {
		queryIdx = -1
	}
	return codeIdx, queryIdx
}

// pickQuery prefers a code-shaped cell from the code column, then the free-text column,
// then the first cell with letters.
func pickQuery(cells []string, codeIdx, queryIdx int) string {
	if code := pickCell(cells, codeIdx, -1); code != "" && util.LooksLikeCode(code) {
		return code
	}
	if text := pickCell(cells, queryIdx, -1); text != "" && reLetters.MatchString(text) {
		return util.ParseQuery(text).Query
	}
	if codeIdx >= 0 || queryIdx >= 0 {
		return ""
	}
	for _, c := range cells {
		if reLetters.MatchString(c) {
			return util.ParseQuery(c).Query
		}
	}
	return ""
}

func pickCell(cells []string, idx int, fallback int) string {
	if idx >= 0 && idx < len(cells) {
		return strings.TrimSpace(cells[idx])
	}
	if fallback >= 0 && fallback < len(cells) {
		return strings.TrimSpace(cells[fallback])
	}
	return ""
}

func normalizeCells(row []string) []string {
	out := make([]string, 0, len(row))
	empty := true
	for _, c := range row {
		c = normalizeSpaces(c)
		if c != "" {
			empty = false
		}
		out = append(out, c)
	}
	if empty {
		return nil
	}
	return out
}

func lowerCells(cells []string) []string {
	out := make([]string, 0, len(cells))
	for _, c := range cells {
		out = append(out, strings.ToLower(c))
	}
	return out
}

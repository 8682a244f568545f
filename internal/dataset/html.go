package dataset

import (
	"fmt"
	"os"

	"github.com/PuerkitoBio/goquery"
)

// readHTML reads the first <table> of a saved web page.
func readHTML(path string) (Sheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return Sheet{}, err
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return Sheet{}, err
	}
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return Sheet{}, fmt.Errorf("no table found")
	}

	grid := [][]string{}
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := []string{}
		row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, cell.Text())
		})
		grid = append(grid, cells)
	})
	return sheetFromRows("html", grid), nil
}

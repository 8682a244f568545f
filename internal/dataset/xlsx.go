package dataset

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// readXLSX reads the first sheet as the valid code list. The excluded sheet is the named
// sheet when excludedName is set, otherwise the second sheet if the workbook has one.
func readXLSX(path, excludedName string) (Sheet, *Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return Sheet{}, nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Sheet{}, nil, fmt.Errorf("workbook has no sheets")
	}

	validName := sheets[0]
	excludedAt := ""
	if excludedName != "" {
		for _, name := range sheets {
			if strings.EqualFold(name, excludedName) {
				excludedAt = name
				break
			}
		}
		if excludedAt == "" {
			return Sheet{}, nil, fmt.Errorf("excluded sheet %q not found", excludedName)
		}
		if excludedAt == validName && len(sheets) > 1 {
			validName = sheets[1]
		}
	} else if len(sheets) > 1 {
		excludedAt = sheets[1]
	}

	rows, err := f.GetRows(validName)
	if err != nil {
		return Sheet{}, nil, fmt.Errorf("read sheet %s: %w", validName, err)
	}
	valid := sheetFromRows(validName, rows)

	if excludedAt == "" || excludedAt == validName {
		return valid, nil, nil
	}
	rows, err = f.GetRows(excludedAt)
	if err != nil {
		return Sheet{}, nil, fmt.Errorf("read sheet %s: %w", excludedAt, err)
	}
	excluded := sheetFromRows(excludedAt, rows)
	return valid, &excluded, nil
}

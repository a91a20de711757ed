package loader

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// parseXLSX produces one data-summary page per sheet. A sheet counts as a table when
// it has a header and at least one data row.
func parseXLSX(l *FileLoader, content []byte) ([]page, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	var pages []page
	for i, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		t := newTable(sheet, rows)
		if len(t.header) == 0 {
			continue
		}
		pages = append(pages, page{
			index:    i,
			content:  summarize(t, l.previewRows),
			hasTable: boolPtr(len(t.rows) > 0),
			extra:    map[string]any{MetaSheet: sheet, MetaRows: len(t.rows)},
		})
	}
	return pages, nil
}

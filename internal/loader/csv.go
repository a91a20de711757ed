package loader

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// parseCSV produces a single data-summary page. Tabular data always has has_table set.
func parseCSV(l *FileLoader, content []byte) ([]page, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse CSV: %w", err)
	}
	t := newTable("", records)
	if len(t.header) == 0 {
		return nil, nil
	}
	return []page{{
		index:    0,
		content:  summarize(t, l.previewRows),
		hasTable: boolPtr(true),
		extra:    map[string]any{MetaRows: len(t.rows)},
	}}, nil
}

package loader

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// parsePDF returns one page per PDF page; page indexes are 0-based.
func parsePDF(_ *FileLoader, content []byte) ([]page, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	numPages := r.NumPage()
	pages := make([]page, 0, numPages)
	for i := 0; i < numPages; i++ {
		p := r.Page(i + 1)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i+1, err)
		}
		pages = append(pages, page{index: i, content: text})
	}
	return pages, nil
}

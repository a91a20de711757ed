package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// parsedResult is the page-level output of a document parsing service: one result
// per parsed file, each page carrying markdown, plain text and the parser's table flag.
type parsedResult struct {
	FilePath string       `json:"file_path"`
	Pages    []parsedPage `json:"pages"`
}

type parsedPage struct {
	Page              int    `json:"page"`
	MD                string `json:"md"`
	Text              string `json:"text"`
	TriggeredAutoMode *bool  `json:"triggeredAutoMode"`
}

// parseJSON accepts a list of results or a single result. Each result is its own unit.
func parseJSON(_ *FileLoader, path string, content []byte) ([]unit, error) {
	trimmed := bytes.TrimSpace(content)
	var results []parsedResult
	switch {
	case bytes.HasPrefix(trimmed, []byte("[")):
		if err := json.Unmarshal(trimmed, &results); err != nil {
			return nil, fmt.Errorf("parse JSON results: %w", err)
		}
	case bytes.HasPrefix(trimmed, []byte("{")):
		var one parsedResult
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, fmt.Errorf("parse JSON result: %w", err)
		}
		results = []parsedResult{one}
	default:
		return nil, fmt.Errorf("parse JSON: expected an object or a list of objects")
	}

	units := make([]unit, 0, len(results))
	for _, r := range results {
		source := r.FilePath
		if strings.TrimSpace(source) == "" {
			source = path
		}
		u := unit{source: source, pages: make([]page, 0, len(r.Pages))}
		for i, p := range r.Pages {
			content := p.MD
			if strings.TrimSpace(content) == "" {
				content = p.Text
			}
			u.pages = append(u.pages, page{index: i, content: content, hasTable: p.TriggeredAutoMode})
		}
		units = append(units, u)
	}
	return units, nil
}

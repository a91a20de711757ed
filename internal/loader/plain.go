package loader

import "strings"

// parsePlain splits text on form feeds; each segment is a page.
func parsePlain(_ *FileLoader, content []byte) ([]page, error) {
	parts := strings.Split(string(content), "\f")
	pages := make([]page, len(parts))
	for i, p := range parts {
		pages[i] = page{index: i, content: p}
	}
	return pages, nil
}

// Package models defines core data structures for documents, filters, queries, and search results.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Reserved metadata keys. Every document carries both.
const (
	MetaSourceFile = "source_file"
	MetaHasTable   = "has_table"
)

// Document is one indexed unit: a page of a parsed file, a spreadsheet sheet, or a data summary.
// Content is never mutated after creation; the index store keeps its own copy.
type Document struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Metadata holds the required provenance and table flag plus optional extension tags.
// It marshals to a flat JSON object: {"source_file": ..., "has_table": ..., <extra keys>}.
// Numeric extra values are held as float64 once cloned, the type they decode to after a
// round trip through storage.
type Metadata struct {
	SourceFile string
	HasTable   bool
	Extra      map[string]any
}

// DocumentID builds the stable identifier for a page of a source unit.
func DocumentID(fileIndex, pageIndex int) string {
	return fmt.Sprintf("doc_%d_page_%d", fileIndex, pageIndex)
}

// NewDocument returns a document with a defensive copy of meta.
func NewDocument(id, content string, meta Metadata) Document {
	return Document{ID: id, Content: content, Metadata: meta.Clone()}
}

// Validate checks the required field set.
func (d Document) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidDocument)
	}
	if strings.TrimSpace(d.Metadata.SourceFile) == "" {
		return fmt.Errorf("%w: document %s has no %s", ErrInvalidDocument, d.ID, MetaSourceFile)
	}
	for k := range d.Metadata.Extra {
		if k == MetaSourceFile || k == MetaHasTable {
			return fmt.Errorf("%w: document %s uses reserved key %q in extra metadata", ErrInvalidDocument, d.ID, k)
		}
	}
	return nil
}

// Clone returns a copy that shares no mutable state with d.
func (d Document) Clone() Document {
	return Document{ID: d.ID, Content: d.Content, Metadata: d.Metadata.Clone()}
}

// Clone copies the extension map, normalizing numbers to float64.
func (m Metadata) Clone() Metadata {
	out := Metadata{SourceFile: m.SourceFile, HasTable: m.HasTable}
	if len(m.Extra) > 0 {
		out.Extra = make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = normalizeValue(v)
		}
	}
	return out
}

func normalizeValue(v any) any {
	if f, ok := toFloat64(v); ok {
		return f
	}
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalizeValue(e)
		}
		return out
	}
	return v
}

// Get returns the value stored under key, including the reserved keys.
func (m Metadata) Get(key string) (any, bool) {
	switch key {
	case MetaSourceFile:
		return m.SourceFile, true
	case MetaHasTable:
		return m.HasTable, true
	}
	v, ok := m.Extra[key]
	return v, ok
}

// With returns a copy of m with key set in the extension map.
func (m Metadata) With(key string, value any) Metadata {
	out := m.Clone()
	switch key {
	case MetaSourceFile:
		if s, ok := value.(string); ok {
			out.SourceFile = s
		}
		return out
	case MetaHasTable:
		if b, ok := value.(bool); ok {
			out.HasTable = b
		}
		return out
	}
	if out.Extra == nil {
		out.Extra = make(map[string]any)
	}
	out.Extra[key] = normalizeValue(value)
	return out
}

// MarshalJSON flattens the metadata into one object.
func (m Metadata) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(m.Extra)+2)
	for k, v := range m.Extra {
		flat[k] = v
	}
	flat[MetaSourceFile] = m.SourceFile
	flat[MetaHasTable] = m.HasTable
	return json.Marshal(flat)
}

// UnmarshalJSON splits a flat object into the required fields and the extension map.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	*m = Metadata{}
	for k, v := range flat {
		switch k {
		case MetaSourceFile:
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("metadata %s must be a string, got %T", MetaSourceFile, v)
			}
			m.SourceFile = s
		case MetaHasTable:
			b, ok := v.(bool)
			if !ok {
				return fmt.Errorf("metadata %s must be a bool, got %T", MetaHasTable, v)
			}
			m.HasTable = b
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]any)
			}
			m.Extra[k] = v
		}
	}
	return nil
}

// Package loader turns source files into normalized, page-level Documents.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/dashrag/internal/models"
	"github.com/hyperjump/dashrag/pkg/utils"
)

// Loader produces Documents from source paths.
type Loader interface {
	Load(ctx context.Context, paths ...string) (*LoadResult, error)
}

// LoadResult holds the documents of every readable source, in input order, and one
// LoadError per source that produced nothing.
type LoadResult struct {
	Documents []models.Document
	Failures  []*models.LoadError
}

// page is one source page before normalization. A nil hasTable defers to DetectTable.
// extra lands in the document's extension metadata next to page and format.
type page struct {
	index    int
	content  string
	hasTable *bool
	extra    map[string]any
}

// unit is one logical source: a file, or one result inside a multi-result JSON file.
type unit struct {
	source string
	pages  []page
}

// FileLoader reads documents from the local filesystem.
type FileLoader struct {
	strict      bool
	previewRows int
	extensions  map[string]bool
	logger      *zap.Logger
}

// Option configures a FileLoader.
type Option func(*FileLoader)

// WithStrict makes the first failing source abort the whole Load call.
func WithStrict(strict bool) Option {
	return func(l *FileLoader) { l.strict = strict }
}

// WithPreviewRows sets how many rows tabular summaries include.
func WithPreviewRows(n int) Option {
	return func(l *FileLoader) {
		if n > 0 {
			l.previewRows = n
		}
	}
}

// WithExtensions limits accepted extensions (with leading dot, case-insensitive).
// Without it every supported extension is accepted.
func WithExtensions(exts []string) Option {
	return func(l *FileLoader) {
		if len(exts) == 0 {
			return
		}
		l.extensions = make(map[string]bool, len(exts))
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext != "" && !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			l.extensions[ext] = true
		}
	}
}

// WithLogger sets a logger for per-file debug events and soft failures.
func WithLogger(logger *zap.Logger) Option {
	return func(l *FileLoader) { l.logger = utils.MustNop(logger) }
}

// New returns a soft-failing loader.
func New(opts ...Option) *FileLoader {
	l := &FileLoader{previewRows: defaultPreviewRows, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Supported reports whether path has an extension the loader can read and accepts.
func (l *FileLoader) Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := parsers[ext]; !ok {
		return false
	}
	return l.extensions == nil || l.extensions[ext]
}

// Load reads every path in order. Document ids are doc_<unit>_page_<page>, where
// units count paths (and results inside JSON files) in call order and pages keep
// their source index even when blank pages are skipped.
func (l *FileLoader) Load(ctx context.Context, paths ...string) (*LoadResult, error) {
	res := &LoadResult{Documents: make([]models.Document, 0)}
	fileIndex := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		units, err := l.parse(path)
		if err == nil {
			docs, consumed := buildDocuments(units, fileIndex, formatOf(path))
			fileIndex += consumed
			if len(docs) == 0 {
				err = models.ErrEmptySource
			} else {
				res.Documents = append(res.Documents, docs...)
				l.logger.Debug("loader loaded file", zap.String("path", path), zap.Int("documents", len(docs)))
				continue
			}
		} else {
			fileIndex++
		}

		loadErr := &models.LoadError{Path: path, Err: err}
		if l.strict {
			return nil, loadErr
		}
		l.logger.Warn("Skipping unreadable source", zap.String("path", path), zap.Error(err))
		res.Failures = append(res.Failures, loadErr)
	}
	return res, nil
}

// Extension metadata keys set by the loader.
const (
	MetaPage   = "page"
	MetaFormat = "format"
	MetaSheet  = "sheet"
	MetaRows   = "rows"
)

func formatOf(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

func buildDocuments(units []unit, firstIndex int, format string) ([]models.Document, int) {
	var docs []models.Document
	for u, un := range units {
		for _, p := range un.pages {
			content := Normalize(p.content)
			if content == "" {
				continue
			}
			hasTable := DetectTable(content)
			if p.hasTable != nil {
				hasTable = *p.hasTable
			}
			extra := map[string]any{MetaPage: p.index, MetaFormat: format}
			for k, v := range p.extra {
				extra[k] = v
			}
			meta := models.Metadata{SourceFile: un.source, HasTable: hasTable, Extra: extra}
			docs = append(docs, models.NewDocument(models.DocumentID(firstIndex+u, p.index), content, meta))
		}
	}
	consumed := len(units)
	if consumed == 0 {
		consumed = 1
	}
	return docs, consumed
}

func (l *FileLoader) parse(path string) ([]unit, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !l.Supported(path) {
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedSource, ext)
	}
	parser := parsers[ext]
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(content) == 0 {
		return nil, models.ErrEmptySource
	}
	units, err := parser(l, path, content)
	if err != nil {
		return nil, err
	}
	return units, nil
}

// parserFunc turns file bytes into units. path is used as the source file name.
type parserFunc func(l *FileLoader, path string, content []byte) ([]unit, error)

var parsers = map[string]parserFunc{
	".json": parseJSON,
	".pdf":  single(parsePDF),
	".csv":  single(parseCSV),
	".xlsx": single(parseXLSX),
	".md":   single(parsePlain),
	".txt":  single(parsePlain),
	".rst":  single(parsePlain),
	".docx": single(parseDOCX),
	".pptx": single(parsePPTX),
	".odp":  single(parseODP),
	".ods":  single(parseODS),
	".odt":  single(parseCat),
	".rtf":  single(parseCat),
}

// SupportedExtensions lists every extension the loader can parse.
func SupportedExtensions() []string {
	out := make([]string, 0, len(parsers))
	for ext := range parsers {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// single adapts a one-unit parser.
func single(fn func(l *FileLoader, content []byte) ([]page, error)) parserFunc {
	return func(l *FileLoader, path string, content []byte) ([]unit, error) {
		pages, err := fn(l, content)
		if err != nil {
			return nil, err
		}
		return []unit{{source: path, pages: pages}}, nil
	}
}

// IsEmptySource reports whether err means a source had no usable content.
func IsEmptySource(err error) bool {
	return errors.Is(err, models.ErrEmptySource)
}

func boolPtr(b bool) *bool { return &b }

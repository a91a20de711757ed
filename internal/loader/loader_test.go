package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/dashrag/internal/config"
	"github.com/hyperjump/dashrag/internal/models"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func docIDs(docs []models.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func TestLoad_PlainPages(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", []byte("First page\r\nline two\f   \f Third page\n\n\n\nend"))

	res, err := New().Load(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Failures) != 0 {
		t.Fatalf("unexpected failures: %v", res.Failures)
	}
	got := docIDs(res.Documents)
	want := []string{"doc_0_page_0", "doc_0_page_2"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("ids = %v, want %v (blank page skipped, index kept)", got, want)
	}
	if res.Documents[0].Content != "First page\nline two" {
		t.Errorf("content not normalized: %q", res.Documents[0].Content)
	}
	if res.Documents[1].Content != "Third page\n\nend" {
		t.Errorf("blank runs not collapsed: %q", res.Documents[1].Content)
	}
	if res.Documents[1].Metadata.Extra[MetaPage] != float64(2) {
		t.Errorf("page = %v, want 2", res.Documents[1].Metadata.Extra[MetaPage])
	}
	for _, d := range res.Documents {
		if d.Metadata.SourceFile != path {
			t.Errorf("source_file = %q", d.Metadata.SourceFile)
		}
		if d.Metadata.HasTable {
			t.Errorf("%s: prose detected as table", d.ID)
		}
		if d.Metadata.Extra[MetaFormat] != "txt" {
			t.Errorf("%s: format = %v", d.ID, d.Metadata.Extra[MetaFormat])
		}
		if err := d.Validate(); err != nil {
			t.Error(err)
		}
	}
}

func TestLoad_MarkdownTable(t *testing.T) {
	dir := t.TempDir()
	md := "# Revenue\n\n| Quarter | Revenue |\n|---|---|\n| Q1 | 100 |\n| Q2 | 120 |\n"
	path := writeFile(t, dir, "report.md", []byte(md))

	res, err := New().Load(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Documents) != 1 || !res.Documents[0].Metadata.HasTable {
		t.Fatalf("expected one table document, got %+v", res.Documents)
	}
	if !strings.Contains(res.Documents[0].Content, "| Q1 | 100 |") {
		t.Errorf("table rows must stay intact: %q", res.Documents[0].Content)
	}
}

func TestLoad_CSVSummary(t *testing.T) {
	dir := t.TempDir()
	csv := "region,revenue,units\nNorth,120.5,10\nSouth,95,\nNorth,\"1,000\",7\n"
	path := writeFile(t, dir, "sales.csv", []byte(csv))

	res, err := New(WithPreviewRows(2)).Load(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Documents) != 1 {
		t.Fatalf("expected 1 document, got %d", len(res.Documents))
	}
	d := res.Documents[0]
	if !d.Metadata.HasTable {
		t.Error("CSV summary must be flagged as table")
	}
	for _, want := range []string{
		"Data Info: 3 rows x 3 columns",
		"Columns: region, revenue, units",
		"- region: categorical",
		"- revenue: numeric",
		"revenue: min=95 max=1000",
		"units: min=7 max=10 mean=8.5 median=8.5 nulls=1",
		"region: unique=2 nulls=0 top=North (2), South (1)",
		"| region | revenue | units |",
		"| North | 120.5 | 10 |",
	} {
		if !strings.Contains(d.Content, want) {
			t.Errorf("summary missing %q:\n%s", want, d.Content)
		}
	}
	if strings.Contains(d.Content, "| North | 1,000 | 7 |") {
		t.Error("preview should be limited to 2 rows")
	}
	if !(models.Filter{MetaRows: 3, MetaFormat: "csv", MetaPage: 0}).Matches(d.Metadata) {
		t.Errorf("unexpected CSV metadata %+v", d.Metadata.Extra)
	}
}

func TestLoad_XLSXSheets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.xlsx")
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "Product")
	f.SetCellValue("Sheet1", "B1", "Stock")
	f.SetCellValue("Sheet1", "A2", "Widget")
	f.SetCellValue("Sheet1", "B2", 42)
	if _, err := f.NewSheet("Blank"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.NewSheet("HeaderOnly"); err != nil {
		t.Fatal(err)
	}
	f.SetCellValue("HeaderOnly", "A1", "Name")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	res, err := New().Load(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	got := docIDs(res.Documents)
	if strings.Join(got, ",") != "doc_0_page_0,doc_0_page_2" {
		t.Fatalf("ids = %v", got)
	}
	if !res.Documents[0].Metadata.HasTable {
		t.Error("sheet with data rows should be a table")
	}
	if res.Documents[1].Metadata.HasTable {
		t.Error("header-only sheet should not be a table")
	}
	if !strings.Contains(res.Documents[0].Content, "# Sheet1") || !strings.Contains(res.Documents[0].Content, "| Widget | 42 |") {
		t.Errorf("unexpected sheet summary:\n%s", res.Documents[0].Content)
	}

	byHeaderOnly := models.Filter{MetaSheet: "HeaderOnly"}
	var matched []string
	for _, d := range res.Documents {
		if byHeaderOnly.Matches(d.Metadata) {
			matched = append(matched, d.ID)
		}
	}
	if strings.Join(matched, ",") != "doc_0_page_2" {
		t.Errorf("sheet filter matched %v", matched)
	}
	first := res.Documents[0].Metadata
	if !(models.Filter{MetaSheet: "Sheet1", MetaRows: 1, MetaPage: 0, MetaFormat: "xlsx"}).Matches(first) {
		t.Errorf("unexpected sheet metadata %+v", first.Extra)
	}
}

func TestLoad_ParsedJSON(t *testing.T) {
	dir := t.TempDir()
	js := `[
	  {"file_path": "a.pdf", "pages": [
	    {"page": 1, "md": "| A | B |\n|---|---|\n| 1 | 2 |", "triggeredAutoMode": false},
	    {"page": 2, "md": "", "text": "plain text fallback", "triggeredAutoMode": true}
	  ]},
	  {"file_path": "b.pdf", "pages": [{"page": 1, "md": "| x | y |\n|---|---|"}]}
	]`
	path := writeFile(t, dir, "parsed.json", []byte(js))
	other := writeFile(t, dir, "after.txt", []byte("after"))

	res, err := New().Load(context.Background(), path, other)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"doc_0_page_0", "doc_0_page_1", "doc_1_page_0", "doc_2_page_0"}
	if got := docIDs(res.Documents); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("ids = %v, want %v", got, want)
	}
	if res.Documents[0].Metadata.HasTable {
		t.Error("triggeredAutoMode=false wins over the detector")
	}
	if !res.Documents[1].Metadata.HasTable || res.Documents[1].Content != "plain text fallback" {
		t.Errorf("page 2 = %+v", res.Documents[1])
	}
	if !res.Documents[2].Metadata.HasTable {
		t.Error("without triggeredAutoMode the detector decides")
	}
	if res.Documents[0].Metadata.SourceFile != "a.pdf" || res.Documents[2].Metadata.SourceFile != "b.pdf" {
		t.Error("source_file should come from file_path")
	}
}

func TestLoad_SingleJSONObject(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "one.json", []byte(`{"pages":[{"md":"hello"}]}`))
	res, err := New().Load(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Documents) != 1 || res.Documents[0].Metadata.SourceFile != path {
		t.Fatalf("got %+v", res.Documents)
	}
}

func TestLoad_SoftFailures(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.txt", []byte("good content"))
	empty := writeFile(t, dir, "empty.txt", nil)
	blank := writeFile(t, dir, "blank.md", []byte("  \n\t\n"))
	bad := writeFile(t, dir, "image.png", []byte{0x89, 'P', 'N', 'G'})
	broken := writeFile(t, dir, "broken.json", []byte("{not json"))
	missing := filepath.Join(dir, "missing.txt")
	last := writeFile(t, dir, "last.txt", []byte("last content"))

	res, err := New().Load(context.Background(), good, empty, blank, bad, broken, missing, last)
	if err != nil {
		t.Fatalf("soft mode must not fail: %v", err)
	}
	if got := docIDs(res.Documents); strings.Join(got, ",") != "doc_0_page_0,doc_6_page_0" {
		t.Errorf("ids = %v", got)
	}
	if len(res.Failures) != 5 {
		t.Fatalf("expected 5 failures, got %d: %v", len(res.Failures), res.Failures)
	}
	if !errors.Is(res.Failures[0], models.ErrEmptySource) || res.Failures[0].Path != empty {
		t.Errorf("failure[0] = %v", res.Failures[0])
	}
	if !IsEmptySource(res.Failures[1]) {
		t.Errorf("whitespace-only file should be empty: %v", res.Failures[1])
	}
	if !errors.Is(res.Failures[2], models.ErrUnsupportedSource) {
		t.Errorf("failure[2] = %v", res.Failures[2])
	}
}

func TestLoad_Strict(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.txt", []byte("good content"))
	missing := filepath.Join(dir, "missing.txt")

	res, err := New(WithStrict(true)).Load(context.Background(), good, missing)
	if res != nil {
		t.Error("strict failure returns no partial result")
	}
	var loadErr *models.LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected *LoadError, got %v", err)
	}
	if loadErr.Path != missing || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got %v", loadErr)
	}
}

func TestLoad_ExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	md := writeFile(t, dir, "a.md", []byte("markdown"))
	txt := writeFile(t, dir, "b.txt", []byte("text"))

	l := New(WithExtensions([]string{"md"}))
	if !l.Supported(md) || l.Supported(txt) {
		t.Error("Supported should honor the extension list")
	}
	res, err := l.Load(context.Background(), md, txt)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Documents) != 1 || len(res.Failures) != 1 {
		t.Errorf("docs=%d failures=%d", len(res.Documents), len(res.Failures))
	}
}

func TestSupportedExtensions_MatchConfigDefaults(t *testing.T) {
	want := append([]string(nil), config.DefaultExtensions...)
	sort.Strings(want)
	if got := SupportedExtensions(); !reflect.DeepEqual(got, want) {
		t.Errorf("SupportedExtensions() = %v, want %v", got, want)
	}
}

func TestLoad_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Load(ctx, "x.txt"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestParseDOCX(t *testing.T) {
	body := `<w:document><w:body><w:p w:rsidR="00A1"><w:r><w:t>Searchable</w:t></w:r><w:r><w:t xml:space="preserve"> docx </w:t></w:r></w:p><w:p><w:r><w:t>second paragraph</w:t></w:r></w:p></w:body></w:document>`
	pages, err := parseDOCX(nil, zipBytes(t, map[string]string{"word/document.xml": body}))
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 1 || pages[0].content != "Searchable docx\nsecond paragraph" {
		t.Errorf("got %+v", pages)
	}
}

func TestParseDOCX_ContentTypes(t *testing.T) {
	for name, ct := range map[string]string{
		"part first": `<Override PartName="/word/document2.xml" ContentType="` + docxMainContentType + `"/>`,
		"type first": `<Override ContentType="` + docxMainContentType + `" PartName="/word/document2.xml"/>`,
	} {
		t.Run(name, func(t *testing.T) {
			content := zipBytes(t, map[string]string{
				contentTypesPath:     `<Types>` + ct + `</Types>`,
				"word/document2.xml": `<w:p><w:t>from document2</w:t></w:p>`,
			})
			pages, err := parseDOCX(nil, content)
			if err != nil {
				t.Fatal(err)
			}
			if pages[0].content != "from document2" {
				t.Errorf("got %q", pages[0].content)
			}
		})
	}
}

func TestParseDOCX_NotZip(t *testing.T) {
	if _, err := parseDOCX(nil, []byte("plain")); err == nil {
		t.Error("expected error for non-zip content")
	}
}

func TestParsePPTX_SlidesInOrder(t *testing.T) {
	content := zipBytes(t, map[string]string{
		"ppt/slides/slide10.xml":            `<p:sld><a:t>Tenth</a:t></p:sld>`,
		"ppt/slides/slide2.xml":             `<p:sld><a:t>Second</a:t><a:t>slide</a:t></p:sld>`,
		"ppt/slides/_rels/slide2.xml.rels":  `<Relationships/>`,
		"ppt/slideLayouts/slideLayout1.xml": `<a:t>layout</a:t>`,
	})
	pages, err := parsePPTX(nil, content)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 slides, got %d", len(pages))
	}
	if pages[0].index != 1 || pages[0].content != "Second slide" {
		t.Errorf("slide 2 = %+v", pages[0])
	}
	if pages[1].index != 9 || pages[1].content != "Tenth" {
		t.Errorf("slide 10 = %+v", pages[1])
	}
}

func TestParseOpenDocument(t *testing.T) {
	odp := zipBytes(t, map[string]string{
		"content.xml": `<office:document-content><text:h text:outline-level="1">Title</text:h><text:p>Body text</text:p></office:document-content>`,
	})
	pages, err := parseODP(nil, odp)
	if err != nil {
		t.Fatal(err)
	}
	if pages[0].content != "Title\nBody text" {
		t.Errorf("odp = %q", pages[0].content)
	}

	ods := zipBytes(t, map[string]string{
		"content.xml": `<table:table-cell><text:p>A1</text:p></table:table-cell><table:table-cell><text:p>B1</text:p></table:table-cell>`,
	})
	pages, err = parseODS(nil, ods)
	if err != nil {
		t.Fatal(err)
	}
	if pages[0].content != "A1\nB1" {
		t.Errorf("ods = %q", pages[0].content)
	}

	if _, err := parseODS(nil, zipBytes(t, map[string]string{"other.xml": "x"})); err == nil {
		t.Error("expected error when content.xml is missing")
	}
}

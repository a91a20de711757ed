package loader

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/lu4p/cat"
)

const (
	docxDocumentXMLPath  = "word/document.xml"
	contentTypesPath     = "[Content_Types].xml"
	docxMainContentType  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	openDocumentContent  = "content.xml"
	pptxSlidePathPattern = `^ppt/slides/slide(\d+)\.xml$`
)

var (
	// <w:t> and <a:t> runs, with any attributes.
	wtTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	atTag = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)
	// Paragraph ends keep DOCX line structure so tables and headings stay on their own lines.
	wpEnd = regexp.MustCompile(`</w:p>`)

	partNameRe  = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`)
	partNameRe2 = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`)

	slidePath = regexp.MustCompile(pptxSlidePathPattern)

	odfText = []*regexp.Regexp{
		regexp.MustCompile(`<text:h[^>]*>([^<]*)</text:h>`),
		regexp.MustCompile(`<text:p[^>]*>([^<]*)</text:p>`),
		regexp.MustCompile(`<text:span[^>]*>([^<]*)</text:span>`),
	}
)

func openZip(content []byte, format string) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract %s: not a zip: %w", format, err)
	}
	return zr, nil
}

// readZipFile returns the named entry, or nil when it is absent.
func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		defer rc.Close()
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		return buf.Bytes(), nil
	}
	return nil, nil
}

func joinMatches(s string, re *regexp.Regexp, sep string) string {
	var b strings.Builder
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		text := strings.TrimSpace(m[1])
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(text)
	}
	return b.String()
}

// docxMainDocumentPath finds the main document part from [Content_Types].xml.
// Returns the path without leading slash, or empty string if not found.
func docxMainDocumentPath(zr *zip.Reader) string {
	ct, err := readZipFile(zr, contentTypesPath)
	if err != nil || ct == nil {
		return ""
	}
	for _, re := range []*regexp.Regexp{partNameRe, partNameRe2} {
		if m := re.FindStringSubmatch(string(ct)); len(m) > 1 {
			return strings.TrimPrefix(m[1], "/")
		}
	}
	return ""
}

// parseDOCX reads every <w:t> run of the main document part, one line per paragraph.
// Regex matching tolerates paragraph attributes (<w:p w:rsidR="...">) that stricter
// extractors choke on.
func parseDOCX(_ *FileLoader, content []byte) ([]page, error) {
	zr, err := openZip(content, "DOCX")
	if err != nil {
		return nil, err
	}
	docPath := docxMainDocumentPath(zr)
	if docPath == "" {
		docPath = docxDocumentXMLPath
	}
	docXML, err := readZipFile(zr, docPath)
	if err != nil {
		return nil, fmt.Errorf("extract DOCX: %w", err)
	}
	if docXML == nil {
		return nil, fmt.Errorf("extract DOCX: %s not found", docPath)
	}
	paragraphs := wpEnd.Split(string(docXML), -1)
	lines := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		if line := joinMatches(p, wtTag, " "); line != "" {
			lines = append(lines, line)
		}
	}
	return []page{{index: 0, content: strings.Join(lines, "\n")}}, nil
}

// parsePPTX returns one page per slide, indexed by slide number minus one.
func parsePPTX(_ *FileLoader, content []byte) ([]page, error) {
	zr, err := openZip(content, "PPTX")
	if err != nil {
		return nil, err
	}
	var pages []page
	for _, f := range zr.File {
		m := slidePath.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			continue
		}
		slideXML, err := readZipFile(zr, f.Name)
		if err != nil {
			return nil, fmt.Errorf("extract PPTX: %w", err)
		}
		pages = append(pages, page{index: n - 1, content: joinMatches(string(slideXML), atTag, " ")})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].index < pages[j].index })
	return pages, nil
}

func parseOpenDocument(content []byte, format string) ([]page, error) {
	zr, err := openZip(content, format)
	if err != nil {
		return nil, err
	}
	contentXML, err := readZipFile(zr, openDocumentContent)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", format, err)
	}
	if contentXML == nil {
		return nil, fmt.Errorf("extract %s: %s not found", format, openDocumentContent)
	}
	s := string(contentXML)
	parts := make([]string, 0, len(odfText))
	for _, re := range odfText {
		if text := joinMatches(s, re, "\n"); text != "" {
			parts = append(parts, text)
		}
	}
	return []page{{index: 0, content: strings.Join(parts, "\n")}}, nil
}

// parseODP reads headings, paragraphs and spans of a presentation as one page.
func parseODP(_ *FileLoader, content []byte) ([]page, error) {
	return parseOpenDocument(content, "ODP")
}

// parseODS reads spreadsheet cell text as one page; cells are one per line.
func parseODS(_ *FileLoader, content []byte) ([]page, error) {
	return parseOpenDocument(content, "ODS")
}

// parseCat handles ODT and RTF through lu4p/cat as a single page.
func parseCat(_ *FileLoader, content []byte) ([]page, error) {
	text, err := cat.FromBytes(content)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	return []page{{index: 0, content: text}}, nil
}

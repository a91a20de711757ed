// Package e2e provides end-to-end tests; this file builds minimal source files for the loader.
package e2e

import (
	"archive/zip"
	"bytes"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SupportedFileExtensions is the list of file extensions used in E2E file-based tests.
// PDF, ODT and RTF are not generated here; they need real authoring tools to produce
// extractable text and are covered by the loader's own tests where possible.
var SupportedFileExtensions = []string{
	".txt", ".md", ".rst",
	".docx", ".xlsx", ".pptx", ".odp", ".ods",
}

// WriteMinimalFile returns the bytes of a minimal file of the given extension holding text.
// For .xlsx the first line of text becomes the header cell and the rest the data row.
func WriteMinimalFile(ext, text string) ([]byte, error) {
	switch ext {
	case ".docx":
		return zipWith("word/document.xml", `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>`+text+`</w:t></w:r></w:p></w:body></w:document>`)
	case ".pptx":
		return zipWith("ppt/slides/slide1.xml", `<p:sld xmlns:p="p" xmlns:a="a"><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>`+text+`</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`)
	case ".odp":
		return zipWith("content.xml", `<office:document><office:body><draw:page><draw:text-box><text:p>`+text+`</text:p></draw:text-box></draw:page></office:body></office:document>`)
	case ".ods":
		return zipWith("content.xml", `<office:document><office:body><table:table><table:table-row><table:table-cell><text:p>`+text+`</text:p></table:table-cell></table:table-row></table:table></office:body></office:document>`)
	case ".xlsx":
		return minimalXlsx(text)
	default:
		return []byte(text), nil
	}
}

func zipWith(name, body string) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.Create(name)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write([]byte(body)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func minimalXlsx(text string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	header, row, _ := strings.Cut(text, "\n")
	if err := f.SetCellValue("Sheet1", "A1", strings.TrimSpace(header)); err != nil {
		return nil, err
	}
	if err := f.SetCellValue("Sheet1", "A2", strings.TrimSpace(row)); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

package internal

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

type PDFInfo struct {
	Title   string
	Authors []string
}

// ReadPDF extracts the plain text of every page. Pages that fail to decode
// are skipped; a PDF without any text is an error.
func ReadPDF(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(map[string]*pdf.Font{})
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("no extractable text in %s", path)
	}
	return text, nil
}

// ReadPDFInfo reads title and authors from the document info dictionary.
func ReadPDFInfo(path string) (PDFInfo, error) {
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return PDFInfo{}, fmt.Errorf("failed to read PDF info: %w", err)
	}

	info := PDFInfo{Title: strings.TrimSpace(ctx.Title)}
	for _, a := range strings.FieldsFunc(ctx.Author, func(r rune) bool { return r == ';' || r == ',' }) {
		if a = strings.TrimSpace(a); a != "" {
			info.Authors = append(info.Authors, a)
		}
	}
	return info, nil
}

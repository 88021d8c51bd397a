package extract

import (
	"bytes"
	"fmt"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
)

// extractPDF concatenates per-page text in page order, joined by newlines.
// Metadata carries the page count alongside the common fields.
func extractPDF(_ string, data []byte) (result Result, err error) {
	// ledongthuc/pdf panics on some malformed files; surface those as
	// corrupt input instead of taking down the worker.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: pdf parse panic: %v", ErrCorruptInput, r)
		}
	}()

	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrCorruptInput, err)
	}

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			// A single unreadable page does not void the document.
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}

	return Result{
		Text: strings.Join(pages, "\n"),
		Metadata: map[string]any{
			"file_type":  FormatPDF.Name(),
			"file_size":  len(data),
			"page_count": numPages,
		},
	}, nil
}

// Package extract converts raw uploads into plain text plus structural
// metadata. The supported format set is closed: adding a format means adding
// a new Format variant here, not extending runtime string matching.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned for extensions outside the
	// recognized set. Checked by the API layer before any work begins.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrCorruptInput is returned when bytes cannot be parsed as the
	// format their extension claims.
	ErrCorruptInput = errors.New("corrupt input")
)

// Result is the output of text extraction: the full plain text of the
// document and extensible metadata (file_type, file_size, page_count for
// PDFs, title for Markdown when a heading is present).
type Result struct {
	Text     string
	Metadata map[string]any
}

// Format is a closed variant over the supported document formats. Each
// variant carries its own extraction function.
type Format struct {
	name    string
	extract func(filename string, data []byte) (Result, error)
}

var (
	FormatPDF      = Format{name: "pdf"}
	FormatMarkdown = Format{name: "markdown"}
)

// The extract functions reference the Format vars for their metadata names,
// so wiring them up in init breaks the initialization cycle.
func init() {
	FormatPDF.extract = extractPDF
	FormatMarkdown.extract = extractMarkdown
}

// Name returns the short format name used in document metadata.
func (f Format) Name() string { return f.name }

// Extract runs the format's extraction function. CPU-bound for PDFs; callers
// on a request-serving path must dispatch this to a worker goroutine.
func (f Format) Extract(filename string, data []byte) (Result, error) {
	if f.extract == nil {
		return Result{}, ErrUnsupportedFormat
	}
	return f.extract(filename, data)
}

// FormatFor resolves the format for a filename by extension
// (case-insensitive). Recognized: .pdf, .md.
func FormatFor(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FormatPDF, nil
	case ".md":
		return FormatMarkdown, nil
	default:
		return Format{}, fmt.Errorf("%w: %q (accepted: .pdf, .md)", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// IsSupported reports whether the filename's extension is in the
// recognized set.
func IsSupported(filename string) bool {
	_, err := FormatFor(filename)
	return err == nil
}

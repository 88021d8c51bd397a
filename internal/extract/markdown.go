package extract

import (
	"fmt"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// extractMarkdown decodes the raw bytes as UTF-8. Markdown has no pages, so
// page_count is absent from the metadata. When the document opens with a
// heading, its text is recorded as the title.
func extractMarkdown(_ string, data []byte) (Result, error) {
	if !utf8.Valid(data) {
		return Result{}, fmt.Errorf("%w: markdown is not valid UTF-8", ErrCorruptInput)
	}

	meta := map[string]any{
		"file_type": FormatMarkdown.Name(),
		"file_size": len(data),
	}
	if title := firstHeading(data); title != "" {
		meta["title"] = title
	}

	return Result{
		Text:     string(data),
		Metadata: meta,
	}, nil
}

// firstHeading walks the goldmark AST and returns the text of the first
// heading, or "" when the document has none.
func firstHeading(src []byte) string {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			return string(h.Text(src))
		}
	}
	return ""
}

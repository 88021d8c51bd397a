// Package chunker splits extracted document text into overlapping segments
// sized for the embedding model's context window.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Defaults tuned for a 256-token embedding window at ~4 chars/token.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 100
)

// defaultSeparators is the boundary ladder: paragraph, line, sentence, word,
// then raw character slicing as the last resort.
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter produces overlapping text segments, preferring semantic
// boundaries. Safe for concurrent use.
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

// New builds a Splitter. overlap must be strictly less than size; anything
// else would make splitting degenerate or non-terminating.
func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunker: chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunker: overlap (%d) must be non-negative and less than chunk size (%d)", overlap, size)
	}
	return &Splitter{
		size:       size,
		overlap:    overlap,
		separators: defaultSeparators,
	}, nil
}

// Size returns the maximum segment length in characters.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the approximate character overlap between consecutive
// segments.
func (s *Splitter) Overlap() int { return s.overlap }

// Split breaks text into ordered segments. Text that already fits yields
// exactly one segment equal to the whole input.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if length(text) <= s.size {
		return []string{text}
	}
	return s.split(text, s.separators)
}

// split recursively divides text at the first separator present, reducing
// oversized pieces with the remaining separators, then greedily merges
// pieces back into segments with an overlap carry.
func (s *Splitter) split(text string, separators []string) []string {
	if length(text) <= s.size {
		return []string{text}
	}
	if len(separators) == 0 {
		return s.sliceRunes(text)
	}

	sep := separators[0]
	rest := separators[1:]
	if sep == "" {
		return s.sliceRunes(text)
	}
	if !strings.Contains(text, sep) {
		return s.split(text, rest)
	}

	var pieces []string
	for _, p := range strings.SplitAfter(text, sep) {
		if p == "" {
			continue
		}
		if length(p) > s.size {
			pieces = append(pieces, s.split(p, rest)...)
			continue
		}
		pieces = append(pieces, p)
	}
	return s.merge(pieces)
}

// merge joins pieces into segments no longer than size. When a segment is
// flushed, trailing pieces totaling at most overlap characters are carried
// into the next segment so consecutive segments share boundary context.
func (s *Splitter) merge(pieces []string) []string {
	var segments []string
	var window []string
	total := 0

	for _, p := range pieces {
		pl := length(p)
		if total+pl > s.size && total > 0 {
			segments = append(segments, strings.Join(window, ""))
			for total > s.overlap || (total+pl > s.size && total > 0) {
				total -= length(window[0])
				window = window[1:]
			}
		}
		window = append(window, p)
		total += pl
	}
	if total > 0 {
		segments = append(segments, strings.Join(window, ""))
	}
	return segments
}

// sliceRunes is the character-level fallback for text with no usable
// boundaries: fixed-size windows advancing by size-overlap.
func (s *Splitter) sliceRunes(text string) []string {
	runes := []rune(text)
	step := s.size - s.overlap

	var segments []string
	for start := 0; start < len(runes); start += step {
		end := start + s.size
		if end >= len(runes) {
			segments = append(segments, string(runes[start:]))
			break
		}
		segments = append(segments, string(runes[start:end]))
	}
	return segments
}

// length counts characters, not bytes.
func length(text string) int {
	return utf8.RuneCountInString(text)
}

package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/citadel-rag/citadel/internal/store"
)

const sourcePreviewLen = 100

// SearchResult is one semantic search hit returned to the client.
type SearchResult struct {
	Content    string    `json:"content"`
	Score      float64   `json:"score"`
	Source     string    `json:"source"`
	ChunkIndex int       `json:"chunk_index"`
	DocumentID uuid.UUID `json:"document_id"`
}

// Source is a citation attached to a generated answer.
type Source struct {
	Filename   string    `json:"filename"`
	ChunkIndex int       `json:"chunk_index"`
	Score      float64   `json:"score"`
	Preview    string    `json:"preview"`
	DocumentID uuid.UUID `json:"document_id"`
}

// Answer is the ask workflow's response: the generated (or degraded)
// answer, ordered citations, and the echoed query.
type Answer struct {
	Answer   string   `json:"answer"`
	Sources  []Source `json:"sources"`
	Degraded bool     `json:"degraded"`
	Query    string   `json:"query"`
}

// Search embeds the query and returns the top-k chunks with their source
// filenames, ordered by descending relevance.
func (o *Orchestrator) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	matches, err := o.retrieve(ctx, query, k)
	if err != nil {
		return nil, err
	}

	filenames, err := o.resolveFilenames(ctx, matches)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, len(matches))
	for i, m := range matches {
		results[i] = SearchResult{
			Content:    m.Chunk.Content,
			Score:      m.Score,
			Source:     filenames[m.Chunk.DocumentID],
			ChunkIndex: m.Chunk.Index,
			DocumentID: m.Chunk.DocumentID,
		}
	}
	return results, nil
}

// Ask runs the full read path: embed query, retrieve top-k chunks, resolve
// their source documents, and generate an answer. Generation-backend
// outages degrade the answer but never fail the call.
func (o *Orchestrator) Ask(ctx context.Context, query string, k int) (Answer, error) {
	matches, err := o.retrieve(ctx, query, k)
	if err != nil {
		return Answer{}, err
	}

	filenames, err := o.resolveFilenames(ctx, matches)
	if err != nil {
		return Answer{}, err
	}

	contexts := make([]string, len(matches))
	sources := make([]Source, len(matches))
	for i, m := range matches {
		contexts[i] = m.Chunk.Content
		sources[i] = Source{
			Filename:   filenames[m.Chunk.DocumentID],
			ChunkIndex: m.Chunk.Index,
			Score:      m.Score,
			Preview:    preview(m.Chunk.Content),
			DocumentID: m.Chunk.DocumentID,
		}
	}

	result := o.generator.Generate(ctx, query, contexts)
	if result.Degraded {
		o.log.Warn("returning degraded answer", "query_length", len(query), "sources", len(sources))
	}

	return Answer{
		Answer:   result.Answer,
		Sources:  sources,
		Degraded: result.Degraded,
		Query:    query,
	}, nil
}

func (o *Orchestrator) retrieve(ctx context.Context, query string, k int) ([]store.Match, error) {
	vector, err := o.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return o.store.Search(ctx, vector, k)
}

// resolveFilenames maps each match's document to its filename. Documents
// deleted between retrieval and resolution report as "unknown".
func (o *Orchestrator) resolveFilenames(ctx context.Context, matches []store.Match) (map[uuid.UUID]string, error) {
	filenames := make(map[uuid.UUID]string, len(matches))
	for _, m := range matches {
		if _, ok := filenames[m.Chunk.DocumentID]; ok {
			continue
		}
		doc, err := o.store.DocumentByID(ctx, m.Chunk.DocumentID)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			filenames[m.Chunk.DocumentID] = "unknown"
			continue
		}
		filenames[m.Chunk.DocumentID] = doc.Filename
	}
	return filenames, nil
}

// preview truncates on a rune boundary so multibyte text never yields a
// mangled citation.
func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= sourcePreviewLen {
		return content
	}
	return string(runes[:sourcePreviewLen]) + "..."
}

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/citadel-rag/citadel/internal/extract"
	"github.com/citadel-rag/citadel/internal/store"
)

// IngestResult reports the outcome of an ingestion.
type IngestResult struct {
	DocumentID uuid.UUID
	ChunkCount int
	Duplicate  bool
}

// FindExisting runs the cheap hash-based duplicate check for an upload.
// Returns the existing document and its chunk count, or nil when the
// content is new.
func (o *Orchestrator) FindExisting(ctx context.Context, data []byte) (*store.Document, int, error) {
	fileHash := extract.HashBytes(data)
	doc, err := o.store.DocumentByHash(ctx, fileHash)
	if err != nil || doc == nil {
		return nil, 0, err
	}
	chunks, err := o.store.ChunksByDocument(ctx, doc.ID)
	if err != nil {
		return nil, 0, err
	}
	return doc, len(chunks), nil
}

// IngestFile runs the full ingestion sequence:
// hash-check -> extract -> chunk -> embed -> persist.
// A duplicate fingerprint short-circuits before any extraction work. All
// rows land in one transaction, so a failure at any stage persists nothing.
func (o *Orchestrator) IngestFile(ctx context.Context, filename string, data []byte) (IngestResult, error) {
	fileHash := extract.HashBytes(data)
	if existing, err := o.store.DocumentByHash(ctx, fileHash); err != nil {
		return IngestResult{}, err
	} else if existing != nil {
		chunks, err := o.store.ChunksByDocument(ctx, existing.ID)
		if err != nil {
			return IngestResult{}, err
		}
		o.log.Info("duplicate detected", "filename", filename, "hash", fileHash[:12])
		return IngestResult{DocumentID: existing.ID, ChunkCount: len(chunks), Duplicate: true}, nil
	}

	format, err := extract.FormatFor(filename)
	if err != nil {
		return IngestResult{}, err
	}
	extracted, err := format.Extract(filename, data)
	if err != nil {
		return IngestResult{}, fmt.Errorf("extract %q: %w", filename, err)
	}

	segments := o.splitter.Split(extracted.Text)
	if len(segments) == 0 {
		return IngestResult{}, fmt.Errorf("no extractable content in %q", filename)
	}
	o.log.Info("chunked document", "filename", filename, "chunks", len(segments), "chars", len(extracted.Text))

	vectors, err := o.embedSegments(ctx, segments)
	if err != nil {
		return IngestResult{}, fmt.Errorf("embed %q: %w", filename, err)
	}

	doc := store.Document{
		ID:        uuid.New(),
		Filename:  filename,
		FileHash:  fileHash,
		Metadata:  extracted.Metadata,
		CreatedAt: time.Now().UTC(),
	}
	chunks := make([]store.Chunk, len(segments))
	for i, text := range segments {
		chunks[i] = store.Chunk{
			ID:         uuid.New(),
			DocumentID: doc.ID,
			Index:      i,
			Content:    text,
			Embedding:  vectors[i],
			Metadata: map[string]any{
				"source_filename": filename,
				"chunk_size":      len(text),
			},
		}
	}

	saved, created, err := o.store.SaveDocumentWithChunks(ctx, doc, chunks)
	if err != nil {
		return IngestResult{}, err
	}
	if !created {
		// A concurrent ingestion of the same bytes won the race.
		existingChunks, err := o.store.ChunksByDocument(ctx, saved.ID)
		if err != nil {
			return IngestResult{}, err
		}
		return IngestResult{DocumentID: saved.ID, ChunkCount: len(existingChunks), Duplicate: true}, nil
	}
	return IngestResult{DocumentID: saved.ID, ChunkCount: len(chunks)}, nil
}

// embedSegments batches all segments through the embedder, retrying
// transient backend failures with jittered backoff. Order is preserved, so
// chunk indices always match original text order.
func (o *Orchestrator) embedSegments(ctx context.Context, segments []string) ([][]float32, error) {
	var vectors [][]float32
	var err error
	for attempt := range maxEmbedRetries {
		vectors, err = o.embedder.EmbedBatch(ctx, segments)
		if err == nil {
			return vectors, nil
		}
		if attempt == maxEmbedRetries-1 {
			break
		}
		o.log.Warn("embedding attempt failed, retrying", "attempt", attempt, "error", err)
		select {
		case <-time.After(backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, err
}

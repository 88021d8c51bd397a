package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// uniqueViolation is the Postgres error code raised when a concurrent
// ingestion wins the race on the file_hash constraint.
const uniqueViolation = "23505"

// Postgres is the retrieval store. All multi-row writes run in a single
// transaction; similarity search goes through the HNSW index on
// chunks.embedding.
type Postgres struct {
	db        DB
	dimension int
	log       *slog.Logger
}

func NewPostgres(db DB, dimension int, log *slog.Logger) *Postgres {
	return &Postgres{db: db, dimension: dimension, log: log}
}

// Connect opens a pgx pool and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the pgvector extension, tables, and indexes. The
// HNSW index supports incremental insertion, so new chunks are searchable
// without a rebuild.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY,
			filename VARCHAR(500) NOT NULL,
			file_hash CHAR(64) NOT NULL UNIQUE,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id UUID PRIMARY KEY,
			document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d),
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb
		)`, s.dimension),
		`CREATE INDEX IF NOT EXISTS ix_chunks_document_id ON chunks (document_id)`,
		`CREATE INDEX IF NOT EXISTS ix_chunks_embedding_hnsw ON chunks USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: ensure schema: %w", err)
		}
	}
	return nil
}

// SaveDocumentWithChunks persists a document and all its chunks atomically.
// If a document with the same fingerprint already exists, the existing row
// is returned with created=false and nothing is written. A concurrent
// insert losing the race on the unique constraint is reconciled the same
// way: roll back and return the winner.
func (s *Postgres) SaveDocumentWithChunks(ctx context.Context, doc Document, chunks []Chunk) (Document, bool, error) {
	existing, err := s.DocumentByHash(ctx, doc.FileHash)
	if err != nil {
		return Document{}, false, err
	}
	if existing != nil {
		s.log.Info("document already exists", "hash", shortHash(doc.FileHash), "filename", existing.Filename)
		return *existing, false, nil
	}

	for i := range chunks {
		if chunks[i].Embedding != nil && len(chunks[i].Embedding) != s.dimension {
			return Document{}, false, fmt.Errorf("store: chunk %d has dimension %d, want %d", i, len(chunks[i].Embedding), s.dimension)
		}
	}

	err = s.insertTx(ctx, doc, chunks)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			winner, lookupErr := s.DocumentByHash(ctx, doc.FileHash)
			if lookupErr != nil {
				return Document{}, false, lookupErr
			}
			if winner != nil {
				s.log.Info("lost ingestion race, returning winner", "hash", shortHash(doc.FileHash))
				return *winner, false, nil
			}
		}
		return Document{}, false, err
	}

	s.log.Info("saved document", "filename", doc.Filename, "chunks", len(chunks), "hash", shortHash(doc.FileHash))
	return doc, true, nil
}

func (s *Postgres) insertTx(ctx context.Context, doc Document, chunks []Chunk) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				s.log.Error("rollback failed", "error", rbErr)
			}
		}
	}()

	docMeta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("store: marshal document metadata: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO documents (id, filename, file_hash, metadata, created_at) VALUES ($1, $2, $3, $4, $5)`,
		doc.ID, doc.Filename, doc.FileHash, docMeta, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert document: %w", err)
	}

	for i := range chunks {
		c := &chunks[i]
		chunkMeta, marshalErr := json.Marshal(c.Metadata)
		if marshalErr != nil {
			err = fmt.Errorf("store: marshal chunk %d metadata: %w", c.Index, marshalErr)
			return err
		}
		var embedding any
		if c.Embedding != nil {
			embedding = pgvector.NewVector(c.Embedding)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO chunks (id, document_id, chunk_index, content, embedding, metadata) VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, c.DocumentID, c.Index, c.Content, embedding, chunkMeta,
		)
		if err != nil {
			return fmt.Errorf("store: insert chunk %d: %w", c.Index, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// DocumentByHash looks up a document by content fingerprint. Returns nil
// when absent.
func (s *Postgres) DocumentByHash(ctx context.Context, fileHash string) (*Document, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, filename, file_hash, metadata, created_at FROM documents WHERE file_hash = $1`,
		fileHash,
	)
	return scanDocument(row)
}

// DocumentByID looks up a document by identifier. Returns nil when absent.
func (s *Postgres) DocumentByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, filename, file_hash, metadata, created_at FROM documents WHERE id = $1`,
		id,
	)
	return scanDocument(row)
}

// ListDocuments returns all documents, newest first.
func (s *Postgres) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, filename, file_hash, metadata, created_at FROM documents ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list documents: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var doc Document
		var metaRaw []byte
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.FileHash, &metaRaw, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan document: %w", err)
		}
		if err := unmarshalMeta(metaRaw, &doc.Metadata); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list documents rows: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes a document; its chunks go with it via the cascade.
// Reports whether a row was deleted.
func (s *Postgres) DeleteDocument(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("store: delete document: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ChunksByDocument returns a document's chunks ordered by index.
func (s *Postgres) ChunksByDocument(ctx context.Context, documentID uuid.UUID) ([]Chunk, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, document_id, chunk_index, content, metadata FROM chunks WHERE document_id = $1 ORDER BY chunk_index`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: chunks by document: %w", err)
	}
	defer rows.Close()

	chunks := []Chunk{}
	for rows.Next() {
		var c Chunk
		var metaRaw []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Content, &metaRaw); err != nil {
			return nil, fmt.Errorf("store: scan chunk: %w", err)
		}
		if err := unmarshalMeta(metaRaw, &c.Metadata); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: chunk rows: %w", err)
	}
	return chunks, nil
}

// Search returns the chunks nearest to the query vector by cosine distance,
// most relevant first. Chunks without an embedding are never returned.
// Scores are 1 - distance, rounded to four decimal places.
func (s *Postgres) Search(ctx context.Context, query []float32, limit int) ([]Match, error) {
	if len(query) != s.dimension {
		return nil, fmt.Errorf("store: query vector has dimension %d, want %d", len(query), s.dimension)
	}
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, document_id, chunk_index, content, metadata, 1 - (embedding <=> $1) AS score
		 FROM chunks
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		pgvector.NewVector(query), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	defer rows.Close()

	matches := []Match{}
	for rows.Next() {
		var c Chunk
		var metaRaw []byte
		var score float64
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Content, &metaRaw, &score); err != nil {
			return nil, fmt.Errorf("store: scan match: %w", err)
		}
		if err := unmarshalMeta(metaRaw, &c.Metadata); err != nil {
			return nil, err
		}
		matches = append(matches, Match{Chunk: c, Score: roundScore(score)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: search rows: %w", err)
	}
	return matches, nil
}

func scanDocument(row pgx.Row) (*Document, error) {
	var doc Document
	var metaRaw []byte
	err := row.Scan(&doc.ID, &doc.Filename, &doc.FileHash, &metaRaw, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan document: %w", err)
	}
	if err := unmarshalMeta(metaRaw, &doc.Metadata); err != nil {
		return nil, err
	}
	return &doc, nil
}

func unmarshalMeta(raw []byte, dst *map[string]any) error {
	if len(raw) == 0 {
		*dst = map[string]any{}
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("store: decode metadata: %w", err)
	}
	return nil
}

func roundScore(score float64) float64 {
	return math.Round(score*10000) / 10000
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

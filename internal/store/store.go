// Package store persists documents and their chunks in Postgres and serves
// vector similarity search through pgvector.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Document is an immutable ingested file. FileHash is the SHA-256 content
// fingerprint; the database enforces its uniqueness, so byte-identical
// uploads always resolve to one stored row.
type Document struct {
	ID        uuid.UUID      `json:"id"`
	Filename  string         `json:"filename"`
	FileHash  string         `json:"file_hash"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// Chunk is a text segment owned by exactly one document. Index is the
// zero-based position within the document; Embedding is nil until the
// embedding step has run.
type Chunk struct {
	ID         uuid.UUID      `json:"id"`
	DocumentID uuid.UUID      `json:"document_id"`
	Index      int            `json:"chunk_index"`
	Content    string         `json:"content"`
	Embedding  []float32      `json:"-"`
	Metadata   map[string]any `json:"metadata"`
}

// Match is a similarity search hit. Score is 1 - cosine distance, in
// [-1, 1], higher is more relevant.
type Match struct {
	Chunk Chunk
	Score float64
}

// DB is the minimal pgx surface the store needs. Satisfied by both
// *pgxpool.Pool and pgxmock pools.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

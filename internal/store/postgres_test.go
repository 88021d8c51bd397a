package store_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citadel-rag/citadel/internal/store"
)

const testDimension = 3

func newTestStore(t *testing.T) (*store.Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return store.NewPostgres(mockPool, testDimension, log), mockPool
}

func testDocument() store.Document {
	return store.Document{
		ID:        uuid.New(),
		Filename:  "guide.pdf",
		FileHash:  "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Metadata:  map[string]any{"file_type": "pdf"},
		CreatedAt: time.Now().UTC(),
	}
}

func testChunks(docID uuid.UUID) []store.Chunk {
	return []store.Chunk{
		{ID: uuid.New(), DocumentID: docID, Index: 0, Content: "first chunk", Embedding: []float32{1, 0, 0}},
		{ID: uuid.New(), DocumentID: docID, Index: 1, Content: "second chunk", Embedding: []float32{0, 1, 0}},
	}
}

func TestSaveDocumentWithChunks_CommitsNewDocument(t *testing.T) {
	st, mockPool := newTestStore(t)
	doc := testDocument()
	chunks := testChunks(doc.ID)

	mockPool.ExpectQuery("SELECT (.+) FROM documents WHERE file_hash = \\$1").
		WithArgs(doc.FileHash).
		WillReturnError(pgx.ErrNoRows)

	mockPool.ExpectBegin()
	mockPool.ExpectExec("INSERT INTO documents").
		WithArgs(doc.ID, doc.Filename, doc.FileHash, pgxmock.AnyArg(), doc.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	for _, c := range chunks {
		mockPool.ExpectExec("INSERT INTO chunks").
			WithArgs(c.ID, c.DocumentID, c.Index, c.Content, pgvector.NewVector(c.Embedding), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mockPool.ExpectCommit()

	saved, created, err := st.SaveDocumentWithChunks(context.Background(), doc, chunks)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, doc.ID, saved.ID)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSaveDocumentWithChunks_DuplicateShortCircuits(t *testing.T) {
	st, mockPool := newTestStore(t)
	doc := testDocument()
	existingID := uuid.New()

	rows := mockPool.NewRows([]string{"id", "filename", "file_hash", "metadata", "created_at"}).
		AddRow(existingID, "earlier.pdf", doc.FileHash, []byte(`{}`), time.Now().UTC())
	mockPool.ExpectQuery("SELECT (.+) FROM documents WHERE file_hash = \\$1").
		WithArgs(doc.FileHash).
		WillReturnRows(rows)

	saved, created, err := st.SaveDocumentWithChunks(context.Background(), doc, testChunks(doc.ID))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existingID, saved.ID)
	assert.Equal(t, "earlier.pdf", saved.Filename)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSaveDocumentWithChunks_RejectsWrongDimension(t *testing.T) {
	st, mockPool := newTestStore(t)
	doc := testDocument()
	chunks := []store.Chunk{
		{ID: uuid.New(), DocumentID: doc.ID, Index: 0, Content: "bad", Embedding: []float32{1, 0, 0, 0}},
	}

	mockPool.ExpectQuery("SELECT (.+) FROM documents WHERE file_hash = \\$1").
		WithArgs(doc.FileHash).
		WillReturnError(pgx.ErrNoRows)

	_, _, err := st.SaveDocumentWithChunks(context.Background(), doc, chunks)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSaveDocumentWithChunks_ReconcilesLostRace(t *testing.T) {
	st, mockPool := newTestStore(t)
	doc := testDocument()
	chunks := testChunks(doc.ID)
	winnerID := uuid.New()

	mockPool.ExpectQuery("SELECT (.+) FROM documents WHERE file_hash = \\$1").
		WithArgs(doc.FileHash).
		WillReturnError(pgx.ErrNoRows)

	mockPool.ExpectBegin()
	mockPool.ExpectExec("INSERT INTO documents").
		WithArgs(doc.ID, doc.Filename, doc.FileHash, pgxmock.AnyArg(), doc.CreatedAt).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "documents_file_hash_key"})
	mockPool.ExpectRollback()

	winnerRows := mockPool.NewRows([]string{"id", "filename", "file_hash", "metadata", "created_at"}).
		AddRow(winnerID, doc.Filename, doc.FileHash, []byte(`{}`), time.Now().UTC())
	mockPool.ExpectQuery("SELECT (.+) FROM documents WHERE file_hash = \\$1").
		WithArgs(doc.FileHash).
		WillReturnRows(winnerRows)

	saved, created, err := st.SaveDocumentWithChunks(context.Background(), doc, chunks)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, winnerID, saved.ID)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSaveDocumentWithChunks_RollsBackOnChunkFailure(t *testing.T) {
	st, mockPool := newTestStore(t)
	doc := testDocument()
	chunks := testChunks(doc.ID)

	mockPool.ExpectQuery("SELECT (.+) FROM documents WHERE file_hash = \\$1").
		WithArgs(doc.FileHash).
		WillReturnError(pgx.ErrNoRows)

	mockPool.ExpectBegin()
	mockPool.ExpectExec("INSERT INTO documents").
		WithArgs(doc.ID, doc.Filename, doc.FileHash, pgxmock.AnyArg(), doc.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectExec("INSERT INTO chunks").
		WithArgs(chunks[0].ID, chunks[0].DocumentID, chunks[0].Index, chunks[0].Content,
			pgvector.NewVector(chunks[0].Embedding), pgxmock.AnyArg()).
		WillReturnError(assert.AnError)
	mockPool.ExpectRollback()

	_, _, err := st.SaveDocumentWithChunks(context.Background(), doc, chunks)
	require.Error(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestDocumentByHash_AbsentReturnsNil(t *testing.T) {
	st, mockPool := newTestStore(t)

	mockPool.ExpectQuery("SELECT (.+) FROM documents WHERE file_hash = \\$1").
		WithArgs("deadbeef").
		WillReturnError(pgx.ErrNoRows)

	doc, err := st.DocumentByHash(context.Background(), "deadbeef")
	require.NoError(t, err)
	assert.Nil(t, doc)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSearch_OrdersAndRoundsScores(t *testing.T) {
	st, mockPool := newTestStore(t)
	query := []float32{1, 0, 0}
	docID := uuid.New()

	rows := mockPool.NewRows([]string{"id", "document_id", "chunk_index", "content", "metadata", "score"}).
		AddRow(uuid.New(), docID, 0, "closest chunk", []byte(`{}`), 0.87654321).
		AddRow(uuid.New(), docID, 3, "second chunk", []byte(`{}`), 0.5).
		AddRow(uuid.New(), docID, 1, "distant chunk", []byte(`{}`), -0.25001)
	mockPool.ExpectQuery("SELECT (.+) FROM chunks").
		WithArgs(pgvector.NewVector(query), 3).
		WillReturnRows(rows)

	matches, err := st.Search(context.Background(), query, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "closest chunk", matches[0].Chunk.Content)
	assert.Equal(t, 0.8765, matches[0].Score)
	assert.Equal(t, 0.5, matches[1].Score)
	assert.Equal(t, -0.25, matches[2].Score)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSearch_DefaultsLimit(t *testing.T) {
	st, mockPool := newTestStore(t)
	query := []float32{0, 1, 0}

	rows := mockPool.NewRows([]string{"id", "document_id", "chunk_index", "content", "metadata", "score"})
	mockPool.ExpectQuery("SELECT (.+) FROM chunks").
		WithArgs(pgvector.NewVector(query), 5).
		WillReturnRows(rows)

	matches, err := st.Search(context.Background(), query, 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSearch_RejectsWrongDimension(t *testing.T) {
	st, mockPool := newTestStore(t)

	_, err := st.Search(context.Background(), []float32{1, 0}, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestDeleteDocument(t *testing.T) {
	t.Run("deletes existing document", func(t *testing.T) {
		st, mockPool := newTestStore(t)
		id := uuid.New()
		mockPool.ExpectExec("DELETE FROM documents").
			WithArgs(id).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		deleted, err := st.DeleteDocument(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, deleted)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
	t.Run("reports missing document", func(t *testing.T) {
		st, mockPool := newTestStore(t)
		id := uuid.New()
		mockPool.ExpectExec("DELETE FROM documents").
			WithArgs(id).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		deleted, err := st.DeleteDocument(context.Background(), id)
		require.NoError(t, err)
		assert.False(t, deleted)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestChunksByDocument_OrderedByIndex(t *testing.T) {
	st, mockPool := newTestStore(t)
	docID := uuid.New()

	rows := mockPool.NewRows([]string{"id", "document_id", "chunk_index", "content", "metadata"}).
		AddRow(uuid.New(), docID, 0, "first", []byte(`{"chunk_size":5}`)).
		AddRow(uuid.New(), docID, 1, "second", []byte(`{}`))
	mockPool.ExpectQuery("SELECT (.+) FROM chunks WHERE document_id = \\$1").
		WithArgs(docID).
		WillReturnRows(rows)

	chunks, err := st.ChunksByDocument(context.Background(), docID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "first", chunks[0].Content)
	assert.Equal(t, float64(5), chunks[0].Metadata["chunk_size"])
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

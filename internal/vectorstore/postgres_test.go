package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mikeyan-promax/Weplus-sub000/internal/log"
)

type mockQuerier struct {
	insertCalls []InsertChunkParams
	insertErrAt map[int]error

	searchCalls  []SearchChunksParams
	searchRows   []SearchChunksRow
	searchErr    error
	deleteCount  int64
	deleteErr    error
	chunkCount   int64
	docCount     int64
	storageBytes int64
	statsErr     error
}

func (m *mockQuerier) InsertChunk(_ context.Context, arg InsertChunkParams) error {
	call := len(m.insertCalls)
	m.insertCalls = append(m.insertCalls, arg)
	if err, ok := m.insertErrAt[call]; ok {
		return err
	}
	return nil
}

func (m *mockQuerier) SearchChunks(_ context.Context, arg SearchChunksParams) ([]SearchChunksRow, error) {
	m.searchCalls = append(m.searchCalls, arg)
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.searchRows, nil
}

func (m *mockQuerier) DeleteDocumentChunks(_ context.Context, _ string) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	return m.deleteCount, nil
}

func (m *mockQuerier) CountChunks(_ context.Context) (int64, error) {
	return m.chunkCount, m.statsErr
}

func (m *mockQuerier) CountDocuments(_ context.Context) (int64, error) {
	return m.docCount, m.statsErr
}

func (m *mockQuerier) StorageSize(_ context.Context) (int64, error) {
	return m.storageBytes, m.statsErr
}

func testChunks(docID string, contents ...string) []Chunk {
	chunks := make([]Chunk, len(contents))
	for i, c := range contents {
		chunks[i] = Chunk{
			DocumentID: docID,
			Index:      i,
			Content:    c,
			Metadata:   Metadata{"file_name": "notes.md"},
		}
	}
	return chunks
}

func TestPostgresStoreAdd(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts one row per chunk", func(t *testing.T) {
		q := &mockQuerier{}
		store := NewPostgresStore(q, 3, log.NewNop())

		chunks := testChunks("doc-1", "alpha", "beta")
		summary, err := store.Add(ctx, chunks, [][]float32{{1, 0, 0}, {0, 1, 0}})
		require.NoError(t, err)
		assert.True(t, summary.AllInserted())
		assert.Equal(t, 2, summary.Inserted)
		require.Len(t, q.insertCalls, 2)

		first := q.insertCalls[0]
		assert.Equal(t, "doc-1", first.DocumentID)
		assert.Equal(t, int32(0), first.ChunkIndex)
		assert.Equal(t, "alpha", first.Content)
		assert.Equal(t, int32(5), first.ContentLength)

		var metadata Metadata
		require.NoError(t, json.Unmarshal(first.Metadata, &metadata))
		assert.Equal(t, "notes.md", metadata["file_name"])
	})

	t.Run("count mismatch fails before any insert", func(t *testing.T) {
		q := &mockQuerier{}
		store := NewPostgresStore(q, 3, log.NewNop())

		_, err := store.Add(ctx, testChunks("doc-1", "alpha", "beta"), [][]float32{{1, 0, 0}})
		require.ErrorIs(t, err, ErrVectorCountMismatch)
		assert.Empty(t, q.insertCalls)
	})

	t.Run("dimension mismatch fails before any insert", func(t *testing.T) {
		q := &mockQuerier{}
		store := NewPostgresStore(q, 3, log.NewNop())

		_, err := store.Add(ctx, testChunks("doc-1", "alpha", "beta"),
			[][]float32{{1, 0, 0}, {0, 1}})
		require.ErrorIs(t, err, ErrDimensionMismatch)
		assert.Empty(t, q.insertCalls)
	})

	t.Run("insert failure does not stop remaining chunks", func(t *testing.T) {
		q := &mockQuerier{insertErrAt: map[int]error{1: errors.New("connection reset")}}
		store := NewPostgresStore(q, 3, log.NewNop())

		chunks := testChunks("doc-1", "alpha", "beta", "gamma")
		summary, err := store.Add(ctx, chunks, [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}})
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Inserted)
		require.Len(t, summary.Failures, 1)
		assert.Equal(t, 1, summary.Failures[0].Index)
		assert.ErrorIs(t, summary.Failures[0].Err, ErrStoreUnavailable)
		assert.Len(t, q.insertCalls, 3)
	})
}

func TestPostgresStoreSearch(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("maps rows to results", func(t *testing.T) {
		q := &mockQuerier{searchRows: []SearchChunksRow{
			{
				DocumentID: "doc-1",
				ChunkIndex: 2,
				Content:    "library hours",
				Metadata:   []byte(`{"category":"campus"}`),
				CreatedAt:  pgtype.Timestamptz{Time: created, Valid: true},
				Similarity: 0.91,
			},
		}}
		store := NewPostgresStore(q, 3, log.NewNop())

		results, err := store.Search(ctx, []float32{1, 0, 0}, 5, 0.3, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "doc-1", results[0].Chunk.DocumentID)
		assert.Equal(t, 2, results[0].Chunk.Index)
		assert.Equal(t, "campus", results[0].Chunk.Metadata["category"])
		assert.InDelta(t, 0.91, results[0].Similarity, 1e-9)
		assert.Equal(t, created, results[0].CreatedAt)

		require.Len(t, q.searchCalls, 1)
		assert.Nil(t, q.searchCalls[0].FilterMetadata)
		assert.Equal(t, int32(5), q.searchCalls[0].ResultLimit)
		assert.InDelta(t, 0.3, q.searchCalls[0].Threshold, 1e-9)
	})

	t.Run("filters marshal to jsonb containment argument", func(t *testing.T) {
		q := &mockQuerier{}
		store := NewPostgresStore(q, 3, log.NewNop())

		_, err := store.Search(ctx, []float32{1, 0, 0}, 3, 0.5, Metadata{"category": "campus"})
		require.NoError(t, err)
		require.Len(t, q.searchCalls, 1)

		var filter Metadata
		require.NoError(t, json.Unmarshal(q.searchCalls[0].FilterMetadata, &filter))
		assert.Equal(t, "campus", filter["category"])
	})

	t.Run("query dimension mismatch", func(t *testing.T) {
		store := NewPostgresStore(&mockQuerier{}, 3, log.NewNop())

		_, err := store.Search(ctx, []float32{1, 0}, 5, 0.3, nil)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("non-positive topK defaults to five", func(t *testing.T) {
		q := &mockQuerier{}
		store := NewPostgresStore(q, 3, log.NewNop())

		_, err := store.Search(ctx, []float32{1, 0, 0}, 0, 0.3, nil)
		require.NoError(t, err)
		require.Len(t, q.searchCalls, 1)
		assert.Equal(t, int32(5), q.searchCalls[0].ResultLimit)
	})

	t.Run("query failure wraps ErrStoreUnavailable", func(t *testing.T) {
		q := &mockQuerier{searchErr: errors.New("connection refused")}
		store := NewPostgresStore(q, 3, log.NewNop())

		_, err := store.Search(ctx, []float32{1, 0, 0}, 5, 0.3, nil)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})

	t.Run("unparsable metadata degrades to empty map", func(t *testing.T) {
		q := &mockQuerier{searchRows: []SearchChunksRow{
			{DocumentID: "doc-1", Content: "text", Metadata: []byte("{broken"), Similarity: 0.8},
		}}
		store := NewPostgresStore(q, 3, log.NewNop())

		results, err := store.Search(ctx, []float32{1, 0, 0}, 5, 0.3, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Empty(t, results[0].Chunk.Metadata)
	})
}

func TestPostgresStoreDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("reports removed count", func(t *testing.T) {
		store := NewPostgresStore(&mockQuerier{deleteCount: 4}, 3, log.NewNop())

		count, err := store.Delete(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, int64(4), count)
	})

	t.Run("unknown document is not an error", func(t *testing.T) {
		store := NewPostgresStore(&mockQuerier{deleteCount: 0}, 3, log.NewNop())

		count, err := store.Delete(ctx, "never-ingested")
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("failure wraps ErrStoreUnavailable", func(t *testing.T) {
		store := NewPostgresStore(&mockQuerier{deleteErr: errors.New("timeout")}, 3, log.NewNop())

		_, err := store.Delete(ctx, "doc-1")
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})
}

func TestPostgresStoreStats(t *testing.T) {
	ctx := context.Background()

	t.Run("aggregates counts and size", func(t *testing.T) {
		q := &mockQuerier{chunkCount: 42, docCount: 7, storageBytes: 1 << 20}
		store := NewPostgresStore(q, 3, log.NewNop())

		stats, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(42), stats.TotalChunks)
		assert.Equal(t, int64(7), stats.TotalDocuments)
		assert.Equal(t, int64(1<<20), stats.StorageBytes)
	})

	t.Run("failure wraps ErrStoreUnavailable", func(t *testing.T) {
		q := &mockQuerier{statsErr: errors.New("closed pool")}
		store := NewPostgresStore(q, 3, log.NewNop())

		_, err := store.Stats(ctx)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})
}

package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
)

// InsertChunkParams carries one chunk row for insertion.
type InsertChunkParams struct {
	DocumentID    string
	ChunkIndex    int32
	Content       string
	ContentLength int32
	Embedding     *pgvector.Vector
	Metadata      []byte
}

// SearchChunksParams carries one similarity query.
type SearchChunksParams struct {
	QueryEmbedding *pgvector.Vector
	FilterMetadata []byte // nil = unfiltered
	Threshold      float64
	ResultLimit    int32
}

// SearchChunksRow is one similarity query result row.
type SearchChunksRow struct {
	DocumentID string
	ChunkIndex int32
	Content    string
	Metadata   []byte
	CreatedAt  pgtype.Timestamptz
	Similarity float64
}

// Querier defines the database operations the Postgres store needs.
// The interface is defined here, by the consumer, so tests can substitute
// a mock without a live database.
type Querier interface {
	InsertChunk(ctx context.Context, arg InsertChunkParams) error
	SearchChunks(ctx context.Context, arg SearchChunksParams) ([]SearchChunksRow, error)
	DeleteDocumentChunks(ctx context.Context, documentID string) (int64, error)
	CountChunks(ctx context.Context) (int64, error)
	CountDocuments(ctx context.Context) (int64, error)
	StorageSize(ctx context.Context) (int64, error)
}

// PostgresStore is the primary vector store, backed by PostgreSQL with
// the pgvector extension. Safe for concurrent use; durability and
// isolation are delegated to the database's row-level atomicity.
type PostgresStore struct {
	queries   Querier
	dimension int
	logger    *slog.Logger
}

// NewPostgresStore creates the primary store. dimension must match the
// vector(D) column in the schema. logger may be nil.
func NewPostgresStore(queries Querier, dimension int, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		queries:   queries,
		dimension: dimension,
		logger:    logger,
	}
}

// Add inserts one row per chunk. Rows insert independently: an insert
// failure is recorded in the summary and the remaining chunks proceed
// (at-least-one-chunk durability). Dimension and count mismatches fail
// the whole call before any row is written.
func (s *PostgresStore) Add(ctx context.Context, chunks []Chunk, vectors [][]float32) (AddSummary, error) {
	if len(chunks) != len(vectors) {
		return AddSummary{}, fmt.Errorf("%w: %d chunks, %d vectors",
			ErrVectorCountMismatch, len(chunks), len(vectors))
	}
	for i, vec := range vectors {
		if len(vec) != s.dimension {
			return AddSummary{}, fmt.Errorf("%w: chunk %d has dimension %d, store expects %d",
				ErrDimensionMismatch, i, len(vec), s.dimension)
		}
	}

	var summary AddSummary
	for i, chunk := range chunks {
		metadataJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			summary.Failures = append(summary.Failures, ChunkFailure{Index: chunk.Index, Err: err})
			continue
		}

		embedding := pgvector.NewVector(vectors[i])
		err = s.queries.InsertChunk(ctx, InsertChunkParams{
			DocumentID:    chunk.DocumentID,
			ChunkIndex:    int32(chunk.Index),
			Content:       chunk.Content,
			ContentLength: int32(len(chunk.Content)),
			Embedding:     &embedding,
			Metadata:      metadataJSON,
		})
		if err != nil {
			s.logger.Warn("chunk insert failed",
				"document_id", chunk.DocumentID, "chunk_index", chunk.Index, "error", err)
			summary.Failures = append(summary.Failures,
				ChunkFailure{Index: chunk.Index, Err: fmt.Errorf("%w: %w", ErrStoreUnavailable, err)})
			continue
		}
		summary.Inserted++
	}

	s.logger.Debug("chunks added",
		"inserted", summary.Inserted, "failed", len(summary.Failures))
	return summary, nil
}

// Search runs one similarity query ordered by cosine distance ascending
// with insertion-order (row id) tie-break.
func (s *PostgresStore) Search(ctx context.Context, vector []float32, topK int, threshold float64, filters Metadata) ([]SearchResult, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, store expects %d",
			ErrDimensionMismatch, len(vector), s.dimension)
	}
	if topK <= 0 {
		topK = 5
	}

	var filterJSON []byte
	if len(filters) > 0 {
		var err error
		filterJSON, err = json.Marshal(filters)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal filters: %w", err)
		}
	}

	embedding := pgvector.NewVector(vector)
	rows, err := s.queries.SearchChunks(ctx, SearchChunksParams{
		QueryEmbedding: &embedding,
		FilterMetadata: filterJSON,
		Threshold:      threshold,
		ResultLimit:    int32(topK),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", ErrStoreUnavailable, err)
	}

	results := make([]SearchResult, 0, len(rows))
	for _, row := range rows {
		var metadata Metadata
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			s.logger.Warn("failed to parse chunk metadata",
				"document_id", row.DocumentID, "chunk_index", row.ChunkIndex, "error", err)
			metadata = make(Metadata)
		}

		result := SearchResult{
			Chunk: Chunk{
				DocumentID: row.DocumentID,
				Index:      int(row.ChunkIndex),
				Content:    row.Content,
				Metadata:   metadata,
			},
			Similarity: row.Similarity,
		}
		if row.CreatedAt.Valid {
			result.CreatedAt = row.CreatedAt.Time
		}
		results = append(results, result)
	}

	return results, nil
}

// Delete removes every chunk row for the document. Idempotent: an unknown
// document yields zero, not an error.
func (s *PostgresStore) Delete(ctx context.Context, documentID string) (int64, error) {
	count, err := s.queries.DeleteDocumentChunks(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("%w: delete document %q: %w", ErrStoreUnavailable, documentID, err)
	}

	s.logger.Debug("document chunks deleted", "document_id", documentID, "count", count)
	return count, nil
}

// Stats reports chunk/document counts and the table's on-disk size.
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	chunks, err := s.queries.CountChunks(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: count chunks: %w", ErrStoreUnavailable, err)
	}

	documents, err := s.queries.CountDocuments(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: count documents: %w", ErrStoreUnavailable, err)
	}

	size, err := s.queries.StorageSize(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: storage size: %w", ErrStoreUnavailable, err)
	}

	return Stats{
		TotalChunks:    chunks,
		TotalDocuments: documents,
		StorageBytes:   size,
	}, nil
}

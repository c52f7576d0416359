// Package vectorstore persists document chunks with their embedding
// vectors and serves top-k similarity queries.
//
// Two backends implement the Store interface: a PostgreSQL+pgvector store
// (primary) and a legacy sqlite+in-process index (secondary). Both report
// cosine similarity in [-1, 1]. The backends guarantee equivalent document
// coverage, NOT identical ranking; callers must not assume cross-backend
// rank stability.
package vectorstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStoreUnavailable indicates the underlying store could not be
	// reached or failed a query. Surfaced as-is; the engine performs no
	// failover between backends.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrDimensionMismatch indicates a vector whose length differs from
	// the store's configured dimension. No row is written.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrVectorCountMismatch indicates chunks and vectors of different
	// lengths were passed to Add.
	ErrVectorCountMismatch = errors.New("chunk and vector counts differ")
)

// Metadata is the typed key-value annotation attached to chunks.
// Recognized keys at the ingestion boundary: "file_name", "category",
// "uploaded_at". Unknown keys are stored verbatim and usable as filters.
type Metadata map[string]string

// Chunk is one bounded segment of a document's text.
// Index values are unique and densely ordered (0..N-1) per DocumentID.
type Chunk struct {
	DocumentID string
	Index      int
	Content    string
	Metadata   Metadata
}

// SearchResult pairs a chunk with its similarity to the query vector.
// Results are transient query output, never persisted.
type SearchResult struct {
	Chunk      Chunk
	Similarity float64
	CreatedAt  time.Time
}

// ChunkFailure reports one chunk that could not be persisted.
type ChunkFailure struct {
	Index int
	Err   error
}

// AddSummary reports the per-chunk outcome of an Add call. Chunks insert
// independently: a failure of one does not roll back the others, and the
// caller decides whether partial persistence is acceptable.
type AddSummary struct {
	Inserted int
	Failures []ChunkFailure
}

// AllInserted reports whether every chunk was persisted.
func (s AddSummary) AllInserted() bool { return len(s.Failures) == 0 }

// Stats describes the store's current contents.
type Stats struct {
	TotalChunks    int64 `json:"total_chunks"`
	TotalDocuments int64 `json:"total_documents"`
	StorageBytes   int64 `json:"storage_bytes"`
}

// Store is the vector persistence contract shared by both backends.
type Store interface {
	// Add persists chunks with their pre-computed vectors. chunks[i]
	// pairs with vectors[i]. A dimension or count mismatch fails the
	// whole call before any row is written; individual insert errors are
	// collected in the summary.
	Add(ctx context.Context, chunks []Chunk, vectors [][]float32) (AddSummary, error)

	// Search returns up to topK chunks with cosine similarity >=
	// threshold, ordered by similarity descending. Ties break by
	// insertion order (lower internal row id first). filters restrict
	// results to chunks whose metadata contains every given pair.
	Search(ctx context.Context, vector []float32, topK int, threshold float64, filters Metadata) ([]SearchResult, error)

	// Delete removes every chunk of the document and reports the count.
	// Deleting an unknown document returns zero, not an error.
	Delete(ctx context.Context, documentID string) (int64, error)

	// Stats reports chunk/document counts and estimated storage size.
	Stats(ctx context.Context) (Stats, error)
}

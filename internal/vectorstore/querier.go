package vectorstore

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const insertChunkSQL = `
INSERT INTO document_chunks (document_id, chunk_index, content, content_length, embedding, metadata)
VALUES ($1, $2, $3, $4, $5, $6)`

// searchChunksSQL orders by cosine distance ascending with row id as the
// deterministic tie-break: for identical distances the earlier insertion
// wins. The similarity expression 1 - (embedding <=> query) is cosine
// similarity in [-1, 1].
const searchChunksSQL = `
SELECT document_id, chunk_index, content, metadata, created_at,
       1 - (embedding <=> $1) AS similarity
FROM document_chunks
WHERE ($2::jsonb IS NULL OR metadata @> $2)
  AND 1 - (embedding <=> $1) >= $3
ORDER BY embedding <=> $1 ASC, id ASC
LIMIT $4`

const deleteDocumentChunksSQL = `
DELETE FROM document_chunks WHERE document_id = $1`

const countChunksSQL = `
SELECT COUNT(*) FROM document_chunks`

const countDocumentsSQL = `
SELECT COUNT(DISTINCT document_id) FROM document_chunks`

const storageSizeSQL = `
SELECT pg_total_relation_size('document_chunks')`

// PgxQuerier implements Querier over a pgx connection pool.
type PgxQuerier struct {
	pool *pgxpool.Pool
}

// NewPgxQuerier wraps pool. The pool must have pgvector types registered
// (see database.Open).
func NewPgxQuerier(pool *pgxpool.Pool) *PgxQuerier {
	return &PgxQuerier{pool: pool}
}

func (q *PgxQuerier) InsertChunk(ctx context.Context, arg InsertChunkParams) error {
	_, err := q.pool.Exec(ctx, insertChunkSQL,
		arg.DocumentID, arg.ChunkIndex, arg.Content, arg.ContentLength, arg.Embedding, arg.Metadata)
	return err
}

func (q *PgxQuerier) SearchChunks(ctx context.Context, arg SearchChunksParams) ([]SearchChunksRow, error) {
	rows, err := q.pool.Query(ctx, searchChunksSQL,
		arg.QueryEmbedding, arg.FilterMetadata, arg.Threshold, arg.ResultLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SearchChunksRow
	for rows.Next() {
		var row SearchChunksRow
		if err := rows.Scan(&row.DocumentID, &row.ChunkIndex, &row.Content,
			&row.Metadata, &row.CreatedAt, &row.Similarity); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (q *PgxQuerier) DeleteDocumentChunks(ctx context.Context, documentID string) (int64, error) {
	tag, err := q.pool.Exec(ctx, deleteDocumentChunksSQL, documentID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *PgxQuerier) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := q.pool.QueryRow(ctx, countChunksSQL).Scan(&count)
	return count, err
}

func (q *PgxQuerier) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := q.pool.QueryRow(ctx, countDocumentsSQL).Scan(&count)
	return count, err
}

func (q *PgxQuerier) StorageSize(ctx context.Context) (int64, error) {
	var size int64
	err := q.pool.QueryRow(ctx, storageSizeSQL).Scan(&size)
	return size, err
}

package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // sqlite driver
)

const legacySchema = `
CREATE TABLE IF NOT EXISTS legacy_chunks (
    seq          INTEGER PRIMARY KEY AUTOINCREMENT,
    document_id  TEXT    NOT NULL,
    chunk_index  INTEGER NOT NULL,
    content      TEXT    NOT NULL,
    metadata     TEXT    NOT NULL DEFAULT '{}',
    embedding    BLOB    NOT NULL,
    created_at   TEXT    NOT NULL,
    UNIQUE(document_id, chunk_index)
);
CREATE INDEX IF NOT EXISTS idx_legacy_chunks_document_id ON legacy_chunks(document_id);`

// LegacyStore is the secondary backend: chunk rows in a local sqlite file
// plus an in-process exhaustive cosine index, serialized next to the
// database. Deletion rebuilds the index from the surviving rows and swaps
// it in whole; readers never observe a partially rebuilt index.
//
// Same similarity contract as the Postgres store (cosine in [-1, 1]),
// but ranking is not guaranteed identical across backends.
type LegacyStore struct {
	mu        sync.RWMutex
	db        *sql.DB
	index     *bruteIndex
	dbPath    string
	indexPath string
	dimension int
	logger    *slog.Logger
}

// OpenLegacy opens (or creates) the sqlite database at dbPath and loads
// the serialized index from indexPath. A missing, truncated, or
// out-of-sync index file is rebuilt from the database rows, so the
// database is the source of truth.
func OpenLegacy(ctx context.Context, dbPath, indexPath string, dimension int, logger *slog.Logger) (*LegacyStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", dimension)
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open legacy database: %w", err)
	}
	if _, err := db.ExecContext(ctx, legacySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create legacy schema: %w", err)
	}

	s := &LegacyStore{
		db:        db,
		dbPath:    dbPath,
		indexPath: indexPath,
		dimension: dimension,
		logger:    logger,
	}

	if err := s.loadIndex(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the sqlite handle. The index file stays on disk.
func (s *LegacyStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Add inserts one row per chunk and appends its vector to the index.
// Rows insert independently; the index file is rewritten once at the end.
func (s *LegacyStore) Add(ctx context.Context, chunks []Chunk, vectors [][]float32) (AddSummary, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	var summary AddSummary
	for i, chunk := range chunks {
		metadataJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			summary.Failures = append(summary.Failures, ChunkFailure{Index: chunk.Index, Err: err})
			continue
		}

		res, err := s.db.ExecContext(ctx,
			`INSERT INTO legacy_chunks (document_id, chunk_index, content, metadata, embedding, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			chunk.DocumentID, chunk.Index, chunk.Content, string(metadataJSON),
			encodeVector(vectors[i]), time.Now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			s.logger.Warn("legacy chunk insert failed",
				"document_id", chunk.DocumentID, "chunk_index", chunk.Index, "error", err)
			summary.Failures = append(summary.Failures,
				ChunkFailure{Index: chunk.Index, Err: fmt.Errorf("%w: %w", ErrStoreUnavailable, err)})
			continue
		}

		seq, err := res.LastInsertId()
		if err != nil {
			summary.Failures = append(summary.Failures,
				ChunkFailure{Index: chunk.Index, Err: fmt.Errorf("%w: %w", ErrStoreUnavailable, err)})
			continue
		}
		if err := s.index.Add(seq, vectors[i]); err != nil {
			summary.Failures = append(summary.Failures, ChunkFailure{Index: chunk.Index, Err: err})
			continue
		}
		summary.Inserted++
	}

	if summary.Inserted > 0 {
		if err := s.persistIndex(); err != nil {
			s.logger.Warn("failed to persist legacy index, will rebuild on next open", "error", err)
		}
	}
	return summary, nil
}

// Search scans the whole index and resolves the surviving hits to rows.
// Metadata filters apply after scoring, so a filtered search may return
// fewer than topK results even when more chunks clear the threshold.
func (s *LegacyStore) Search(ctx context.Context, vector []float32, topK int, threshold float64, filters Metadata) ([]SearchResult, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, store expects %d",
			ErrDimensionMismatch, len(vector), s.dimension)
	}
	if topK <= 0 {
		topK = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits, err := s.index.Query(vector, 0)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, topK)
	for _, hit := range hits {
		if hit.Score < threshold {
			break
		}
		if len(results) == topK {
			break
		}

		row, err := s.loadRow(ctx, hit.ID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: load chunk %d: %w", ErrStoreUnavailable, hit.ID, err)
		}
		if !matchesFilters(row.Chunk.Metadata, filters) {
			continue
		}
		row.Similarity = hit.Score
		results = append(results, row)
	}
	return results, nil
}

// Delete removes the document's rows, rebuilds the index from what
// remains, and rewrites both files. Idempotent for unknown documents.
func (s *LegacyStore) Delete(ctx context.Context, documentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM legacy_chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return 0, fmt.Errorf("%w: delete document %q: %w", ErrStoreUnavailable, documentID, err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if count == 0 {
		return 0, nil
	}

	rebuilt, err := s.rebuildIndex(ctx)
	if err != nil {
		return count, err
	}
	s.index = rebuilt
	if err := s.persistIndex(); err != nil {
		s.logger.Warn("failed to persist legacy index, will rebuild on next open", "error", err)
	}

	s.logger.Debug("legacy document deleted", "document_id", documentID, "count", count)
	return count, nil
}

// Stats reports row counts and the combined size of both files.
func (s *LegacyStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT document_id) FROM legacy_chunks`).
		Scan(&stats.TotalChunks, &stats.TotalDocuments)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: count rows: %w", ErrStoreUnavailable, err)
	}

	for _, path := range []string{s.dbPath, s.indexPath} {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		stats.StorageBytes += info.Size()
	}
	return stats, nil
}

func (s *LegacyStore) loadRow(ctx context.Context, seq int64) (SearchResult, error) {
	var (
		result       SearchResult
		metadataJSON string
		createdAt    string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT document_id, chunk_index, content, metadata, created_at
		 FROM legacy_chunks WHERE seq = ?`, seq).
		Scan(&result.Chunk.DocumentID, &result.Chunk.Index, &result.Chunk.Content,
			&metadataJSON, &createdAt)
	if err != nil {
		return SearchResult{}, err
	}

	if err := json.Unmarshal([]byte(metadataJSON), &result.Chunk.Metadata); err != nil {
		s.logger.Warn("failed to parse legacy chunk metadata",
			"document_id", result.Chunk.DocumentID, "chunk_index", result.Chunk.Index, "error", err)
		result.Chunk.Metadata = make(Metadata)
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		result.CreatedAt = t
	}
	return result, nil
}

// loadIndex restores the serialized index or rebuilds from rows when the
// file is missing or does not match the database.
func (s *LegacyStore) loadIndex(ctx context.Context) error {
	var rows int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM legacy_chunks`).Scan(&rows); err != nil {
		return fmt.Errorf("failed to count legacy rows: %w", err)
	}

	data, err := os.ReadFile(s.indexPath)
	if err == nil {
		idx := &bruteIndex{}
		if err := idx.UnmarshalBinary(data); err == nil &&
			idx.dim == s.dimension && int64(idx.Len()) == rows {
			s.index = idx
			return nil
		}
		s.logger.Warn("legacy index file out of sync, rebuilding", "path", s.indexPath)
	}

	rebuilt, err := s.rebuildIndex(ctx)
	if err != nil {
		return err
	}
	s.index = rebuilt
	if rebuilt.Len() > 0 {
		if err := s.persistIndex(); err != nil {
			s.logger.Warn("failed to persist rebuilt legacy index", "error", err)
		}
	}
	return nil
}

func (s *LegacyStore) rebuildIndex(ctx context.Context) (*bruteIndex, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, embedding FROM legacy_chunks ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("%w: rebuild index: %w", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	idx := newBruteIndex(s.dimension)
	for rows.Next() {
		var (
			seq  int64
			blob []byte
		)
		if err := rows.Scan(&seq, &blob); err != nil {
			return nil, fmt.Errorf("%w: rebuild index: %w", ErrStoreUnavailable, err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", seq, err)
		}
		if err := idx.Add(seq, vec); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", seq, err)
		}
	}
	return idx, rows.Err()
}

// persistIndex writes the serialized index via temp file and rename so a
// crash mid-write leaves the previous file intact.
func (s *LegacyStore) persistIndex() error {
	data, err := s.index.MarshalBinary()
	if err != nil {
		return err
	}

	tmp := s.indexPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.indexPath)
}

func matchesFilters(metadata Metadata, filters Metadata) bool {
	for k, v := range filters {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

func encodeVector(vec []float32) []byte {
	out := make([]byte, 0, 4*len(vec))
	for _, v := range vec {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i : 4*i+4]))
	}
	return vec, nil
}

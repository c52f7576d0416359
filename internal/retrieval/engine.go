// Package retrieval orchestrates the ingest and retrieve pipelines:
// chunking, batched embedding, vector search, and context assembly.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Mikeyan-promax/Weplus-sub000/internal/chat"
	"github.com/Mikeyan-promax/Weplus-sub000/internal/chunker"
	"github.com/Mikeyan-promax/Weplus-sub000/internal/embedding"
	"github.com/Mikeyan-promax/Weplus-sub000/internal/monitor"
	"github.com/Mikeyan-promax/Weplus-sub000/internal/vectorstore"
)

// contextSeparator joins chunk contents in the assembled context.
const contextSeparator = "\n\n---\n\n"

const defaultSystemPrompt = "You are the Weplus campus assistant. Answer using only the provided context. If the context does not contain the answer, say you do not know."

// Engine is the retrieval orchestrator. Construct one per process; it is
// safe for concurrent use because every dependency is.
type Engine struct {
	chunker  *chunker.Chunker
	embedder embedding.Embedder
	store    vectorstore.Store
	legacy   vectorstore.Store
	monitor  *monitor.Monitor
	chat     chat.Completer
	logger   *slog.Logger

	defaultTopK      int
	defaultThreshold float64
}

// Option configures optional Engine dependencies.
type Option func(*Engine)

// WithLegacy mirrors writes and deletes into a secondary backend.
// Searches keep using the primary store.
func WithLegacy(store vectorstore.Store) Option {
	return func(e *Engine) { e.legacy = store }
}

// WithMonitor records pipeline latencies and cache counters.
func WithMonitor(m *monitor.Monitor) Option {
	return func(e *Engine) { e.monitor = m }
}

// WithChat enables the Answer operation.
func WithChat(c chat.Completer) Option {
	return func(e *Engine) { e.chat = c }
}

// WithDefaults sets the fallback topK and threshold applied when a
// retrieve call passes zero values.
func WithDefaults(topK int, threshold float64) Option {
	return func(e *Engine) {
		e.defaultTopK = topK
		e.defaultThreshold = threshold
	}
}

// WithLogger replaces the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New assembles the engine. chunker, embedder, and store are required.
func New(ch *chunker.Chunker, embedder embedding.Embedder, store vectorstore.Store, opts ...Option) (*Engine, error) {
	if ch == nil {
		return nil, fmt.Errorf("%w: chunker is nil", ErrConfiguration)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is nil", ErrConfiguration)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: store is nil", ErrConfiguration)
	}

	e := &Engine{
		chunker:  ch,
		embedder: embedder,
		store:    store,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "retrieval")
	return e, nil
}

// IngestSummary reports the outcome of one document ingestion.
type IngestSummary struct {
	TraceID    string                     `json:"trace_id"`
	DocumentID string                     `json:"document_id"`
	ChunkCount int                        `json:"chunk_count"`
	Inserted   int                        `json:"inserted"`
	Replaced   int64                      `json:"replaced"`
	Failures   []vectorstore.ChunkFailure `json:"-"`
}

// Ingest chunks text, embeds every chunk in one batched provider call,
// and persists the chunk rows. Re-ingesting a document id replaces its
// previous chunks. An embedding failure aborts before any row is
// written; individual insert failures are reported in the summary.
func (e *Engine) Ingest(ctx context.Context, documentID, text string, metadata vectorstore.Metadata) (IngestSummary, error) {
	traceID := uuid.NewString()
	logger := e.logger.With("trace_id", traceID, "document_id", documentID)

	if documentID == "" {
		return IngestSummary{}, fmt.Errorf("%w: missing document id", ErrEmptyDocument)
	}
	segments := e.chunker.Split(text)
	if len(segments) == 0 {
		return IngestSummary{}, fmt.Errorf("%s: %w", StageChunking, ErrEmptyDocument)
	}

	started := time.Now()

	embedStart := time.Now()
	vectors, err := e.embedder.Embed(ctx, segments)
	if err != nil {
		e.recordError(StageEmbedding)
		return IngestSummary{}, fmt.Errorf("%s: document %q: %w", StageEmbedding, documentID, err)
	}
	e.recordLatency(time.Since(embedStart), monitor.CategoryEmbedding)

	chunks := make([]vectorstore.Chunk, len(segments))
	for i, content := range segments {
		chunks[i] = vectorstore.Chunk{
			DocumentID: documentID,
			Index:      i,
			Content:    content,
			Metadata:   metadata,
		}
	}

	replaced, err := e.store.Delete(ctx, documentID)
	if err != nil {
		e.recordError(StageStoring)
		return IngestSummary{}, fmt.Errorf("%s: document %q: %w", StageStoring, documentID, err)
	}

	summary, err := e.store.Add(ctx, chunks, vectors)
	if err != nil {
		e.recordError(StageStoring)
		return IngestSummary{}, fmt.Errorf("%s: document %q: %w", StageStoring, documentID, err)
	}

	if e.legacy != nil {
		if _, err := e.legacy.Delete(ctx, documentID); err != nil {
			logger.Warn("legacy delete before mirror failed", "error", err)
		}
		if legacySummary, err := e.legacy.Add(ctx, chunks, vectors); err != nil {
			logger.Warn("legacy mirror failed", "error", err)
		} else if !legacySummary.AllInserted() {
			logger.Warn("legacy mirror partially inserted",
				"inserted", legacySummary.Inserted, "failed", len(legacySummary.Failures))
		}
	}

	e.recordLatency(time.Since(started), monitor.CategoryIngest)
	logger.Info("document ingested",
		"chunks", len(chunks), "inserted", summary.Inserted,
		"failed", len(summary.Failures), "replaced", replaced)

	return IngestSummary{
		TraceID:    traceID,
		DocumentID: documentID,
		ChunkCount: len(chunks),
		Inserted:   summary.Inserted,
		Replaced:   replaced,
		Failures:   summary.Failures,
	}, nil
}

// ContextChunk is one retrieved chunk with its provenance.
type ContextChunk struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// RetrievalResult is the assembled output of one retrieve call. An empty
// Chunks slice means nothing cleared the threshold; that is not an error
// and the caller decides the fallback.
type RetrievalResult struct {
	TraceID string         `json:"trace_id"`
	Query   string         `json:"query"`
	Chunks  []ContextChunk `json:"chunks"`
	Context string         `json:"context"`
}

// Retrieve embeds the query, searches the primary store, and assembles
// the context string with per-chunk provenance.
func (e *Engine) Retrieve(ctx context.Context, query string, topK int, threshold float64, filters vectorstore.Metadata) (*RetrievalResult, error) {
	traceID := uuid.NewString()
	logger := e.logger.With("trace_id", traceID)

	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = e.defaultTopK
	}
	if threshold == 0 && e.defaultThreshold != 0 {
		threshold = e.defaultThreshold
	}

	started := time.Now()

	embedStart := time.Now()
	vectors, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		e.recordError(StageEmbeddingQuery)
		return nil, fmt.Errorf("%s: %w", StageEmbeddingQuery, err)
	}
	e.recordLatency(time.Since(embedStart), monitor.CategoryEmbedding)

	searchStart := time.Now()
	results, err := e.store.Search(ctx, vectors[0], topK, threshold, filters)
	if err != nil {
		e.recordError(StageSearching)
		return nil, fmt.Errorf("%s: %w", StageSearching, err)
	}
	e.recordLatency(time.Since(searchStart), monitor.CategorySearch)

	chunks := make([]ContextChunk, len(results))
	contents := make([]string, len(results))
	for i, r := range results {
		chunks[i] = ContextChunk{
			DocumentID: r.Chunk.DocumentID,
			ChunkIndex: r.Chunk.Index,
			Content:    r.Chunk.Content,
			Similarity: r.Similarity,
		}
		contents[i] = r.Chunk.Content
	}

	e.recordLatency(time.Since(started), monitor.CategoryRetrieve)
	logger.Debug("query retrieved", "results", len(results), "top_k", topK, "threshold", threshold)

	return &RetrievalResult{
		TraceID: traceID,
		Query:   query,
		Chunks:  chunks,
		Context: strings.Join(contents, contextSeparator),
	}, nil
}

// RemovalSummary reports chunk counts removed from each backend.
type RemovalSummary struct {
	DocumentID string `json:"document_id"`
	Primary    int64  `json:"primary"`
	Legacy     int64  `json:"legacy"`
}

// Remove deletes the document from both backends. Removing an unknown
// document is a zero-count success.
func (e *Engine) Remove(ctx context.Context, documentID string) (RemovalSummary, error) {
	summary := RemovalSummary{DocumentID: documentID}

	count, err := e.store.Delete(ctx, documentID)
	if err != nil {
		return summary, fmt.Errorf("remove document %q: %w", documentID, err)
	}
	summary.Primary = count

	if e.legacy != nil {
		count, err := e.legacy.Delete(ctx, documentID)
		if err != nil {
			return summary, fmt.Errorf("remove document %q from legacy store: %w", documentID, err)
		}
		summary.Legacy = count
	}

	e.logger.Info("document removed",
		"document_id", documentID, "primary", summary.Primary, "legacy", summary.Legacy)
	return summary, nil
}

// EngineStats combines store contents with runtime performance counters.
type EngineStats struct {
	Store        vectorstore.Stats  `json:"store"`
	Legacy       *vectorstore.Stats `json:"legacy,omitempty"`
	Performance  *monitor.Snapshot  `json:"performance,omitempty"`
	CacheEntries int                `json:"cache_entries"`
	CacheHitRate float64            `json:"cache_hit_rate"`
}

// Stats reports primary and legacy store stats plus the monitor snapshot
// and embedding cache size.
func (e *Engine) Stats(ctx context.Context) (EngineStats, error) {
	stats, err := e.store.Stats(ctx)
	if err != nil {
		return EngineStats{}, fmt.Errorf("store stats: %w", err)
	}
	out := EngineStats{Store: stats}

	if e.legacy != nil {
		legacy, err := e.legacy.Stats(ctx)
		if err != nil {
			return out, fmt.Errorf("legacy store stats: %w", err)
		}
		out.Legacy = &legacy
	}

	if e.monitor != nil {
		snapshot := e.monitor.Snapshot()
		out.Performance = &snapshot
		out.CacheHitRate = snapshot.HitRate()
	}
	if c, ok := e.embedder.(interface{ Cache() *embedding.Cache }); ok {
		out.CacheEntries = c.Cache().Len()
	}
	return out, nil
}

// AnswerOptions tunes one Answer call. Zero values fall back to the
// store defaults (top 5, no threshold) and the built-in system prompt.
type AnswerOptions struct {
	TopK         int
	Threshold    float64
	Filters      vectorstore.Metadata
	SystemPrompt string
}

// AnswerResult is a grounded chat completion with its sources.
type AnswerResult struct {
	TraceID string         `json:"trace_id"`
	Answer  string         `json:"answer"`
	Sources []ContextChunk `json:"sources"`
}

// Answer retrieves context for the query and asks the chat provider for
// a grounded completion. When retrieval fails the question is still
// forwarded without context rather than failing the whole call.
func (e *Engine) Answer(ctx context.Context, query string, opts AnswerOptions) (*AnswerResult, error) {
	if e.chat == nil {
		return nil, fmt.Errorf("%w: no chat provider configured", ErrConfiguration)
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	systemPrompt := opts.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	var sources []ContextChunk
	traceID := uuid.NewString()

	result, err := e.Retrieve(ctx, query, opts.TopK, opts.Threshold, opts.Filters)
	switch {
	case err != nil:
		e.logger.Warn("retrieval failed, answering without context", "error", err)
	case result.Context != "":
		systemPrompt += "\n\nContext:\n" + result.Context
		sources = result.Chunks
		traceID = result.TraceID
	}

	chatStart := time.Now()
	answer, err := e.chat.Complete(ctx, []chat.Message{
		{Role: chat.RoleSystem, Content: systemPrompt},
		{Role: chat.RoleUser, Content: query},
	})
	if err != nil {
		e.recordError(StageAnswering)
		return nil, fmt.Errorf("%s: %w", StageAnswering, err)
	}
	e.recordLatency(time.Since(chatStart), monitor.CategoryChat)

	return &AnswerResult{TraceID: traceID, Answer: answer, Sources: sources}, nil
}

func (e *Engine) recordLatency(elapsed time.Duration, category string) {
	if e.monitor != nil {
		e.monitor.RecordLatency(elapsed, category)
	}
}

func (e *Engine) recordError(stage string) {
	if e.monitor != nil {
		e.monitor.RecordError(stage)
	}
}

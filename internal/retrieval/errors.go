package retrieval

import "errors"

var (
	// ErrConfiguration indicates the engine was assembled with missing or
	// invalid dependencies. Fatal at construction time, never retried.
	ErrConfiguration = errors.New("invalid engine configuration")

	// ErrEmptyDocument indicates an ingest call with no usable text.
	ErrEmptyDocument = errors.New("document is empty")

	// ErrEmptyQuery indicates a retrieve call with a blank query.
	ErrEmptyQuery = errors.New("query is empty")
)

// Pipeline stages, used in wrapped errors and log fields so a failure
// names the step that produced it. Provider and store sentinels
// (embedding.ErrProviderUnavailable, vectorstore.ErrStoreUnavailable)
// pass through the wrapping and stay matchable with errors.Is.
const (
	StageChunking          = "chunking"
	StageEmbedding         = "embedding"
	StageEmbeddingQuery    = "embedding_query"
	StageStoring           = "storing"
	StageSearching         = "searching"
	StageAssemblingContext = "assembling_context"
	StageAnswering         = "answering"
)

// Package embedding turns text into fixed-dimension vectors via an external
// provider, fronted by a content-addressed, TTL-bounded cache.
//
// The provider speaks the OpenAI-compatible batch embeddings API. All
// vectors produced under one configuration share the same dimension; a
// mismatch is a hard error, never coerced.
package embedding

import (
	"context"
	"errors"
)

var (
	// ErrProviderUnavailable indicates the embedding provider could not be
	// reached or returned a failure. The engine performs no retries; the
	// surrounding service layer owns retry policy.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")

	// ErrDimensionMismatch indicates the provider returned a vector whose
	// length differs from the configured dimension. This is a configuration
	// error: fatal and never retried.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Embedder produces one vector per input text, in input order.
type Embedder interface {
	// Embed returns vectors with the same order and length as texts.
	// On error no partial results are returned.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension reports the fixed vector dimension.
	Dimension() int
}

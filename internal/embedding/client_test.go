package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Embed_Success(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, []string{"alpha", "beta"}, req.Input)

		// Return items out of order; the client must restore input order.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{0.4, 0.5, 0.6}},
				{"index": 0, "embedding": []float32{0.1, 0.2, 0.3}},
			},
		})
	})

	c := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model", Dimension: 3})

	vectors, err := c.Embed(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vectors[0])
	assert.Equal(t, []float32{0.4, 0.5, 0.6}, vectors[1])
}

func TestClient_Embed_DimensionMismatch(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 0, "embedding": []float32{0.1, 0.2}}, // 2, expected 3
			},
		})
	})

	c := NewClient(ClientConfig{BaseURL: srv.URL, Dimension: 3})

	_, err := c.Embed(context.Background(), []string{"alpha"})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestClient_Embed_ProviderError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	})

	c := NewClient(ClientConfig{BaseURL: srv.URL, Dimension: 3})

	_, err := c.Embed(context.Background(), []string{"alpha"})
	require.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestClient_Embed_CountMismatch(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 0, "embedding": []float32{0.1, 0.2, 0.3}},
			},
		})
	})

	c := NewClient(ClientConfig{BaseURL: srv.URL, Dimension: 3})

	_, err := c.Embed(context.Background(), []string{"alpha", "beta"})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestClient_Embed_Unreachable(t *testing.T) {
	c := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1", Dimension: 3})

	_, err := c.Embed(context.Background(), []string{"alpha"})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestClient_Embed_EmptyInput(t *testing.T) {
	c := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1", Dimension: 3})

	vectors, err := c.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestClient_Embed_ContextCancelled(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	c := NewClient(ClientConfig{BaseURL: srv.URL, Dimension: 3})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Embed(ctx, []string{"alpha"})
	assert.Error(t, err)
}

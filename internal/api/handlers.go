package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Mikeyan-promax/Weplus-sub000/internal/chat"
	"github.com/Mikeyan-promax/Weplus-sub000/internal/embedding"
	"github.com/Mikeyan-promax/Weplus-sub000/internal/retrieval"
	"github.com/Mikeyan-promax/Weplus-sub000/internal/vectorstore"
)

// maxBodyBytes bounds request bodies; campus documents arrive as text,
// not uploads.
const maxBodyBytes = 4 << 20

type handler struct {
	engine *retrieval.Engine
	logger *slog.Logger
}

type ingestRequest struct {
	DocumentID string            `json:"document_id"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (h *handler) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !decodeBody(w, r, &req) {
		return
	}

	summary, err := h.engine.Ingest(r.Context(), req.DocumentID, req.Text, req.Metadata)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}

	status := http.StatusCreated
	if len(summary.Failures) > 0 {
		// Partial persistence: report what landed.
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, summary)
}

type retrieveRequest struct {
	Query     string            `json:"query"`
	TopK      int               `json:"top_k,omitempty"`
	Threshold float64           `json:"threshold,omitempty"`
	Filters   map[string]string `json:"filters,omitempty"`
}

func (h *handler) retrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.engine.Retrieve(r.Context(), req.Query, req.TopK, req.Threshold, req.Filters)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type chatRequest struct {
	Query        string            `json:"query"`
	TopK         int               `json:"top_k,omitempty"`
	Threshold    float64           `json:"threshold,omitempty"`
	Filters      map[string]string `json:"filters,omitempty"`
	SystemPrompt string            `json:"system_prompt,omitempty"`
}

func (h *handler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.engine.Answer(r.Context(), req.Query, retrieval.AnswerOptions{
		TopK:         req.TopK,
		Threshold:    req.Threshold,
		Filters:      req.Filters,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) remove(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("id")
	if documentID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing document id")
		return
	}

	summary, err := h.engine.Remove(r.Context(), documentID)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// decodeBody parses the JSON request body into dst, writing the error
// response itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return false
	}
	return true
}

// respondEngineError maps engine sentinels to HTTP statuses.
func (h *handler) respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, retrieval.ErrEmptyDocument),
		errors.Is(err, retrieval.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, embedding.ErrProviderUnavailable),
		errors.Is(err, chat.ErrProviderUnavailable):
		h.logger.Error("provider unavailable", "error", err)
		writeError(w, http.StatusBadGateway, "provider_unavailable", "upstream provider unavailable")
	case errors.Is(err, vectorstore.ErrStoreUnavailable):
		h.logger.Error("store unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "vector store unavailable")
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

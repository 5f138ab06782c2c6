package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nexusflow/backend/internal/document"
	"github.com/nexusflow/backend/internal/embedding"
	"github.com/nexusflow/backend/internal/queue"
	"github.com/nexusflow/backend/internal/rag"
)

// BackfillEnqueuer schedules background vector regeneration. A nil
// enqueuer means redis is unavailable and regeneration runs in-process.
type BackfillEnqueuer interface {
	EnqueueKnowledgeBackfill(payload queue.BackfillPayload) error
}

type KnowledgeHandler struct {
	engine   *rag.Engine
	enqueuer BackfillEnqueuer
	model    string
}

func NewKnowledgeHandler(engine *rag.Engine, enqueuer BackfillEnqueuer, model string) *KnowledgeHandler {
	return &KnowledgeHandler{engine: engine, enqueuer: enqueuer, model: model}
}

func (h *KnowledgeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Stats(r.Context()))
}

type uploadRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

func (h *KnowledgeHandler) Upload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Filename == "" || req.Content == "" {
		writeErr(w, http.StatusBadRequest, "filename and content required")
		return
	}

	if err := h.engine.AddDocument(r.Context(), req.Filename, req.Content); err != nil {
		if errors.Is(err, document.ErrDuplicate) {
			writeErr(w, http.StatusConflict, "document already exists: "+req.Filename)
			return
		}
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"filename": req.Filename,
	})
}

func (h *KnowledgeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	if err := h.engine.DeleteDocument(r.Context(), filename); err != nil {
		if errors.Is(err, document.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "document not found: "+filename)
			return
		}
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"filename": filename,
	})
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"topK"`
}

func (h *KnowledgeHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeErr(w, http.StatusBadRequest, "query required")
		return
	}

	results, err := h.engine.Search(r.Context(), req.Query, req.TopK)
	if err != nil {
		var svcErr *embedding.ServiceError
		if errors.As(err, &svcErr) {
			writeErr(w, http.StatusBadGateway, "embedding service unavailable")
			return
		}
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	if results == nil {
		results = []rag.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// Regenerate kicks off a backfill pass and returns immediately. The work
// goes through the job queue when available, otherwise a goroutine.
func (h *KnowledgeHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	payload := queue.BackfillPayload{Reason: "api regenerate"}

	enqueued := false
	if h.enqueuer != nil {
		if err := h.enqueuer.EnqueueKnowledgeBackfill(payload); err != nil {
			slog.Warn("enqueue backfill failed, running inline", "error", err)
		} else {
			enqueued = true
		}
	}
	if !enqueued {
		// Detached from the request context so the pass outlives the response.
		go func() {
			if _, err := h.engine.BackfillMissing(context.Background()); err != nil {
				slog.Error("inline backfill failed", "error", err)
			}
		}()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "vector regeneration started",
		"model":   h.model,
	})
}

func (h *KnowledgeHandler) Config(w http.ResponseWriter, r *http.Request) {
	stats := h.engine.Stats(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"embeddingModel":  h.model,
		"vectorStoreSize": stats.TotalVectors,
		"documentsCount":  stats.TotalDocuments,
		"totalChunks":     stats.TotalChunks,
		"vectorCoverage":  stats.VectorCoverage,
	})
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusflow/backend/internal/document"
	"github.com/nexusflow/backend/internal/embedding"
	"github.com/nexusflow/backend/internal/rag"
	"github.com/nexusflow/backend/internal/vectorstore"
	"github.com/nexusflow/backend/pkg/chunker"
)

// countEmbedder yields constant unit vectors so every chunk matches every
// query, and can be flipped into failure mode.
type countEmbedder struct {
	fail bool
}

func (e *countEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	if e.fail {
		return nil, &embedding.ServiceError{Err: errors.New("quota exceeded")}
	}
	return []float32{1, 0, 0}, nil
}

func newKnowledgeServer(t *testing.T, embedder rag.Embedder) (*httptest.Server, *rag.Engine) {
	t.Helper()
	dir := t.TempDir()
	docs := document.NewStore(filepath.Join(dir, "kb"), chunker.DefaultOptions())
	vectors := vectorstore.NewFileStore(filepath.Join(dir, "kb", "vectors.json"))
	engine := rag.NewEngine(docs, vectors, embedder, rag.Options{MinScore: 0.1, BackfillBatch: 10})
	require.NoError(t, engine.Initialize(context.Background()))

	h := NewKnowledgeHandler(engine, nil, "test-embedding-model")

	r := chi.NewRouter()
	r.Get("/api/v1/knowledge/stats", h.Stats)
	r.Get("/api/v1/knowledge/config", h.Config)
	r.Post("/api/v1/knowledge", h.Upload)
	r.Delete("/api/v1/knowledge/{filename}", h.Delete)
	r.Post("/api/v1/knowledge/search", h.Search)
	r.Post("/api/v1/knowledge/regenerate", h.Regenerate)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, engine
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestUploadAndStats(t *testing.T) {
	srv, _ := newKnowledgeServer(t, &countEmbedder{})

	resp := postJSON(t, srv.URL+"/api/v1/knowledge", map[string]string{
		"filename": "guide.txt",
		"content":  "Cryoablation freezes tumor tissue.",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])

	resp2, err := http.Get(srv.URL + "/api/v1/knowledge/stats")
	require.NoError(t, err)
	stats := decodeBody(t, resp2)
	assert.Equal(t, float64(1), stats["totalDocuments"])
	assert.Equal(t, "100.0%", stats["vectorCoverage"])
}

func TestUploadDuplicateConflict(t *testing.T) {
	srv, _ := newKnowledgeServer(t, &countEmbedder{})

	resp := postJSON(t, srv.URL+"/api/v1/knowledge", map[string]string{
		"filename": "guide.txt", "content": "first",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/v1/knowledge", map[string]string{
		"filename": "guide.txt", "content": "second",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, false, body["success"])
}

func TestUploadValidation(t *testing.T) {
	srv, _ := newKnowledgeServer(t, &countEmbedder{})

	resp := postJSON(t, srv.URL+"/api/v1/knowledge", map[string]string{"filename": "x.txt"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestDeleteNotFound(t *testing.T) {
	srv, _ := newKnowledgeServer(t, &countEmbedder{})

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/knowledge/missing.txt", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestDeleteExisting(t *testing.T) {
	srv, engine := newKnowledgeServer(t, &countEmbedder{})
	require.NoError(t, engine.AddDocument(context.Background(), "drop.txt", "content."))

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/knowledge/drop.txt", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	assert.Zero(t, engine.Stats(context.Background()).TotalDocuments)
}

func TestSearchReturnsResults(t *testing.T) {
	srv, engine := newKnowledgeServer(t, &countEmbedder{})
	require.NoError(t, engine.AddDocument(context.Background(), "a.txt", "Probe details."))

	resp := postJSON(t, srv.URL+"/api/v1/knowledge/search", map[string]any{
		"query": "probe", "topK": 3,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	results := body["results"].([]any)
	require.Len(t, results, 1)
}

func TestSearchEmbeddingFailureIsBadGateway(t *testing.T) {
	embedder := &countEmbedder{}
	srv, engine := newKnowledgeServer(t, embedder)
	require.NoError(t, engine.AddDocument(context.Background(), "a.txt", "Probe details."))

	embedder.fail = true
	resp := postJSON(t, srv.URL+"/api/v1/knowledge/search", map[string]any{"query": "probe"})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	resp.Body.Close()
}

func TestSearchRequiresQuery(t *testing.T) {
	srv, _ := newKnowledgeServer(t, &countEmbedder{})

	resp := postJSON(t, srv.URL+"/api/v1/knowledge/search", map[string]any{"topK": 3})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestRegenerateRespondsImmediately(t *testing.T) {
	srv, _ := newKnowledgeServer(t, &countEmbedder{})

	resp := postJSON(t, srv.URL+"/api/v1/knowledge/regenerate", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "test-embedding-model", body["model"])
}

func TestConfigReportsModel(t *testing.T) {
	srv, _ := newKnowledgeServer(t, &countEmbedder{})

	resp, err := http.Get(srv.URL + "/api/v1/knowledge/config")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, "test-embedding-model", body["embeddingModel"])
}

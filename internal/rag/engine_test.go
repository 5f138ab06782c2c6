package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusflow/backend/internal/document"
	"github.com/nexusflow/backend/internal/embedding"
	"github.com/nexusflow/backend/internal/vectorstore"
	"github.com/nexusflow/backend/pkg/chunker"
)

// mapEmbedder returns precomputed vectors keyed by exact text and fails for
// texts containing failOn.
type mapEmbedder struct {
	vectors map[string][]float32
	failOn  string
	calls   int
}

func (m *mapEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	if m.failOn != "" && strings.Contains(text, m.failOn) {
		return nil, &embedding.ServiceError{Err: errors.New("simulated failure")}
	}
	if vec, ok := m.vectors[text]; ok {
		return vec, nil
	}
	return nil, fmt.Errorf("no stub vector for %q", text)
}

// wordEmbedder builds bag-of-words vectors over a growing vocabulary, so
// texts sharing words land closer than unrelated ones. Substitutes for the
// real embedding service in scenario tests.
type wordEmbedder struct {
	vocab map[string]int
}

func newWordEmbedder() *wordEmbedder {
	return &wordEmbedder{vocab: make(map[string]int)}
}

func (w *wordEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 64)
	for _, word := range tokenize(text) {
		idx, ok := w.vocab[word]
		if !ok {
			idx = len(w.vocab) % len(vec)
			w.vocab[word] = idx
		}
		vec[idx]++
	}
	return vec, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func newTestEngine(t *testing.T, embedder Embedder, chunkSize int) (*Engine, *document.Store, *vectorstore.FileStore) {
	t.Helper()
	dir := t.TempDir()
	docs := document.NewStore(filepath.Join(dir, "kb"), chunker.Options{ChunkSize: chunkSize})
	vectors := vectorstore.NewFileStore(filepath.Join(dir, "kb", "vectors.json"))
	engine := NewEngine(docs, vectors, embedder, Options{MinScore: 0.1, BackfillBatch: 10})
	require.NoError(t, engine.Initialize(context.Background()))
	return engine, docs, vectors
}

func TestSearchRankingThresholdAndTopK(t *testing.T) {
	ctx := context.Background()

	// Precomputed similarities against the query vector (1,0,0):
	// high 0.9, mid 0.5, low 0.05 (below the 0.1 threshold).
	embedder := &mapEmbedder{vectors: map[string][]float32{
		"the query":      {1, 0, 0},
		"high match.":    {0.9, sqrtf(1 - 0.81), 0},
		"mid match.":     {0.5, sqrtf(1 - 0.25), 0},
		"low match.":     {0.05, sqrtf(1 - 0.0025), 0},
	}}

	engine, _, _ := newTestEngine(t, embedder, 500)
	require.NoError(t, engine.AddDocument(ctx, "high.txt", "high match."))
	require.NoError(t, engine.AddDocument(ctx, "mid.txt", "mid match."))
	require.NoError(t, engine.AddDocument(ctx, "low.txt", "low match."))

	results, err := engine.Search(ctx, "the query", 2)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "high.txt", results[0].Document)
	assert.InDelta(t, 0.9, results[0].Score, 1e-6)
	assert.Equal(t, "mid.txt", results[1].Document)
	assert.InDelta(t, 0.5, results[1].Score, 1e-6)
}

func TestSearchEmptyKnowledgeBase(t *testing.T) {
	embedder := &mapEmbedder{vectors: map[string][]float32{"anything": {1, 0}}}
	engine, _, _ := newTestEngine(t, embedder, 500)

	results, err := engine.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchQueryEmbeddingFailurePropagates(t *testing.T) {
	embedder := &mapEmbedder{failOn: "query"}
	engine, _, _ := newTestEngine(t, embedder, 500)

	_, err := engine.Search(context.Background(), "the query", 3)
	require.Error(t, err)

	var svcErr *embedding.ServiceError
	assert.True(t, errors.As(err, &svcErr))
}

func TestSearchLazyBackfillPersistsVectors(t *testing.T) {
	ctx := context.Background()
	embedder := newWordEmbedder()
	engine, docs, vectors := newTestEngine(t, embedder, 500)

	// Register directly, bypassing the engine's synchronous embedding, to
	// simulate a chunk set the maintenance job has not reached yet.
	_, err := docs.Add("A.txt", "Patients report fever after ablation.")
	require.NoError(t, err)

	n, err := vectors.Size(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	results, err := engine.Search(ctx, "post-surgical fever", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "A.txt", results[0].Document)
	assert.Greater(t, results[0].Score, 0.1)

	// The lazily generated vector was stored and persisted.
	n, err = vectors.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, err := vectors.Get(ctx, document.ChunkID("A.txt", 0))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSearchDeterministicTieBreak(t *testing.T) {
	ctx := context.Background()
	same := []float32{1, 0, 0}
	embedder := &mapEmbedder{vectors: map[string][]float32{
		"the query": {1, 0, 0},
		"twin one.": same,
		"twin two.": same,
	}}

	engine, _, _ := newTestEngine(t, embedder, 500)
	require.NoError(t, engine.AddDocument(ctx, "one.txt", "twin one."))
	require.NoError(t, engine.AddDocument(ctx, "two.txt", "twin two."))

	for range 5 {
		results, err := engine.Search(ctx, "the query", 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "one.txt", results[0].Document)
		assert.Equal(t, "two.txt", results[1].Document)
	}
}

func TestAddDocumentPartialEmbeddingStillSucceeds(t *testing.T) {
	ctx := context.Background()
	embedder := newWordEmbedder()
	engine, _, _ := newTestEngine(t, embedder, 12)

	// Four short sentences, each its own chunk at this chunk size.
	content := "Alpha probe one. Beta probe two. Gamma probe three. Delta probe four."

	failing := &partialEmbedder{inner: embedder, failOn: "Gamma"}
	engine.embedder = failing

	require.NoError(t, engine.AddDocument(ctx, "probes.txt", content))

	stats := engine.Stats(ctx)
	assert.Equal(t, 1, stats.TotalDocuments)
	assert.Equal(t, 4, stats.TotalChunks)
	assert.Equal(t, 3, stats.TotalVectors)
	assert.Equal(t, "75.0%", stats.VectorCoverage)
}

type partialEmbedder struct {
	inner  Embedder
	failOn string
}

func (p *partialEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, p.failOn) {
		return nil, &embedding.ServiceError{Err: errors.New("simulated quota failure")}
	}
	return p.inner.EmbedSingle(ctx, text)
}

func TestAddDocumentDuplicate(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t, newWordEmbedder(), 500)

	require.NoError(t, engine.AddDocument(ctx, "a.txt", "first version."))
	err := engine.AddDocument(ctx, "a.txt", "second version.")
	require.Error(t, err)
	assert.ErrorIs(t, err, document.ErrDuplicate)
}

func TestDeleteDocumentCascadesVectors(t *testing.T) {
	ctx := context.Background()
	embedder := newWordEmbedder()
	engine, _, vectors := newTestEngine(t, embedder, 12)

	require.NoError(t, engine.AddDocument(ctx, "keep.txt", "Alpha one. Beta two."))
	require.NoError(t, engine.AddDocument(ctx, "drop.txt", "Gamma three. Delta four."))

	before := engine.Stats(ctx)
	require.Equal(t, 4, before.TotalVectors)

	require.NoError(t, engine.DeleteDocument(ctx, "drop.txt"))

	after := engine.Stats(ctx)
	assert.Equal(t, 1, after.TotalDocuments)
	assert.Equal(t, 2, after.TotalVectors)

	for i := range 2 {
		_, ok, err := vectors.Get(ctx, document.ChunkID("drop.txt", i))
		require.NoError(t, err)
		assert.False(t, ok, "vector for drop.txt_%d survived the delete", i)
	}
}

func TestDeleteDocumentUnknown(t *testing.T) {
	engine, _, _ := newTestEngine(t, newWordEmbedder(), 500)

	err := engine.DeleteDocument(context.Background(), "missing.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, document.ErrNotFound)
}

func TestBackfillMissingFillsOnlyGaps(t *testing.T) {
	ctx := context.Background()
	embedder := newWordEmbedder()
	engine, docs, vectors := newTestEngine(t, embedder, 12)

	_, err := docs.Add("a.txt", "Alpha one. Beta two. Gamma three.")
	require.NoError(t, err)

	// Pre-store one vector; backfill must not touch it.
	pre := []float32{9, 9, 9}
	require.NoError(t, vectors.Set(ctx, document.ChunkID("a.txt", 1), pre))

	generated, err := engine.BackfillMissing(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, generated)

	got, ok, err := vectors.Get(ctx, document.ChunkID("a.txt", 1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pre, got, "existing vector was re-embedded")

	n, err := vectors.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestBackfillMissingNothingToDo(t *testing.T) {
	ctx := context.Background()
	embedder := newWordEmbedder()
	engine, _, _ := newTestEngine(t, embedder, 500)

	require.NoError(t, engine.AddDocument(ctx, "a.txt", "fully embedded."))

	generated, err := engine.BackfillMissing(ctx)
	require.NoError(t, err)
	assert.Zero(t, generated)
}

func TestBackfillSkipsFailingChunks(t *testing.T) {
	ctx := context.Background()
	embedder := newWordEmbedder()
	engine, docs, _ := newTestEngine(t, embedder, 12)

	_, err := docs.Add("a.txt", "Alpha one. Gamma bad. Beta two.")
	require.NoError(t, err)

	engine.embedder = &partialEmbedder{inner: embedder, failOn: "Gamma"}

	generated, err := engine.BackfillMissing(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, generated)

	stats := engine.Stats(ctx)
	assert.Equal(t, 3, stats.TotalChunks)
	assert.Equal(t, 2, stats.TotalVectors)
}

func TestContextSummary(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t, newWordEmbedder(), 500)

	require.NoError(t, engine.AddDocument(ctx, "A.txt", "Patients report fever after ablation."))

	summary := engine.ContextSummary(ctx, "post-surgical fever")
	assert.Contains(t, summary, "[Source: A.txt]")
	assert.Contains(t, summary, "Patients report fever after ablation.")
}

func TestContextSummaryNoResults(t *testing.T) {
	engine, _, _ := newTestEngine(t, newWordEmbedder(), 500)

	summary := engine.ContextSummary(context.Background(), "anything at all")
	assert.Equal(t, noResultsSummary, summary)
}

func TestContextSummaryEmbeddingFailure(t *testing.T) {
	engine, _, _ := newTestEngine(t, &mapEmbedder{failOn: "query"}, 500)

	summary := engine.ContextSummary(context.Background(), "the query")
	assert.Equal(t, "Knowledge base query failed.", summary)
}

func TestStatsEmpty(t *testing.T) {
	engine, _, _ := newTestEngine(t, newWordEmbedder(), 500)

	stats := engine.Stats(context.Background())
	assert.Zero(t, stats.TotalDocuments)
	assert.Zero(t, stats.TotalChunks)
	assert.Zero(t, stats.TotalVectors)
	assert.Equal(t, "0%", stats.VectorCoverage)
}

func sqrtf(x float64) float32 {
	return float32(math.Sqrt(x))
}

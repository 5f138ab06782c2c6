package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nexusflow/backend/internal/document"
	"github.com/nexusflow/backend/internal/vectorstore"
)

// Embedder turns text into a fixed-length vector. Satisfied by
// *embedding.Service; tests substitute a deterministic stub.
type Embedder interface {
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
}

// SearchResult is a transient ranked hit. Ordering is descending by score
// with ties broken by document-then-chunk iteration order.
type SearchResult struct {
	Document string  `json:"document"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
}

// Stats summarizes knowledge-base state for the dashboard.
type Stats struct {
	TotalDocuments int             `json:"totalDocuments"`
	TotalChunks    int             `json:"totalChunks"`
	TotalVectors   int             `json:"totalVectors"`
	VectorCoverage string          `json:"vectorCoverage"`
	Documents      []DocumentStats `json:"documents"`
}

type DocumentStats struct {
	Name   string `json:"name"`
	Size   int    `json:"size"`
	Chunks int    `json:"chunks"`
}

// Options are the tunable retrieval policies.
type Options struct {
	MinScore      float64       // results at or below this similarity are discarded
	BackfillBatch int           // persist every N vectors during backfill
	EmbedThrottle time.Duration // delay between embedding calls on bulk paths
}

func DefaultOptions() Options {
	return Options{
		MinScore:      0.1,
		BackfillBatch: 10,
		EmbedThrottle: 500 * time.Millisecond,
	}
}

const noResultsSummary = "No relevant information available in the knowledge base."

// Engine coordinates the embedding lifecycle for all chunks and answers
// semantic queries against them. It owns no data itself: the document store
// owns documents and chunks, the vector store owns embeddings.
type Engine struct {
	docs     *document.Store
	vectors  vectorstore.Store
	embedder Embedder
	opts     Options

	// mu serializes every vector-store mutate+persist sequence so that
	// concurrent add/delete/search-backfill cannot produce a torn save.
	// Embedding network calls deliberately stay outside this section.
	mu sync.Mutex
}

func NewEngine(docs *document.Store, vectors vectorstore.Store, embedder Embedder, opts Options) *Engine {
	if opts.BackfillBatch <= 0 {
		opts.BackfillBatch = 10
	}
	return &Engine{
		docs:     docs,
		vectors:  vectors,
		embedder: embedder,
		opts:     opts,
	}
}

// Initialize rehydrates the vector store and loads all documents. Must
// complete before the engine serves any search.
func (e *Engine) Initialize(ctx context.Context) error {
	if err := e.vectors.Load(ctx); err != nil {
		return fmt.Errorf("load vector store: %w", err)
	}
	if err := e.docs.LoadAll(); err != nil {
		return fmt.Errorf("load documents: %w", err)
	}
	return nil
}

// Search embeds the query and ranks every chunk by cosine similarity.
// Chunks without a stored vector are embedded on demand and persisted
// immediately, so search never comes back empty just because background
// backfill has not caught up. A query-embedding failure propagates: there
// is no non-semantic fallback mode.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		topK = 3
	}

	queryVec, err := e.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var results []SearchResult
	for _, doc := range e.docs.List() {
		for i, chunk := range doc.Chunks {
			chunkID := document.ChunkID(doc.Name, i)

			vec, ok, err := e.vectors.Get(ctx, chunkID)
			if err != nil {
				slog.Warn("vector lookup failed", "chunk", chunkID, "error", err)
				continue
			}
			if !ok {
				vec, err = e.backfillChunk(ctx, chunkID, chunk)
				if err != nil {
					slog.Warn("lazy backfill failed", "chunk", chunkID, "error", err)
					continue
				}
			}

			score := CosineSimilarity(queryVec, vec)
			if score > e.opts.MinScore {
				results = append(results, SearchResult{
					Document: doc.Name,
					Content:  chunk,
					Score:    score,
				})
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// backfillChunk embeds one chunk and persists it right away. The embedding
// call runs outside the critical section; only the set+save pair is locked.
func (e *Engine) backfillChunk(ctx context.Context, chunkID, chunk string) ([]float32, error) {
	vec, err := e.embedder.EmbedSingle(ctx, chunk)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.vectors.Set(ctx, chunkID, vec); err != nil {
		return nil, err
	}
	if err := e.vectors.Save(ctx); err != nil {
		return nil, err
	}
	return vec, nil
}

// ContextSummary renders the top-3 hits for a query into a labeled text
// block for prompt construction. Failures collapse into a fallback string
// because every consumer is a prompt builder that needs usable text.
func (e *Engine) ContextSummary(ctx context.Context, query string) string {
	results, err := e.Search(ctx, query, 3)
	if err != nil {
		slog.Error("context summary search failed", "error", err)
		return "Knowledge base query failed."
	}
	if len(results) == 0 {
		return noResultsSummary
	}

	var b strings.Builder
	b.WriteString("Relevant knowledge base content:\n\n")
	for _, r := range results {
		fmt.Fprintf(&b, "[Source: %s]\n%s\n\n", r.Document, r.Content)
	}
	return b.String()
}

// AddDocument registers and persists a new document, then synchronously
// embeds its chunks. Embedding failures for individual chunks are logged
// and skipped, never rolled back: the document stays registered with
// partial coverage and the maintenance job fills the gaps later.
func (e *Engine) AddDocument(ctx context.Context, filename, content string) error {
	doc, err := e.docs.Add(filename, content)
	if err != nil {
		return err
	}

	embedded := 0
	for i, chunk := range doc.Chunks {
		chunkID := document.ChunkID(doc.Name, i)

		vec, err := e.embedder.EmbedSingle(ctx, chunk)
		if err != nil {
			slog.Warn("embed chunk failed", "chunk", chunkID, "error", err)
			continue
		}

		e.mu.Lock()
		err = e.vectors.Set(ctx, chunkID, vec)
		e.mu.Unlock()
		if err != nil {
			slog.Warn("store vector failed", "chunk", chunkID, "error", err)
			continue
		}
		embedded++

		e.throttle(ctx)
	}

	e.mu.Lock()
	err = e.vectors.Save(ctx)
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("persist vectors: %w", err)
	}

	slog.Info("document added", "file", filename, "chunks", len(doc.Chunks), "embedded", embedded)
	return nil
}

// DeleteDocument removes the document and cascade-deletes all of its chunk
// vectors, then persists, so no stale entries survive the delete.
func (e *Engine) DeleteDocument(ctx context.Context, filename string) error {
	doc, err := e.docs.Delete(filename)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range doc.Chunks {
		if err := e.vectors.Delete(ctx, document.ChunkID(doc.Name, i)); err != nil {
			slog.Warn("delete vector failed", "chunk", document.ChunkID(doc.Name, i), "error", err)
		}
	}
	if err := e.vectors.Save(ctx); err != nil {
		return fmt.Errorf("persist vectors: %w", err)
	}

	slog.Info("document deleted", "file", filename, "chunks", len(doc.Chunks))
	return nil
}

// Stats reports document, chunk and vector counts. Coverage is the share of
// chunks with a stored vector, formatted as a percentage.
func (e *Engine) Stats(ctx context.Context) Stats {
	docs := e.docs.List()

	stats := Stats{
		TotalDocuments: len(docs),
		Documents:      make([]DocumentStats, 0, len(docs)),
	}
	for _, doc := range docs {
		stats.TotalChunks += len(doc.Chunks)
		stats.Documents = append(stats.Documents, DocumentStats{
			Name:   doc.Name,
			Size:   doc.Size,
			Chunks: len(doc.Chunks),
		})
	}

	n, err := e.vectors.Size(ctx)
	if err != nil {
		slog.Warn("vector store size failed", "error", err)
	}
	stats.TotalVectors = n

	if stats.TotalChunks > 0 {
		stats.VectorCoverage = fmt.Sprintf("%.1f%%", float64(n)/float64(stats.TotalChunks)*100)
	} else {
		stats.VectorCoverage = "0%"
	}
	return stats
}

// BackfillMissing reconciles the vector store against the current chunk
// set, embedding every chunk that lacks a vector. Progress persists every
// BackfillBatch vectors and once at the end, so a crash loses at most one
// batch. Chunks that already have a vector are never re-embedded.
func (e *Engine) BackfillMissing(ctx context.Context) (int, error) {
	generated := 0

	for _, doc := range e.docs.List() {
		for i, chunk := range doc.Chunks {
			if err := ctx.Err(); err != nil {
				return generated, err
			}

			chunkID := document.ChunkID(doc.Name, i)
			if _, ok, err := e.vectors.Get(ctx, chunkID); err != nil || ok {
				continue
			}

			vec, err := e.embedder.EmbedSingle(ctx, chunk)
			if err != nil {
				slog.Warn("backfill embed failed", "chunk", chunkID, "error", err)
				e.throttle(ctx)
				continue
			}

			e.mu.Lock()
			if err := e.vectors.Set(ctx, chunkID, vec); err != nil {
				e.mu.Unlock()
				slog.Warn("backfill store failed", "chunk", chunkID, "error", err)
				continue
			}
			generated++
			if generated%e.opts.BackfillBatch == 0 {
				if err := e.vectors.Save(ctx); err != nil {
					slog.Warn("backfill save failed", "error", err)
				}
			}
			e.mu.Unlock()

			e.throttle(ctx)
		}
	}

	if generated > 0 {
		e.mu.Lock()
		err := e.vectors.Save(ctx)
		e.mu.Unlock()
		if err != nil {
			return generated, fmt.Errorf("persist vectors: %w", err)
		}
	}

	if generated > 0 {
		slog.Info("backfill complete", "generated", generated)
	}
	return generated, nil
}

func (e *Engine) throttle(ctx context.Context) {
	if e.opts.EmbedThrottle <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(e.opts.EmbedThrottle):
	}
}

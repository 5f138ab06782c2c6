package vectorstore

import "context"

// Store is a durable mapping from chunk id to embedding vector. The
// in-memory view is a cache of the persisted representation and must be
// rehydrated via Load before any search runs.
//
// Set, Delete and Size operate on the in-memory view only; callers decide
// when to persist with Save. Backends with per-statement durability may
// implement Save as a no-op.
type Store interface {
	Load(ctx context.Context) error
	Save(ctx context.Context) error
	Get(ctx context.Context, chunkID string) ([]float32, bool, error)
	Set(ctx context.Context, chunkID string, vector []float32) error
	Delete(ctx context.Context, chunkID string) error
	Size(ctx context.Context) (int, error)
}

package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileStore persists the vector map as a JSON array of [chunkID, vector]
// pairs. A missing or corrupt file is treated as a first run: vectors can
// always be regenerated from the documents directory, so corruption is
// recovered by resetting to an empty store, never by failing the caller.
type FileStore struct {
	path string

	mu      sync.RWMutex
	vectors map[string][]float32
}

func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:    path,
		vectors: make(map[string][]float32),
	}
}

func (s *FileStore) Load(ctx context.Context) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("vector store unreadable, starting empty", "path", s.path, "error", err)
		}
		s.reset()
		return nil
	}

	var pairs [][2]json.RawMessage
	if err := json.Unmarshal(data, &pairs); err != nil {
		slog.Warn("vector store corrupt, starting empty", "path", s.path, "error", err)
		s.reset()
		return nil
	}

	vectors := make(map[string][]float32, len(pairs))
	for _, p := range pairs {
		var id string
		var vec []float32
		if err := json.Unmarshal(p[0], &id); err != nil {
			slog.Warn("vector store corrupt, starting empty", "path", s.path, "error", err)
			s.reset()
			return nil
		}
		if err := json.Unmarshal(p[1], &vec); err != nil {
			slog.Warn("vector store corrupt, starting empty", "path", s.path, "error", err)
			s.reset()
			return nil
		}
		vectors[id] = vec
	}

	s.mu.Lock()
	s.vectors = vectors
	s.mu.Unlock()

	slog.Info("vector store loaded", "path", s.path, "vectors", len(vectors))
	return nil
}

// Save serializes the full map. The write goes to a temp file in the same
// directory followed by a rename, so a crash mid-write leaves the previous
// file intact.
func (s *FileStore) Save(ctx context.Context) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.vectors))
	for id := range s.vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	pairs := make([][2]any, 0, len(ids))
	for _, id := range ids {
		pairs = append(pairs, [2]any{id, s.vectors[id]})
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(pairs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal vector store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create vector store dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".vectors-*.json")
	if err != nil {
		return fmt.Errorf("create temp vector file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp vector file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp vector file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename vector file: %w", err)
	}

	return nil
}

func (s *FileStore) Get(ctx context.Context, chunkID string) ([]float32, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vec, ok := s.vectors[chunkID]
	return vec, ok, nil
}

func (s *FileStore) Set(ctx context.Context, chunkID string, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors[chunkID] = vector
	return nil
}

func (s *FileStore) Delete(ctx context.Context, chunkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vectors, chunkID)
	return nil
}

func (s *FileStore) Size(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors), nil
}

func (s *FileStore) reset() {
	s.mu.Lock()
	s.vectors = make(map[string][]float32)
	s.mu.Unlock()
}

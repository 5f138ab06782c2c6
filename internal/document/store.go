package document

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/nexusflow/backend/pkg/chunker"
	"github.com/nexusflow/backend/pkg/textextract"
)

var (
	// ErrDuplicate is returned when adding a filename that is already
	// registered. Overwriting would silently orphan the old vectors.
	ErrDuplicate = errors.New("document already exists")

	// ErrNotFound is returned for operations on unknown filenames.
	ErrNotFound = errors.New("document not found")
)

// Document is a knowledge-base file with its derived chunks. Content is
// immutable once chunked; re-chunking requires delete and re-add.
type Document struct {
	Name    string   `json:"name"`
	Content string   `json:"-"`
	Chunks  []string `json:"-"`
	Size    int      `json:"size"`
}

// ChunkID builds the stable join key between a chunk and its vector. It must
// not change across restarts while content and chunking parameters are
// unchanged.
func ChunkID(name string, index int) string {
	return fmt.Sprintf("%s_%d", name, index)
}

// Store is the in-memory registry of loaded documents, backed by a
// directory of plain files. The directory is the ultimate source of truth
// for the whole knowledge base.
type Store struct {
	dir       string
	chunkOpts chunker.Options

	mu    sync.RWMutex
	docs  map[string]*Document
	order []string
}

func NewStore(dir string, opts chunker.Options) *Store {
	return &Store{
		dir:       dir,
		chunkOpts: opts,
		docs:      make(map[string]*Document),
	}
}

// LoadAll scans the documents directory and registers every supported file.
// Individual read failures are logged and skipped; only a missing,
// uncreatable directory fails the load.
func (s *Store) LoadAll() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create documents dir: %w", err)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read documents dir: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !textextract.Supported(entry.Name()) {
			continue
		}

		content, err := textextract.ExtractFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			slog.Warn("skipping unreadable document", "file", entry.Name(), "error", err)
			continue
		}

		s.register(entry.Name(), content)
		loaded++
	}

	slog.Info("documents loaded", "dir", s.dir, "count", loaded)
	return nil
}

// Add persists content under filename and registers the document. The
// default contract rejects duplicates.
func (s *Store) Add(filename, content string) (*Document, error) {
	s.mu.RLock()
	_, exists := s.docs[filename]
	s.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, filename)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create documents dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, filename), []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("write document %s: %w", filename, err)
	}

	return s.register(filename, content), nil
}

// Delete removes the persisted file and the registry entry. The removed
// document is returned so the caller can cascade-delete its chunk vectors.
func (s *Store) Delete(filename string) (*Document, error) {
	s.mu.Lock()
	doc, exists := s.docs[filename]
	if !exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	delete(s.docs, filename)
	for i, name := range s.order {
		if name == filename {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if err := os.Remove(filepath.Join(s.dir, filename)); err != nil && !os.IsNotExist(err) {
		return doc, fmt.Errorf("remove document %s: %w", filename, err)
	}
	return doc, nil
}

// List returns documents in insertion order, which keeps search iteration
// and therefore tie-breaking deterministic.
func (s *Store) List() []*Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]*Document, 0, len(s.order))
	for _, name := range s.order {
		docs = append(docs, s.docs[name])
	}
	return docs
}

func (s *Store) Get(filename string) (*Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[filename]
	return doc, ok
}

func (s *Store) register(filename, content string) *Document {
	doc := &Document{
		Name:    filename,
		Content: content,
		Chunks:  chunker.Chunk(content, s.chunkOpts),
		Size:    len(content),
	}

	s.mu.Lock()
	s.docs[filename] = doc
	s.order = append(s.order, filename)
	s.mu.Unlock()

	return doc
}

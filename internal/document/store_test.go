package document

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusflow/backend/pkg/chunker"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	return NewStore(dir, chunker.DefaultOptions()), dir
}

func TestChunkID(t *testing.T) {
	assert.Equal(t, "guide.txt_0", ChunkID("guide.txt", 0))
	assert.Equal(t, "faq.md_12", ChunkID("faq.md", 12))
}

func TestAddAndGet(t *testing.T) {
	store, dir := newTestStore(t)

	doc, err := store.Add("guide.txt", "Cryoablation freezes tumor tissue. The probe reaches minus 140 degrees.")
	require.NoError(t, err)
	assert.Equal(t, "guide.txt", doc.Name)
	assert.NotEmpty(t, doc.Chunks)

	// Content persisted to disk.
	data, err := os.ReadFile(filepath.Join(dir, "guide.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Cryoablation")

	got, ok := store.Get("guide.txt")
	require.True(t, ok)
	assert.Equal(t, doc, got)
}

func TestAddRejectsDuplicate(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Add("guide.txt", "first")
	require.NoError(t, err)

	_, err = store.Add("guide.txt", "second")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestDelete(t *testing.T) {
	store, dir := newTestStore(t)

	_, err := store.Add("guide.txt", "some content here.")
	require.NoError(t, err)

	doc, err := store.Delete("guide.txt")
	require.NoError(t, err)
	assert.Equal(t, "guide.txt", doc.Name)

	_, ok := store.Get("guide.txt")
	assert.False(t, ok)
	assert.NoFileExists(t, filepath.Join(dir, "guide.txt"))
}

func TestDeleteUnknown(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Delete("missing.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPreservesInsertionOrder(t *testing.T) {
	store, _ := newTestStore(t)

	for _, name := range []string{"b.txt", "a.txt", "c.md"} {
		_, err := store.Add(name, "content of "+name)
		require.NoError(t, err)
	}

	docs := store.List()
	require.Len(t, docs, 3)
	assert.Equal(t, "b.txt", docs[0].Name)
	assert.Equal(t, "a.txt", docs[1].Name)
	assert.Equal(t, "c.md", docs[2].Name)
}

func TestLoadAllScansSupportedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("Plain text file."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("# Markdown file"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vectors.json"), []byte("[]"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte{0x89}, 0o644))

	store := NewStore(dir, chunker.DefaultOptions())
	require.NoError(t, store.LoadAll())

	docs := store.List()
	require.Len(t, docs, 2)

	names := []string{docs[0].Name, docs[1].Name}
	assert.Contains(t, names, "a.txt")
	assert.Contains(t, names, "b.md")
}

func TestLoadAllCreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "knowledge_base")
	store := NewStore(dir, chunker.DefaultOptions())

	require.NoError(t, store.LoadAll())
	assert.DirExists(t, dir)
	assert.Empty(t, store.List())
}

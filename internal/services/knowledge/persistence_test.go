// File: internal/services/knowledge/persistence_test.go
package knowledge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialforge/protocol-agent/internal/domain"
)

func TestPersistence_SaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	persistence, err := NewPersistence(dir)
	require.NoError(t, err)

	source := newTestStore(nil)
	require.NoError(t, source.Add(testDoc("d1", "第一段内容", "方案模板", "a.txt", 0, []float64{0.1, 0.2, 0.3})))
	source.AddFile(domain.UploadedFile{Filename: "a_20250101_120000.txt", OriginalName: "a.txt", ChunksCount: 1})
	require.NoError(t, persistence.Save(source))

	restored := newTestStore(nil)
	persistence.Load(restored)

	assert.Equal(t, 1, restored.DocumentCount())
	files := restored.Files()
	require.Len(t, files, 1)
	assert.Equal(t, "a.txt", files[0].OriginalName)

	_, docs, _, err := restored.FileDetails("a.txt")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, docs[0].Embedding)
}

func TestPersistence_LoadMissingSnapshotStartsEmpty(t *testing.T) {
	persistence, err := NewPersistence(t.TempDir())
	require.NoError(t, err)

	store := newTestStore(nil)
	persistence.Load(store)

	assert.Zero(t, store.DocumentCount())
	assert.Empty(t, store.Files())
}

func TestPersistence_LoadCorruptSnapshotStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	persistence, err := NewPersistence(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "embedded_documents.json"), []byte("{not json"), 0o644))

	store := newTestStore(nil)
	persistence.Load(store)

	assert.Zero(t, store.DocumentCount())
}

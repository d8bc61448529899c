// File: internal/services/knowledge/persistence.go
package knowledge

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/trialforge/protocol-agent/internal/domain"
)

const (
	vectorStoreFile   = "embedded_documents.json"
	uploadedFilesFile = "uploaded_files.json"
)

// Persistence snapshots the store to two independent JSON arrays on disk.
// Loading tolerates missing or corrupt files by returning empty lists; the
// store simply starts empty rather than refusing to boot.
type Persistence struct {
	dataDir string
}

func NewPersistence(dataDir string) (*Persistence, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, &StoreError{Type: ErrTypeSnapshot, Operation: "init",
			Message: "cannot create data directory", Cause: err}
	}
	return &Persistence{dataDir: dataDir}, nil
}

// Load restores a previous snapshot into the store.
func (p *Persistence) Load(store *Store) {
	var docs []domain.EmbeddedDocument
	var files []domain.UploadedFile
	loadJSON(filepath.Join(p.dataDir, vectorStoreFile), &docs)
	loadJSON(filepath.Join(p.dataDir, uploadedFilesFile), &files)
	if docs == nil {
		docs = []domain.EmbeddedDocument{}
	}
	if files == nil {
		files = []domain.UploadedFile{}
	}
	store.restore(docs, files)
}

// Save writes the current store contents to disk.
func (p *Persistence) Save(store *Store) error {
	docs, files := store.snapshot()
	if err := saveJSON(filepath.Join(p.dataDir, vectorStoreFile), docs); err != nil {
		return &StoreError{Type: ErrTypeSnapshot, Operation: "save",
			Message: "cannot save document snapshot", Cause: err}
	}
	if err := saveJSON(filepath.Join(p.dataDir, uploadedFilesFile), files); err != nil {
		return &StoreError{Type: ErrTypeSnapshot, Operation: "save",
			Message: "cannot save file-record snapshot", Cause: err}
	}
	return nil
}

func loadJSON(path string, target any) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	// A corrupt snapshot leaves the target untouched (empty).
	_ = json.Unmarshal(data, target)
}

func saveJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

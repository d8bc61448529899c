// File: internal/services/knowledge/store.go
package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/trialforge/protocol-agent/internal/domain"
	"github.com/trialforge/protocol-agent/internal/services"
)

// ScoreThreshold is the minimum similarity for a search hit to be returned.
const ScoreThreshold = 0.1

// BuiltinKnowledgeTypes are the corpus categories the stats API always
// reports, even at zero documents; the frontend builds its type picker from
// these keys.
var BuiltinKnowledgeTypes = []string{
	"临床试验方案示例",
	"肿瘤临床指南",
	"医学文献",
	"CGT药物研发资料",
	"Excel数据表",
	"用户上传文档",
}

// Embedder turns query text into a vector. Satisfied by ai.Service.
type Embedder interface {
	CreateEmbedding(ctx context.Context, text string) ([]float64, error)
}

// Store is the in-memory knowledge base: embedded document chunks plus the
// bookkeeping records of the files they came from. Search is a brute-force
// linear scan, which is fine at the hundreds-to-thousands scale this serves.
// All state is guarded by one RWMutex; searches scan under the read lock so
// a concurrent delete can never produce an inconsistent result set.
type Store struct {
	mu       sync.RWMutex
	docs     []domain.EmbeddedDocument
	files    []domain.UploadedFile
	embedder Embedder
	logger   services.Logger
}

func NewStore(embedder Embedder, logger services.Logger) *Store {
	return &Store{embedder: embedder, logger: logger}
}

// Add appends a document. Ids must be unique across the store.
func (s *Store) Add(doc domain.EmbeddedDocument) error {
	if doc.Content == "" {
		return &StoreError{Type: ErrTypeConflict, Operation: "add", Message: "empty content"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.docs {
		if existing.ID == doc.ID {
			return &StoreError{Type: ErrTypeConflict, Operation: "add",
				Message: fmt.Sprintf("duplicate document id %q", doc.ID)}
		}
	}
	s.docs = append(s.docs, doc)
	return nil
}

// AddFile records the bookkeeping entry for an ingested file.
func (s *Store) AddFile(file domain.UploadedFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, file)
}

// Search embeds the query and ranks every stored document by cosine
// similarity, optionally restricted to a set of knowledge types. An empty
// store returns an empty result set, not an error. Documents whose embedding
// dimension does not match the query are skipped with a warning.
func (s *Store) Search(ctx context.Context, query string, topK int, types []string) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}

	s.mu.RLock()
	empty := len(s.docs) == 0
	s.mu.RUnlock()
	if empty {
		return []domain.SearchResult{}, nil
	}

	queryEmbedding, err := s.embedder.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, NewEmbeddingError("search", err)
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]domain.SearchResult, 0)
	for _, doc := range s.docs {
		if len(typeSet) > 0 && !typeSet[doc.KnowledgeType] {
			continue
		}
		score, err := CosineSimilarity(queryEmbedding, doc.Embedding)
		if err != nil {
			s.logger.Warn("skipping document with mismatched embedding dimension",
				"doc_id", doc.ID, "error", err)
			continue
		}
		if score > ScoreThreshold {
			results = append(results, domain.SearchResult{
				KnowledgeType: doc.KnowledgeType,
				Content:       doc.Content,
				Metadata:      doc.Metadata,
				Score:         score,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// DeleteByFilename removes the matching file record and every document whose
// source file equals the record's original name. Returns the number of
// vector documents removed.
func (s *Store) DeleteByFilename(filename string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recordIdx := -1
	for i, f := range s.files {
		if f.Filename == filename {
			recordIdx = i
			break
		}
	}
	if recordIdx < 0 {
		return 0, NewNotFoundError("delete", fmt.Sprintf("file %q not found", filename))
	}
	record := s.files[recordIdx]
	s.files = append(s.files[:recordIdx], s.files[recordIdx+1:]...)

	kept := s.docs[:0]
	deleted := 0
	for _, doc := range s.docs {
		if doc.Metadata.SourceFile == record.OriginalName {
			deleted++
			continue
		}
		kept = append(kept, doc)
	}
	s.docs = kept
	return deleted, nil
}

// StatsByType recomputes document counts per knowledge type from the live
// document list, so the result is always consistent with current state.
func (s *Store) StatsByType() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := make(map[string]int)
	for _, doc := range s.docs {
		stats[doc.KnowledgeType]++
	}
	return stats
}

// DocumentCount returns the total number of stored documents.
func (s *Store) DocumentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Files returns a copy of the uploaded-file records.
func (s *Store) Files() []domain.UploadedFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UploadedFile, len(s.files))
	copy(out, s.files)
	return out
}

// FileDetails returns the record for filename (stored or original name),
// its documents in chunk order, and the full text reconstructed from them.
func (s *Store) FileDetails(filename string) (domain.UploadedFile, []domain.EmbeddedDocument, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var record *domain.UploadedFile
	for i := range s.files {
		if s.files[i].Filename == filename || s.files[i].OriginalName == filename {
			record = &s.files[i]
			break
		}
	}
	if record == nil {
		return domain.UploadedFile{}, nil, "", NewNotFoundError("details", fmt.Sprintf("file %q not found", filename))
	}

	var docs []domain.EmbeddedDocument
	for _, doc := range s.docs {
		if doc.Metadata.SourceFile == record.OriginalName {
			docs = append(docs, doc)
		}
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].Metadata.ChunkIndex < docs[j].Metadata.ChunkIndex
	})

	var b strings.Builder
	for i, doc := range docs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(doc.Content)
	}
	return *record, docs, b.String(), nil
}

// snapshot copies both lists under the read lock for persistence.
func (s *Store) snapshot() ([]domain.EmbeddedDocument, []domain.UploadedFile) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]domain.EmbeddedDocument, len(s.docs))
	copy(docs, s.docs)
	files := make([]domain.UploadedFile, len(s.files))
	copy(files, s.files)
	return docs, files
}

// restore replaces store contents, used when loading a snapshot at startup.
func (s *Store) restore(docs []domain.EmbeddedDocument, files []domain.UploadedFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = docs
	s.files = files
}

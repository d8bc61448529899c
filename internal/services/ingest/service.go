// File: internal/services/ingest/service.go
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/trialforge/protocol-agent/internal/domain"
	"github.com/trialforge/protocol-agent/internal/services"
	"github.com/trialforge/protocol-agent/internal/services/knowledge"
)

// filePreviewChunks is how many chunks the file record keeps as a preview.
const filePreviewChunks = 3

// UploadResult summarizes one file ingestion. Embedding failures are
// tolerated per chunk, so EmbeddedCount may be lower than ChunksCount.
type UploadResult struct {
	StoredFilename string `json:"file_path"`
	ChunksCount    int    `json:"chunks_count"`
	EmbeddedCount  int    `json:"records_added"`
	Failures       int    `json:"embedding_failures"`
	FileType       string `json:"file_type"`
}

// Service runs the ingestion pipeline: extract text segments, chunk them,
// embed every chunk, and add the results to the knowledge store.
type Service struct {
	store       *knowledge.Store
	embedder    knowledge.Embedder
	persistence *knowledge.Persistence
	logger      services.Logger
	uploadDir   string
	chunkSize   int
	overlap     int
}

func NewService(store *knowledge.Store, embedder knowledge.Embedder, persistence *knowledge.Persistence, uploadDir string, logger services.Logger) (*Service, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create upload directory: %w", err)
	}
	return &Service{
		store:       store,
		embedder:    embedder,
		persistence: persistence,
		logger:      logger,
		uploadDir:   uploadDir,
		chunkSize:   DefaultChunkSize,
		overlap:     DefaultOverlap,
	}, nil
}

// IngestFile processes one uploaded file end to end and records it in the
// knowledge store. A chunk whose embedding fails is skipped, never fatal.
func (s *Service) IngestFile(ctx context.Context, content []byte, originalName, knowledgeType, title string) (*UploadResult, error) {
	storedName := s.saveUpload(content, originalName)
	if title == "" {
		title = originalName
	}
	fileType := filepath.Ext(originalName)

	segments := ExtractText(content, originalName)
	var chunks []string
	for _, segment := range segments {
		chunks = append(chunks, ChunkText(segment, s.chunkSize, s.overlap)...)
	}

	now := time.Now()
	uploadTime := now.Format(time.RFC3339)
	embedded := 0
	for i, chunk := range chunks {
		embedding, err := s.embedder.CreateEmbedding(ctx, chunk)
		if err != nil {
			s.logger.Error("embedding failed for chunk, skipping",
				"file", originalName, "chunk_index", i, "error", err)
			continue
		}
		doc := domain.EmbeddedDocument{
			ID:            fmt.Sprintf("%s_%d_%d", originalName, i, now.UnixNano()),
			Content:       chunk,
			Embedding:     embedding,
			KnowledgeType: knowledgeType,
			Metadata: domain.DocumentMetadata{
				Title:              title,
				SourceFile:         originalName,
				ChunkIndex:         i,
				UploadTime:         uploadTime,
				FileType:           fileType,
				EmbeddingDimension: len(embedding),
			},
		}
		if err := s.store.Add(doc); err != nil {
			s.logger.Error("failed to store chunk", "file", originalName, "chunk_index", i, "error", err)
			continue
		}
		embedded++
	}

	preview := chunks
	if len(preview) > filePreviewChunks {
		preview = preview[:filePreviewChunks]
	}
	s.store.AddFile(domain.UploadedFile{
		Filename:      storedName,
		OriginalName:  originalName,
		Size:          int64(len(content)),
		KnowledgeType: knowledgeType,
		Title:         title,
		UploadTime:    uploadTime,
		ChunksCount:   len(chunks),
		EmbeddedCount: embedded,
		Chunks:        preview,
	})

	if err := s.persistence.Save(s.store); err != nil {
		s.logger.Error("snapshot save failed after ingest", "error", err)
	}

	s.logger.Info("file ingested", "file", originalName,
		"chunks", len(chunks), "embedded", embedded)
	return &UploadResult{
		StoredFilename: storedName,
		ChunksCount:    len(chunks),
		EmbeddedCount:  embedded,
		Failures:       len(chunks) - embedded,
		FileType:       fileType,
	}, nil
}

// DeleteFile removes the file record, its vectors, and the stored upload.
func (s *Service) DeleteFile(filename string) (int, error) {
	deleted, err := s.store.DeleteByFilename(filename)
	if err != nil {
		return 0, err
	}
	path := filepath.Join(s.uploadDir, filepath.Base(filename))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("could not remove stored upload", "path", path, "error", err)
	}
	if err := s.persistence.Save(s.store); err != nil {
		s.logger.Error("snapshot save failed after delete", "error", err)
	}
	return deleted, nil
}

// saveUpload writes the raw bytes under the upload directory, appending a
// timestamp when the name is already taken.
func (s *Service) saveUpload(content []byte, originalName string) string {
	name := filepath.Base(originalName)
	path := filepath.Join(s.uploadDir, name)
	if _, err := os.Stat(path); err == nil {
		ext := filepath.Ext(name)
		stem := name[:len(name)-len(ext)]
		name = fmt.Sprintf("%s_%s%s", stem, time.Now().Format("20060102_150405"), ext)
		path = filepath.Join(s.uploadDir, name)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		s.logger.Warn("could not persist uploaded file", "path", path, "error", err)
	}
	return name
}

// File: internal/domain/document.go
package domain

// DocumentMetadata describes where an embedded chunk came from.
type DocumentMetadata struct {
	Title              string `json:"title"`
	SourceFile         string `json:"source_file"`
	ChunkIndex         int    `json:"chunk_index"`
	UploadTime         string `json:"upload_time"`
	FileType           string `json:"file_type"`
	EmbeddingDimension int    `json:"embedding_dimension"`
}

// EmbeddedDocument is one retrievable unit of the knowledge base: a text
// chunk together with its embedding vector. Immutable once stored.
type EmbeddedDocument struct {
	ID            string           `json:"id"`
	Content       string           `json:"content"`
	Embedding     []float64        `json:"embedding"`
	KnowledgeType string           `json:"knowledge_type"`
	Metadata      DocumentMetadata `json:"metadata"`
}

// UploadedFile is the bookkeeping record for one ingested file. Chunks holds
// only a preview of the first few chunks; the full text is reconstructed on
// demand from the EmbeddedDocuments belonging to the file.
type UploadedFile struct {
	Filename      string   `json:"filename"`
	OriginalName  string   `json:"original_name"`
	Size          int64    `json:"size"`
	KnowledgeType string   `json:"knowledge_type"`
	Title         string   `json:"title"`
	UploadTime    string   `json:"upload_time"`
	ChunksCount   int      `json:"chunks_count"`
	EmbeddedCount int      `json:"embedded_count"`
	Chunks        []string `json:"chunks"`
}

// SearchResult is one ranked hit from a similarity search.
type SearchResult struct {
	KnowledgeType string           `json:"knowledge_type"`
	Content       string           `json:"content"`
	Metadata      DocumentMetadata `json:"metadata"`
	Score         float64          `json:"score"`
}

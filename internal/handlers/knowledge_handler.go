// File: internal/handlers/knowledge_handler.go
package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/trialforge/protocol-agent/internal/config"
	"github.com/trialforge/protocol-agent/internal/services/ingest"
	"github.com/trialforge/protocol-agent/internal/services/knowledge"
)

const maxUploadBytes = 50 << 20 // 50 MiB

// KnowledgeHandler serves the knowledge-base API: uploads, search, stats,
// file listing and deletion.
type KnowledgeHandler struct {
	Store   *knowledge.Store
	Ingest  *ingest.Service
	Runtime *config.Runtime
}

func NewKnowledgeHandler(store *knowledge.Store, ingestService *ingest.Service, runtime *config.Runtime) *KnowledgeHandler {
	return &KnowledgeHandler{Store: store, Ingest: ingestService, Runtime: runtime}
}

// Upload accepts one multipart file plus knowledge_type and title fields,
// runs the full ingestion pipeline, and reports chunk and embedding counts.
func (h *KnowledgeHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, "无法解析上传表单: "+err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, "缺少上传文件", http.StatusBadRequest)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, "读取上传文件失败", http.StatusInternalServerError)
		return
	}

	knowledgeType := r.FormValue("knowledge_type")
	if knowledgeType == "" {
		knowledgeType = "用户上传文档"
	}
	title := r.FormValue("title")

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	result, err := h.Ingest.IngestFile(ctx, content, header.Filename, knowledgeType, title)
	if err != nil {
		writeError(w, "文件上传失败: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       fmt.Sprintf("文件 %s 上传并向量化成功", header.Filename),
		"file_path":     result.StoredFilename,
		"records_added": result.EmbeddedCount,
		"chunks_count":  result.ChunksCount,
		"processing_info": map[string]any{
			"file_type":          result.FileType,
			"chunking_applied":   true,
			"embedding_applied":  result.EmbeddedCount > 0,
			"embedding_failures": result.Failures,
		},
	})
}

// Search runs a vector similarity search. Result content is truncated to a
// 200-rune preview.
func (h *KnowledgeHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		writeError(w, "query 参数不能为空", http.StatusBadRequest)
		return
	}
	topK := 5
	if v := r.URL.Query().Get("top_k"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, "top_k 必须是正整数", http.StatusBadRequest)
			return
		}
		topK = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	results, err := h.Store.Search(ctx, query, topK, nil)
	if err != nil {
		writeError(w, "向量搜索失败: "+err.Error(), http.StatusBadRequest)
		return
	}

	if h.Store.DocumentCount() == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"results": results,
			"message": "知识库为空，请先上传文档",
		})
		return
	}

	preview := make([]map[string]any, 0, len(results))
	for _, res := range results {
		preview = append(preview, map[string]any{
			"knowledge_type": res.KnowledgeType,
			"content":        truncatePreview(res.Content, 200),
			"metadata":       res.Metadata,
			"score":          res.Score,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"results": preview,
		"search_info": map[string]any{
			"query":               query,
			"total_docs_searched": h.Store.DocumentCount(),
			"results_found":       len(results),
		},
	})
}

func (h *KnowledgeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	byType := h.Store.StatsByType()
	stats := make(map[string]any, len(knowledge.BuiltinKnowledgeTypes)+len(byType))
	for _, knowledgeType := range knowledge.BuiltinKnowledgeTypes {
		stats[knowledgeType] = map[string]any{"document_count": 0}
	}
	for knowledgeType, count := range byType {
		stats[knowledgeType] = map[string]any{"document_count": count}
	}

	totalDocs := h.Store.DocumentCount()
	totalFiles := len(h.Store.Files())
	avg := 0.0
	if totalFiles > 0 {
		avg = float64(totalDocs) / float64(totalFiles)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats":   stats,
		"summary": map[string]any{
			"total_embedded_documents": totalDocs,
			"total_uploaded_files":     totalFiles,
			"avg_docs_per_file":        avg,
			"embedding_model":          h.Runtime.Embedding().Model,
		},
	})
}

func (h *KnowledgeHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":                  true,
		"files":                    h.Store.Files(),
		"total_embedded_documents": h.Store.DocumentCount(),
	})
}

func (h *KnowledgeHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]

	deleted, err := h.Ingest.DeleteFile(filename)
	if err != nil {
		if knowledge.IsNotFound(err) {
			writeError(w, "文件未找到", http.StatusNotFound)
			return
		}
		writeError(w, "删除文件失败: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"deleted_count":   1,
		"deleted_vectors": deleted,
		"message":         fmt.Sprintf("文件 %s 和 %d 个向量记录删除成功", filename, deleted),
	})
}

// FileDetails returns the stored record, its chunks and the reconstructed
// text of one uploaded file.
func (h *KnowledgeHandler) FileDetails(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]

	file, docs, reconstructed, err := h.Store.FileDetails(filename)
	if err != nil {
		if knowledge.IsNotFound(err) {
			writeError(w, fmt.Sprintf("文件 %s 未找到", filename), http.StatusNotFound)
			return
		}
		writeError(w, "获取文件详情失败: "+err.Error(), http.StatusInternalServerError)
		return
	}

	chunks := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		chunks = append(chunks, map[string]any{
			"chunk_index":         doc.Metadata.ChunkIndex,
			"content":             doc.Content,
			"embedding_dimension": doc.Metadata.EmbeddingDimension,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"file_info":          file,
		"chunks":             chunks,
		"reconstructed_text": reconstructed,
		"total_chunks":       len(docs),
	})
}

func truncatePreview(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

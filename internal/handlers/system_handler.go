// File: internal/handlers/system_handler.go
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/trialforge/protocol-agent/internal/config"
	"github.com/trialforge/protocol-agent/internal/services/ai"
	"github.com/trialforge/protocol-agent/internal/services/knowledge"
)

const serviceVersion = "1.0.0"

// SystemHandler serves service metadata, connectivity tests, plain chat
// and the runtime configuration API.
type SystemHandler struct {
	AI      ai.Service
	Runtime *config.Runtime
	Store   *knowledge.Store
}

func NewSystemHandler(aiService ai.Service, runtime *config.Runtime, store *knowledge.Store) *SystemHandler {
	return &SystemHandler{AI: aiService, Runtime: runtime, Store: store}
}

func (h *SystemHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "医学AI Agent - 临床试验方案智能撰写API",
		"version": serviceVersion,
		"status":  "running",
	})
}

func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"service":   "protocol-agent",
	})
}

func (h *SystemHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"version": serviceVersion,
		"knowledge_base_status": map[string]any{
			"status":             "ready",
			"embedded_documents": h.Store.DocumentCount(),
			"types":              h.Store.StatsByType(),
		},
		"available_models": []string{"local", "openai", "deepseek"},
	})
}

// TestLLM performs a round trip against the completion backend.
func (h *SystemHandler) TestLLM(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	reply, err := h.AI.GetCompletion(ctx, "你好，这是一个连接测试。请简短回复确认你能正常工作。", "", 0.3)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "LLM连接测试失败: " + err.Error(),
		})
		return
	}

	llm := h.Runtime.LLM()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "LLM连接测试成功",
		"response": reply,
		"model_config": map[string]any{
			"url":   llm.BaseURL,
			"model": llm.Model,
		},
	})
}

// TestEmbedding embeds a known sentence and reports the vector shape.
func (h *SystemHandler) TestEmbedding(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	vector, err := h.AI.CreateEmbedding(ctx, "这是一个测试文本，用于验证嵌入模型功能")
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "嵌入模型API测试失败: " + err.Error(),
		})
		return
	}

	sample := vector
	if len(sample) > 5 {
		sample = sample[:5]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       "嵌入模型API测试成功",
		"model_name":    h.Runtime.Embedding().Model,
		"dimension":     len(vector),
		"sample_values": sample,
	})
}

type chatRequest struct {
	Message     string  `json:"message"`
	Temperature float64 `json:"temperature"`
}

func (h *SystemHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if req.Temperature == 0 {
		req.Temperature = 0.3
	}

	ctx, cancel := context.WithTimeout(r.Context(), 120*time.Second)
	defer cancel()

	reply, err := h.AI.GetCompletion(ctx, req.Message, "", req.Temperature)
	if err != nil {
		writeError(w, "对话失败: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    req.Message,
		"response":   reply,
		"timestamp":  time.Now().Format(time.RFC3339),
		"model_used": h.Runtime.LLM().Model,
	})
}

func (h *SystemHandler) ChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if req.Temperature == 0 {
		req.Temperature = 0.3
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	err = h.AI.StreamCompletion(r.Context(), req.Message, "", req.Temperature, func(delta string) error {
		return sse.Send(map[string]any{"content": delta})
	})
	if err != nil {
		sse.SendError(err.Error())
		return
	}
	_ = sse.Send(map[string]any{"done": true})
}

func (h *SystemHandler) CurrentConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"config": map[string]any{
			"llm":       h.Runtime.LLM(),
			"embedding": h.Runtime.Embedding(),
		},
	})
}

// UpdateConfig swaps backend settings at runtime. The form field names
// match the frontend's configuration panel.
func (h *SystemHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, "无法解析配置表单", http.StatusBadRequest)
		return
	}

	temperature, err := strconv.ParseFloat(formValue(r, "llm_temperature", "0.3"), 64)
	if err != nil {
		writeError(w, "llm_temperature 必须是数字", http.StatusBadRequest)
		return
	}
	dimension, err := strconv.Atoi(formValue(r, "embed_dimension", "1024"))
	if err != nil {
		writeError(w, "embed_dimension 必须是整数", http.StatusBadRequest)
		return
	}

	llmKey := r.FormValue("llm_key")
	if llmKey == "" {
		llmKey = "local-api-key"
	}

	h.Runtime.SetLLM(config.BackendSettings{
		BaseURL:     formValue(r, "llm_url", "https://v1.voct.top/v1"),
		APIKey:      llmKey,
		Model:       formValue(r, "llm_model", "gpt-4.1-mini"),
		Temperature: temperature,
	})
	h.Runtime.SetEmbedding(config.BackendSettings{
		BaseURL:   r.FormValue("embed_url"),
		APIKey:    r.FormValue("embed_key"),
		Model:     formValue(r, "embed_model", "auto"),
		Dimension: dimension,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "配置更新成功",
		"config": map[string]any{
			"llm":       h.Runtime.LLM(),
			"embedding": h.Runtime.Embedding(),
		},
	})
}

func formValue(r *http.Request, key, fallback string) string {
	if v := r.FormValue(key); v != "" {
		return v
	}
	return fallback
}

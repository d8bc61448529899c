// File: internal/handlers/protocol_handler.go
package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/trialforge/protocol-agent/internal/domain"
	"github.com/trialforge/protocol-agent/internal/repository/history"
	"github.com/trialforge/protocol-agent/internal/services"
	"github.com/trialforge/protocol-agent/internal/services/protocol"
)

// ProtocolHandler serves the generation pipeline: key-info extraction,
// outline building, streaming protocol drafting, exports and run history.
type ProtocolHandler struct {
	Pipeline *protocol.Pipeline
	History  history.HistoryRepository
	Logger   services.Logger
	markdown goldmark.Markdown
}

func NewProtocolHandler(pipeline *protocol.Pipeline, historyRepo history.HistoryRepository, logger services.Logger) *ProtocolHandler {
	return &ProtocolHandler{
		Pipeline: pipeline,
		History:  historyRepo,
		Logger:   logger,
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM, extension.CJK)),
	}
}

type extractionRequest struct {
	InputText string `json:"input_text"`
}

type outlineRequest struct {
	ConfirmedInfo domain.KeyInfo `json:"confirmed_info"`
	OriginalInput string         `json:"original_input"`
}

type streamSettingsPayload struct {
	IncludeReferences   *bool    `json:"include_references"`
	IncludeQualityCheck *bool    `json:"include_quality_check"`
	DetailLevel         *float64 `json:"detail_level"`
}

// toSettings applies per-key defaults: absent keys keep the default value.
func (p *streamSettingsPayload) toSettings() protocol.StreamSettings {
	settings := protocol.DefaultStreamSettings()
	if p == nil {
		return settings
	}
	if p.IncludeReferences != nil {
		settings.IncludeReferences = *p.IncludeReferences
	}
	if p.IncludeQualityCheck != nil {
		settings.IncludeQualityCheck = *p.IncludeQualityCheck
	}
	if p.DetailLevel != nil {
		settings.DetailLevel = *p.DetailLevel
	}
	return settings
}

type protocolStreamRequest struct {
	ConfirmedInfo domain.KeyInfo          `json:"confirmed_info"`
	Outline       []domain.OutlineSection `json:"outline"`
	OriginalInput string                  `json:"original_input"`
	Settings      *streamSettingsPayload  `json:"settings"`
}

type sectionRequest struct {
	Section        domain.OutlineSection  `json:"section"`
	ConfirmedInfo  domain.KeyInfo         `json:"confirmed_info"`
	KnowledgeTypes []string               `json:"knowledge_types"`
	CustomPrompt   string                 `json:"custom_prompt"`
	Settings       *streamSettingsPayload `json:"settings"`
}

type exportRequest struct {
	Content  string         `json:"content"`
	Format   string         `json:"format"`
	Metadata map[string]any `json:"metadata"`
}

// ExtractKeyInfo runs the extraction stage and reports the structured facts
// with a quality grade.
func (h *ProtocolHandler) ExtractKeyInfo(w http.ResponseWriter, r *http.Request) {
	var req extractionRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, "Bad Request", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 120*time.Second)
	defer cancel()

	result, err := h.Pipeline.ExtractKeyInfo(ctx, req.InputText)
	if err != nil {
		writeError(w, "关键信息提取失败: "+err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"extracted_info":     result.Info,
		"extraction_quality": result.Quality,
		"degraded":           result.Degraded,
		"source":             result.Source,
		"original_response":  result.Raw,
		"prompt":             result.Prompt,
	})
}

// ExtractKeyInfoStream streams extraction deltas, then the parsed facts.
func (h *ProtocolHandler) ExtractKeyInfoStream(w http.ResponseWriter, r *http.Request) {
	var req extractionRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, "Bad Request", http.StatusBadRequest)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	prompt, system := h.Pipeline.StreamExtractionPrompt(req.InputText)
	if err := sse.Send(map[string]any{"type": "system_prompt", "content": prompt}); err != nil {
		return
	}

	var accumulated strings.Builder
	err = h.Pipeline.StreamRaw(r.Context(), prompt, system, 0.1, func(delta string) error {
		accumulated.WriteString(delta)
		return sse.Send(map[string]any{"type": "content", "content": delta})
	})
	if err != nil {
		sse.SendError(err.Error())
		return
	}

	info, ok := protocol.ParseExtraction(accumulated.String())
	if !ok {
		_ = sse.Send(map[string]any{"type": "error", "content": "信息解析失败"})
	} else {
		_ = sse.Send(map[string]any{"type": "extracted_info", "content": info})
	}
	_ = sse.Send(map[string]any{"type": "done", "content": ""})
}

// GenerateOutline builds the chapter outline from confirmed facts.
func (h *ProtocolHandler) GenerateOutline(w http.ResponseWriter, r *http.Request) {
	var req outlineRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, "Bad Request", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 120*time.Second)
	defer cancel()

	result, err := h.Pipeline.GenerateOutline(ctx, req.ConfirmedInfo, req.OriginalInput)
	if err != nil {
		writeError(w, "大纲生成失败: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"outline":           result.Sections,
		"degraded":          result.Degraded,
		"original_response": result.Raw,
		"prompt":            result.Prompt,
	})
}

// GenerateOutlineStream streams outline deltas, then the parsed outline
// (or the standard template when parsing fails).
func (h *ProtocolHandler) GenerateOutlineStream(w http.ResponseWriter, r *http.Request) {
	var req outlineRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, "Bad Request", http.StatusBadRequest)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	prompt, system := h.Pipeline.StreamOutlinePrompt(req.ConfirmedInfo)
	if err := sse.Send(map[string]any{"type": "system_prompt", "content": prompt}); err != nil {
		return
	}

	var accumulated strings.Builder
	err = h.Pipeline.StreamRaw(r.Context(), prompt, system, 0.2, func(delta string) error {
		accumulated.WriteString(delta)
		return sse.Send(map[string]any{"type": "content", "content": delta})
	})
	if err != nil {
		sse.SendError(err.Error())
		return
	}

	outline, ok := protocol.ParseOutline(accumulated.String())
	if !ok {
		outline = protocol.StandardOutline()
	}
	_ = sse.Send(map[string]any{"type": "outline", "content": outline})
	_ = sse.Send(map[string]any{"type": "done", "content": ""})
}

// GenerateProtocolStream runs the full outline-driven generation over SSE
// and records the finished run in the history store.
func (h *ProtocolHandler) GenerateProtocolStream(w http.ResponseWriter, r *http.Request) {
	var req protocolStreamRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if len(req.Outline) == 0 {
		writeError(w, "outline 不能为空", http.StatusBadRequest)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	settings := req.Settings.toSettings()
	result, err := h.Pipeline.GenerateProtocolStream(r.Context(), req.ConfirmedInfo, req.Outline, settings, func(event protocol.StreamEvent) error {
		return sse.Send(event)
	})
	if err != nil {
		if r.Context().Err() == nil {
			sse.SendError(err.Error())
		}
		return
	}

	h.recordRun(req, result)
}

// recordRun persists a finished generation. Failures only log: history is
// bookkeeping, not part of the response.
func (h *ProtocolHandler) recordRun(req protocolStreamRequest, result *protocol.RunResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	record := &domain.GenerationRecord{
		RunID:        result.RunID,
		Requirement:  req.OriginalInput,
		DrugType:     req.ConfirmedInfo.GetString("drug_type", ""),
		Indication:   req.ConfirmedInfo.GetString("indication", ""),
		StudyPhase:   req.ConfirmedInfo.GetString("study_phase", ""),
		SectionCount: result.Sections,
		TotalLength:  len(result.Content),
		QualityScore: float64(result.QualityScore),
	}
	if _, err := h.History.Create(ctx, record); err != nil {
		h.Logger.Error("failed to record generation run", "run_id", result.RunID, "error", err)
	}
}

// GetSectionPrompt returns the drafting prompt one section would use.
func (h *ProtocolHandler) GetSectionPrompt(w http.ResponseWriter, r *http.Request) {
	var req sectionRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, "Bad Request", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	prompt, err := h.Pipeline.BuildSectionStreamPrompt(ctx, protocol.SectionRequest{
		Section:        req.Section,
		Info:           req.ConfirmedInfo,
		KnowledgeTypes: req.KnowledgeTypes,
	})
	if err != nil {
		writeError(w, "生成提示词失败: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompt": prompt})
}

// GenerateSectionStream drafts a single section over SSE.
func (h *ProtocolHandler) GenerateSectionStream(w http.ResponseWriter, r *http.Request) {
	var req sectionRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, "Bad Request", http.StatusBadRequest)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	prompt, err := h.Pipeline.BuildSectionStreamPrompt(r.Context(), protocol.SectionRequest{
		Section:        req.Section,
		Info:           req.ConfirmedInfo,
		KnowledgeTypes: req.KnowledgeTypes,
		CustomPrompt:   req.CustomPrompt,
	})
	if err != nil {
		sse.SendError(err.Error())
		return
	}
	if err := sse.Send(map[string]any{"type": "system_prompt", "content": prompt}); err != nil {
		return
	}

	settings := req.Settings.toSettings()
	err = h.Pipeline.StreamSection(r.Context(), prompt, settings.DetailLevel, func(delta string) error {
		return sse.Send(map[string]any{"content": delta})
	})
	if err != nil {
		sse.SendError(err.Error())
		return
	}
	_ = sse.Send(map[string]any{"done": true})
}

// ExportProtocol returns the assembled protocol as a downloadable file.
// Markdown passes through; html renders via goldmark.
func (h *ProtocolHandler) ExportProtocol(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		writeError(w, "content 不能为空", http.StatusBadRequest)
		return
	}

	switch strings.ToLower(req.Format) {
	case "html":
		var buf bytes.Buffer
		if err := h.markdown.Convert([]byte(req.Content), &buf); err != nil {
			writeError(w, "导出失败: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Disposition", "attachment; filename=protocol.html")
		w.Write(buf.Bytes())
	case "", "markdown", "md":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Content-Disposition", "attachment; filename=protocol.md")
		w.Write([]byte(req.Content))
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=protocol.%s", req.Format))
		w.Write([]byte(req.Content))
	}
}

type generateRequest struct {
	Requirement string  `json:"requirement"`
	Temperature float64 `json:"temperature"`
}

// Generate runs the fixed seven-module pipeline in one blocking call:
// extraction, background retrieval, per-module drafting and a final
// quality report.
func (h *ProtocolHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if req.Temperature == 0 {
		req.Temperature = 0.3
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Minute)
	defer cancel()

	extraction, err := h.Pipeline.ExtractKeyInfo(ctx, req.Requirement)
	if err != nil {
		writeError(w, "关键信息提取失败: "+err.Error(), http.StatusBadRequest)
		return
	}

	docs := h.Pipeline.SearchKnowledgeForProtocol(ctx, extraction.Info)

	var progress []domain.ProgressEvent
	content := h.Pipeline.GenerateModules(ctx, req.Requirement, extraction.Info, docs, req.Temperature, func(event domain.ProgressEvent) {
		progress = append(progress, event)
	})

	report := h.Pipeline.CheckQuality(ctx, content)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"extracted_info":   extraction.Info,
		"protocol_content": content,
		"module_order":     protocol.ModuleNames(),
		"knowledge_used":   len(docs),
		"quality_report":   report,
		"progress":         progress,
	})
}

// ListHistory returns recorded generation runs, newest first.
func (h *ProtocolHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	records, err := h.History.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, "获取生成历史失败", http.StatusInternalServerError)
		return
	}
	total, err := h.History.Count(r.Context())
	if err != nil {
		writeError(w, "获取生成历史失败", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"records": records,
		"total":   total,
	})
}

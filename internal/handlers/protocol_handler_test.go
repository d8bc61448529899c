// File: internal/handlers/protocol_handler_test.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/trialforge/protocol-agent/internal/domain"
	"github.com/trialforge/protocol-agent/internal/repository/history"
	"github.com/trialforge/protocol-agent/internal/services"
	"github.com/trialforge/protocol-agent/internal/services/protocol"
)

// scriptedLLM answers completions by inspecting the prompt, so one fake
// serves every pipeline stage.
type scriptedLLM struct {
	complete func(prompt string) (string, error)
	stream   func(prompt string, onDelta func(string) error) error
}

func (s *scriptedLLM) GetCompletion(_ context.Context, prompt, _ string, _ float64) (string, error) {
	if s.complete == nil {
		return "", errors.New("completion not configured")
	}
	return s.complete(prompt)
}

func (s *scriptedLLM) StreamCompletion(_ context.Context, prompt, _ string, _ float64, onDelta func(string) error) error {
	if s.stream == nil {
		return errors.New("stream not configured")
	}
	return s.stream(prompt, onDelta)
}

type emptyRetriever struct{}

func (emptyRetriever) Search(context.Context, string, int, []string) ([]domain.SearchResult, error) {
	return nil, nil
}

const extractionJSON = `{"drug_type": "CAR-T细胞", "disease": "淋巴瘤", "trial_phase": "I期",
	"primary_objective": "评估安全性", "primary_endpoint": "DLT和MTD",
	"patient_population": "复发难治性淋巴瘤患者", "estimated_enrollment": "12-30例",
	"study_design": "剂量递增"}`

const longSection = "本章节系统阐述研究设计的科学依据、受试者的入选与排除标准、给药方案以及安全性监测计划，确保研究符合ICH-GCP及相关法规要求并保障受试者权益。"

func newTestProtocolHandler(t *testing.T, llm *scriptedLLM) (*ProtocolHandler, history.HistoryRepository) {
	t.Helper()
	pipeline, err := protocol.NewPipeline(llm, emptyRetriever{}, protocol.DefaultConfig(), services.NoopLogger{})
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.GenerationRecord{}))
	repo := history.NewHistoryRepository(db)

	return NewProtocolHandler(pipeline, repo, services.NoopLogger{}), repo
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

// sseEvents parses every `data: {...}` frame in an SSE response body.
func sseEvents(t *testing.T, body string) []map[string]any {
	t.Helper()
	var events []map[string]any
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		events = append(events, event)
	}
	return events
}

func TestExtractKeyInfoEndpoint(t *testing.T) {
	llm := &scriptedLLM{complete: func(string) (string, error) { return extractionJSON, nil }}
	handler, _ := newTestProtocolHandler(t, llm)

	rec := postJSON(t, handler.ExtractKeyInfo, "/extract_key_info",
		map[string]string{"input_text": "CAR-T治疗复发难治性淋巴瘤的I期研究"})

	require.Equal(t, http.StatusOK, rec.Code)
	payload := decodeBody(t, rec)
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, "llm", payload["source"])

	info, ok := payload["extracted_info"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "CAR-T细胞", info["drug_type"])
}

func TestExtractKeyInfoEndpoint_EmptyInput(t *testing.T) {
	handler, _ := newTestProtocolHandler(t, &scriptedLLM{})

	rec := postJSON(t, handler.ExtractKeyInfo, "/extract_key_info", map[string]string{"input_text": ""})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeBody(t, rec)
	assert.Equal(t, false, payload["success"])
	assert.Contains(t, payload["error"], "关键信息提取失败")
}

func TestExtractKeyInfoEndpoint_MalformedBody(t *testing.T) {
	handler, _ := newTestProtocolHandler(t, &scriptedLLM{})

	req := httptest.NewRequest(http.MethodPost, "/extract_key_info", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	handler.ExtractKeyInfo(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateOutlineEndpoint(t *testing.T) {
	llm := &scriptedLLM{complete: func(string) (string, error) {
		return `[{"title": "1. 研究背景与目的", "subsections": ["1.1 疾病背景"]}]`, nil
	}}
	handler, _ := newTestProtocolHandler(t, llm)

	rec := postJSON(t, handler.GenerateOutline, "/generate_outline", map[string]any{
		"confirmed_info": map[string]any{"drug_type": "CAR-T细胞"},
		"original_input": "原始需求",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	payload := decodeBody(t, rec)
	assert.Equal(t, false, payload["degraded"])
	outline, ok := payload["outline"].([]any)
	require.True(t, ok)
	assert.Len(t, outline, 1)
}

func TestGenerateProtocolStreamEndpoint(t *testing.T) {
	llm := &scriptedLLM{
		stream: func(_ string, onDelta func(string) error) error {
			return onDelta(longSection)
		},
		complete: func(string) (string, error) { return "评分：90分", nil },
	}
	handler, repo := newTestProtocolHandler(t, llm)

	rec := postJSON(t, handler.GenerateProtocolStream, "/generate_protocol_stream", map[string]any{
		"confirmed_info": map[string]any{"drug_type": "CAR-T细胞", "indication": "淋巴瘤"},
		"outline":        []map[string]any{{"title": "研究设计", "subsections": []string{}}},
		"original_input": "CAR-T治疗淋巴瘤",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")

	events := sseEvents(t, rec.Body.String())
	require.NotEmpty(t, events)
	final := events[len(events)-1]
	assert.Equal(t, true, final["done"])
	assert.Equal(t, 1.0, final["progress"])

	// the finished run lands in history
	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestGenerateProtocolStreamEndpoint_MissingOutline(t *testing.T) {
	handler, _ := newTestProtocolHandler(t, &scriptedLLM{})

	rec := postJSON(t, handler.GenerateProtocolStream, "/generate_protocol_stream", map[string]any{
		"confirmed_info": map[string]any{},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExtractKeyInfoStreamEndpoint(t *testing.T) {
	llm := &scriptedLLM{
		stream: func(_ string, onDelta func(string) error) error {
			return onDelta(extractionJSON)
		},
	}
	handler, _ := newTestProtocolHandler(t, llm)

	rec := postJSON(t, handler.ExtractKeyInfoStream, "/extract_key_info_stream",
		map[string]string{"input_text": "CAR-T治疗淋巴瘤"})

	events := sseEvents(t, rec.Body.String())
	require.NotEmpty(t, events)

	types := make([]string, 0, len(events))
	for _, event := range events {
		if typ, ok := event["type"].(string); ok {
			types = append(types, typ)
		}
	}
	assert.Contains(t, types, "system_prompt")
	assert.Contains(t, types, "extracted_info")
	assert.Equal(t, "done", types[len(types)-1])
}

func TestExportProtocol_HTML(t *testing.T) {
	handler, _ := newTestProtocolHandler(t, &scriptedLLM{})

	rec := postJSON(t, handler.ExportProtocol, "/export_protocol", map[string]string{
		"content": "# 临床试验方案\n\n研究设计说明。",
		"format":  "html",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "protocol.html")
	assert.Contains(t, rec.Body.String(), "<h1")
	assert.Contains(t, rec.Body.String(), "临床试验方案")
}

func TestExportProtocol_MarkdownPassthrough(t *testing.T) {
	handler, _ := newTestProtocolHandler(t, &scriptedLLM{})

	content := "# 方案\n\n正文内容。"
	rec := postJSON(t, handler.ExportProtocol, "/export_protocol", map[string]string{
		"content": content,
		"format":  "markdown",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/markdown")
	assert.Equal(t, content, rec.Body.String())
}

func TestExportProtocol_UnknownFormatIsPlainText(t *testing.T) {
	handler, _ := newTestProtocolHandler(t, &scriptedLLM{})

	rec := postJSON(t, handler.ExportProtocol, "/export_protocol", map[string]string{
		"content": "正文",
		"format":  "docx",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "protocol.docx")
}

func TestExportProtocol_EmptyContentRejected(t *testing.T) {
	handler, _ := newTestProtocolHandler(t, &scriptedLLM{})

	rec := postJSON(t, handler.ExportProtocol, "/export_protocol", map[string]string{"format": "html"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateEndpoint_FullPipeline(t *testing.T) {
	llm := &scriptedLLM{complete: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "请评估"):
			return "评分：85分", nil
		case strings.Contains(prompt, "JSON格式返回"):
			return extractionJSON, nil
		default:
			return longSection, nil
		}
	}}
	handler, _ := newTestProtocolHandler(t, llm)

	rec := postJSON(t, handler.Generate, "/generate",
		map[string]any{"requirement": "CAR-T治疗复发难治性淋巴瘤的I期研究"})

	require.Equal(t, http.StatusOK, rec.Code)
	payload := decodeBody(t, rec)
	assert.Equal(t, true, payload["success"])

	content, ok := payload["protocol_content"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, content, 7)

	report, ok := payload["quality_report"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 85.0, report["overall_score"])
}

func TestListHistoryEndpoint(t *testing.T) {
	handler, repo := newTestProtocolHandler(t, &scriptedLLM{})

	_, err := repo.Create(context.Background(), &domain.GenerationRecord{
		RunID:        "run-1",
		DrugType:     "CAR-T细胞",
		SectionCount: 10,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protocol_history?limit=10", nil)
	rec := httptest.NewRecorder()
	handler.ListHistory(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	payload := decodeBody(t, rec)
	assert.Equal(t, 1.0, payload["total"])
	records, ok := payload["records"].([]any)
	require.True(t, ok)
	assert.Len(t, records, 1)
}

// File: internal/services/protocol/types.go
package protocol

import (
	"context"

	"github.com/trialforge/protocol-agent/internal/domain"
)

// Retriever is the slice of the knowledge store the pipeline needs.
type Retriever interface {
	Search(ctx context.Context, query string, topK int, types []string) ([]domain.SearchResult, error)
}

// ExtractionResult carries the structured key information pulled from a
// free-text requirement, plus how it was obtained. Degraded means the LLM
// response could not be parsed and a fallback path filled the fields.
type ExtractionResult struct {
	Info     domain.KeyInfo `json:"extracted_info"`
	Degraded bool           `json:"degraded"`
	// Source is "llm", "pattern" or "keyword".
	Source  string       `json:"source"`
	Raw     string       `json:"original_response,omitempty"`
	Prompt  string       `json:"prompt,omitempty"`
	Quality QualityCheck `json:"extraction_quality"`
}

// QualityCheck grades a single extraction result.
type QualityCheck struct {
	Score          int      `json:"score"`
	Issues         []string `json:"issues"`
	Recommendation string   `json:"recommendation"`
}

// OutlineResult is the outline stage output. Degraded means the fixed
// template replaced an unparseable LLM response.
type OutlineResult struct {
	Sections []domain.OutlineSection `json:"outline"`
	Degraded bool                    `json:"degraded"`
	Raw      string                  `json:"original_response,omitempty"`
	Prompt   string                  `json:"prompt,omitempty"`
}

// StreamSettings controls one full-protocol run.
type StreamSettings struct {
	IncludeReferences   bool    `json:"include_references"`
	IncludeQualityCheck bool    `json:"include_quality_check"`
	DetailLevel         float64 `json:"detail_level"`
}

func DefaultStreamSettings() StreamSettings {
	return StreamSettings{IncludeReferences: true, IncludeQualityCheck: true, DetailLevel: 0.3}
}

// StreamEvent is one SSE payload of a generation run. Fields are pointers
// where the wire format distinguishes "absent" from zero.
type StreamEvent struct {
	Content       string   `json:"content,omitempty"`
	Progress      *float64 `json:"progress,omitempty"`
	CurrentModule string   `json:"current_module,omitempty"`
	QualityScore  *int     `json:"quality_score,omitempty"`
	TotalLength   *int     `json:"total_length,omitempty"`
	Done          *bool    `json:"done,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// RunState tracks where a generation run currently is.
type RunState int

const (
	StateNotStarted RunState = iota
	StateExtractingFacts
	StateBuildingOutline
	StateGeneratingSections
	StateQualityChecking
	StateDone
)

func (s RunState) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateExtractingFacts:
		return "extracting_facts"
	case StateBuildingOutline:
		return "building_outline"
	case StateGeneratingSections:
		return "generating_sections"
	case StateQualityChecking:
		return "quality_checking"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// RunResult is the aggregate outcome of a full generation run.
type RunResult struct {
	RunID        string                `json:"run_id"`
	Content      string                `json:"content"`
	Sections     int                   `json:"sections"`
	References   []string              `json:"references,omitempty"`
	Quality      *domain.QualityReport `json:"quality,omitempty"`
	QualityScore int                   `json:"quality_score,omitempty"`
}

// legacyModule is one entry of the fixed seven-module pipeline kept for the
// non-outline generation path. Weights sum to 1.
type legacyModule struct {
	Name        string
	Key         string
	Weight      float64
	Description string
}

var legacyModules = []legacyModule{
	{Name: "基础框架设计", Key: "basic_framework", Weight: 0.15, Description: "确定研究设计框架和基本结构"},
	{Name: "研究背景与目标", Key: "background_objectives", Weight: 0.15, Description: "撰写研究背景和主要目标"},
	{Name: "试验设计方案", Key: "study_design", Weight: 0.20, Description: "详细设计试验方案和流程"},
	{Name: "受试者选择标准", Key: "subject_criteria", Weight: 0.15, Description: "制定入排标准和受试者筛选"},
	{Name: "给药方案设计", Key: "dosing_regimen", Weight: 0.15, Description: "设计给药方案和剂量递增"},
	{Name: "安全性监测", Key: "safety_monitoring", Weight: 0.10, Description: "建立安全性监测计划"},
	{Name: "统计分析计划", Key: "statistical_plan", Weight: 0.10, Description: "制定统计分析策略"},
}

// File: internal/services/protocol/outline.go
package protocol

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/trialforge/protocol-agent/internal/domain"
)

// jsonArrayRe locates the JSON array in a model reply. Greedy on purpose:
// outline entries hold nested arrays, so the match must run to the last
// closing bracket.
var jsonArrayRe = regexp.MustCompile(`(?s)\[.*\]`)

// GenerateOutline turns confirmed trial facts into a chapter outline. A
// reply that cannot be decoded degrades to the fixed ten-chapter template;
// only a failed model call is an error.
func (p *Pipeline) GenerateOutline(ctx context.Context, info domain.KeyInfo, originalInput string) (*OutlineResult, error) {
	prompt := buildOutlinePrompt(info, originalInput)
	reply, err := p.llm.GetCompletion(ctx, prompt, outlineSystemPrompt, p.config.OutlineTemperature)
	if err != nil {
		return nil, &GenerationError{Type: ErrTypeOutline, Operation: "GenerateOutline", Message: "completion call failed", Cause: err}
	}

	sections, ok := ParseOutline(reply)
	result := &OutlineResult{Sections: sections, Raw: reply, Prompt: prompt}
	if !ok {
		p.logger.Warn("outline reply not parseable, using standard template")
		result.Sections = StandardOutline()
		result.Degraded = true
	}
	p.logger.Info("outline generated", "sections", len(result.Sections), "degraded", result.Degraded)
	return result, nil
}

// StreamOutlinePrompt returns the compact table-of-contents prompt used by
// the streaming outline endpoint.
func (p *Pipeline) StreamOutlinePrompt(info domain.KeyInfo) (prompt, system string) {
	return buildStreamOutlinePrompt(info), outlineSystemPrompt
}

// ParseOutline decodes the outline array from a model reply and guarantees
// every section carries a non-nil subsection list.
func ParseOutline(reply string) ([]domain.OutlineSection, bool) {
	blob := jsonArrayRe.FindString(reply)
	if blob == "" {
		return nil, false
	}
	var sections []domain.OutlineSection
	if err := json.Unmarshal([]byte(blob), &sections); err != nil || len(sections) == 0 {
		return nil, false
	}
	for i := range sections {
		if sections[i].Subsections == nil {
			sections[i].Subsections = []string{}
		}
	}
	return sections, true
}

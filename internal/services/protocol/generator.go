// File: internal/services/protocol/generator.go
package protocol

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trialforge/protocol-agent/internal/domain"
	"github.com/trialforge/protocol-agent/internal/services"
	"github.com/trialforge/protocol-agent/internal/services/ai"
)

// Pipeline drives protocol generation end to end: fact extraction, outline
// construction, knowledge-grounded section drafting and quality scoring.
type Pipeline struct {
	llm    ai.Completer
	store  Retriever
	config Config
	logger services.Logger
}

func NewPipeline(llm ai.Completer, store Retriever, config Config, logger services.Logger) (*Pipeline, error) {
	if llm == nil {
		return nil, NewValidationError("NewPipeline", "completer is required")
	}
	if store == nil {
		return nil, NewValidationError("NewPipeline", "retriever is required")
	}
	if logger == nil {
		return nil, NewValidationError("NewPipeline", "logger is required")
	}
	if err := config.Validate(); err != nil {
		return nil, NewValidationError("NewPipeline", err.Error())
	}
	return &Pipeline{llm: llm, store: store, config: config, logger: logger}, nil
}

var blankRunsRe = regexp.MustCompile(`\n\s*\n\s*\n`)

// SectionRequest describes one section-drafting call.
type SectionRequest struct {
	Section        domain.OutlineSection
	Info           domain.KeyInfo
	KnowledgeTypes []string
	CustomPrompt   string
	Settings       StreamSettings
}

// GenerateProtocolStream runs the full outline-driven generation. Deltas
// and progress flow through emit in generation order; a section that fails
// gets a diagnostic placeholder and the run continues. The emit callback
// returning an error aborts the run (client gone).
func (p *Pipeline) GenerateProtocolStream(ctx context.Context, info domain.KeyInfo, outline []domain.OutlineSection, settings StreamSettings, emit func(StreamEvent) error) (*RunResult, error) {
	if len(outline) == 0 {
		return nil, NewValidationError("GenerateProtocolStream", "outline is empty")
	}

	state := StateGeneratingSections
	runID := uuid.NewString()
	p.logger.Info("protocol run started", "run_id", runID, "sections", len(outline), "state", state.String())

	referenceTitles := make(map[string]struct{})
	var retrieved []domain.SearchResult
	if settings.IncludeReferences {
		retrieved = p.retrieveBackground(ctx, info, referenceTitles)
	}

	var full strings.Builder
	total := len(outline)
	sections := make(map[string]string, total)

	for idx, section := range outline {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		relevant := p.relevantSnippets(section.Title, retrieved, referenceTitles)
		prompt := buildSectionPrompt(section.Title, info, buildKnowledgeContext(relevant, p.config.ContextSnippets)) + citationAddendum

		temperature := settings.DetailLevel
		if temperature <= 0 {
			temperature = p.config.SectionTemperature
		}

		var draft strings.Builder
		var emitErr error
		progress := float64(idx) / float64(total)
		err := p.llm.StreamCompletion(ctx, prompt, "", temperature, func(delta string) error {
			draft.WriteString(delta)
			emitErr = emit(StreamEvent{
				Content:       delta,
				Progress:      &progress,
				CurrentModule: section.Title,
				Done:          boolPtr(false),
			})
			return emitErr
		})
		if emitErr != nil {
			return nil, emitErr
		}
		text := draft.String()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Error("section generation failed", "run_id", runID, "section", section.Title, "error", err)
			text = fmt.Sprintf("章节生成遇到问题: %v", err)
		}

		cleaned := cleanContent(text, section.Title)
		sections[section.Title] = cleaned
		full.WriteString(fmt.Sprintf("\n## %s\n\n%s\n", section.Title, cleaned))

		after := float64(idx+1) / float64(total)
		if err := emit(StreamEvent{Progress: &after}); err != nil {
			return nil, err
		}
	}

	var refs []string
	if len(referenceTitles) > 0 {
		refs = sortedTitles(referenceTitles)
		refText := renderReferences(refs)
		full.WriteString(refText)
		if err := emit(StreamEvent{Content: refText}); err != nil {
			return nil, err
		}
	}

	result := &RunResult{RunID: runID, Content: full.String(), Sections: total, References: refs}

	if settings.IncludeQualityCheck {
		state = StateQualityChecking
		report := p.CheckQuality(ctx, sections)
		result.Quality = report
		result.QualityScore = int(report.OverallScore)
		reportText := renderQualityReport(report)
		if err := emit(StreamEvent{Content: reportText, QualityScore: &result.QualityScore, Done: boolPtr(false)}); err != nil {
			return nil, err
		}
		full.WriteString(reportText)
		result.Content = full.String()
	}

	state = StateDone
	totalLen := len(result.Content)
	final := StreamEvent{Progress: floatPtr(1.0), Done: boolPtr(true), TotalLength: &totalLen}
	if err := emit(final); err != nil {
		return nil, err
	}
	p.logger.Info("protocol run finished", "run_id", runID, "state", state.String(), "length", totalLen)
	return result, nil
}

// BuildSectionStreamPrompt assembles the drafting prompt for one section,
// including retrieval when knowledge types are given. A custom prompt
// replaces the template but still receives the retrieved context.
func (p *Pipeline) BuildSectionStreamPrompt(ctx context.Context, req SectionRequest) (string, error) {
	var results []domain.SearchResult
	if len(req.KnowledgeTypes) > 0 {
		query := strings.TrimSpace(fmt.Sprintf("%s %s %s",
			req.Info.GetString("drug_type", ""),
			req.Info.GetString("indication", ""),
			req.Section.Title))
		found, err := p.store.Search(ctx, query, p.config.RetrievalTopK, req.KnowledgeTypes)
		if err != nil {
			p.logger.Warn("section retrieval failed", "section", req.Section.Title, "error", err)
		} else {
			results = found
		}
	}
	if req.CustomPrompt != "" {
		return req.CustomPrompt + "\n\n" + buildKnowledgeContext(results, p.config.ContextSnippets), nil
	}
	return BuildSectionPrompt(req.Section.Title, req.Info, results, p.config.ContextSnippets), nil
}

// StreamRaw streams an arbitrary prompt with an explicit system
// instruction. Used by the compact extraction and outline streaming paths.
func (p *Pipeline) StreamRaw(ctx context.Context, prompt, system string, temperature float64, onDelta func(string) error) error {
	return p.llm.StreamCompletion(ctx, prompt, system, temperature, onDelta)
}

// StreamSection drafts one section, forwarding deltas as they arrive.
func (p *Pipeline) StreamSection(ctx context.Context, prompt string, temperature float64, onDelta func(string) error) error {
	if temperature <= 0 {
		temperature = p.config.SectionTemperature
	}
	if err := p.llm.StreamCompletion(ctx, prompt, "", temperature, onDelta); err != nil {
		return NewSectionError("StreamSection", "", "streaming failed", err)
	}
	return nil
}

// SearchKnowledgeForProtocol gathers background snippets for the legacy
// module pipeline: six canned queries, deduplicated on a content prefix,
// best ten by score.
func (p *Pipeline) SearchKnowledgeForProtocol(ctx context.Context, info domain.KeyInfo) []domain.SearchResult {
	drug := info.GetString("drug_type", "")
	disease := info.GetString("disease", "")
	phase := info.GetString("trial_phase", info.GetString("phase", ""))

	queries := []string{
		fmt.Sprintf("%s %s", drug, disease),
		fmt.Sprintf("%s %s临床试验", disease, phase),
		fmt.Sprintf("%s 安全性 剂量", drug),
		fmt.Sprintf("%s 治疗指南", disease),
		"临床试验设计 GCP",
		fmt.Sprintf("%s试验 统计设计", phase),
	}

	seen := make(map[string]struct{})
	var unique []domain.SearchResult
	for _, query := range queries {
		if strings.TrimSpace(query) == "" {
			continue
		}
		results, err := p.store.Search(ctx, query, p.config.RetrievalTopK, nil)
		if err != nil {
			p.logger.Warn("background search failed", "query", query, "error", err)
			continue
		}
		for _, r := range results {
			key := contentKey(r.Content)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			unique = append(unique, r)
		}
	}

	sort.SliceStable(unique, func(i, j int) bool { return unique[i].Score > unique[j].Score })
	if len(unique) > 10 {
		unique = unique[:10]
	}
	return unique
}

// GenerateModules runs the fixed seven-module pipeline. Progress advances
// by each module's weight; a failed module yields a diagnostic placeholder.
func (p *Pipeline) GenerateModules(ctx context.Context, requirement string, info domain.KeyInfo, docs []domain.SearchResult, temperature float64, progress func(domain.ProgressEvent)) map[string]string {
	report := func(pct float64, status, detail string) {
		if progress != nil {
			progress(domain.ProgressEvent{Step: "内容生成", Progress: pct, Status: status, Detail: detail})
		}
	}
	report(0, domain.ProgressStarted, "准备生成各模块内容")

	knowledgeContext := buildKnowledgeContext(docs, p.config.ContextSnippets)
	content := make(map[string]string, len(legacyModules))
	cumulative := 0.0

	for _, module := range legacyModules {
		report(cumulative, domain.ProgressInProgress, "生成模块: "+module.Name)

		prompt := buildModulePrompt(module.Key, requirement, info, knowledgeContext)
		generated, err := p.llm.GetCompletion(ctx, prompt, "", temperature)
		if err != nil {
			p.logger.Error("module generation failed", "module", module.Name, "error", err)
			content[module.Name] = fmt.Sprintf("模块生成遇到问题: %v", err)
			cumulative += module.Weight * 100
			continue
		}

		cleaned := cleanContent(generated, module.Key)
		content[module.Name] = cleaned
		cumulative += module.Weight * 100
		report(cumulative, domain.ProgressInProgress,
			fmt.Sprintf("完成模块: %s (%d 字符)", module.Name, len([]rune(cleaned))))
	}

	report(100, domain.ProgressCompleted, fmt.Sprintf("成功生成 %d 个模块", len(content)))
	return content
}

// ModuleNames returns the legacy modules in generation order.
func ModuleNames() []string {
	names := make([]string, len(legacyModules))
	for i, m := range legacyModules {
		names[i] = m.Name
	}
	return names
}

// retrieveBackground runs the three outline-driven retrieval queries and
// records snippet titles for the reference list.
func (p *Pipeline) retrieveBackground(ctx context.Context, info domain.KeyInfo, titles map[string]struct{}) []domain.SearchResult {
	queries := []string{
		strings.TrimSpace(fmt.Sprintf("%s %s", info.GetString("drug_type", ""), info.GetString("indication", ""))),
		strings.TrimSpace(fmt.Sprintf("%s 临床试验设计", info.GetString("study_phase", ""))),
		strings.TrimSpace(fmt.Sprintf("%s 入组标准", info.GetString("indication", ""))),
	}
	var all []domain.SearchResult
	for _, query := range queries {
		if query == "" {
			continue
		}
		results, err := p.store.Search(ctx, query, p.config.RetrievalTopK, nil)
		if err != nil {
			p.logger.Warn("background retrieval failed", "query", query, "error", err)
			continue
		}
		all = append(all, results...)
		for _, r := range results {
			if r.Metadata.Title != "" {
				titles[r.Metadata.Title] = struct{}{}
			}
		}
	}
	return all
}

// relevantSnippets filters retrieved snippets whose content mentions any
// token of the section title, capped at the context limit.
func (p *Pipeline) relevantSnippets(title string, retrieved []domain.SearchResult, titles map[string]struct{}) []domain.SearchResult {
	tokens := strings.Fields(title)
	var relevant []domain.SearchResult
	for _, r := range retrieved {
		for _, token := range tokens {
			if strings.Contains(r.Content, token) {
				relevant = append(relevant, r)
				break
			}
		}
	}
	if len(relevant) > p.config.ContextSnippets {
		relevant = relevant[:p.config.ContextSnippets]
	}
	for _, r := range relevant {
		if r.Metadata.Title != "" {
			titles[r.Metadata.Title] = struct{}{}
		}
	}
	return relevant
}

// cleanContent normalizes a generated draft: blank-line runs collapse to
// one, whitespace is trimmed, and anything shorter than fifty runes is
// marked as needing work.
func cleanContent(content, name string) string {
	if content == "" {
		return fmt.Sprintf("%s模块内容生成失败", name)
	}
	content = blankRunsRe.ReplaceAllString(content, "\n\n")
	content = strings.TrimSpace(content)
	if len([]rune(content)) < 50 {
		return fmt.Sprintf("%s模块需要进一步完善。\n\n%s", name, content)
	}
	return content
}

func renderReferences(titles []string) string {
	var b strings.Builder
	b.WriteString("\n## 参考文献\n\n")
	for i, t := range titles {
		b.WriteString(fmt.Sprintf("%d. %s\n", i+1, t))
	}
	return b.String()
}

func renderQualityReport(report *domain.QualityReport) string {
	var b strings.Builder
	b.WriteString("\n## 质量评估报告\n\n")
	b.WriteString(fmt.Sprintf("总体评分：%.1f分\n\n", report.OverallScore))
	for _, rubric := range qualityRubricOrder {
		if score, ok := report.ModuleScores[rubric.Name]; ok {
			b.WriteString(fmt.Sprintf("- %s：%d分\n", rubric.Name, score))
		}
	}
	if len(report.Issues) > 0 {
		b.WriteString("\n存在问题：\n")
		for _, issue := range report.Issues {
			b.WriteString("- " + issue + "\n")
		}
	}
	if len(report.Recommendations) > 0 {
		b.WriteString("\n改进建议：\n")
		for _, rec := range report.Recommendations {
			b.WriteString("- " + rec + "\n")
		}
	}
	return b.String()
}

func contentKey(content string) string {
	runes := []rune(content)
	if len(runes) > 100 {
		runes = runes[:100]
	}
	return string(runes)
}

func sortedTitles(set map[string]struct{}) []string {
	titles := make([]string, 0, len(set))
	for t := range set {
		titles = append(titles, t)
	}
	sort.Strings(titles)
	return titles
}

func boolPtr(v bool) *bool        { return &v }
func floatPtr(v float64) *float64 { return &v }

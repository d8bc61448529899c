// File: internal/services/protocol/quality.go
package protocol

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/trialforge/protocol-agent/internal/domain"
)

type qualityRubric struct {
	Name   string
	Weight float64
}

// qualityRubricOrder fixes both evaluation order and report layout.
// Weights sum to 1.
var qualityRubricOrder = []qualityRubric{
	{Name: "模块完整性", Weight: 0.25},
	{Name: "科学严谨性", Weight: 0.30},
	{Name: "法规合规性", Weight: 0.25},
	{Name: "逻辑一致性", Weight: 0.20},
}

// scorePatterns are tried in order against a rubric reply.
var scorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`评分[：:]\s*(\d+)`),
	regexp.MustCompile(`(\d+)分`),
	regexp.MustCompile(`得分[：:]\s*(\d+)`),
	regexp.MustCompile(`分数[：:]\s*(\d+)`),
	regexp.MustCompile(`(\d+)/100`),
}

const (
	scoreDetailedDefault = 80
	scoreBriefDefault    = 70
	scoreCallFailure     = 75
	shortSectionRunes    = 200
)

// CheckQuality grades an assembled protocol against the four rubrics. Each
// rubric is a separate cold completion over a bounded view of the content;
// a failed call scores the rubric at the neutral default, so the report is
// always produced.
func (p *Pipeline) CheckQuality(ctx context.Context, sections map[string]string) *domain.QualityReport {
	var parts []string
	for _, name := range orderedSectionNames(sections) {
		parts = append(parts, fmt.Sprintf("## %s\n%s", name, sections[name]))
	}
	view := truncateRunes(strings.Join(parts, "\n\n"), p.config.QualityViewChars)

	scores := make(map[string]int, len(qualityRubricOrder))
	total := 0.0
	for _, rubric := range qualityRubricOrder {
		prompt := buildQualityPrompt(rubric.Name, view)
		reply, err := p.llm.GetCompletion(ctx, prompt, "", p.config.QualityTemperature)
		if err != nil {
			p.logger.Warn("quality rubric call failed", "rubric", rubric.Name, "error", err)
			scores[rubric.Name] = scoreCallFailure
			total += scoreCallFailure * rubric.Weight
			continue
		}
		score := ExtractQualityScore(reply)
		scores[rubric.Name] = score
		total += float64(score) * rubric.Weight
	}

	report := &domain.QualityReport{
		OverallScore:    math.Round(total*10) / 10,
		ModuleScores:    scores,
		Recommendations: buildRecommendations(scores, sections, p.config.MaxRecommendations),
		Issues:          identifyIssues(scores),
		CheckTime:       time.Now().Format(time.RFC3339),
	}
	p.logger.Info("quality check finished", "overall_score", report.OverallScore)
	return report
}

// ExtractQualityScore pulls a 0-100 score out of a rubric reply. With no
// recognizable score, a detailed reply earns the higher default.
func ExtractQualityScore(reply string) int {
	for _, pattern := range scorePatterns {
		if m := pattern.FindStringSubmatch(reply); m != nil {
			score, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if score > 100 {
				return 100
			}
			if score < 0 {
				return 0
			}
			return score
		}
	}
	if len([]rune(reply)) > 100 {
		return scoreDetailedDefault
	}
	return scoreBriefDefault
}

// buildRecommendations derives improvement advice from rubric scores and
// section lengths, capped, with generic suggestions when nothing specific
// applies.
func buildRecommendations(scores map[string]int, sections map[string]string, limit int) []string {
	var recs []string
	canned := map[string]string{
		"模块完整性": "建议补充完善各模块内容，确保信息完整性",
		"科学严谨性": "建议加强科学依据，完善研究设计论证",
		"法规合规性": "建议参考最新GCP指南，完善法规要求",
		"逻辑一致性": "建议检查各部分逻辑关系，确保内容一致",
	}
	for _, rubric := range qualityRubricOrder {
		if scores[rubric.Name] < 80 {
			recs = append(recs, canned[rubric.Name])
		}
	}

	var short []string
	for _, name := range orderedSectionNames(sections) {
		if len([]rune(sections[name])) < shortSectionRunes {
			short = append(short, name)
		}
	}
	if len(short) > 0 {
		recs = append(recs, fmt.Sprintf("以下模块内容较少，建议扩充：%s", strings.Join(short, ", ")))
	}

	if len(recs) == 0 {
		recs = []string{
			"方案整体质量良好，建议进行专家评议",
			"建议补充更多文献支持和数据分析",
			"建议完善安全性监测和风险管控措施",
		}
	}
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}

func identifyIssues(scores map[string]int) []string {
	var issues []string
	for _, rubric := range qualityRubricOrder {
		score := scores[rubric.Name]
		switch {
		case score < 70:
			issues = append(issues, fmt.Sprintf("%s得分较低(%d分)，需要重点改进", rubric.Name, score))
		case score < 80:
			issues = append(issues, fmt.Sprintf("%s有待提升(%d分)", rubric.Name, score))
		}
	}
	return issues
}

func orderedSectionNames(sections map[string]string) []string {
	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	// map order is random; stable output matters for the report
	sort.Strings(names)
	return names
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

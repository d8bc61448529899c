// File: internal/services/protocol/quality_test.go
package protocol

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractQualityScore(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		want  int
	}{
		{"colon format", "评分：90分，整体质量较高。", 90},
		{"ascii colon", "评分: 85", 85},
		{"bare score suffix", "该方案可得88分。", 88},
		{"defen format", "得分：72", 72},
		{"fenshu format", "分数：65", 65},
		{"fraction format", "综合评价为 78/100", 78},
		{"clamped above hundred", "评分：120分", 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractQualityScore(tc.reply))
		})
	}
}

func TestExtractQualityScore_DefaultsWithoutScore(t *testing.T) {
	long := strings.Repeat("该方案整体结构完整，论证充分。", 12)
	assert.Equal(t, 80, ExtractQualityScore(long))
	assert.Equal(t, 70, ExtractQualityScore("无法评估。"))
}

func TestCheckQuality_WeightedOverallScore(t *testing.T) {
	replies := map[string]string{
		"模块完整性": "评分：80分",
		"科学严谨性": "评分：90分",
		"法规合规性": "评分：70分",
		"逻辑一致性": "评分：100分",
	}
	llm := &fakeLLM{
		complete: func(_ context.Context, prompt, _ string, temperature float64) (string, error) {
			assert.Equal(t, 0.1, temperature)
			for rubric, reply := range replies {
				if strings.Contains(prompt, rubric) {
					return reply, nil
				}
			}
			return "", errors.New("unexpected prompt")
		},
	}
	pipeline := newTestPipeline(t, llm, nil)

	sections := map[string]string{"研究设计": strings.Repeat(sectionBody, 3)}
	report := pipeline.CheckQuality(context.Background(), sections)

	// 80*0.25 + 90*0.30 + 70*0.25 + 100*0.20
	assert.Equal(t, 84.5, report.OverallScore)
	assert.Equal(t, 80, report.ModuleScores["模块完整性"])
	assert.Equal(t, 100, report.ModuleScores["逻辑一致性"])
	require.Len(t, report.Issues, 1)
	assert.Contains(t, report.Issues[0], "法规合规性有待提升")
	assert.NotEmpty(t, report.CheckTime)
}

func TestCheckQuality_CallFailureUsesNeutralDefault(t *testing.T) {
	llm := &fakeLLM{
		complete: func(_ context.Context, _, _ string, _ float64) (string, error) {
			return "", errors.New("backend unreachable")
		},
	}
	pipeline := newTestPipeline(t, llm, nil)

	report := pipeline.CheckQuality(context.Background(), map[string]string{"研究设计": sectionBody})

	assert.Equal(t, 75.0, report.OverallScore)
	for _, rubric := range []string{"模块完整性", "科学严谨性", "法规合规性", "逻辑一致性"} {
		assert.Equal(t, 75, report.ModuleScores[rubric])
	}
	assert.Len(t, report.Issues, 4)
}

func TestBuildRecommendations_LowScoresGetCannedAdvice(t *testing.T) {
	scores := map[string]int{"模块完整性": 60, "科学严谨性": 90, "法规合规性": 90, "逻辑一致性": 90}
	sections := map[string]string{"研究设计": strings.Repeat(sectionBody, 3)}

	recs := buildRecommendations(scores, sections, 5)
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0], "补充完善各模块内容")
}

func TestBuildRecommendations_ShortSectionsFlagged(t *testing.T) {
	scores := map[string]int{"模块完整性": 90, "科学严谨性": 90, "法规合规性": 90, "逻辑一致性": 90}
	sections := map[string]string{
		"研究设计":  strings.Repeat(sectionBody, 3),
		"安全性评估": "内容很少",
	}

	recs := buildRecommendations(scores, sections, 5)
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0], "安全性评估")
}

func TestBuildRecommendations_GenericWhenNothingApplies(t *testing.T) {
	scores := map[string]int{"模块完整性": 90, "科学严谨性": 90, "法规合规性": 90, "逻辑一致性": 90}
	sections := map[string]string{"研究设计": strings.Repeat(sectionBody, 3)}

	recs := buildRecommendations(scores, sections, 5)
	assert.Len(t, recs, 3)
	assert.Contains(t, recs[0], "专家评议")
}

func TestBuildRecommendations_CappedAtLimit(t *testing.T) {
	scores := map[string]int{"模块完整性": 50, "科学严谨性": 50, "法规合规性": 50, "逻辑一致性": 50}
	sections := map[string]string{
		"研究设计":  "短",
		"安全性评估": "短",
	}

	recs := buildRecommendations(scores, sections, 5)
	assert.Len(t, recs, 5)
}

func TestIdentifyIssues_Thresholds(t *testing.T) {
	issues := identifyIssues(map[string]int{
		"模块完整性": 65,
		"科学严谨性": 75,
		"法规合规性": 85,
		"逻辑一致性": 95,
	})
	require.Len(t, issues, 2)
	assert.Contains(t, issues[0], "需要重点改进")
	assert.Contains(t, issues[1], "有待提升")
}

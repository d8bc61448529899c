// File: internal/services/protocol/extraction_test.go
package protocol

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialforge/protocol-agent/internal/domain"
)

func TestParseExtraction_FindsEmbeddedJSON(t *testing.T) {
	reply := "根据需求分析，提取结果如下：\n" +
		`{"drug_type": "CAR-T细胞", "disease": "B细胞淋巴瘤", "trial_phase": "I期"}` +
		"\n以上为提取结果。"

	info, ok := ParseExtraction(reply)
	require.True(t, ok)
	assert.Equal(t, "CAR-T细胞", info.GetString("drug_type", ""))
	assert.Equal(t, "B细胞淋巴瘤", info.GetString("disease", ""))
}

func TestParseExtraction_NoJSONInReply(t *testing.T) {
	_, ok := ParseExtraction("无法从需求中提取结构化信息。")
	assert.False(t, ok)
}

func TestParseExtraction_MalformedJSON(t *testing.T) {
	_, ok := ParseExtraction(`{"drug_type": }`)
	assert.False(t, ok)
}

func TestExtractKeyInfo_UsesModelReply(t *testing.T) {
	llm := &fakeLLM{
		complete: func(_ context.Context, _, system string, temperature float64) (string, error) {
			assert.NotEmpty(t, system)
			assert.Equal(t, 0.1, temperature)
			return `{"drug_type": "TCR-T细胞", "disease": "肺癌", "trial_phase": "I期",
				"primary_objective": "评估安全性", "primary_endpoint": "DLT和MTD",
				"patient_population": "晚期肺癌患者", "estimated_enrollment": "12-30例",
				"study_design": "剂量递增"}`, nil
		},
	}
	pipeline := newTestPipeline(t, llm, nil)

	result, err := pipeline.ExtractKeyInfo(context.Background(), "TCR-T治疗晚期肺癌的I期临床试验")
	require.NoError(t, err)

	assert.Equal(t, "llm", result.Source)
	assert.False(t, result.Degraded)
	assert.Equal(t, "TCR-T细胞", result.Info.GetString("drug_type", ""))
	assert.Equal(t, 100, result.Quality.Score)
	assert.Equal(t, "信息完整", result.Quality.Recommendation)
}

func TestExtractKeyInfo_PatternFallbackOnUnparseableReply(t *testing.T) {
	llm := &fakeLLM{
		complete: func(_ context.Context, _, _ string, _ float64) (string, error) {
			return "很抱歉，我无法输出JSON。", nil
		},
	}
	pipeline := newTestPipeline(t, llm, nil)

	result, err := pipeline.ExtractKeyInfo(context.Background(), "TCR-T细胞治疗晚期非小细胞肺癌的二期研究")
	require.NoError(t, err)

	assert.Equal(t, "pattern", result.Source)
	assert.True(t, result.Degraded)
	assert.Equal(t, "TCR-T", result.Info.GetString("drug_type", ""))
	assert.Equal(t, "肺癌", result.Info.GetString("disease", ""))
	assert.Equal(t, "II期", result.Info.GetString("trial_phase", ""))
	assert.Equal(t, "晚期", result.Info.GetString("disease_stage", ""))
	assert.Equal(t, "肺癌患者", result.Info.GetString("patient_population", ""))
}

func TestExtractKeyInfo_KeywordDefaultsWhenCallFails(t *testing.T) {
	llm := &fakeLLM{
		complete: func(_ context.Context, _, _ string, _ float64) (string, error) {
			return "", errors.New("backend unreachable")
		},
	}
	pipeline := newTestPipeline(t, llm, nil)

	result, err := pipeline.ExtractKeyInfo(context.Background(), "CAR-T治疗复发难治性淋巴瘤")
	require.NoError(t, err)

	assert.Equal(t, "keyword", result.Source)
	assert.True(t, result.Degraded)
	assert.Equal(t, "CAR-T细胞", result.Info.GetString("drug_type", ""))
	assert.Equal(t, "淋巴瘤", result.Info.GetString("disease", ""))
	assert.Equal(t, "12-30例", result.Info.GetString("estimated_enrollment", ""))
}

func TestExtractKeyInfo_KeywordDefaultsForLungCancer(t *testing.T) {
	llm := &fakeLLM{
		complete: func(_ context.Context, _, _ string, _ float64) (string, error) {
			return "", errors.New("backend unreachable")
		},
	}
	pipeline := newTestPipeline(t, llm, nil)

	result, err := pipeline.ExtractKeyInfo(context.Background(), "TCR-T治疗肺部肿瘤")
	require.NoError(t, err)

	assert.Equal(t, "TCR-T细胞", result.Info.GetString("drug_type", ""))
	assert.Equal(t, "肺癌", result.Info.GetString("disease", ""))
}

func TestExtractKeyInfo_EmptyInputRejected(t *testing.T) {
	pipeline := newTestPipeline(t, &fakeLLM{}, nil)

	_, err := pipeline.ExtractKeyInfo(context.Background(), "   ")
	require.Error(t, err)

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, ErrTypeValidation, genErr.Type)
}

func TestExtractKeyInfo_FillsMissingRequiredFields(t *testing.T) {
	llm := &fakeLLM{
		complete: func(_ context.Context, _, _ string, _ float64) (string, error) {
			return `{"drug_type": "单抗"}`, nil
		},
	}
	pipeline := newTestPipeline(t, llm, nil)

	result, err := pipeline.ExtractKeyInfo(context.Background(), "单抗治疗研究")
	require.NoError(t, err)

	for _, field := range domain.RequiredKeyInfoFields {
		assert.Contains(t, result.Info, field)
	}
	assert.Equal(t, "待补充", result.Info.GetString("disease", ""))
}

func TestValidateExtractionQuality_CompleteInfo(t *testing.T) {
	check := ValidateExtractionQuality(domain.KeyInfo{
		"drug_type":        "CAR-T细胞",
		"disease":          "淋巴瘤",
		"trial_phase":      "I期",
		"primary_endpoint": "DLT和MTD",
	})
	assert.Equal(t, 100, check.Score)
	assert.Empty(t, check.Issues)
	assert.Equal(t, "信息完整", check.Recommendation)
}

func TestValidateExtractionQuality_Deductions(t *testing.T) {
	check := ValidateExtractionQuality(domain.KeyInfo{
		"drug_type":        "待补充",
		"disease":          "待补充",
		"trial_phase":      "I期",
		"primary_endpoint": "DLT",
	})
	assert.Equal(t, 60, check.Score)
	assert.Len(t, check.Issues, 2)
	assert.Equal(t, "建议补充完善", check.Recommendation)
}

func TestValidateExtractionQuality_MissingPhaseAndEndpoint(t *testing.T) {
	check := ValidateExtractionQuality(domain.KeyInfo{
		"drug_type": "CAR-T细胞",
		"disease":   "淋巴瘤",
	})
	assert.Equal(t, 70, check.Score)
	assert.Contains(t, check.Issues, "试验分期缺失")
	assert.Contains(t, check.Issues, "主要终点缺失")
}

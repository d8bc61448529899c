// File: internal/services/protocol/outline_test.go
package protocol

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutline_NestedSubsections(t *testing.T) {
	reply := "生成的大纲如下：\n" +
		`[{"title": "1. 研究背景", "subsections": ["1.1 疾病背景", "1.2 药物介绍"]},
		  {"title": "2. 研究设计", "subsections": []}]` +
		"\n请确认。"

	sections, ok := ParseOutline(reply)
	require.True(t, ok)
	require.Len(t, sections, 2)
	assert.Equal(t, "1. 研究背景", sections[0].Title)
	assert.Equal(t, []string{"1.1 疾病背景", "1.2 药物介绍"}, sections[0].Subsections)
	assert.NotNil(t, sections[1].Subsections)
	assert.Empty(t, sections[1].Subsections)
}

func TestParseOutline_MissingSubsectionsBecomeEmptyList(t *testing.T) {
	sections, ok := ParseOutline(`[{"title": "研究设计"}]`)
	require.True(t, ok)
	require.Len(t, sections, 1)
	assert.NotNil(t, sections[0].Subsections)
}

func TestParseOutline_EmptyArrayRejected(t *testing.T) {
	_, ok := ParseOutline("[]")
	assert.False(t, ok)
}

func TestParseOutline_NoArrayInReply(t *testing.T) {
	_, ok := ParseOutline("抱歉，无法生成大纲。")
	assert.False(t, ok)
}

func TestGenerateOutline_UsesModelReply(t *testing.T) {
	llm := &fakeLLM{
		complete: func(_ context.Context, _, _ string, temperature float64) (string, error) {
			assert.Equal(t, 0.2, temperature)
			return `[{"title": "1. 研究背景与目的", "subsections": ["1.1 疾病背景"]}]`, nil
		},
	}
	pipeline := newTestPipeline(t, llm, nil)

	result, err := pipeline.GenerateOutline(context.Background(), testKeyInfo(), "原始需求")
	require.NoError(t, err)

	assert.False(t, result.Degraded)
	require.Len(t, result.Sections, 1)
	assert.Equal(t, "1. 研究背景与目的", result.Sections[0].Title)
}

func TestGenerateOutline_FallsBackToStandardOutline(t *testing.T) {
	llm := &fakeLLM{
		complete: func(_ context.Context, _, _ string, _ float64) (string, error) {
			return "这不是JSON数组。", nil
		},
	}
	pipeline := newTestPipeline(t, llm, nil)

	result, err := pipeline.GenerateOutline(context.Background(), testKeyInfo(), "原始需求")
	require.NoError(t, err)

	assert.True(t, result.Degraded)
	require.Len(t, result.Sections, 10)
	assert.Equal(t, "1. 研究背景与目的", result.Sections[0].Title)
	assert.Equal(t, "10. 伦理、法规与管理", result.Sections[9].Title)
}

func TestGenerateOutline_ModelErrorPropagates(t *testing.T) {
	llm := &fakeLLM{
		complete: func(_ context.Context, _, _ string, _ float64) (string, error) {
			return "", errors.New("backend unreachable")
		},
	}
	pipeline := newTestPipeline(t, llm, nil)

	_, err := pipeline.GenerateOutline(context.Background(), testKeyInfo(), "原始需求")
	require.Error(t, err)

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, ErrTypeOutline, genErr.Type)
}

func TestStandardOutline_TenChaptersWithSubsections(t *testing.T) {
	sections := StandardOutline()
	require.Len(t, sections, 10)
	for _, section := range sections {
		assert.NotEmpty(t, section.Title)
		assert.NotEmpty(t, section.Subsections, "chapter %q should carry subsections", section.Title)
	}
}

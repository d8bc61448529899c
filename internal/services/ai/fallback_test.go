// File: internal/services/ai/fallback_test.go
package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackEmbedder_Dimension(t *testing.T) {
	vec, err := NewFallbackEmbedder().CreateEmbedding(context.Background(), "临床试验方案")
	require.NoError(t, err)
	assert.Len(t, vec, FallbackDimension)
}

func TestFallbackEmbedder_Deterministic(t *testing.T) {
	embedder := NewFallbackEmbedder()
	first, err := embedder.CreateEmbedding(context.Background(), "同一段文本")
	require.NoError(t, err)
	second, err := embedder.CreateEmbedding(context.Background(), "同一段文本")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFallbackEmbedder_DistinctTexts(t *testing.T) {
	embedder := NewFallbackEmbedder()
	a, err := embedder.CreateEmbedding(context.Background(), "入组标准")
	require.NoError(t, err)
	b, err := embedder.CreateEmbedding(context.Background(), "排除标准")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestFallbackEmbedder_ValueRange(t *testing.T) {
	vec, err := NewFallbackEmbedder().CreateEmbedding(context.Background(), "安全性监测")
	require.NoError(t, err)
	for i, v := range vec {
		assert.GreaterOrEqual(t, v, -0.5, "component %d out of range", i)
		assert.LessOrEqual(t, v, 0.5, "component %d out of range", i)
	}
}

// File: internal/services/ai/fallback.go
package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// FallbackDimension is the length of offline pseudo-embeddings.
const FallbackDimension = 768

// FallbackEmbedder derives a pseudo-embedding from a cryptographic hash of
// the text. Identical text always maps to the identical vector, which keeps
// the retrieval pipeline runnable (and testable) without an embedding
// backend. The vectors carry no semantic similarity.
type FallbackEmbedder struct{}

func NewFallbackEmbedder() *FallbackEmbedder { return &FallbackEmbedder{} }

func (f *FallbackEmbedder) CreateEmbedding(_ context.Context, text string) ([]float64, error) {
	sum := sha256.Sum256([]byte(text))
	digest := hex.EncodeToString(sum[:])

	// Each hex byte pair becomes one component in [-0.5, 0.5).
	seed := make([]float64, 0, len(digest)/2)
	for i := 0; i+2 <= len(digest); i += 2 {
		n, _ := strconv.ParseUint(digest[i:i+2], 16, 8)
		seed = append(seed, float64(n)/255.0-0.5)
	}

	// Tile the seed out to the full dimension.
	vec := make([]float64, 0, FallbackDimension)
	vec = append(vec, seed...)
	for len(vec) < FallbackDimension {
		n := FallbackDimension - len(vec)
		if n > len(vec) {
			n = len(vec)
		}
		vec = append(vec, vec[:n]...)
	}
	return vec[:FallbackDimension], nil
}

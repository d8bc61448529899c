// File: internal/services/knowledge/similarity.go
package knowledge

import "math"

// CosineSimilarity computes the cosine of the angle between two vectors.
// A zero-norm vector yields 0 rather than an error so retrieval stays total.
// Mismatched dimensions are rejected explicitly: silently comparing vectors
// from different embedding models produces meaningless scores.
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, NewInvalidVectorError(len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// File: internal/services/ai/interface.go
package ai

import "context"

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	CreateEmbedding(ctx context.Context, text string) ([]float64, error)
}

// Completer handles chat completions against the LLM backend.
type Completer interface {
	GetCompletion(ctx context.Context, prompt, systemPrompt string, temperature float64) (string, error)
	StreamCompletion(ctx context.Context, prompt, systemPrompt string, temperature float64, onDelta func(string) error) error
}

// Service combines embedding and completion capabilities.
type Service interface {
	Embedder
	Completer
}

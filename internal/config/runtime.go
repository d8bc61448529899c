// File: internal/config/runtime.go
package config

import "sync"

// BackendSettings describes one OpenAI-compatible backend endpoint.
type BackendSettings struct {
	BaseURL     string  `json:"url"`
	APIKey      string  `json:"key"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature,omitempty"`
	Dimension   int     `json:"dimension,omitempty"`
}

// Runtime holds the LLM and embedding settings that the config API can
// change while the server is running. All access goes through the mutex;
// snapshots are returned by value so callers never observe a torn update.
type Runtime struct {
	mu        sync.RWMutex
	llm       BackendSettings
	embedding BackendSettings
}

// NewRuntime seeds the runtime settings from the process configuration.
func NewRuntime(cfg *Config) *Runtime {
	return &Runtime{
		llm: BackendSettings{
			BaseURL:     cfg.LLMBaseURL,
			APIKey:      cfg.LLMAPIKey,
			Model:       cfg.LLMModel,
			Temperature: cfg.LLMTemperature,
		},
		embedding: BackendSettings{
			BaseURL:   cfg.EmbeddingBaseURL,
			APIKey:    cfg.EmbeddingAPIKey,
			Model:     cfg.EmbeddingModelName,
			Dimension: cfg.EmbeddingDimension,
		},
	}
}

func (r *Runtime) LLM() BackendSettings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm
}

func (r *Runtime) Embedding() BackendSettings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.embedding
}

func (r *Runtime) SetLLM(s BackendSettings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm = s
}

func (r *Runtime) SetEmbedding(s BackendSettings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embedding = s
}

// SetEmbeddingModel records the model id picked by "auto" resolution so the
// lookup happens once per configuration, not once per call.
func (r *Runtime) SetEmbeddingModel(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embedding.Model = model
}

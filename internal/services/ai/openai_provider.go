// File: internal/services/ai/openai_provider.go
package ai

import (
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/trialforge/protocol-agent/internal/config"
	"github.com/trialforge/protocol-agent/internal/services"
)

// defaultEmbeddingModel is used when "auto" model resolution fails.
const defaultEmbeddingModel = "text-embedding-ada-002"

// autoModelSentinel asks the provider to pick the first model the backend
// advertises on its model-listing endpoint.
const autoModelSentinel = "auto"

// OpenAIProvider implements Service against any OpenAI-compatible backend.
// Clients are rebuilt from the runtime settings on every call so that config
// updates take effect without a restart.
type OpenAIProvider struct {
	config   *Config
	runtime  *config.Runtime
	fallback *FallbackEmbedder
	logger   services.Logger
	retry    *retryService
}

func NewOpenAIProvider(cfg *Config, runtime *config.Runtime, logger services.Logger) (*OpenAIProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, NewConfigError(err.Error())
	}
	return &OpenAIProvider{
		config:   cfg,
		runtime:  runtime,
		fallback: NewFallbackEmbedder(),
		logger:   logger,
		retry:    &retryService{config: cfg, logger: logger},
	}, nil
}

func newClient(settings config.BackendSettings) *openai.Client {
	clientConfig := openai.DefaultConfig(settings.APIKey)
	if settings.BaseURL != "" {
		clientConfig.BaseURL = settings.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}

// CreateEmbedding embeds text through the configured backend. Without a
// configured backend URL it falls back to the deterministic offline embedder
// so ingestion and tests keep working without network access.
func (p *OpenAIProvider) CreateEmbedding(ctx context.Context, text string) ([]float64, error) {
	settings := p.runtime.Embedding()
	if settings.BaseURL == "" {
		return p.fallback.CreateEmbedding(ctx, text)
	}

	client := newClient(settings)
	model := settings.Model
	if model == autoModelSentinel {
		model = p.resolveAutoModel(ctx, client)
	}

	var embedding []float64
	err := p.retry.retryWithTimeout(ctx, func(ctx context.Context) error {
		resp, err := client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: openai.EmbeddingModel(model),
		})
		if err != nil {
			return wrapBackendError("embedding", model, err)
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return &AIError{Type: ErrTypeParse, Operation: "embedding", Model: model,
				Message: "empty embedding response"}
		}
		embedding = toFloat64(resp.Data[0].Embedding)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return embedding, nil
}

// resolveAutoModel picks the first model id the backend lists, caching the
// result in the runtime settings. Lookup failure falls back to a known name.
func (p *OpenAIProvider) resolveAutoModel(ctx context.Context, client *openai.Client) string {
	models, err := client.ListModels(ctx)
	if err != nil || len(models.Models) == 0 {
		p.logger.Warn("embedding model auto-detection failed, using default",
			"default", defaultEmbeddingModel, "error", err)
		return defaultEmbeddingModel
	}
	model := models.Models[0].ID
	p.runtime.SetEmbeddingModel(model)
	p.logger.Info("embedding model auto-detected", "model", model)
	return model
}

// GetCompletion returns a non-streamed reply from the chat completion API.
func (p *OpenAIProvider) GetCompletion(ctx context.Context, prompt, systemPrompt string, temperature float64) (string, error) {
	settings := p.runtime.LLM()
	client := newClient(settings)

	var reply string
	err := p.retry.retryWithTimeout(ctx, func(ctx context.Context) error {
		resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       settings.Model,
			Messages:    buildMessages(prompt, systemPrompt, p.config.DefaultSystemPrompt),
			Temperature: float32(temperature),
			MaxTokens:   p.config.CompletionMaxTokens,
		})
		if err != nil {
			return wrapBackendError("completion", settings.Model, err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			return &AIError{Type: ErrTypeParse, Operation: "completion", Model: settings.Model,
				Message: "empty completion response"}
		}
		reply = resp.Choices[0].Message.Content
		return nil
	})
	return reply, err
}

// StreamCompletion streams a reply, invoking onDelta for every text
// increment in arrival order. Each call opens a fresh backend request; the
// stream terminates on the backend sentinel or stream closure.
func (p *OpenAIProvider) StreamCompletion(ctx context.Context, prompt, systemPrompt string, temperature float64, onDelta func(string) error) error {
	settings := p.runtime.LLM()
	client := newClient(settings)

	stream, err := client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       settings.Model,
		Messages:    buildMessages(prompt, systemPrompt, p.config.DefaultSystemPrompt),
		Temperature: float32(temperature),
		MaxTokens:   p.config.StreamMaxTokens,
		Stream:      true,
	})
	if err != nil {
		return wrapBackendError("streaming", settings.Model, err)
	}
	defer stream.Close()

	for {
		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return wrapBackendError("streaming", settings.Model, err)
		}
		if len(response.Choices) == 0 {
			continue
		}
		delta := response.Choices[0].Delta.Content
		if delta == "" || onDelta == nil {
			continue
		}
		if cbErr := onDelta(delta); cbErr != nil {
			return cbErr
		}
	}
}

func buildMessages(prompt, systemPrompt, defaultSystemPrompt string) []openai.ChatCompletionMessage {
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}
}

// wrapBackendError preserves the backend HTTP status on the typed error.
func wrapBackendError(operation, model string, err error) *AIError {
	aiErr := &AIError{Type: ErrTypeProvider, Operation: operation, Model: model,
		Message: "backend call failed", Cause: err}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		aiErr.Code = apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		aiErr.Code = reqErr.HTTPStatusCode
		aiErr.Type = ErrTypeNetwork
	}
	return aiErr
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

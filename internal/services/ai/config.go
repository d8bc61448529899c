// File: internal/services/ai/config.go
package ai

import (
	"fmt"
	"time"
)

type Config struct {
	// Performance configuration.
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	// Token budgets mirror the backend contract: shorter sync replies,
	// longer streamed section drafts.
	CompletionMaxTokens int
	StreamMaxTokens     int

	// Default system prompt sent when the caller supplies none.
	DefaultSystemPrompt string
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1")
	}
	if c.CompletionMaxTokens <= 0 || c.StreamMaxTokens <= 0 {
		return fmt.Errorf("token budgets must be positive")
	}
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:             60 * time.Second,
		MaxRetries:          3,
		RetryDelay:          2 * time.Second,
		CompletionMaxTokens: 1000,
		StreamMaxTokens:     2000,
		DefaultSystemPrompt: "你是一个专业的医学AI助手，专门帮助用户处理临床试验方案相关的问题。请用中文回复。",
	}
}

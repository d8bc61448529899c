// File: internal/services/protocol/config.go
package protocol

import "fmt"

// Config holds the tuning knobs of the generation pipeline. Temperatures
// follow the stage they drive: extraction and quality scoring run cold,
// section drafting runs warmer.
type Config struct {
	ExtractionTemperature float64
	OutlineTemperature    float64
	SectionTemperature    float64
	QualityTemperature    float64

	// RetrievalTopK is the number of snippets fetched per retrieval query.
	RetrievalTopK int
	// ContextSnippets caps how many retrieved snippets enter a prompt.
	ContextSnippets int
	// QualityViewChars bounds the content each rubric call sees.
	QualityViewChars int
	// MinSectionLength marks drafts below it as incomplete.
	MinSectionLength int
	// MaxRecommendations caps the advice list in a quality report.
	MaxRecommendations int
}

func DefaultConfig() Config {
	return Config{
		ExtractionTemperature: 0.1,
		OutlineTemperature:    0.2,
		SectionTemperature:    0.3,
		QualityTemperature:    0.1,
		RetrievalTopK:         3,
		ContextSnippets:       3,
		QualityViewChars:      2000,
		MinSectionLength:      50,
		MaxRecommendations:    5,
	}
}

func (c Config) Validate() error {
	if c.RetrievalTopK <= 0 {
		return fmt.Errorf("retrieval top_k must be positive, got %d", c.RetrievalTopK)
	}
	if c.ContextSnippets <= 0 {
		return fmt.Errorf("context snippet cap must be positive, got %d", c.ContextSnippets)
	}
	if c.QualityViewChars <= 0 {
		return fmt.Errorf("quality view size must be positive, got %d", c.QualityViewChars)
	}
	return nil
}

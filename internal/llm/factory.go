package llm

import (
	"fmt"
	"strings"
)

// NewProvider creates a new completion provider based on configuration.
// An empty provider name means the capability is disabled; the factory
// returns a nil Provider and the pipeline runs on deterministic fallbacks.
func NewProvider(config Config) (Provider, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "openai":
		return NewOpenAIProvider(config)

	case "gemini", "google":
		return NewGeminiProvider(config)

	case "":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, gemini)", config.Provider)
	}
}

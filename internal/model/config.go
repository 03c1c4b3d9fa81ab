package model

import "time"

// Config holds the complete process-wide configuration. It is read-only at
// run time; the pipeline carries no other state across requests.
type Config struct {
	LLM           LLMConfig           `yaml:"llm"`
	OCR           OCRConfig           `yaml:"ocr"`
	Extraction    ExtractionConfig    `yaml:"extraction"`
	Normalization NormalizationConfig `yaml:"normalization"`
	Summary       SummaryConfig       `yaml:"summary"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Concurrency   ConcurrencyConfig   `yaml:"concurrency"`
}

// LLMConfig configures the shared completion capability
type LLMConfig struct {
	// Provider name: "openai", "gemini", "" (disabled)
	Provider string `yaml:"provider"`

	// Model name (provider-specific)
	Model string `yaml:"model"`

	// APIKey for the selected provider
	APIKey string `yaml:"api_key"`

	// BaseURL for custom endpoints
	BaseURL string `yaml:"base_url"`

	// Timeout per completion request, seconds
	Timeout int `yaml:"timeout"`

	// MaxAttempts bounds retries on retryable failures
	MaxAttempts int `yaml:"max_attempts"`

	// RetryBaseDelay is the first backoff delay; it doubles per attempt
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`

	// RequestsPerSecond throttles calls to the shared capability
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst for the rate gate
	Burst int `yaml:"burst"`
}

// OCRConfig configures the OCR collaborator
type OCRConfig struct {
	// APIKey for the vision model; falls back to the environment
	APIKey string `yaml:"api_key"`

	// Model is the vision model name (engine default when empty)
	Model string `yaml:"model"`

	// ConfidenceThreshold is a warning floor only; low-confidence OCR
	// output is still processed
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// ExtractionConfig configures the text extractor
type ExtractionConfig struct {
	// MaxCandidates caps raw candidates to bound downstream cost
	MaxCandidates int `yaml:"max_candidates"`
}

// NormalizationConfig configures the AI normalizer
type NormalizationConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	Temperature         float32 `yaml:"temperature"`
	MaxTokens           int     `yaml:"max_tokens"`
}

// SummaryConfig configures the summary generator
type SummaryConfig struct {
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// PipelineConfig configures the orchestrator
type PipelineConfig struct {
	// InterStageDelay is inserted between normalization and summary to
	// ease rate-limit pressure on the shared capability
	InterStageDelay time.Duration `yaml:"inter_stage_delay"`
}

// ConcurrencyConfig configures batch processing
type ConcurrencyConfig struct {
	BatchWorkers int `yaml:"batch_workers"`
}

// DefaultConfig returns sensible defaults. The numeric values are the
// empirically chosen constants of the original system; do not re-derive.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:          "", // Disabled by default
			Model:             "",
			Timeout:           30,
			MaxAttempts:       3,
			RetryBaseDelay:    time.Second,
			RequestsPerSecond: 2,
			Burst:             2,
		},
		OCR: OCRConfig{
			ConfidenceThreshold: 0.5,
		},
		Extraction: ExtractionConfig{
			MaxCandidates: 20,
		},
		Normalization: NormalizationConfig{
			ConfidenceThreshold: 0.7,
			Temperature:         0.1,
			MaxTokens:           2000,
		},
		Summary: SummaryConfig{
			Temperature: 0.2,
			MaxTokens:   1500,
		},
		Pipeline: PipelineConfig{
			InterStageDelay: 500 * time.Millisecond,
		},
		Concurrency: ConcurrencyConfig{
			BatchWorkers: 2,
		},
	}
}

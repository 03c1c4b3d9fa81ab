package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider implements the Provider interface for Google Gemini models
type GeminiProvider struct {
	config Config
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(config Config) (*GeminiProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	return &GeminiProvider{config: config}, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// IsAvailable checks if the provider is properly configured
func (p *GeminiProvider) IsAvailable(ctx context.Context) bool {
	resp, err := p.Complete(ctx, CompletionRequest{
		System:    "You are a test assistant.",
		User:      `Say "OK" if you can read this.`,
		MaxTokens: 10,
	})
	return err == nil && resp.Text != ""
}

// Complete runs one completion using the Gemini API
func (p *GeminiProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	timeout := time.Duration(p.config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctxWithTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cl, err := genai.NewClient(ctxWithTimeout, option.WithAPIKey(p.config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("Gemini client: %w", err)
	}
	defer cl.Close()

	modelName := p.config.Model
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}

	maxTokens := int32(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 1000
	}
	temperature := req.Temperature

	m := cl.GenerativeModel(modelName)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:     &temperature,
		MaxOutputTokens: &maxTokens,
	}
	if req.System != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}

	resp, err := m.GenerateContent(ctxWithTimeout, genai.Text(req.User))
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}

	text := firstText(resp)
	if text == "" {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	return &CompletionResponse{
		Text:  strings.TrimSpace(text),
		Model: modelName,
	}, nil
}

// firstText extracts the first text part from a Gemini response
func firstText(resp *genai.GenerateContentResponse) string {
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

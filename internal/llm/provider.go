package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"

	"github.com/labdigest/labdigest/internal/model"
)

// Provider defines the interface for the completion capability shared by
// the normalizer and the summary generator
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete runs one text completion given a system and user prompt
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// CompletionRequest contains the input for one completion call
type CompletionRequest struct {
	// System is the system prompt encoding the strict rules for the call
	System string

	// User is the user prompt enumerating the request data verbatim
	User string

	// MaxTokens limits the response length
	MaxTokens int

	// Temperature controls sampling; both callers run low temperatures
	Temperature float32
}

// CompletionResponse contains the completion output
type CompletionResponse struct {
	// Text is the raw model reply, possibly with conversational wrapper text
	Text string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption (0 when the provider does not report it)
	TokensUsed int
}

// Config holds completion provider configuration
type Config struct {
	// Provider name: "openai", "gemini", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for the selected provider
	APIKey string

	// BaseURL for custom endpoints
	BaseURL string

	// Timeout for API requests, seconds
	Timeout int
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(mc model.LLMConfig) Config {
	return Config{
		Provider: mc.Provider,
		Model:    mc.Model,
		APIKey:   mc.APIKey,
		BaseURL:  mc.BaseURL,
		Timeout:  mc.Timeout,
	}
}

// ErrUnavailable marks the capability as disabled, unreachable, or
// rate-limited past the retry budget. Callers fall back to the
// deterministic path instead of failing the request.
var ErrUnavailable = errors.New("completion capability unavailable")

// Unavailable wraps err so IsUnavailable reports true for it
func Unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// IsUnavailable reports whether err indicates the capability cannot serve
// requests right now, as opposed to having returned malformed content
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"404", "not found", "disabled", "temporarily", "connection refused"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether err signals a transient condition worth
// retrying: rate limit, overload, or a 5xx response. Auth and bad-request
// errors are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code == 429 || gErr.Code >= 500
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "503", "rate limit", "overload", "resource exhausted"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

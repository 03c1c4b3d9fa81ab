package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

// flakyProvider fails a fixed number of times before succeeding
type flakyProvider struct {
	failures int
	err      error
	calls    int
}

func (p *flakyProvider) Name() string { return "flaky" }

func (p *flakyProvider) IsAvailable(ctx context.Context) bool { return true }

func (p *flakyProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	p.calls++
	if p.calls <= p.failures {
		return nil, p.err
	}
	return &CompletionResponse{Text: "ok", Model: "flaky"}, nil
}

func newTestCaller(provider Provider, maxAttempts int) *Caller {
	return NewCaller(provider, nil, maxAttempts, time.Millisecond, zap.NewNop())
}

func TestCaller_DisabledProvider(t *testing.T) {
	c := newTestCaller(nil, 3)

	if c.Enabled() {
		t.Error("expected disabled caller")
	}
	if c.ProviderName() != "" {
		t.Errorf("expected empty provider name, got %q", c.ProviderName())
	}

	_, err := c.Complete(context.Background(), CompletionRequest{User: "hi"})
	if !IsUnavailable(err) {
		t.Errorf("expected unavailable error, got %v", err)
	}
}

func TestCaller_RetriesTransientFailures(t *testing.T) {
	provider := &flakyProvider{failures: 2, err: errors.New("429 too many requests")}
	c := newTestCaller(provider, 3)

	resp, err := c.Complete(context.Background(), CompletionRequest{User: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "ok" {
		t.Errorf("unexpected response: %q", resp.Text)
	}
	if provider.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", provider.calls)
	}
}

func TestCaller_ExhaustedBudgetIsUnavailable(t *testing.T) {
	provider := &flakyProvider{failures: 10, err: errors.New("rate limit exceeded")}
	c := newTestCaller(provider, 2)

	_, err := c.Complete(context.Background(), CompletionRequest{User: "hi"})
	if !IsUnavailable(err) {
		t.Errorf("expected unavailable after exhausted retries, got %v", err)
	}
	if provider.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", provider.calls)
	}
}

func TestCaller_FailsFastOnNonRetryable(t *testing.T) {
	provider := &flakyProvider{failures: 10, err: errors.New("invalid api key")}
	c := newTestCaller(provider, 3)

	_, err := c.Complete(context.Background(), CompletionRequest{User: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if IsUnavailable(err) {
		t.Errorf("auth error must not be classified unavailable: %v", err)
	}
	if provider.calls != 1 {
		t.Errorf("expected single attempt, got %d", provider.calls)
	}
}

func TestCaller_AvailabilityErrorsAreUnavailable(t *testing.T) {
	provider := &flakyProvider{failures: 10, err: errors.New("model not found")}
	c := newTestCaller(provider, 3)

	_, err := c.Complete(context.Background(), CompletionRequest{User: "hi"})
	if !IsUnavailable(err) {
		t.Errorf("expected unavailable error, got %v", err)
	}
	if provider.calls != 1 {
		t.Errorf("expected single attempt, got %d", provider.calls)
	}
}

func TestCaller_ContextCancelled(t *testing.T) {
	provider := &flakyProvider{failures: 10, err: errors.New("503 service unavailable")}
	c := NewCaller(provider, nil, 3, time.Minute, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// First attempt runs, the pre-retry wait observes cancellation
	_, err := c.Complete(ctx, CompletionRequest{User: "hi"})
	if !IsUnavailable(err) {
		t.Errorf("expected unavailable on cancellation, got %v", err)
	}
	if provider.calls != 1 {
		t.Errorf("expected single attempt before cancellation, got %d", provider.calls)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("429 too many requests"), true},
		{errors.New("503 service unavailable"), true},
		{errors.New("rate limit exceeded"), true},
		{errors.New("model overloaded"), true},
		{errors.New("RESOURCE EXHAUSTED"), true},
		{errors.New("invalid api key"), false},
		{errors.New("bad request"), false},
	}
	for _, c := range cases {
		if got := IsRetryable(c.err); got != c.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestIsUnavailable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{Unavailable(nil), true},
		{Unavailable(errors.New("quota")), true},
		{context.DeadlineExceeded, true},
		{errors.New("404 page missing"), true},
		{errors.New("model not found"), true},
		{errors.New("API disabled for project"), true},
		{errors.New("connection refused"), true},
		{errors.New("invalid api key"), false},
	}
	for _, c := range cases {
		if got := IsUnavailable(c.err); got != c.want {
			t.Errorf("IsUnavailable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(Config{Provider: ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Error("expected nil provider when disabled")
	}

	if _, err := NewProvider(Config{Provider: "carrier-pigeon"}); err == nil {
		t.Error("expected error for unknown provider")
	}

	if _, err := NewProvider(Config{Provider: "openai"}); err == nil {
		t.Error("expected error for openai without API key")
	}

	if _, err := NewProvider(Config{Provider: "gemini"}); err == nil {
		t.Error("expected error for gemini without API key")
	}

	p, err = NewProvider(Config{Provider: "OpenAI", APIKey: "test-key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("unexpected provider name %q", p.Name())
	}
}

func TestGate(t *testing.T) {
	g := NewGate(1000, 1)

	if !g.Allow() {
		t.Error("expected first call to pass the gate")
	}

	if err := g.Wait(context.Background()); err != nil {
		t.Errorf("unexpected wait error: %v", err)
	}

	// Defaults kick in for non-positive inputs
	if NewGate(0, 0) == nil {
		t.Error("expected gate with defaults")
	}
}

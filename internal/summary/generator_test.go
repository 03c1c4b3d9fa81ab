package summary

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/labdigest/labdigest/internal/llm"
	"github.com/labdigest/labdigest/internal/model"
)

// scriptedProvider implements llm.Provider with a canned reply
type scriptedProvider struct {
	reply string
	err   error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) IsAvailable(ctx context.Context) bool { return true }

func (p *scriptedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &llm.CompletionResponse{Text: p.reply, Model: "scripted"}, nil
}

func newTestGenerator(provider llm.Provider) *Generator {
	caller := llm.NewCaller(provider, nil, 1, time.Millisecond, zap.NewNop())
	return New(caller, model.DefaultConfig().Summary, zap.NewNop())
}

func sampleTests() []model.NormalizedTest {
	return []model.NormalizedTest{
		{Name: "Hemoglobin", Value: 10.2, Unit: "g/dL", Status: model.StatusLow,
			RefRange: model.RefRange{Low: 12, High: 16}},
		{Name: "Glucose", Value: 95, Unit: "mg/dL", Status: model.StatusNormal,
			RefRange: model.RefRange{Low: 70, High: 100}},
	}
}

func TestGenerator_EmptyInput(t *testing.T) {
	g := newTestGenerator(nil)

	if _, err := g.GenerateSummary(context.Background(), nil); err == nil {
		t.Error("expected error for empty test list")
	}
}

func TestGenerator_InvalidInput(t *testing.T) {
	g := newTestGenerator(nil)

	bad := []model.NormalizedTest{
		{Name: "Hemoglobin", Value: 10.2, Unit: "g/dL", Status: model.StatusLow,
			RefRange: model.RefRange{Low: 16, High: 12}},
	}
	if _, err := g.GenerateSummary(context.Background(), bad); err == nil {
		t.Error("expected error for inverted reference range")
	}
}

func TestGenerator_AIPath(t *testing.T) {
	provider := &scriptedProvider{reply: `{
  "summary": "Most of your results look typical. One value is a bit below its reference range. Your healthcare provider can explain what this means for you.",
  "explanations": ["Low hemoglobin may relate to various factors that affect red blood cells"]
}`}
	g := newTestGenerator(provider)

	result, err := g.GenerateSummary(context.Background(), sampleTests())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != model.StatusOK {
		t.Fatalf("expected ok, got %s (%s)", result.Status, result.Reason)
	}
	if !strings.Contains(result.Summary, "healthcare provider") {
		t.Errorf("unexpected summary: %q", result.Summary)
	}
	if len(result.Explanations) != 1 {
		t.Errorf("expected 1 explanation, got %d", len(result.Explanations))
	}
}

func TestGenerator_BlocksProhibitedPhrases(t *testing.T) {
	provider := &scriptedProvider{reply: `{
  "summary": "You have anemia and you need to start treatment as soon as possible today.",
  "explanations": []
}`}
	g := newTestGenerator(provider)

	result, err := g.GenerateSummary(context.Background(), sampleTests())
	if err != nil {
		t.Fatalf("safety rejection must be terminal, not an error: %v", err)
	}
	if !result.Unprocessed() {
		t.Fatal("expected unprocessed result for prohibited content")
	}
	if result.Reason != "Unable to generate safe patient explanation" {
		t.Errorf("unexpected reason: %q", result.Reason)
	}
}

func TestGenerator_RejectsLengthViolations(t *testing.T) {
	short := &scriptedProvider{reply: `{"summary": "All fine.", "explanations": []}`}
	g := newTestGenerator(short)
	if _, err := g.GenerateSummary(context.Background(), sampleTests()); err == nil {
		t.Error("expected error for too-short summary")
	}

	long := &scriptedProvider{reply: `{"summary": "` + strings.Repeat("many words here ", 40) + `", "explanations": []}`}
	g = newTestGenerator(long)
	if _, err := g.GenerateSummary(context.Background(), sampleTests()); err == nil {
		t.Error("expected error for too-long summary")
	}
}

func TestGenerator_BadReply(t *testing.T) {
	g := newTestGenerator(&scriptedProvider{reply: "I'd be happy to help!"})
	if _, err := g.GenerateSummary(context.Background(), sampleTests()); err == nil {
		t.Error("expected error for reply without JSON")
	}

	g = newTestGenerator(&scriptedProvider{reply: `{"summary": "", "explanations": []}`})
	if _, err := g.GenerateSummary(context.Background(), sampleTests()); err == nil {
		t.Error("expected error for missing summary")
	}
}

func TestGenerator_FallbackWhenDisabled(t *testing.T) {
	g := newTestGenerator(nil)

	result, err := g.GenerateSummary(context.Background(), sampleTests())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != model.StatusOK {
		t.Fatalf("expected ok, got %s (%s)", result.Status, result.Reason)
	}
	if !strings.Contains(result.Summary, "2 test results") {
		t.Errorf("unexpected fallback summary: %q", result.Summary)
	}
	if !strings.Contains(result.Summary, "1 test show") {
		t.Errorf("expected abnormal count in summary: %q", result.Summary)
	}
	if len(result.Explanations) != 2 {
		t.Errorf("expected one explanation per test, got %d", len(result.Explanations))
	}
}

func TestFallback_AllNormal(t *testing.T) {
	f := NewFallback()

	tests := []model.NormalizedTest{
		{Name: "Glucose", Value: 95, Unit: "mg/dL", Status: model.StatusNormal,
			RefRange: model.RefRange{Low: 70, High: 100}},
	}
	result := f.GenerateSummary(tests)
	if !strings.Contains(result.Summary, "within normal ranges") {
		t.Errorf("unexpected summary: %q", result.Summary)
	}
	if !strings.Contains(result.Summary, "1 test result.") {
		t.Errorf("expected singular phrasing: %q", result.Summary)
	}
}

func TestFallback_NoTests(t *testing.T) {
	f := NewFallback()

	result := f.GenerateSummary(nil)
	if !result.Unprocessed() {
		t.Fatal("expected unprocessed result for empty test list")
	}
	if result.Reason != "No test results available for summary" {
		t.Errorf("unexpected reason: %q", result.Reason)
	}
}

func TestFallback_CriticalExplanation(t *testing.T) {
	f := NewFallback()

	tests := []model.NormalizedTest{
		{Name: "Hemoglobin", Value: 6, Unit: "g/dL", Status: model.StatusCritical,
			RefRange: model.RefRange{Low: 12, High: 16}},
	}
	result := f.GenerateSummary(tests)
	if len(result.Explanations) != 1 || !strings.Contains(result.Explanations[0], "medical attention") {
		t.Errorf("unexpected explanations: %v", result.Explanations)
	}
}

func TestSanitize(t *testing.T) {
	got := sanitize("  Your   results  look fine, no emergency ")
	want := "Your results look fine, no"
	if got != want {
		t.Errorf("sanitize = %q, want %q", got, want)
	}

	if sanitize("plain text") != "plain text" {
		t.Error("expected clean text unchanged")
	}
}

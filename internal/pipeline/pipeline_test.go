package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/labdigest/labdigest/internal/extract"
	"github.com/labdigest/labdigest/internal/llm"
	"github.com/labdigest/labdigest/internal/model"
	"github.com/labdigest/labdigest/internal/normalize"
	"github.com/labdigest/labdigest/internal/ocr"
	"github.com/labdigest/labdigest/internal/summary"
)

// seqProvider returns one canned reply per call, in order
type seqProvider struct {
	replies []string
	calls   int
}

func (p *seqProvider) Name() string { return "seq" }

func (p *seqProvider) IsAvailable(ctx context.Context) bool { return true }

func (p *seqProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if p.calls >= len(p.replies) {
		return nil, context.DeadlineExceeded
	}
	reply := p.replies[p.calls]
	p.calls++
	return &llm.CompletionResponse{Text: reply, Model: "seq"}, nil
}

func testConfig() *model.Config {
	cfg := model.DefaultConfig()
	cfg.Pipeline.InterStageDelay = time.Millisecond
	return cfg
}

// newFallbackPipeline builds a pipeline with the completion capability
// disabled, so both AI stages run their deterministic fallbacks
func newFallbackPipeline(t *testing.T, engine ocr.Engine) *Pipeline {
	t.Helper()
	p, err := NewPipeline(testConfig(), engine, zap.NewNop())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}

// newAIPipeline wires the stage services around a scripted provider
func newAIPipeline(provider llm.Provider, engine ocr.Engine) *Pipeline {
	cfg := testConfig()
	logger := zap.NewNop()
	caller := llm.NewCaller(provider, nil, 1, time.Millisecond, logger)
	return &Pipeline{
		extractor:  extract.New(cfg, engine, logger),
		normalizer: normalize.New(caller, cfg.Normalization, logger),
		summarizer: summary.New(caller, cfg.Summary, logger),
		delay:      cfg.Pipeline.InterStageDelay,
		logger:     logger,
	}
}

func TestProcessReport_TextFallbackPath(t *testing.T) {
	p := newFallbackPipeline(t, nil)

	result := p.ProcessReport(context.Background(), Input{
		Text: "CBC Results:\nHemoglobin: 10.2 g/dL (Low)\nWBC: 11200 /uL (High)",
	})

	if result.Status != model.StatusOK {
		t.Fatalf("expected ok, got %s (%s, step %s)", result.Status, result.Reason, result.Step)
	}
	if len(result.Tests) != 2 {
		t.Fatalf("expected 2 tests, got %d", len(result.Tests))
	}
	if result.Tests[0].Name != "Hemoglobin" || result.Tests[0].Status != model.StatusLow {
		t.Errorf("unexpected first test: %+v", result.Tests[0])
	}
	if result.Tests[1].Status != model.StatusHigh {
		t.Errorf("unexpected second test: %+v", result.Tests[1])
	}
	if !strings.Contains(result.Summary, "healthcare provider") {
		t.Errorf("unexpected summary: %q", result.Summary)
	}
	if len(result.Explanations) != 2 {
		t.Errorf("expected 2 explanations, got %d", len(result.Explanations))
	}

	meta := result.ProcessingMetadata
	if meta == nil {
		t.Fatal("expected processing metadata")
	}
	if meta.ProcessingID == "" {
		t.Error("expected a processing id")
	}
	if meta.TestsProcessed != 2 {
		t.Errorf("expected 2 tests processed, got %d", meta.TestsProcessed)
	}
	if meta.ExtractionConfidence <= 0 || meta.NormalizationConfidence <= 0 {
		t.Errorf("expected positive confidences, got %+v", meta)
	}
}

func TestProcessReport_NoMedicalData(t *testing.T) {
	p := newFallbackPipeline(t, nil)

	result := p.ProcessReport(context.Background(), Input{
		Text: "Meeting notes for Tuesday about the quarterly budget",
	})

	if result.Status != model.StatusUnprocessed {
		t.Fatalf("expected unprocessed, got %s", result.Status)
	}
	if result.Reason != "No medical test data found in input" {
		t.Errorf("unexpected reason: %q", result.Reason)
	}
	if result.Step != model.StepExtraction {
		t.Errorf("expected extraction step, got %q", result.Step)
	}
	if len(result.Tests) != 0 || result.Summary != "" {
		t.Error("terminal result must not carry partial output")
	}
}

func TestProcessReport_ImagePath(t *testing.T) {
	engine := &ocr.StaticEngine{Text: "Glucose: 95 mg/dL", Confidence: 0.8}
	p := newFallbackPipeline(t, engine)

	result := p.ProcessReport(context.Background(), Input{Image: []byte{0x89, 0x50}})

	if result.Status != model.StatusOK {
		t.Fatalf("expected ok, got %s (%s)", result.Status, result.Reason)
	}
	if len(result.Tests) != 1 || result.Tests[0].Status != model.StatusNormal {
		t.Fatalf("unexpected tests: %+v", result.Tests)
	}
	if result.ProcessingMetadata.ExtractionConfidence != 0.8 {
		t.Errorf("expected OCR confidence carried through, got %v",
			result.ProcessingMetadata.ExtractionConfidence)
	}
}

func TestProcessReport_ImageWithoutEngine(t *testing.T) {
	p := newFallbackPipeline(t, nil)

	result := p.ProcessReport(context.Background(), Input{Image: []byte{1, 2, 3}})

	if result.Status != model.StatusError {
		t.Fatalf("expected error status, got %s", result.Status)
	}
	if result.Step != model.StepUnknown {
		t.Errorf("expected unknown step, got %q", result.Step)
	}
	if !strings.Contains(result.Reason, "Processing failed") {
		t.Errorf("unexpected reason: %q", result.Reason)
	}
}

func TestProcessReport_EmptyInput(t *testing.T) {
	p := newFallbackPipeline(t, nil)

	result := p.ProcessReport(context.Background(), Input{})
	if result.Status != model.StatusError {
		t.Fatalf("expected error status, got %s", result.Status)
	}
}

func TestProcessReport_AIPath(t *testing.T) {
	provider := &seqProvider{replies: []string{
		`{
  "tests": [
    {"name": "Hemoglobin", "value": 10.2, "unit": "g/dL", "status": "low",
     "ref_range": {"low": 12, "high": 16}}
  ],
  "notes": []
}`,
		`{
  "summary": "One of your values is slightly below its reference range. Your healthcare provider can explain what this means for you.",
  "explanations": ["Low hemoglobin may relate to various factors that affect red blood cells"]
}`,
	}}
	p := newAIPipeline(provider, nil)

	result := p.ProcessReport(context.Background(), Input{Text: "Hemoglobin: 10.2 g/dL (Low)"})

	if result.Status != model.StatusOK {
		t.Fatalf("expected ok, got %s (%s, step %s)", result.Status, result.Reason, result.Step)
	}
	if provider.calls != 2 {
		t.Errorf("expected normalization and summary completions, got %d calls", provider.calls)
	}
	if len(result.Explanations) != 1 {
		t.Errorf("expected AI explanations, got %v", result.Explanations)
	}
}

func TestProcessReport_HallucinationRejected(t *testing.T) {
	// Two normalized tests from one raw candidate exceeds the ratio bound
	provider := &seqProvider{replies: []string{
		`{
  "tests": [
    {"name": "Hemoglobin", "value": 10.2, "unit": "g/dL", "status": "low", "ref_range": {"low": 12, "high": 16}},
    {"name": "Glucose", "value": 95, "unit": "mg/dL", "status": "normal", "ref_range": {"low": 70, "high": 100}}
  ],
  "notes": []
}`,
	}}
	p := newAIPipeline(provider, nil)

	result := p.ProcessReport(context.Background(), Input{Text: "Hemoglobin: 10.2 g/dL"})

	if result.Status != model.StatusUnprocessed {
		t.Fatalf("expected unprocessed, got %s (%s)", result.Status, result.Reason)
	}
	if !strings.Contains(result.Reason, "hallucinated") {
		t.Errorf("unexpected reason: %q", result.Reason)
	}
	if result.Step != model.StepValidation {
		t.Errorf("expected validation step, got %q", result.Step)
	}
	if provider.calls != 1 {
		t.Errorf("summary stage must not run after rejection, got %d calls", provider.calls)
	}
}

func TestProcessReport_UnsafeSummaryRejected(t *testing.T) {
	provider := &seqProvider{replies: []string{
		`{
  "tests": [
    {"name": "Hemoglobin", "value": 10.2, "unit": "g/dL", "status": "low", "ref_range": {"low": 12, "high": 16}}
  ],
  "notes": []
}`,
		`{
  "summary": "You have anemia and you need to start treatment as soon as possible today.",
  "explanations": []
}`,
	}}
	p := newAIPipeline(provider, nil)

	result := p.ProcessReport(context.Background(), Input{Text: "Hemoglobin: 10.2 g/dL"})

	if result.Status != model.StatusUnprocessed {
		t.Fatalf("expected unprocessed, got %s (%s)", result.Status, result.Reason)
	}
	if result.Reason != "Unable to generate safe patient explanation" {
		t.Errorf("unexpected reason: %q", result.Reason)
	}
	if result.Step != model.StepSummary {
		t.Errorf("expected summary step, got %q", result.Step)
	}
}

func TestProcessReport_AllNormalNoExplanations(t *testing.T) {
	provider := &seqProvider{replies: []string{
		`{
  "tests": [
    {"name": "Glucose", "value": 95, "unit": "mg/dL", "status": "normal", "ref_range": {"low": 70, "high": 100}}
  ],
  "notes": []
}`,
		`{
  "summary": "All of your values fall within their reference ranges. Your healthcare provider can confirm what this means for you.",
  "explanations": []
}`,
	}}
	p := newAIPipeline(provider, nil)

	result := p.ProcessReport(context.Background(), Input{Text: "Glucose: 95 mg/dL"})

	if result.Status != model.StatusOK {
		t.Fatalf("expected ok, got %s (%s)", result.Status, result.Reason)
	}
	if len(result.Explanations) != 0 {
		t.Errorf("expected no explanations for all-normal results, got %v", result.Explanations)
	}
}

func TestProcessReport_DistinctProcessingIDs(t *testing.T) {
	p := newFallbackPipeline(t, nil)
	input := Input{Text: "Glucose: 95 mg/dL"}

	first := p.ProcessReport(context.Background(), input)
	second := p.ProcessReport(context.Background(), input)

	if first.ProcessingMetadata == nil || second.ProcessingMetadata == nil {
		t.Fatal("expected metadata on both runs")
	}
	if first.ProcessingMetadata.ProcessingID == second.ProcessingMetadata.ProcessingID {
		t.Error("expected distinct processing ids per run")
	}
}

func TestValidateFinalResult(t *testing.T) {
	good := model.ReportResult{
		Tests: []model.NormalizedTest{
			{Name: "Glucose", Value: 95, Unit: "mg/dL", Status: model.StatusNormal,
				RefRange: model.RefRange{Low: 70, High: 100}},
		},
		Summary: "All values look typical here.",
		Status:  model.StatusOK,
	}
	if err := validateFinalResult(good); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	noTests := good
	noTests.Tests = nil
	if err := validateFinalResult(noTests); err == nil {
		t.Error("expected error for missing tests")
	}

	shortSummary := good
	shortSummary.Summary = "ok"
	if err := validateFinalResult(shortSummary); err == nil {
		t.Error("expected error for short summary")
	}

	badStatus := good
	badStatus.Tests = []model.NormalizedTest{{Name: "Glucose", Unit: "mg/dL", Status: "odd"}}
	if err := validateFinalResult(badStatus); err == nil {
		t.Error("expected error for invalid test status")
	}
}

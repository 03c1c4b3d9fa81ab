// Package pipeline orchestrates the extraction, normalization and
// summary stages into a single report-processing run.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/labdigest/labdigest/internal/extract"
	"github.com/labdigest/labdigest/internal/llm"
	"github.com/labdigest/labdigest/internal/model"
	"github.com/labdigest/labdigest/internal/normalize"
	"github.com/labdigest/labdigest/internal/ocr"
	"github.com/labdigest/labdigest/internal/summary"
)

// Input is one report-processing request: direct text or image bytes
type Input struct {
	Text  string
	Image []byte
}

// Pipeline sequences extraction, normalization and summary generation.
// Stateless across invocations; safe for concurrent use.
type Pipeline struct {
	extractor  *extract.Extractor
	normalizer *normalize.Normalizer
	summarizer *summary.Generator
	delay      time.Duration
	logger     *zap.Logger
}

// NewPipeline wires the stage services from configuration. The OCR
// engine may be nil when only text input is processed.
func NewPipeline(cfg *model.Config, engine ocr.Engine, logger *zap.Logger) (*Pipeline, error) {
	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		return nil, fmt.Errorf("initialize LLM provider: %w", err)
	}
	if provider == nil {
		logger.Info("completion capability disabled, deterministic fallbacks active")
	}

	gate := llm.NewGate(cfg.LLM.RequestsPerSecond, cfg.LLM.Burst)
	caller := llm.NewCaller(provider, gate, cfg.LLM.MaxAttempts, cfg.LLM.RetryBaseDelay, logger)

	return &Pipeline{
		extractor:  extract.New(cfg, engine, logger),
		normalizer: normalize.New(caller, cfg.Normalization, logger),
		summarizer: summary.New(caller, cfg.Summary, logger),
		delay:      cfg.Pipeline.InterStageDelay,
		logger:     logger.Named("pipeline"),
	}, nil
}

// ProcessReport runs the full pipeline and always returns a result
// envelope: exactly one of ok, unprocessed or error, with a reason when
// not ok. Errors never escape; the envelope carries them.
func (p *Pipeline) ProcessReport(ctx context.Context, input Input) model.ReportResult {
	processingID := uuid.NewString()
	log := p.logger.With(zap.String("processing_id", processingID))

	result, err := p.run(ctx, input, processingID, log)
	if err != nil {
		if strings.Contains(err.Error(), "hallucinated") {
			return model.ReportResult{
				Status: model.StatusUnprocessed,
				Reason: "hallucinated tests not present in input",
				Step:   model.StepValidation,
			}
		}
		log.Error("report processing failed", zap.Error(err))
		return model.ReportResult{
			Status: model.StatusError,
			Reason: fmt.Sprintf("Processing failed: %v", err),
			Step:   model.StepUnknown,
		}
	}
	return result
}

func (p *Pipeline) run(ctx context.Context, input Input, processingID string, log *zap.Logger) (result model.ReportResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	// Step 1: extraction
	log.Info("step 1: extracting test data")
	extraction, err := p.extractTestData(ctx, input)
	if err != nil {
		return model.ReportResult{}, err
	}
	if len(extraction.TestsRaw) == 0 {
		return model.ReportResult{
			Status: model.StatusUnprocessed,
			Reason: "No medical test data found in input",
			Step:   model.StepExtraction,
		}, nil
	}

	// Step 2: normalization
	log.Info("step 2: normalizing tests", zap.Int("candidates", len(extraction.TestsRaw)))
	normalization, err := p.normalizer.NormalizeTests(ctx, extraction.TestsRaw, extraction.Confidence)
	if err != nil {
		return model.ReportResult{}, err
	}
	if normalization.Unprocessed() {
		step := model.StepNormalization
		if strings.Contains(normalization.Reason, "hallucinated") {
			step = model.StepValidation
		}
		return model.ReportResult{
			Status: model.StatusUnprocessed,
			Reason: normalization.Reason,
			Step:   step,
		}, nil
	}

	// Cooperative backpressure on the shared completion capability
	if err := p.sleep(ctx); err != nil {
		return model.ReportResult{}, err
	}

	// Step 3: patient summary
	log.Info("step 3: generating patient summary")
	summaryResult, err := p.summarizer.GenerateSummary(ctx, normalization.Tests)
	if err != nil {
		return model.ReportResult{}, err
	}
	if summaryResult.Unprocessed() {
		return model.ReportResult{
			Status: model.StatusUnprocessed,
			Reason: summaryResult.Reason,
			Step:   model.StepSummary,
		}, nil
	}

	// Step 4: assemble and validate the final envelope
	log.Info("step 4: finalizing report")
	final := model.ReportResult{
		Tests:        normalization.Tests,
		Summary:      summaryResult.Summary,
		Explanations: summaryResult.Explanations,
		Status:       model.StatusOK,
		ProcessingMetadata: &model.ProcessingMetadata{
			ExtractionConfidence:    extraction.Confidence,
			NormalizationConfidence: normalization.NormalizationConfidence,
			TestsProcessed:          len(normalization.Tests),
			ProcessingID:            processingID,
			Timestamp:               time.Now().UTC(),
		},
	}

	if err := validateFinalResult(final); err != nil {
		// Upstream stage broke its contract; never silently swallowed
		log.Error("final result validation failed",
			zap.Error(err),
			zap.Int("tests", len(final.Tests)),
			zap.Int("summary_length", len(final.Summary)))
		return model.ReportResult{}, fmt.Errorf("final result validation failed: %w", err)
	}

	log.Info("report processing completed",
		zap.Int("tests", len(final.Tests)),
		zap.Float64("extraction_confidence", extraction.Confidence),
		zap.Float64("normalization_confidence", normalization.NormalizationConfidence))
	return final, nil
}

// extractTestData dispatches on input kind; image input delegates OCR to
// the configured engine
func (p *Pipeline) extractTestData(ctx context.Context, input Input) (model.ExtractionResult, error) {
	if len(input.Image) > 0 {
		return p.extractor.ExtractFromImage(ctx, input.Image)
	}
	return p.extractor.ExtractFromText(input.Text)
}

// sleep waits the fixed inter-stage delay unless the context ends first
func (p *Pipeline) sleep(ctx context.Context) error {
	if p.delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.delay):
		return nil
	}
}

// validateFinalResult enforces the envelope contract before return
func validateFinalResult(result model.ReportResult) error {
	if len(result.Tests) == 0 {
		return fmt.Errorf("final result must contain at least one test")
	}
	for _, t := range result.Tests {
		if t.Name == "" || t.Unit == "" || !t.Status.IsValid() {
			return fmt.Errorf("invalid test structure in final result")
		}
	}
	if len(result.Summary) < 10 {
		return fmt.Errorf("invalid or missing summary in final result")
	}
	if !result.Status.IsValid() {
		return fmt.Errorf("invalid status in final result")
	}
	return nil
}

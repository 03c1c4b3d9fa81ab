// Package normalize maps raw candidate strings to canonical, validated
// test records. The AI path cross-checks everything the model returns
// against the original raw text; the system favors under-reporting over
// fabricating.
package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/labdigest/labdigest/internal/llm"
	"github.com/labdigest/labdigest/internal/model"
)

const systemPrompt = `You are a medical data normalization expert. Your task is to standardize medical test results into a consistent JSON format.

CRITICAL RULES:
1. ONLY process tests that are clearly present in the input
2. DO NOT add, invent, or hallucinate any test results
3. If a test name is unclear but values/units are clear, use the closest standard medical test name
4. Provide realistic reference ranges based on standard medical guidelines
5. Status should be "low", "high", "normal", or "critical" based on reference ranges
6. If you cannot confidently normalize a test, exclude it from results

Standard medical test names to use when possible:
- Hemoglobin (not Hgb, Haemoglobin)
- WBC (White Blood Cell Count)
- RBC (Red Blood Cell Count)
- Glucose
- Cholesterol (Total, LDL, HDL)
- Creatinine
- Blood Urea Nitrogen (BUN)
- Platelets
- Hematocrit

Common units:
- g/dL (grams per deciliter)
- mg/dL (milligrams per deciliter)
- /μL or /uL (per microliter)
- % (percentage)
- mmol/L (millimoles per liter)

Response format must be valid JSON with this structure:
{
  "tests": [
    {
      "name": "Standard Test Name",
      "value": numeric_value,
      "unit": "standard_unit",
      "status": "low|normal|high|critical",
      "ref_range": {"low": min_value, "high": max_value}
    }
  ],
  "notes": ["Any processing notes or concerns"]
}`

// Normalizer is the AI-backed normalization service. It is stateless
// beyond immutable configuration and safe for concurrent use.
type Normalizer struct {
	caller   *llm.Caller
	fallback *Fallback
	cfg      model.NormalizationConfig
	logger   *zap.Logger
}

// New creates a normalizer. When the caller's provider is disabled every
// request takes the deterministic fallback path.
func New(caller *llm.Caller, cfg model.NormalizationConfig, logger *zap.Logger) *Normalizer {
	return &Normalizer{
		caller:   caller,
		fallback: NewFallback(logger),
		cfg:      cfg,
		logger:   logger.Named("normalize"),
	}
}

// aiReply is the expected completion reply shape
type aiReply struct {
	Tests []aiTest `json:"tests"`
	Notes []string `json:"notes"`
}

type aiTest struct {
	Name     string   `json:"name"`
	Value    *float64 `json:"value"`
	Unit     string   `json:"unit"`
	Status   string   `json:"status"`
	RefRange *struct {
		Low  *float64 `json:"low"`
		High *float64 `json:"high"`
	} `json:"ref_range"`
}

// NormalizeTests normalizes raw candidates. A terminal result with status
// "unprocessed" means the AI output failed the anti-hallucination check;
// capability unavailability silently degrades to the deterministic
// fallback instead.
func (n *Normalizer) NormalizeTests(ctx context.Context, testsRaw []string, inputConfidence float64) (model.NormalizationResult, error) {
	if len(testsRaw) == 0 {
		return model.NormalizationResult{}, fmt.Errorf("no test results provided for normalization")
	}

	n.logger.Info("normalizing tests", zap.Int("count", len(testsRaw)))

	resp, err := n.caller.Complete(ctx, llm.CompletionRequest{
		System:      systemPrompt,
		User:        buildUserPrompt(testsRaw),
		MaxTokens:   n.cfg.MaxTokens,
		Temperature: n.cfg.Temperature,
	})
	if err != nil {
		if llm.IsUnavailable(err) {
			n.logger.Warn("completion capability unavailable, using basic normalization fallback", zap.Error(err))
			return n.fallback.NormalizeTests(testsRaw, inputConfidence), nil
		}
		return model.NormalizationResult{}, fmt.Errorf("test normalization failed: %w", err)
	}

	reply, err := parseReply(resp.Text)
	if err != nil {
		return model.NormalizationResult{}, fmt.Errorf("failed to parse AI response: %w", err)
	}

	tests, err := validateStructure(reply.Tests)
	if err != nil {
		return model.NormalizationResult{}, fmt.Errorf("test normalization failed: %w", err)
	}

	if reason, ok := n.checkAgainstInput(tests, testsRaw); !ok {
		return model.NormalizationResult{
			Status: model.StatusUnprocessed,
			Reason: reason,
		}, nil
	}

	for _, t := range tests {
		if !isReasonableRange(t.Name, t.RefRange, t.Unit) {
			n.logger.Warn("unusual reference range",
				zap.String("test", t.Name),
				zap.Float64("low", t.RefRange.Low),
				zap.Float64("high", t.RefRange.High),
				zap.String("unit", t.Unit))
		}
	}

	confidence := n.confidence(tests, testsRaw, reply.Notes, inputConfidence)
	n.logger.Info("normalization completed",
		zap.Int("tests", len(tests)),
		zap.Float64("confidence", confidence))

	return model.NormalizationResult{
		Tests:                   tests,
		NormalizationConfidence: confidence,
		ProcessingNotes:         reply.Notes,
	}, nil
}

// buildUserPrompt enumerates the raw candidates verbatim
func buildUserPrompt(testsRaw []string) string {
	var b strings.Builder
	b.WriteString("Please normalize these medical test results. Extract the test name, value, unit, and determine status based on standard reference ranges:\n\nRAW TEST RESULTS:\n")
	for i, test := range testsRaw {
		fmt.Fprintf(&b, "%d. %s\n", i+1, test)
	}
	b.WriteString(`
Requirements:
- Only process tests clearly visible in the input above
- Use standard medical test names
- Provide appropriate reference ranges for each test
- Determine status (low/normal/high/critical) based on the value and reference range
- If a test cannot be confidently parsed, do not include it

Return valid JSON only, no additional text.`)
	return b.String()
}

// parseReply extracts the first balanced JSON object from the reply,
// tolerating conversational wrapper text around it
func parseReply(text string) (*aiReply, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		snippet := text
		if len(snippet) > 200 {
			snippet = snippet[:200] + "..."
		}
		return nil, fmt.Errorf("no valid JSON found in AI response: %s", snippet)
	}

	var reply aiReply
	if err := json.Unmarshal([]byte(text[start:end+1]), &reply); err != nil {
		return nil, err
	}
	if reply.Tests == nil {
		return nil, fmt.Errorf("invalid response structure: missing tests array")
	}
	return &reply, nil
}

// validateStructure checks required fields per test and converts to the
// domain type. A status outside the four allowed values is replaced by
// one recomputed from value vs reference range.
func validateStructure(raw []aiTest) ([]model.NormalizedTest, error) {
	tests := make([]model.NormalizedTest, 0, len(raw))
	for i, t := range raw {
		if t.Name == "" || t.Value == nil || t.Unit == "" || t.Status == "" {
			return nil, fmt.Errorf("invalid test structure at index %d", i)
		}
		if t.RefRange == nil || t.RefRange.Low == nil || t.RefRange.High == nil {
			return nil, fmt.Errorf("invalid reference range at index %d", i)
		}
		refRange := model.RefRange{Low: *t.RefRange.Low, High: *t.RefRange.High}
		if refRange.Low >= refRange.High {
			return nil, fmt.Errorf("invalid reference range at index %d: low must be below high", i)
		}

		status := model.TestStatus(strings.ToLower(t.Status))
		if !status.IsValid() {
			status = deriveStatus(*t.Value, refRange)
		}

		tests = append(tests, model.NormalizedTest{
			Name:     t.Name,
			Value:    *t.Value,
			Unit:     t.Unit,
			Status:   status,
			RefRange: refRange,
		})
	}
	return tests, nil
}

// checkAgainstInput is the anti-hallucination validation: the normalized
// count must not exceed 1.5x the raw count, and every normalized name (or
// a registered variation) must trace back to the raw text, with a lenient
// common-variation second tier.
func (n *Normalizer) checkAgainstInput(tests []model.NormalizedTest, testsRaw []string) (string, bool) {
	if float64(len(tests)) > float64(len(testsRaw))*fabricationRatio {
		return "hallucinated tests not present in input - too many normalized tests", false
	}

	rawLower := strings.ToLower(strings.Join(testsRaw, " "))
	for _, t := range tests {
		matched := false
		for _, variation := range variationsFor(t.Name) {
			if strings.Contains(rawLower, strings.ToLower(variation)) {
				matched = true
				break
			}
		}
		if !matched {
			n.logger.Warn("potential hallucination detected", zap.String("test", t.Name))
			if !isCommonVariation(t.Name, rawLower) {
				return fmt.Sprintf("hallucinated tests not present in input - %s not found in original data", t.Name), false
			}
		}
	}
	return "", true
}

// confidence combines input confidence, coverage and per-test quality,
// minus a small penalty when the model attached notes
func (n *Normalizer) confidence(tests []model.NormalizedTest, testsRaw []string, notes []string, inputConfidence float64) float64 {
	confidence := inputConfidence * 0.7

	coverage := float64(len(tests)) / float64(len(testsRaw))
	confidence += math.Min(coverage*0.2, 0.2)

	if len(tests) > 0 {
		quality := 0
		for _, t := range tests {
			if isReasonableRange(t.Name, t.RefRange, t.Unit) {
				quality++
			}
			if t.Value > 0 && t.Value < t.RefRange.High*10 {
				quality++
			}
		}
		confidence += math.Min(float64(quality)/float64(len(tests)*2)*0.1, 0.1)
	}

	if len(notes) > 0 {
		confidence -= 0.05
	}

	return math.Round(math.Min(math.Max(confidence, 0), 1)*100) / 100
}

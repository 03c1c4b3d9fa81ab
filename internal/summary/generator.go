// Package summary produces the patient-readable explanation of
// normalized test results, guarded by a content-safety filter.
package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/labdigest/labdigest/internal/llm"
	"github.com/labdigest/labdigest/internal/model"
)

const systemPrompt = `You are a medical communication expert who creates patient-friendly explanations of lab results. Your goal is to help patients understand their test results in simple terms without causing alarm or providing medical diagnoses.

CRITICAL SAFETY RULES:
1. NEVER provide medical diagnoses or treatment recommendations
2. NEVER suggest specific actions like "see a doctor immediately" or "start medication"
3. NEVER interpret results as indicating specific diseases or conditions
4. Use phrases like "may relate to", "could be associated with", "sometimes indicates"
5. Always remind that a healthcare provider should interpret results
6. Focus on general education about what tests measure
7. Avoid alarming language or urgent recommendations
8. If values are critical, simply note they are "outside normal range"

RESPONSE GUIDELINES:
- Use simple, non-technical language (8th grade reading level)
- Explain what each test measures in basic terms
- Describe general reasons why values might be high or low
- Keep explanations educational and reassuring
- Maintain professional but friendly tone
- Always emphasize the need for professional medical interpretation

Response format must be valid JSON:
{
  "summary": "Brief overview of all findings in simple terms",
  "explanations": ["Individual explanation for each abnormal test"]
}

Example good explanations:
- "Low hemoglobin may relate to various factors that affect red blood cells"
- "High glucose levels can occur for many reasons and should be discussed with your healthcare provider"
- "White blood cell counts can vary due to many factors including recent illness"`

// Generator is the AI-backed summary service
type Generator struct {
	caller   *llm.Caller
	fallback *Fallback
	cfg      model.SummaryConfig
	logger   *zap.Logger
}

// New creates a summary generator. When the caller's provider is disabled
// every request takes the template fallback path.
func New(caller *llm.Caller, cfg model.SummaryConfig, logger *zap.Logger) *Generator {
	return &Generator{
		caller:   caller,
		fallback: NewFallback(),
		cfg:      cfg,
		logger:   logger.Named("summary"),
	}
}

// replyData is the expected completion reply shape
type replyData struct {
	Summary      string   `json:"summary"`
	Explanations []string `json:"explanations"`
}

// GenerateSummary produces a patient-friendly summary with per-abnormal
// explanations. Safety-gate failures return a terminal unprocessed
// result; capability unavailability degrades to the template fallback.
func (g *Generator) GenerateSummary(ctx context.Context, tests []model.NormalizedTest) (model.SummaryResult, error) {
	if len(tests) == 0 {
		return model.SummaryResult{}, fmt.Errorf("no test results provided for summary generation")
	}
	if err := validateTests(tests); err != nil {
		return model.SummaryResult{}, err
	}

	g.logger.Info("generating patient summary", zap.Int("tests", len(tests)))

	resp, err := g.caller.Complete(ctx, llm.CompletionRequest{
		System:      systemPrompt,
		User:        buildUserPrompt(tests),
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		if llm.IsUnavailable(err) {
			g.logger.Warn("completion capability unavailable, using basic summary fallback", zap.Error(err))
			return g.fallback.GenerateSummary(tests), nil
		}
		return model.SummaryResult{}, fmt.Errorf("summary generation failed: %w", err)
	}

	data, err := parseReply(resp.Text)
	if err != nil {
		return model.SummaryResult{}, fmt.Errorf("failed to parse AI response: %w", err)
	}

	data.Summary = sanitize(data.Summary)
	for i, exp := range data.Explanations {
		data.Explanations[i] = sanitize(exp)
	}

	if err := validateContent(data, tests, g.logger); err != nil {
		if err == errHarmfulContent {
			return model.SummaryResult{
				Status: model.StatusUnprocessed,
				Reason: "Unable to generate safe patient explanation",
			}, nil
		}
		return model.SummaryResult{}, fmt.Errorf("summary generation failed: %w", err)
	}

	g.logger.Info("patient summary generated")
	return model.SummaryResult{
		Summary:      data.Summary,
		Explanations: data.Explanations,
		Status:       model.StatusOK,
	}, nil
}

// validateTests requires structurally complete input; the summary stage
// never repairs upstream data
func validateTests(tests []model.NormalizedTest) error {
	for _, t := range tests {
		if t.Name == "" || t.Unit == "" || !t.Status.IsValid() {
			return fmt.Errorf("invalid test structure for summary generation")
		}
		if t.RefRange.Low >= t.RefRange.High {
			return fmt.Errorf("invalid reference range for summary generation")
		}
	}
	return nil
}

// buildUserPrompt lists each test's name, value, unit, status and range
func buildUserPrompt(tests []model.NormalizedTest) string {
	var b strings.Builder
	b.WriteString("Please create a patient-friendly explanation for these lab results. Focus on education and avoid medical diagnoses:\n\nLABORATORY RESULTS:\n")
	for _, t := range tests {
		fmt.Fprintf(&b, "%s: %g %s (%s) - Normal range: %g-%g %s\n",
			t.Name, t.Value, t.Unit, strings.ToUpper(string(t.Status)),
			t.RefRange.Low, t.RefRange.High, t.Unit)
	}
	b.WriteString(`
Requirements:
- Create a brief summary of overall findings
- Provide individual explanations for any abnormal (high/low/critical) results
- Use simple, reassuring language appropriate for patients
- Focus on general education about what these tests measure
- Avoid specific medical diagnoses or treatment recommendations
- Encourage professional medical consultation for interpretation

Return valid JSON only with summary and explanations array.`)
	return b.String()
}

// parseReply extracts the first balanced JSON object from the reply,
// tolerating conversational wrapper text around it
func parseReply(text string) (*replyData, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		snippet := text
		if len(snippet) > 200 {
			snippet = snippet[:200] + "..."
		}
		return nil, fmt.Errorf("no valid JSON found in AI response: %s", snippet)
	}

	var data replyData
	if err := json.Unmarshal([]byte(text[start:end+1]), &data); err != nil {
		return nil, err
	}
	if data.Summary == "" {
		return nil, fmt.Errorf("invalid response: missing or invalid summary")
	}
	if data.Explanations == nil {
		return nil, fmt.Errorf("invalid response: missing or invalid explanations array")
	}
	return &data, nil
}

package summary

import (
	"fmt"

	"github.com/labdigest/labdigest/internal/model"
)

// Fallback composes a template-based summary when the completion
// capability is unavailable. It always succeeds given at least one test.
type Fallback struct{}

// NewFallback creates the deterministic summary generator
func NewFallback() *Fallback {
	return &Fallback{}
}

// GenerateSummary counts tests and abnormal tests, composes a fixed
// pattern sentence, and emits one templated explanation line per test
func (f *Fallback) GenerateSummary(tests []model.NormalizedTest) model.SummaryResult {
	if len(tests) == 0 {
		return model.SummaryResult{
			Status: model.StatusUnprocessed,
			Reason: "No test results available for summary",
		}
	}

	abnormal := 0
	for _, t := range tests {
		if t.Status.IsAbnormal() {
			abnormal++
		}
	}

	text := fmt.Sprintf("Your lab report contains %d test result%s.", len(tests), plural(len(tests)))
	if abnormal == 0 {
		text += " All test values appear to be within normal ranges."
	} else {
		text += fmt.Sprintf(" %d test%s show values outside normal ranges.", abnormal, plural(abnormal))
	}
	text += " Please discuss these results with your healthcare provider for proper interpretation."

	explanations := make([]string, 0, len(tests))
	for _, t := range tests {
		line := fmt.Sprintf("%s: %g %s", t.Name, t.Value, t.Unit)
		switch t.Status {
		case model.StatusNormal:
			line += " - This value is within the normal range."
		case model.StatusHigh:
			line += " - This value is above the normal range."
		case model.StatusLow:
			line += " - This value is below the normal range."
		case model.StatusCritical:
			line += " - This value requires medical attention."
		}
		explanations = append(explanations, line)
	}

	return model.SummaryResult{
		Summary:      text,
		Explanations: explanations,
		Status:       model.StatusOK,
	}
}

func plural(n int) string {
	if n > 1 {
		return "s"
	}
	return ""
}

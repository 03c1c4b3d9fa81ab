package summary

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/labdigest/labdigest/internal/model"
)

// Summary length bounds enforced by the safety gate
const (
	minSummaryLength = 20
	maxSummaryLength = 500
)

// errHarmfulContent marks a safety-gate failure; the stage returns a
// terminal unprocessed result rather than an error
var errHarmfulContent = errors.New("harmful content detected in summary")

// prohibitedPhrases are directive or diagnostic formulations that must
// never reach a patient, hedged or not
var prohibitedPhrases = []string{
	"you have", "you are diagnosed", "you need to", "immediately see",
	"start treatment", "take medication", "emergency", "urgent",
	"serious condition", "disease", "illness", "syndrome",
	"you should stop", "avoid", "increase", "decrease your",
}

// diagnosisTerms are condition names allowed only in clearly hedged form;
// unhedged occurrences are logged, not fatal
var diagnosisTerms = []string{
	"diabetes", "anemia", "infection", "cancer", "leukemia",
	"kidney disease", "liver disease", "heart disease", "thyroid disorder",
}

var (
	urgencyRe      = regexp.MustCompile(`(?i)\b(you must|you should immediately|emergency|urgent care)\b`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
	nonPrintableRe = regexp.MustCompile(`[^\x20-\x7E]`)
)

// sanitize collapses whitespace, strips non-printable characters and
// removes the fixed set of urgency phrases
func sanitize(text string) string {
	text = strings.TrimSpace(text)
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = nonPrintableRe.ReplaceAllString(text, "")
	text = urgencyRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// validateContent is the content-filter gate on generated output. A
// prohibited phrase fails the gate; unhedged diagnosis terms and missing
// explanations for abnormal tests are logged only.
func validateContent(data *replyData, tests []model.NormalizedTest, logger *zap.Logger) error {
	fullText := strings.ToLower(data.Summary + " " + strings.Join(data.Explanations, " "))

	for _, phrase := range prohibitedPhrases {
		if strings.Contains(fullText, phrase) {
			logger.Warn("potentially harmful phrase detected", zap.String("phrase", phrase))
			return errHarmfulContent
		}
	}

	for _, term := range diagnosisTerms {
		if strings.Contains(fullText, term) &&
			!strings.Contains(fullText, "may relate to "+term) &&
			!strings.Contains(fullText, "can be associated with "+term) {
			logger.Warn("direct diagnosis reference detected", zap.String("term", term))
		}
	}

	if len(data.Summary) < minSummaryLength {
		return fmt.Errorf("summary too short - insufficient explanation")
	}
	if len(data.Summary) > maxSummaryLength {
		return fmt.Errorf("summary too long - may contain excessive detail")
	}

	abnormal := 0
	for _, t := range tests {
		if t.Status.IsAbnormal() {
			abnormal++
		}
	}
	if abnormal > 0 && len(data.Explanations) == 0 {
		logger.Warn("no explanations provided for abnormal test results", zap.Int("abnormal", abnormal))
	}

	return nil
}

// Package extract turns raw lab-report text or a scanned image into an
// ordered list of raw candidate test strings plus an extraction
// confidence score.
package extract

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/labdigest/labdigest/internal/model"
	"github.com/labdigest/labdigest/internal/ocr"
)

// ocrCorrection is one recognition-error fix applied case-insensitively.
// Order matters: name fixes run before status fixes so a corrected name is
// never re-mangled.
type ocrCorrection struct {
	from string
	to   string
}

var ocrCorrections = []ocrCorrection{
	{"Hemglobin", "Hemoglobin"},
	{"Haemoglobin", "Hemoglobin"},
	{"Hgb", "Hemoglobin"},
	{"Hgh", "High"},
	{"Hlgh", "High"},
	{"Norrnal", "Normal"},
	{"Normai", "Normal"},
	{"/uL", "/μL"},
	{"g/dL", "g/dL"}, // normalizes case variants like G/DL
	{"mg/dL", "mg/dL"},
	{"WBC", "WBC"},
	{"RBC", "RBC"},
	{"CBC", "CBC"},
}

// candidatePatterns match <name> <value> <unit> (<status>)? in the surface
// syntaxes seen on lab reports. All patterns run; identical candidate
// strings are deduplicated keeping first-seen order.
var candidatePatterns = []*regexp.Regexp{
	// Test Name Value Unit (Status)
	regexp.MustCompile(`([A-Za-z][A-Za-z\s]+?)\s*[:\-]?\s*(\d+(?:\.\d+)?)\s*([a-zA-Z/%μ]+(?:/[a-zA-Z]+)?)\s*\(?([Ll]ow|[Hh]igh|[Nn]ormal|[Aa]bnormal)?\)?`),
	// Test: Value Unit Status
	regexp.MustCompile(`([A-Za-z][A-Za-z\s]+?):\s*(\d+(?:\.\d+)?)\s*([a-zA-Z/%μ]+)\s*\(?([Ll]ow|[Hh]igh|[Nn]ormal|[Aa]bnormal)?\)?`),
	// CBC, WBC, RBC short forms
	regexp.MustCompile(`([A-Za-z]{2,})\s*(\d+(?:\.\d+)?)\s*([a-zA-Z/%μ]+)\s*\(?([Ll]ow|[Hh]igh|[Nn]ormal)?\)?`),
}

// validTestNames is the allow-list of known lab tests and abbreviations.
// A candidate name must fuzzy-contain (either direction) one of these.
var validTestNames = []string{
	"hemoglobin", "hgb", "wbc", "rbc", "platelets", "glucose",
	"cholesterol", "triglycerides", "ldl", "hdl", "creatinine",
	"bun", "sodium", "potassium", "chloride", "co2", "protein",
	"albumin", "bilirubin", "alt", "ast", "alkaline phosphatase",
	"hematocrit", "hct", "mcv", "mch", "mchc", "neutrophils",
	"lymphocytes", "monocytes", "eosinophils", "basophils",
	"white blood cell", "red blood cell", "complete blood count",
	"cbc", "blood urea nitrogen", "thyroid", "tsh", "t3", "t4",
}

// medicalTerms reward recognized terminology in the confidence score
var medicalTerms = []string{"hemoglobin", "wbc", "glucose", "cholesterol", "creatinine", "cbc"}

var (
	nonTestWordsRe  = regexp.MustCompile(`(?i)(the|and|or|but|for|date|time|page|report)`)
	adminKeywordsRe = regexp.MustCompile(`(?i)(date|name|patient|doctor|address|phone|report)`)
	hasLetterRe     = regexp.MustCompile(`[a-zA-Z]`)
	hasDigitRe      = regexp.MustCompile(`\d`)
	decimalRe       = regexp.MustCompile(`\d+\.\d+`)
	medicalUnitsRe  = regexp.MustCompile(`g/dL|mg/dL|/μL|%`)
	lineSpaceRe     = regexp.MustCompile(`[ \t]+`)
)

// Extractor produces raw test candidates from text or image input. It is
// stateless beyond immutable configuration and safe for concurrent use.
type Extractor struct {
	engine        ocr.Engine
	maxCandidates int
	ocrFloor      float64
	logger        *zap.Logger
}

// New creates an extractor. The OCR engine may be nil when only the text
// path is used.
func New(cfg *model.Config, engine ocr.Engine, logger *zap.Logger) *Extractor {
	maxCandidates := cfg.Extraction.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = 20
	}
	return &Extractor{
		engine:        engine,
		maxCandidates: maxCandidates,
		ocrFloor:      cfg.OCR.ConfidenceThreshold,
		logger:        logger.Named("extract"),
	}
}

// ExtractFromText extracts raw test candidates from direct text input.
// Deterministic: identical input always yields identical output.
func (e *Extractor) ExtractFromText(text string) (model.ExtractionResult, error) {
	if strings.TrimSpace(text) == "" {
		return model.ExtractionResult{}, fmt.Errorf("text content is required")
	}

	cleaned := cleanText(text)
	testsRaw := e.extractCandidates(cleaned)
	confidence := textConfidence(cleaned, testsRaw)

	e.logger.Info("text extraction completed",
		zap.Int("candidates", len(testsRaw)),
		zap.Float64("confidence", confidence))

	return model.ExtractionResult{
		TestsRaw:   testsRaw,
		Confidence: confidence,
		RawText:    cleaned,
	}, nil
}

// ExtractFromImage runs OCR on image bytes, then applies the same text
// pipeline. The OCR engine's own confidence is carried through; a value
// below the configured floor is logged but does not block processing.
func (e *Extractor) ExtractFromImage(ctx context.Context, image []byte) (model.ExtractionResult, error) {
	if len(image) == 0 {
		return model.ExtractionResult{}, fmt.Errorf("image data is required")
	}
	if e.engine == nil {
		return model.ExtractionResult{}, fmt.Errorf("no OCR engine configured")
	}

	text, confidence, err := e.engine.Recognize(ctx, image)
	if err != nil {
		return model.ExtractionResult{}, fmt.Errorf("OCR processing failed: %w", err)
	}

	if confidence < e.ocrFloor {
		e.logger.Warn("low OCR confidence",
			zap.Float64("confidence", confidence),
			zap.Float64("threshold", e.ocrFloor))
	}

	cleaned := cleanText(text)
	testsRaw := e.extractCandidates(cleaned)

	e.logger.Info("image extraction completed",
		zap.String("engine", e.engine.Name()),
		zap.Int("candidates", len(testsRaw)),
		zap.Float64("confidence", confidence))

	return model.ExtractionResult{
		TestsRaw:   testsRaw,
		Confidence: round2(confidence),
		RawText:    cleaned,
	}, nil
}

// extractCandidates runs the pattern table over corrected text, filters
// names through the allow-list, falls back to line scanning when nothing
// matched, and truncates to the candidate cap.
func (e *Extractor) extractCandidates(text string) []string {
	corrected := fixCommonOCRErrors(text)

	var testsRaw []string
	seen := make(map[string]bool)

	for _, pattern := range candidatePatterns {
		for _, match := range pattern.FindAllStringSubmatch(corrected, -1) {
			name := strings.TrimSpace(match[1])
			value := match[2]
			unit := match[3]
			status := match[4]

			if !isValidTestName(name) {
				continue
			}

			candidate := fmt.Sprintf("%s %s %s", name, value, unit)
			if status != "" {
				candidate += fmt.Sprintf(" (%s)", status)
			}
			if !seen[candidate] {
				seen[candidate] = true
				testsRaw = append(testsRaw, candidate)
			}
		}
	}

	// Line-scanning heuristic when no pattern produced a candidate
	if len(testsRaw) == 0 {
		for _, line := range strings.Split(corrected, "\n") {
			line = strings.TrimSpace(line)
			if len(line) > 5 &&
				hasDigitRe.MatchString(line) &&
				hasLetterRe.MatchString(line) &&
				!adminKeywordsRe.MatchString(line) {
				testsRaw = append(testsRaw, line)
			}
		}
	}

	if len(testsRaw) > e.maxCandidates {
		testsRaw = testsRaw[:e.maxCandidates]
	}
	return testsRaw
}

// cleanText normalizes line endings, collapses runs of spaces and tabs,
// and strips non-printable characters. Newlines are preserved so the
// line-scanning fallback still sees line structure.
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = lineSpaceRe.ReplaceAllString(text, " ")

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '\n' || (r >= 0x20 && r <= 0x7E) || r == 'μ' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// fixCommonOCRErrors applies the fixed correction table case-insensitively
func fixCommonOCRErrors(text string) string {
	for _, c := range ocrCorrections {
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(c.from))
		text = re.ReplaceAllString(text, c.to)
	}
	return text
}

// isValidTestName checks a candidate name against the allow-list and the
// structural rules (length, letters, no administrative words)
func isValidTestName(name string) bool {
	normalized := strings.ToLower(strings.TrimSpace(name))

	isKnown := false
	for _, test := range validTestNames {
		if strings.Contains(normalized, test) || strings.Contains(test, normalized) {
			isKnown = true
			break
		}
	}

	return isKnown &&
		len(name) >= 2 && len(name) <= 50 &&
		hasLetterRe.MatchString(name) &&
		!nonTestWordsRe.MatchString(name)
}

// textConfidence scores the text extraction path. All weights are the
// original system's empirical constants.
func textConfidence(text string, testsRaw []string) float64 {
	confidence := 0.5

	if len(testsRaw) > 0 {
		confidence += 0.2
	}
	if len(testsRaw) > 2 {
		confidence += 0.1
	}

	lower := strings.ToLower(text)
	found := 0
	for _, term := range medicalTerms {
		if strings.Contains(lower, term) {
			found++
		}
	}
	confidence += math.Min(float64(found)*0.05, 0.15)

	if decimalRe.MatchString(text) {
		confidence += 0.05
	}
	if medicalUnitsRe.MatchString(text) {
		confidence += 0.1
	}

	if len(text) < 20 {
		confidence -= 0.2
	}
	if len(text) > 2000 {
		confidence -= 0.1
	}

	return round2(clamp01(confidence))
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

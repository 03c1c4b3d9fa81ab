package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/labdigest/labdigest/internal/model"
)

// fallbackNote is recorded whenever the deterministic path ran
const fallbackNote = "AI normalization unavailable - using basic parsing fallback"

// minFallbackConfidence floors the degraded fallback confidence
const minFallbackConfidence = 0.3

// basicPatterns are the three ordered templates of the deterministic
// parser; the first match wins and non-matching candidates are dropped.
var basicPatterns = []*regexp.Regexp{
	// TestName: Value Unit
	regexp.MustCompile(`(?i)([a-zA-Z\s]+):\s*([0-9.,]+)\s*([a-zA-Z/μ%]+)`),
	// TestName Value Unit
	regexp.MustCompile(`(?i)([a-zA-Z\s]+)\s+([0-9.,]+)\s+([a-zA-Z/μ%]+)`),
	// TestName Value Unit (Status)
	regexp.MustCompile(`(?i)([a-zA-Z\s]+)\s+([0-9.,]+)\s+([a-zA-Z/μ%]+)\s*\([^)]+\)`),
}

var cbcPrefixRe = regexp.MustCompile(`(?i)^(CBC:\s*)?`)

// basicRanges is the static reference-range lookup for the deterministic
// path, keyed by lowercased test-name substring then unit. Ordered so
// lookups are deterministic.
var basicRanges = []struct {
	name   string
	ranges map[string]model.RefRange
}{
	{"hemoglobin", map[string]model.RefRange{"g/dl": {Low: 12, High: 16}}},
	{"hgb", map[string]model.RefRange{"g/dl": {Low: 12, High: 16}}},
	{"wbc", map[string]model.RefRange{"ul": {Low: 4000, High: 11000}, "μl": {Low: 4000, High: 11000}}},
	{"white blood cell", map[string]model.RefRange{"ul": {Low: 4000, High: 11000}, "μl": {Low: 4000, High: 11000}}},
	{"glucose", map[string]model.RefRange{"mg/dl": {Low: 70, High: 100}}},
	{"bun", map[string]model.RefRange{"mg/dl": {Low: 7, High: 20}}},
	{"blood urea nitrogen", map[string]model.RefRange{"mg/dl": {Low: 7, High: 20}}},
	{"creatinine", map[string]model.RefRange{"mg/dl": {Low: 0.6, High: 1.2}}},
}

// Fallback is the deterministic, non-AI normalizer used whenever the
// completion capability is unavailable. It produces the same result shape
// as the AI path with deliberately degraded confidence.
type Fallback struct {
	logger *zap.Logger
}

// NewFallback creates the deterministic fallback normalizer
func NewFallback(logger *zap.Logger) *Fallback {
	return &Fallback{logger: logger.Named("normalize-fallback")}
}

// NormalizeTests parses each raw candidate with the basic templates.
// Confidence is max(inputConfidence*0.5, 0.3), always at or below what
// the AI path would report for the same input.
func (f *Fallback) NormalizeTests(testsRaw []string, inputConfidence float64) model.NormalizationResult {
	var tests []model.NormalizedTest
	for _, raw := range testsRaw {
		if t, ok := f.parseBasicTest(raw); ok {
			tests = append(tests, t)
		}
	}

	return model.NormalizationResult{
		Tests:                   tests,
		NormalizationConfidence: math.Max(inputConfidence*0.5, minFallbackConfidence),
		ProcessingNotes:         []string{fallbackNote},
	}
}

// parseBasicTest applies the ordered templates to one candidate
func (f *Fallback) parseBasicTest(raw string) (model.NormalizedTest, bool) {
	var match []string
	for _, pattern := range basicPatterns {
		if match = pattern.FindStringSubmatch(raw); match != nil {
			break
		}
	}
	if match == nil {
		f.logger.Warn("no pattern matched candidate", zap.String("candidate", raw))
		return model.NormalizedTest{}, false
	}

	value, err := strconv.ParseFloat(strings.ReplaceAll(match[2], ",", ""), 64)
	if err != nil {
		f.logger.Warn("invalid value in candidate", zap.String("value", match[2]))
		return model.NormalizedTest{}, false
	}

	name := cbcPrefixRe.ReplaceAllString(strings.TrimSpace(match[1]), "")
	unit := strings.TrimSpace(match[3])
	refRange := basicRange(name, unit)

	return model.NormalizedTest{
		Name:     name,
		Value:    value,
		Unit:     unit,
		Status:   basicStatus(value, refRange),
		RefRange: refRange,
	}, true
}

// basicRange resolves a reference range by test-name substring and unit,
// falling back to unit-family defaults
func basicRange(name, unit string) model.RefRange {
	nameLower := strings.ToLower(name)
	unitLower := strings.TrimPrefix(strings.ToLower(unit), "/")

	for _, entry := range basicRanges {
		if !strings.Contains(nameLower, entry.name) {
			continue
		}
		if r, ok := entry.ranges[unitLower]; ok {
			return r
		}
	}

	switch {
	case strings.Contains(unitLower, "g/dl"):
		return model.RefRange{Low: 10, High: 18}
	case strings.Contains(unitLower, "ul") || strings.Contains(unitLower, "μl"):
		return model.RefRange{Low: 3000, High: 12000}
	case strings.Contains(unitLower, "mg/dl"):
		return model.RefRange{Low: 70, High: 140}
	}
	return model.RefRange{Low: 0, High: 1000}
}

// basicStatus derives status purely from the range; the deterministic
// path has no critical tier
func basicStatus(value float64, r model.RefRange) model.TestStatus {
	switch {
	case value < r.Low:
		return model.StatusLow
	case value > r.High:
		return model.StatusHigh
	default:
		return model.StatusNormal
	}
}

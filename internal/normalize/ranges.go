package normalize

import (
	"strings"

	"github.com/labdigest/labdigest/internal/model"
)

// Empirical constants of the original system; preserved, not re-derived.
const (
	// fabricationRatio rejects normalizations producing more tests than
	// this multiple of the raw candidate count
	fabricationRatio = 1.5

	// criticalLowFactor / criticalHighFactor bound the critical bands
	// (30% beyond the reference range)
	criticalLowFactor  = 0.7
	criticalHighFactor = 1.3

	// rangeToleranceFactor allows declared ranges within 50% of the
	// standard range before a plausibility warning
	rangeToleranceFactor = 0.5
)

// testNameVariations maps canonical names to registered synonyms and
// abbreviations for the hard tier of the hallucination check. The set is
// a floor, not a ceiling; extend it on observed false rejections.
var testNameVariations = map[string][]string{
	"Hemoglobin":          {"hemoglobin", "hgb", "hb", "haemoglobin"},
	"WBC":                 {"wbc", "white blood cell", "white blood cells", "leukocytes"},
	"RBC":                 {"rbc", "red blood cell", "red blood cells", "erythrocytes"},
	"Glucose":             {"glucose", "blood sugar", "blood glucose"},
	"Cholesterol":         {"cholesterol", "chol", "total cholesterol"},
	"Creatinine":          {"creatinine", "creat", "cr"},
	"Blood Urea Nitrogen": {"bun", "blood urea nitrogen", "urea nitrogen", "blood urea"},
	"Platelets":           {"platelets", "plt", "platelet count"},
	"Hematocrit":          {"hematocrit", "hct", "haematocrit"},
}

// commonTestVariations is the lenient tier: very common tests may pass on
// a partial token match when the hard tier fails. Ordered so the first
// matching standard decides.
var commonTestVariations = []struct {
	standard   string
	variations []string
}{
	{"hemoglobin", []string{"hgb", "hb", "hemg", "haem"}},
	{"wbc", []string{"white", "leuk"}},
	{"glucose", []string{"sugar", "gluc"}},
	{"cholesterol", []string{"chol"}},
	{"creatinine", []string{"creat", "cr"}},
	{"blood urea nitrogen", []string{"bun", "urea"}},
	{"bun", []string{"blood urea", "urea nitrogen"}},
}

// standardRanges holds plausibility bounds per canonical test name and
// unit. Violations are logged, never fatal.
var standardRanges = map[string]map[string]model.RefRange{
	"Hemoglobin":  {"g/dL": {Low: 10, High: 18}},
	"WBC":         {"/μL": {Low: 3000, High: 15000}, "/uL": {Low: 3000, High: 15000}},
	"Glucose":     {"mg/dL": {Low: 60, High: 140}},
	"Cholesterol": {"mg/dL": {Low: 120, High: 300}},
	"Creatinine":  {"mg/dL": {Low: 0.5, High: 2.0}},
	"Platelets":   {"/μL": {Low: 100000, High: 500000}, "/uL": {Low: 100000, High: 500000}},
}

// variationsFor returns the registered variations for a canonical name,
// defaulting to the lowercased name itself
func variationsFor(name string) []string {
	if v, ok := testNameVariations[name]; ok {
		return v
	}
	return []string{strings.ToLower(name)}
}

// isCommonVariation is the lenient second tier of the hallucination
// check: a normalized name passes when the raw text carries one of the
// loose tokens registered for it
func isCommonVariation(name, rawText string) bool {
	nameLower := strings.ToLower(name)
	for _, entry := range commonTestVariations {
		if !strings.Contains(nameLower, entry.standard) {
			continue
		}
		for _, v := range entry.variations {
			if strings.Contains(rawText, v) {
				return true
			}
		}
		return false
	}
	return false
}

// isReasonableRange checks a declared reference range against the
// standard range for the test and unit, allowing 50% tolerance. Tests
// without a registered standard always pass.
func isReasonableRange(name string, r model.RefRange, unit string) bool {
	byUnit, ok := standardRanges[name]
	if !ok {
		return true
	}
	expected, ok := byUnit[unit]
	if !ok {
		return true
	}
	return r.Low >= expected.Low*rangeToleranceFactor &&
		r.High <= expected.High*(1+rangeToleranceFactor) &&
		r.High-r.Low > 0
}

// deriveStatus recomputes a status from value vs reference range, with
// critical bands 30% beyond either bound
func deriveStatus(value float64, r model.RefRange) model.TestStatus {
	switch {
	case value < r.Low*criticalLowFactor:
		return model.StatusCritical
	case value < r.Low:
		return model.StatusLow
	case value > r.High*criticalHighFactor:
		return model.StatusCritical
	case value > r.High:
		return model.StatusHigh
	default:
		return model.StatusNormal
	}
}

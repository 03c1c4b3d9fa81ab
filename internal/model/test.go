package model

// TestStatus classifies a test value relative to its reference range
type TestStatus string

const (
	StatusLow      TestStatus = "low"
	StatusNormal   TestStatus = "normal"
	StatusHigh     TestStatus = "high"
	StatusCritical TestStatus = "critical"
)

// IsValid reports whether the status is one of the four allowed values
func (s TestStatus) IsValid() bool {
	switch s {
	case StatusLow, StatusNormal, StatusHigh, StatusCritical:
		return true
	}
	return false
}

// IsAbnormal reports whether the status is outside the normal range
func (s TestStatus) IsAbnormal() bool {
	return s == StatusLow || s == StatusHigh || s == StatusCritical
}

// RefRange is the reference interval for a test; Low < High always holds
// for validated tests
type RefRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// NormalizedTest is one lab test mapped to a canonical name, numeric value,
// unit, status and reference range. Immutable once created.
type NormalizedTest struct {
	Name     string     `json:"name"`
	Value    float64    `json:"value"`
	Unit     string     `json:"unit"`
	Status   TestStatus `json:"status"`
	RefRange RefRange   `json:"ref_range"`
}

// ExtractionResult is the output of the text/image extraction stage.
// TestsRaw preserves source order and is capped by the extractor.
type ExtractionResult struct {
	TestsRaw   []string `json:"tests_raw"`
	Confidence float64  `json:"confidence"`
	RawText    string   `json:"raw_text"`
}

// NormalizationResult is the output of the normalization stage. Either
// Tests/NormalizationConfidence/ProcessingNotes are populated, or Status
// is "unprocessed" with a Reason and the result is terminal.
type NormalizationResult struct {
	Tests                   []NormalizedTest `json:"tests,omitempty"`
	NormalizationConfidence float64          `json:"normalization_confidence,omitempty"`
	ProcessingNotes         []string         `json:"processing_notes,omitempty"`

	Status ReportStatus `json:"status,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

// Unprocessed reports whether the result is a terminal rejection
func (r NormalizationResult) Unprocessed() bool {
	return r.Status == StatusUnprocessed
}

// SummaryResult is the output of the summary stage. Either Summary and
// Explanations are populated with Status "ok", or Status is "unprocessed"
// with a Reason and the result is terminal.
type SummaryResult struct {
	Summary      string       `json:"summary,omitempty"`
	Explanations []string     `json:"explanations,omitempty"`
	Status       ReportStatus `json:"status"`
	Reason       string       `json:"reason,omitempty"`
}

// Unprocessed reports whether the result is a terminal rejection
func (r SummaryResult) Unprocessed() bool {
	return r.Status == StatusUnprocessed
}

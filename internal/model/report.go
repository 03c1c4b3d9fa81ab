package model

import "time"

// ReportStatus is the user-visible outcome of a pipeline run
type ReportStatus string

const (
	StatusOK          ReportStatus = "ok"
	StatusUnprocessed ReportStatus = "unprocessed"
	StatusError       ReportStatus = "error"
)

// IsValid reports whether the status is one of the three allowed values
func (s ReportStatus) IsValid() bool {
	switch s {
	case StatusOK, StatusUnprocessed, StatusError:
		return true
	}
	return false
}

// ReportResult is the final envelope returned once per pipeline run.
// Reason and Step are populated when Status is not ok. Never mutated
// after return.
type ReportResult struct {
	Tests        []NormalizedTest `json:"tests,omitempty"`
	Summary      string           `json:"summary,omitempty"`
	Explanations []string         `json:"explanations,omitempty"`

	Status ReportStatus `json:"status"`
	Reason string       `json:"reason,omitempty"`
	Step   string       `json:"step,omitempty"`

	ProcessingMetadata *ProcessingMetadata `json:"processing_metadata,omitempty"`
}

// ProcessingMetadata carries per-run diagnostics. ProcessingID is a
// run-scoped identifier used only for log correlation, not a durable key.
type ProcessingMetadata struct {
	ExtractionConfidence    float64   `json:"extraction_confidence"`
	NormalizationConfidence float64   `json:"normalization_confidence"`
	TestsProcessed          int       `json:"tests_processed"`
	ProcessingID            string    `json:"processing_id"`
	Timestamp               time.Time `json:"timestamp"`
}

// Pipeline step names used in Step reporting
const (
	StepExtraction    = "extraction"
	StepNormalization = "normalization"
	StepSummary       = "summary"
	StepValidation    = "validation"
	StepFinal         = "final"
	StepUnknown       = "unknown"
)

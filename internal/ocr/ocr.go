// Package ocr defines the OCR collaborator interface used by the image
// extraction path. The pipeline only consumes "image bytes in, text and
// confidence out"; the engine behind it is interchangeable.
package ocr

import "context"

// Engine recognizes text in an image
type Engine interface {
	// Name returns the engine name
	Name() string

	// Recognize runs OCR on image bytes and returns the recognized text
	// with the engine's own confidence in [0,1]
	Recognize(ctx context.Context, image []byte) (text string, confidence float64, err error)
}

// StaticEngine is a deterministic Engine for tests and offline use; it
// returns canned text and confidence for any image.
type StaticEngine struct {
	Text       string
	Confidence float64
	Err        error
}

// Name returns the engine name
func (e *StaticEngine) Name() string { return "static" }

// Recognize returns the canned result
func (e *StaticEngine) Recognize(ctx context.Context, image []byte) (string, float64, error) {
	if e.Err != nil {
		return "", 0, e.Err
	}
	return e.Text, e.Confidence, nil
}

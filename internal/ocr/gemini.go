package ocr

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// geminiConfidence is reported for every successful recognition; the
// vision API does not expose a per-page confidence score.
const geminiConfidence = 0.9

const transcriptionPrompt = `Transcribe all text visible in this image exactly as it appears.
Preserve line breaks. Output plain text only, no commentary, no markdown.`

// GeminiEngine recognizes text by sending the image to a Gemini vision
// model with a plain-transcription instruction
type GeminiEngine struct {
	apiKey string
	model  string
}

// NewGeminiEngine creates a new Gemini-backed OCR engine
func NewGeminiEngine(apiKey, model string) (*GeminiEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiEngine{apiKey: apiKey, model: model}, nil
}

// Name returns the engine name
func (e *GeminiEngine) Name() string { return "gemini" }

// Recognize runs OCR on image bytes
func (e *GeminiEngine) Recognize(ctx context.Context, image []byte) (string, float64, error) {
	if len(image) == 0 {
		return "", 0, fmt.Errorf("image data is required")
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.apiKey))
	if err != nil {
		return "", 0, fmt.Errorf("gemini client: %w", err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.model)
	temperature := float32(0)
	m.GenerationConfig = genai.GenerationConfig{Temperature: &temperature}

	mime := http.DetectContentType(image)
	resp, err := m.GenerateContent(ctx,
		genai.Text(transcriptionPrompt),
		&genai.Blob{MIMEType: mime, Data: image},
	)
	if err != nil {
		return "", 0, fmt.Errorf("gemini OCR: %w", err)
	}

	var text string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text += string(t)
			}
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", 0, fmt.Errorf("gemini OCR: no text recognized")
	}
	return text, geminiConfidence, nil
}

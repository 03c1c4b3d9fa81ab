package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/labdigest/labdigest/internal/model"
	"github.com/labdigest/labdigest/internal/ocr"
	"github.com/labdigest/labdigest/internal/pipeline"
)

var (
	inputText   string
	inputImage  string
	outJSON     string
	timeout     time.Duration
	llmProvider string
	llmModel    string
)

// imageExts mirrors the batch worker's routing rule
var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// processCmd represents the process command
var processCmd = &cobra.Command{
	Use:   "process [file]",
	Short: "Process a single lab report and print the result envelope",
	Long: `Process runs one lab report through the full pipeline:
- Extract test candidates from report text or a report photo (OCR)
- Normalize candidates to canonical names, units and reference ranges
- Validate normalized output against the original input
- Generate a safety-checked plain-language summary

The input is a file path, or inline text via --text. Files with an
image extension (.png, .jpg, .jpeg, .gif, .webp) are routed through OCR.

The result envelope is printed as JSON. Exit code 0 means status ok,
2 means unprocessed, 1 means error.

Example:
  labdigest process report.txt
  labdigest process report.jpg --llm-provider gemini
  labdigest process --text "Hemoglobin: 10.2 g/dL (Low)" --json out.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringVar(&inputText, "text", "", "inline report text (alternative to a file argument)")
	processCmd.Flags().StringVar(&inputImage, "image", "", "report image path, forced through OCR regardless of extension")
	processCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (default: stdout)")
	processCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall processing timeout")

	// LLM flags
	processCmd.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM provider (openai, gemini); empty runs deterministic fallbacks only")
	processCmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name (provider default when empty)")
}

func runProcess(cmd *cobra.Command, args []string) error {
	input, err := resolveInput(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyLLMFlags(cfg)

	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	engine, err := ocrEngine(cfg)
	if err != nil {
		return err
	}

	p, err := pipeline.NewPipeline(cfg, engine, logger)
	if err != nil {
		return err
	}

	result := p.ProcessReport(ctx, input)

	if err := writeResult(result, outJSON); err != nil {
		return err
	}

	if result.Status != model.StatusOK {
		return &ExitCodeError{Code: exitCodeFor(result.Status), Status: result.Status}
	}
	return nil
}

// resolveInput reads the positional file, --text, or --image; exactly one
func resolveInput(args []string) (pipeline.Input, error) {
	sources := len(args)
	if inputText != "" {
		sources++
	}
	if inputImage != "" {
		sources++
	}
	if sources > 1 {
		return pipeline.Input{}, fmt.Errorf("provide exactly one of a file argument, --text, or --image")
	}
	if inputText != "" {
		return pipeline.Input{Text: inputText}, nil
	}
	if inputImage != "" {
		data, err := os.ReadFile(inputImage)
		if err != nil {
			return pipeline.Input{}, fmt.Errorf("read report image: %w", err)
		}
		return pipeline.Input{Image: data}, nil
	}
	if len(args) == 0 {
		return pipeline.Input{}, fmt.Errorf("a report file argument, --text, or --image is required")
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return pipeline.Input{}, fmt.Errorf("read report file: %w", err)
	}
	if imageExts[strings.ToLower(filepath.Ext(args[0]))] {
		return pipeline.Input{Image: data}, nil
	}
	return pipeline.Input{Text: string(data)}, nil
}

// applyLLMFlags overrides the config's provider settings from CLI flags
func applyLLMFlags(cfg *model.Config) {
	if llmProvider != "" {
		cfg.LLM.Provider = llmProvider
		if cfg.LLM.APIKey == "" {
			switch llmProvider {
			case "openai":
				cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
			case "gemini", "google":
				cfg.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
				if cfg.LLM.APIKey == "" {
					cfg.LLM.APIKey = os.Getenv("GOOGLE_API_KEY")
				}
			}
		}
	}
	if llmModel != "" {
		cfg.LLM.Model = llmModel
	}
}

// ocrEngine builds the vision engine when a Gemini key is available;
// text-only runs work without one
func ocrEngine(cfg *model.Config) (ocr.Engine, error) {
	apiKey := cfg.OCR.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, nil
	}
	engine, err := ocr.NewGeminiEngine(apiKey, cfg.OCR.Model)
	if err != nil {
		return nil, fmt.Errorf("initialize OCR engine: %w", err)
	}
	return engine, nil
}

// writeResult marshals the envelope to the output path or stdout
func writeResult(result model.ReportResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", path)
	}
	return nil
}

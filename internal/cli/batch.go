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
	"github.com/labdigest/labdigest/internal/pipeline"
	"github.com/labdigest/labdigest/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <manifest>",
	Short: "Process multiple lab reports from a manifest in parallel",
	Long: `Batch processes multiple lab reports concurrently:
- Read report file paths from the manifest (one per line, # comments)
- Process reports in parallel with a configurable worker count
- Write one result envelope JSON per report to the output directory

Example:
  labdigest batch reports.txt
  labdigest batch reports.txt --concurrency 4 --output-dir ./digests
  labdigest batch reports.txt --llm-provider openai`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent workers (default: config batch_workers)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./labdigest-reports", "output directory for result envelopes")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")

	// LLM flags shared with process
	batchCmd.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM provider (openai, gemini); empty runs deterministic fallbacks only")
	batchCmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name (provider default when empty)")
}

func runBatch(cmd *cobra.Command, args []string) error {
	manifest := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyLLMFlags(cfg)
	if concurrency > 0 {
		cfg.Concurrency.BatchWorkers = concurrency
	}

	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Labdigest Batch Processing\n")
	fmt.Fprintf(os.Stderr, "  Manifest:    %s\n", manifest)
	fmt.Fprintf(os.Stderr, "  Workers:     %d\n", cfg.Concurrency.BatchWorkers)
	fmt.Fprintf(os.Stderr, "  Output dir:  %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:     %v\n", batchTimeout)
	if cfg.LLM.Provider != "" {
		fmt.Fprintf(os.Stderr, "  LLM:         %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	}
	fmt.Fprintf(os.Stderr, "\n")

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	engine, err := ocrEngine(cfg)
	if err != nil {
		return err
	}

	p, err := pipeline.NewPipeline(cfg, engine, logger)
	if err != nil {
		return err
	}

	processor := worker.NewBatchProcessor(p, cfg.Concurrency.BatchWorkers)

	outcomes, err := processor.ProcessManifest(ctx, manifest)
	if err != nil {
		return fmt.Errorf("process manifest: %w", err)
	}

	okCount := 0
	unprocessedCount := 0
	errorCount := 0

	for _, outcome := range outcomes {
		if outcome.Error != nil {
			errorCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", outcome.Path, outcome.Error)
			continue
		}

		outPath := filepath.Join(outputDir, resultFilename(outcome.Path))
		data, err := json.MarshalIndent(outcome.Result, "", "  ")
		if err != nil {
			errorCount++
			fmt.Fprintf(os.Stderr, "✗ %s: marshal result: %v\n", outcome.Path, err)
			continue
		}
		if err := os.WriteFile(outPath, append(data, '\n'), 0644); err != nil {
			errorCount++
			fmt.Fprintf(os.Stderr, "✗ %s: write result: %v\n", outcome.Path, err)
			continue
		}

		switch outcome.Result.Status {
		case model.StatusOK:
			okCount++
			fmt.Fprintf(os.Stderr, "✓ %s (%d tests)\n", outcome.Path, len(outcome.Result.Tests))
		case model.StatusUnprocessed:
			unprocessedCount++
			fmt.Fprintf(os.Stderr, "- %s: unprocessed: %s\n", outcome.Path, outcome.Result.Reason)
		default:
			errorCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %s\n", outcome.Path, outcome.Result.Reason)
		}
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "  Total:        %d reports\n", len(outcomes))
	fmt.Fprintf(os.Stderr, "  Ok:           %d\n", okCount)
	fmt.Fprintf(os.Stderr, "  Unprocessed:  %d\n", unprocessedCount)
	fmt.Fprintf(os.Stderr, "  Errors:       %d\n", errorCount)
	fmt.Fprintf(os.Stderr, "  Output:       %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	if errorCount > 0 {
		return &ExitCodeError{Code: 1, Status: model.StatusError}
	}
	if unprocessedCount > 0 {
		return &ExitCodeError{Code: 2, Status: model.StatusUnprocessed}
	}
	return nil
}

// resultFilename derives the envelope file name from the report path
func resultFilename(reportPath string) string {
	base := filepath.Base(reportPath)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	base = strings.ReplaceAll(base, " ", "-")
	if len(base) > 100 {
		base = base[:100]
	}
	return base + ".result.json"
}

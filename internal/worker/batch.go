package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/labdigest/labdigest/internal/model"
	"github.com/labdigest/labdigest/internal/pipeline"
)

// Processor runs one report through the pipeline
type Processor interface {
	ProcessReport(ctx context.Context, input pipeline.Input) model.ReportResult
}

// imageExtensions are file suffixes routed through OCR instead of the
// direct text path
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// ReportJob processes a single report file
type ReportJob struct {
	Path      string
	Processor Processor
}

// Execute reads the file and routes it by extension: recognized image
// suffixes go through OCR, everything else is treated as report text
func (j *ReportJob) Execute(ctx context.Context) Result {
	data, err := os.ReadFile(j.Path)
	if err != nil {
		return &ReportOutcome{Path: j.Path, Error: fmt.Errorf("read report file: %w", err)}
	}

	var input pipeline.Input
	if imageExtensions[strings.ToLower(filepath.Ext(j.Path))] {
		input.Image = data
	} else {
		input.Text = string(data)
	}

	return &ReportOutcome{
		Path:   j.Path,
		Result: j.Processor.ProcessReport(ctx, input),
	}
}

// ReportOutcome pairs a processed file with its result envelope. Error
// is set only for I/O failures before the pipeline ran.
type ReportOutcome struct {
	Path   string
	Result model.ReportResult
	Error  error
}

// GetError returns the pre-pipeline error, if any
func (r *ReportOutcome) GetError() error {
	return r.Error
}

// BatchProcessor processes multiple report files concurrently
type BatchProcessor struct {
	processor   Processor
	concurrency int
}

// NewBatchProcessor creates a batch processor with the given concurrency
func NewBatchProcessor(processor Processor, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		processor:   processor,
		concurrency: concurrency,
	}
}

// ProcessPaths runs every report file through the pipeline using the
// worker pool. Result order is not guaranteed.
func (b *BatchProcessor) ProcessPaths(ctx context.Context, paths []string) []*ReportOutcome {
	if len(paths) == 0 {
		return []*ReportOutcome{}
	}

	pool := NewPool(b.concurrency)
	pool.Start()

	for _, path := range paths {
		pool.Submit(&ReportJob{Path: path, Processor: b.processor})
	}

	results := pool.Wait()

	outcomes := make([]*ReportOutcome, 0, len(results))
	for _, result := range results {
		outcomes = append(outcomes, result.(*ReportOutcome))
	}
	return outcomes
}

// ProcessManifest reads report file paths from a manifest and processes
// them concurrently
func (b *BatchProcessor) ProcessManifest(ctx context.Context, manifestPath string) ([]*ReportOutcome, error) {
	paths, err := ReadPathsFromFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	return b.ProcessPaths(ctx, paths), nil
}

// ReadPathsFromFile reads report file paths from a manifest, one per
// line, skipping blanks and # comments and dropping duplicates
func ReadPathsFromFile(manifestPath string) ([]string, error) {
	file, err := os.Open(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var paths []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			paths = append(paths, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return paths, nil
}

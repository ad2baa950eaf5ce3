/**
 * Content parsing engine.
 *
 * Owns the processor registry and fans one batch out over a bounded worker
 * pool. Results are written into pre-allocated slots indexed by input
 * position, so output order always matches input order regardless of
 * completion order. Parse never returns an error: a systemic failure is
 * encoded as an all-failed result.
 */

package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/parseforge/ingest-worker/internal/errors"
	"github.com/parseforge/ingest-worker/internal/logging"
	"github.com/parseforge/ingest-worker/internal/models"
	"github.com/parseforge/ingest-worker/internal/processor"
	"github.com/parseforge/ingest-worker/internal/report"
)

// Engine dispatches parse batches across registered processors.
type Engine struct {
	processors        map[string]processor.Processor
	maxWorkers        int
	processingTimeout time.Duration
	logger            *logging.Logger
}

// EngineConfig holds engine tunables.
type EngineConfig struct {
	MaxWorkers        int
	ProcessingTimeout time.Duration // per-file multiplier for the batch deadline
}

// NewEngine creates an engine with an empty registry.
func NewEngine(cfg *EngineConfig) *Engine {
	maxWorkers := 4
	timeout := 5 * time.Minute
	if cfg != nil {
		if cfg.MaxWorkers > 0 {
			maxWorkers = cfg.MaxWorkers
		}
		if cfg.ProcessingTimeout > 0 {
			timeout = cfg.ProcessingTimeout
		}
	}
	return &Engine{
		processors:        make(map[string]processor.Processor),
		maxWorkers:        maxWorkers,
		processingTimeout: timeout,
		logger:            logging.NewLogger("ParsingEngine"),
	}
}

// Register binds a processor for every extension it declares. A collision
// logs a warning and the later registration wins.
func (e *Engine) Register(p processor.Processor) {
	for _, ext := range p.SupportedTypes() {
		ext = strings.ToLower(ext)
		if _, exists := e.processors[ext]; exists {
			e.logger.Warn("Processor registration collision, later registration wins",
				"extension", ext)
		}
		e.processors[ext] = p
	}
}

// SupportedExtensions returns every extension with a registered processor.
func (e *Engine) SupportedExtensions() []string {
	out := make([]string, 0, len(e.processors))
	for ext := range e.processors {
		out = append(out, ext)
	}
	return out
}

// Parse processes one ordered batch. Per-file failures are folded into
// their result slot; an orchestration failure degrades the whole batch to
// an all-failed result rather than returning an error.
func (e *Engine) Parse(ctx context.Context, files []models.FileMetadata) *models.ParsedContent {
	if len(files) == 0 {
		return &models.ParsedContent{
			FileResults:    []models.ProcessedContent{},
			MarkdownOutput: report.Generate(nil, nil),
			Summary: models.ProcessingSummary{
				ByContentType: map[string]models.TypeStats{},
				ErrorCodes:    map[string]int{},
			},
		}
	}

	wallStart := time.Now()
	results := make([]models.ProcessedContent, len(files))

	var orchestrationErr error
	if len(files) <= 1 || e.maxWorkers == 1 {
		for i, meta := range files {
			results[i] = e.processOne(ctx, meta)
		}
	} else {
		orchestrationErr = e.parseParallel(ctx, files, results)
	}

	if orchestrationErr != nil {
		e.logger.Error("Batch orchestration failed",
			"fileCount", len(files),
			"error", orchestrationErr.Error())
		return e.allFailed(files, orchestrationErr, time.Since(wallStart))
	}

	return e.aggregate(files, results, time.Since(wallStart))
}

// parseParallel fans the batch out over a fixed-size pool and blocks until
// every file resolves or the aggregate deadline elapses. Files are not
// cancelled mid-flight on timeout; the timeout surfaces as an
// orchestration failure.
func (e *Engine) parseParallel(ctx context.Context, files []models.FileMetadata, results []models.ProcessedContent) error {
	pool, err := ants.NewPool(e.maxWorkers)
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, meta := range files {
		i, meta := i, meta
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			results[i] = e.processOne(ctx, meta)
		})
		if submitErr != nil {
			wg.Done()
			return fmt.Errorf("failed to submit file %s to pool: %w", meta.FileID, submitErr)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	deadline := e.processingTimeout * time.Duration(len(files))
	select {
	case <-done:
		return nil
	case <-time.After(deadline):
		return errors.New(errors.ErrorProcessingTimeout, errors.CategoryProcessing,
			fmt.Sprintf("batch of %d files exceeded the %s deadline", len(files), deadline))
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.New(errors.ErrorProcessingTimeout, errors.CategoryProcessing,
				"batch cancelled by context deadline").WithCause(ctx.Err())
		}
		return fmt.Errorf("batch cancelled: %w", ctx.Err())
	}
}

// processOne resolves the processor for one file and runs it, converting
// any failure (including panics) into a failed result slot.
func (e *Engine) processOne(ctx context.Context, meta models.FileMetadata) (result models.ProcessedContent) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Processor panicked",
				"fileId", meta.FileID,
				"filename", meta.OriginalName,
				"panic", fmt.Sprintf("%v", r))
			result = e.failedResult(meta, errors.ErrorProcessingFailed,
				fmt.Sprintf("internal failure while processing %s", meta.OriginalName),
				time.Since(start))
		}
	}()

	proc, ok := e.processors[strings.ToLower(meta.FileType)]
	if !ok {
		return e.failedResult(meta, errors.ErrorUnsupportedType,
			fmt.Sprintf("no processor registered for .%s files", meta.FileType),
			time.Since(start))
	}

	processed, err := proc.Process(ctx, meta)
	if err != nil {
		e.logger.Warn("File processing failed",
			"fileId", meta.FileID,
			"filename", meta.OriginalName,
			"code", errors.CodeOf(err),
			"error", err.Error())
		return e.failedResult(meta, codeOrDefault(err), err.Error(), time.Since(start))
	}

	return processed
}

// codeOrDefault extracts the machine code of a classified error, falling
// back to the generic processing code.
func codeOrDefault(err error) errors.ErrorCode {
	var pe *errors.ProcessingError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return errors.ErrorProcessingFailed
}

// failedResult builds the failed slot for one file.
func (e *Engine) failedResult(meta models.FileMetadata, code errors.ErrorCode, message string, elapsed time.Duration) models.ProcessedContent {
	return models.ProcessedContent{
		FileID:         meta.FileID,
		FileName:       meta.OriginalName,
		ContentType:    "error",
		Metadata:       map[string]string{"error_code": string(code)},
		ProcessingTime: elapsed.Seconds(),
		Success:        false,
		ErrorMessage:   message,
	}
}

// allFailed degrades the whole batch after an orchestration failure. The
// slot code reflects the cause: a deadline stamps PROCESSING_TIMEOUT,
// anything else the generic processing code.
func (e *Engine) allFailed(files []models.FileMetadata, cause error, wallClock time.Duration) *models.ParsedContent {
	message := fmt.Sprintf("batch processing failed: %v", cause)
	code := codeOrDefault(cause)
	results := make([]models.ProcessedContent, len(files))
	for i, meta := range files {
		results[i] = e.failedResult(meta, code, message, 0)
	}
	return e.aggregate(files, results, wallClock)
}

// aggregate builds the final ParsedContent with statistics and the
// rendered report.
func (e *Engine) aggregate(files []models.FileMetadata, results []models.ProcessedContent, wallClock time.Duration) *models.ParsedContent {
	summary := models.ProcessingSummary{
		ByContentType:    make(map[string]models.TypeStats),
		ErrorCodes:       make(map[string]int),
		WallClockSeconds: wallClock.Seconds(),
	}

	successful := 0
	for _, r := range results {
		stats := summary.ByContentType[r.ContentType]
		stats.Total++
		stats.TimeSeconds += r.ProcessingTime
		if r.Success {
			stats.Successful++
			successful++
		} else {
			stats.Failed++
			if code, ok := r.Metadata["error_code"]; ok {
				summary.ErrorCodes[code]++
			}
		}
		summary.ByContentType[r.ContentType] = stats
		summary.TotalTimeSeconds += r.ProcessingTime
	}

	if summary.WallClockSeconds > 0 {
		summary.ParallelEfficiency = summary.TotalTimeSeconds / summary.WallClockSeconds
	}

	parsed := &models.ParsedContent{
		TotalFiles:      len(files),
		SuccessfulFiles: successful,
		FailedFiles:     len(files) - successful,
		FileResults:     results,
		Summary:         summary,
	}
	parsed.MarkdownOutput = report.Generate(results, files)

	e.logger.Info("Batch complete",
		"totalFiles", parsed.TotalFiles,
		"successful", parsed.SuccessfulFiles,
		"failed", parsed.FailedFiles,
		"wallClockSeconds", fmt.Sprintf("%.2f", summary.WallClockSeconds),
		"parallelEfficiency", fmt.Sprintf("%.2f", summary.ParallelEfficiency))

	return parsed
}

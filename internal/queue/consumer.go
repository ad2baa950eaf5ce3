/**
 * Queue consumer for the evidence ingestion worker.
 *
 * Consumes parse jobs from the Redis-backed queue via Asynq, runs the
 * ingestion pipeline, and persists the outcome to the job store and the
 * status keys the API layer polls.
 */

package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/parseforge/ingest-worker/internal/errors"
	"github.com/parseforge/ingest-worker/internal/logging"
	"github.com/parseforge/ingest-worker/internal/models"
	"github.com/parseforge/ingest-worker/internal/pipeline"
	"github.com/parseforge/ingest-worker/internal/storage"
	"github.com/parseforge/ingest-worker/internal/upload"
)

// TaskTypeParse is the task name the API enqueues.
const TaskTypeParse = "evidence:parse"

// ParseJob is the payload of one parse task.
type ParseJob struct {
	JobID  string         `json:"jobId"`
	UserID string         `json:"userId"`
	Files  []IncomingFile `json:"files"`
}

// IncomingFile is one raw file in a parse job.
type IncomingFile struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Content  []byte // set by UnmarshalJSON
}

// UnmarshalJSON decodes the content field, which arrives either as a
// base64 string or as a Node.js Buffer object from older producers.
func (f *IncomingFile) UnmarshalJSON(data []byte) error {
	type alias IncomingFile
	aux := &struct {
		Content interface{} `json:"content,omitempty"`
		*alias
	}{alias: (*alias)(f)}

	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("failed to unmarshal incoming file: %w", err)
	}

	switch v := aux.Content.(type) {
	case nil:
		f.Content = nil
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode base64 content: %w", err)
		}
		f.Content = decoded
	case map[string]interface{}:
		if bufferType, ok := v["type"].(string); !ok || bufferType != "Buffer" {
			return fmt.Errorf("content object is not a Buffer")
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return fmt.Errorf("Buffer object missing data array")
		}
		f.Content = make([]byte, len(dataArray))
		for i, val := range dataArray {
			byteVal, ok := val.(float64)
			if !ok {
				return fmt.Errorf("invalid byte value in Buffer data at index %d", i)
			}
			f.Content[i] = byte(byteVal)
		}
	default:
		return fmt.Errorf("content must be a base64 string or Buffer object, got %T", v)
	}

	return nil
}

// Consumer pulls parse jobs off the queue and runs them.
type Consumer struct {
	client   *asynq.Client
	server   *asynq.Server
	mux      *asynq.ServeMux
	service  *pipeline.Service
	jobs     *storage.JobStore
	status   *StatusPublisher
	config   *ConsumerConfig
	logger   *logging.Logger
}

// ConsumerConfig holds consumer configuration. Jobs and Status may be nil
// when the corresponding backend is not configured.
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Service           *pipeline.Service
	Jobs              *storage.JobStore
	Status            *StatusPublisher
	ProcessingTimeout time.Duration
}

// NewConsumer creates a queue consumer.
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Service == nil {
		return nil, fmt.Errorf("Service is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := logging.NewLogger("QueueConsumer")

	client := asynq.NewClient(redisOpt)
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error",
					"type", task.Type(),
					"error", err.Error())
			}),
		},
	)

	mux := asynq.NewServeMux()
	consumer := &Consumer{
		client:  client,
		server:  server,
		mux:     mux,
		service: cfg.Service,
		jobs:    cfg.Jobs,
		status:  cfg.Status,
		config:  cfg,
		logger:  logger,
	}
	mux.HandleFunc(TaskTypeParse, consumer.handleParseJob)

	return consumer, nil
}

// Start runs the consumer in the background.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting queue consumer",
		"queue", c.config.QueueName,
		"concurrency", c.config.Concurrency)

	go func() {
		if err := c.server.Run(c.mux); err != nil {
			c.logger.Error("Queue consumer stopped", "error", err.Error())
		}
	}()

	return nil
}

// Stop shuts the consumer down gracefully.
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer")

	c.server.Shutdown()
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close queue client: %w", err)
	}

	c.logger.Info("Queue consumer stopped")
	return nil
}

// handleParseJob runs one parse job end to end.
func (c *Consumer) handleParseJob(ctx context.Context, task *asynq.Task) error {
	start := time.Now()

	var job ParseJob
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal parse job: %w", err)
	}

	c.logger.Info("Processing parse job",
		"jobId", job.JobID,
		"userId", job.UserID,
		"fileCount", len(job.Files))

	c.reportStatus(ctx, &job, "processing", nil, nil)

	timeout := 5 * time.Minute
	if c.config.ProcessingTimeout > 0 {
		timeout = c.config.ProcessingTimeout * time.Duration(max(len(job.Files), 1))
	}
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rawFiles := make([]upload.RawFile, len(job.Files))
	for i, f := range job.Files {
		rawFiles[i] = upload.RawFile{
			Filename:     f.Filename,
			Content:      f.Content,
			DeclaredSize: f.Size,
		}
	}

	metas, err := c.service.Upload(jobCtx, job.JobID, rawFiles)
	if err != nil {
		c.logger.Error("Upload failed",
			"jobId", job.JobID,
			"code", errors.CodeOf(err),
			"error", err.Error())
		c.reportStatus(ctx, &job, "failed", nil, err)
		return fmt.Errorf("upload failed for job %s: %w", job.JobID, err)
	}

	parsed := c.service.Parse(jobCtx, metas)

	elapsed := time.Since(start)
	c.logger.Info("Parse job complete",
		"jobId", job.JobID,
		"totalFiles", parsed.TotalFiles,
		"successful", parsed.SuccessfulFiles,
		"failed", parsed.FailedFiles,
		"duration", elapsed.String())

	c.persistOutcome(ctx, &job, parsed, elapsed)
	return nil
}

// persistOutcome writes the terminal state of one completed job to the
// job store and status keys.
func (c *Consumer) persistOutcome(ctx context.Context, job *ParseJob, parsed *models.ParsedContent, elapsed time.Duration) {
	state := "completed"
	switch {
	case parsed.SuccessfulFiles == 0:
		state = "failed"
	case parsed.FailedFiles > 0:
		state = "completed_with_errors"
	}

	counts := &parsedCounts{
		total:      parsed.TotalFiles,
		successful: parsed.SuccessfulFiles,
		failed:     parsed.FailedFiles,
	}

	if c.status != nil {
		status := &JobStatus{
			JobID:           job.JobID,
			Status:          state,
			TotalFiles:      counts.total,
			SuccessfulFiles: counts.successful,
			FailedFiles:     counts.failed,
		}
		if err := c.status.SetStatus(ctx, status); err != nil {
			c.logger.Warn("Failed to set job status", "jobId", job.JobID, "error", err.Error())
		}
		c.status.PublishEvent(ctx, &JobEvent{JobID: job.JobID, Event: state})
	}

	if c.jobs != nil {
		metadata := map[string]interface{}{
			"wallClockSeconds":   parsed.Summary.WallClockSeconds,
			"totalTimeSeconds":   parsed.Summary.TotalTimeSeconds,
			"parallelEfficiency": parsed.Summary.ParallelEfficiency,
		}
		if len(parsed.Summary.ErrorCodes) > 0 {
			metadata["errorCodes"] = parsed.Summary.ErrorCodes
		}

		update := &storage.JobUpdate{
			JobID:            job.JobID,
			UserID:           job.UserID,
			Status:           state,
			TotalFiles:       counts.total,
			SuccessfulFiles:  counts.successful,
			FailedFiles:      counts.failed,
			ProcessingTimeMs: elapsed.Milliseconds(),
			Metadata:         metadata,
		}
		if err := c.jobs.UpdateJobStatus(ctx, update); err != nil {
			c.logger.Warn("Failed to update job record", "jobId", job.JobID, "error", err.Error())
		}
	}
}

// reportStatus writes one intermediate or terminal state to every
// configured backend. Bookkeeping failures are logged, never propagated.
func (c *Consumer) reportStatus(ctx context.Context, job *ParseJob, state string, parsed *parsedCounts, cause error) {
	status := &JobStatus{
		JobID:      job.JobID,
		Status:     state,
		TotalFiles: len(job.Files),
	}
	if parsed != nil {
		status.TotalFiles = parsed.total
		status.SuccessfulFiles = parsed.successful
		status.FailedFiles = parsed.failed
	}
	if cause != nil {
		status.ErrorCode = string(errors.CodeOf(cause))
		status.ErrorMessage = errors.UserMessageOf(cause)
	}

	if c.status != nil {
		if err := c.status.SetStatus(ctx, status); err != nil {
			c.logger.Warn("Failed to set job status", "jobId", job.JobID, "error", err.Error())
		}
		c.status.PublishEvent(ctx, &JobEvent{
			JobID:  job.JobID,
			Event:  state,
			Detail: status.ErrorMessage,
		})
	}

	if c.jobs != nil {
		update := &storage.JobUpdate{
			JobID:           job.JobID,
			UserID:          job.UserID,
			Status:          state,
			TotalFiles:      status.TotalFiles,
			SuccessfulFiles: status.SuccessfulFiles,
			FailedFiles:     status.FailedFiles,
			ErrorCode:       status.ErrorCode,
			ErrorMessage:    status.ErrorMessage,
		}
		if err := c.jobs.UpdateJobStatus(ctx, update); err != nil {
			c.logger.Warn("Failed to update job record", "jobId", job.JobID, "error", err.Error())
		}
	}
}

type parsedCounts struct {
	total      int
	successful int
	failed     int
}

/**
 * Redis job status tracking and event publishing.
 *
 * Status keys mirror what the API layer polls; events go out on a pub/sub
 * channel for listeners that want push notification instead.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/parseforge/ingest-worker/internal/logging"
)

const (
	statusKeyPrefix = "evidence:job:"
	eventChannel    = "evidence:events"
	statusTTL       = 24 * time.Hour
)

// JobStatus is the externally visible state of one parse job.
type JobStatus struct {
	JobID           string    `json:"jobId"`
	Status          string    `json:"status"`
	TotalFiles      int       `json:"totalFiles"`
	SuccessfulFiles int       `json:"successfulFiles"`
	FailedFiles     int       `json:"failedFiles"`
	ErrorCode       string    `json:"errorCode,omitempty"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// JobEvent is one pub/sub notification.
type JobEvent struct {
	JobID     string    `json:"jobId"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

// StatusPublisher writes job state to Redis.
type StatusPublisher struct {
	client *redis.Client
	logger *logging.Logger
}

// NewStatusPublisher connects to Redis and verifies connectivity.
func NewStatusPublisher(redisURL string) (*StatusPublisher, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &StatusPublisher{
		client: client,
		logger: logging.NewLogger("StatusPublisher"),
	}, nil
}

// SetStatus stores the current job state under a TTL-bounded key.
func (p *StatusPublisher) SetStatus(ctx context.Context, status *JobStatus) error {
	status.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal job status: %w", err)
	}

	key := statusKeyPrefix + status.JobID
	if err := p.client.Set(ctx, key, payload, statusTTL).Err(); err != nil {
		return fmt.Errorf("failed to set job status: %w", err)
	}
	return nil
}

// GetStatus reads one job state back. Returns nil when the key expired or
// never existed.
func (p *StatusPublisher) GetStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	payload, err := p.client.Get(ctx, statusKeyPrefix+jobID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job status: %w", err)
	}

	var status JobStatus
	if err := json.Unmarshal(payload, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job status: %w", err)
	}
	return &status, nil
}

// PublishEvent emits one pub/sub notification. Publishing is best effort;
// a failure is logged but never fails the job.
func (p *StatusPublisher) PublishEvent(ctx context.Context, event *JobEvent) {
	event.Timestamp = time.Now().UTC()

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("Failed to marshal job event", "jobId", event.JobID, "error", err.Error())
		return
	}

	if err := p.client.Publish(ctx, eventChannel, payload).Err(); err != nil {
		p.logger.Warn("Failed to publish job event",
			"jobId", event.JobID,
			"event", event.Event,
			"error", err.Error())
	}
}

// Ping checks Redis connectivity.
func (p *StatusPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (p *StatusPublisher) Close() error {
	return p.client.Close()
}

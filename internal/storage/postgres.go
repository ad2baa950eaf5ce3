/**
 * PostgreSQL job store for the evidence ingestion worker.
 *
 * Persists parse-job status and the accepted upload records of each batch.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq"

	"github.com/parseforge/ingest-worker/internal/models"
)

// JobStore handles database operations
type JobStore struct {
	db *sql.DB
}

// JobUpdate represents a parse-job status update
type JobUpdate struct {
	JobID            string
	UserID           string
	Status           string
	TotalFiles       int
	SuccessfulFiles  int
	FailedFiles      int
	ProcessingTimeMs int64
	ErrorCode        string
	ErrorMessage     string
	Metadata         map[string]interface{}
}

// NewJobStore creates a new PostgreSQL job store
func NewJobStore(databaseURL string) (*JobStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &JobStore{db: db}, nil
}

// UpdateJobStatus upserts the job row. The worker may observe a job before
// the API created its record, so the first status update creates it.
func (s *JobStore) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	metadataJSON, err := json.Marshal(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	metadataJSON = sanitizeJSONForPostgres(metadataJSON)

	query := `
		INSERT INTO evidence.parse_jobs (
			id, user_id, status,
			total_files, successful_files, failed_files,
			processing_time_ms, error_code, error_message, metadata,
			created_at, updated_at
		) VALUES (
			$1::uuid, COALESCE(NULLIF($2, ''), 'anonymous'), $3,
			$4, $5, $6,
			NULLIF($7, 0), NULLIF($8, ''), NULLIF($9, ''),
			COALESCE($10::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			total_files = COALESCE(NULLIF(EXCLUDED.total_files, 0), evidence.parse_jobs.total_files),
			successful_files = EXCLUDED.successful_files,
			failed_files = EXCLUDED.failed_files,
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, evidence.parse_jobs.processing_time_ms),
			error_code = NULLIF(EXCLUDED.error_code, ''),
			error_message = NULLIF(EXCLUDED.error_message, ''),
			metadata = COALESCE(EXCLUDED.metadata, evidence.parse_jobs.metadata),
			updated_at = NOW()
		RETURNING id
	`

	var id string
	err = s.db.QueryRowContext(ctx, query,
		update.JobID, update.UserID, update.Status,
		update.TotalFiles, update.SuccessfulFiles, update.FailedFiles,
		update.ProcessingTimeMs, update.ErrorCode, update.ErrorMessage,
		metadataJSON,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	return nil
}

// RecordUploads persists the accepted upload metadata of one batch.
func (s *JobStore) RecordUploads(ctx context.Context, jobID string, metas []models.FileMetadata) error {
	if jobID == "" {
		return fmt.Errorf("job ID is required")
	}

	query := `
		INSERT INTO evidence.upload_records (
			file_id, job_id, original_name, file_type, file_size,
			mime_type, storage_url, upload_time
		) VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, NULLIF($7, ''), $8)
		ON CONFLICT (file_id) DO UPDATE SET
			storage_url = COALESCE(NULLIF(EXCLUDED.storage_url, ''), evidence.upload_records.storage_url)
	`

	for _, meta := range metas {
		_, err := s.db.ExecContext(ctx, query,
			meta.FileID, jobID, meta.OriginalName, meta.FileType, meta.FileSize,
			meta.MimeType, meta.StorageURL, meta.UploadTime,
		)
		if err != nil {
			return fmt.Errorf("failed to record upload %s: %w", meta.FileID, err)
		}
	}

	return nil
}

// GetJobByID retrieves one job row as a generic map.
func (s *JobStore) GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	query := `
		SELECT id, user_id, status, total_files, successful_files, failed_files,
		       COALESCE(processing_time_ms, 0), COALESCE(error_code, ''),
		       COALESCE(error_message, ''), metadata, created_at, updated_at
		FROM evidence.parse_jobs
		WHERE id = $1
	`

	var (
		id, userID, status, errorCode, errorMessage string
		totalFiles, successfulFiles, failedFiles    int
		processingTimeMs                            int64
		metadataJSON                                []byte
		createdAt, updatedAt                        time.Time
	)

	err := s.db.QueryRowContext(ctx, query, jobID).Scan(
		&id, &userID, &status, &totalFiles, &successfulFiles, &failedFiles,
		&processingTimeMs, &errorCode, &errorMessage, &metadataJSON, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var metadata map[string]interface{}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job metadata: %w", err)
		}
	}

	return map[string]interface{}{
		"id":                 id,
		"user_id":            userID,
		"status":             status,
		"total_files":        totalFiles,
		"successful_files":   successfulFiles,
		"failed_files":       failedFiles,
		"processing_time_ms": processingTimeMs,
		"error_code":         errorCode,
		"error_message":      errorMessage,
		"metadata":           metadata,
		"created_at":         createdAt,
		"updated_at":         updatedAt,
	}, nil
}

// Ping checks database connectivity.
func (s *JobStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetStats returns connection pool statistics.
func (s *JobStore) GetStats() sql.DBStats {
	return s.db.Stats()
}

// Close closes the database connection.
func (s *JobStore) Close() error {
	return s.db.Close()
}

// sanitizeJSONForPostgres removes Unicode escape sequences that PostgreSQL
// JSONB rejects (escaped NUL and other control-character escapes). Extracted
// text can contain arbitrary bytes, so metadata blobs must be scrubbed
// before insertion.
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	nullPattern := regexp.MustCompile(`\\u0000`)
	result := nullPattern.ReplaceAll(jsonBytes, []byte{})

	controlPattern := regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
	result = controlPattern.ReplaceAll(result, []byte(" "))

	return result
}

/**
 * Ingestion pipeline facade.
 *
 * Ties validation, durable storage, the parsing engine and the job store
 * together behind two operations: Upload accepts raw files and returns
 * their metadata, Parse extracts content from previously stored files.
 */

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/parseforge/ingest-worker/internal/engine"
	"github.com/parseforge/ingest-worker/internal/errors"
	"github.com/parseforge/ingest-worker/internal/logging"
	"github.com/parseforge/ingest-worker/internal/models"
	"github.com/parseforge/ingest-worker/internal/storage"
	"github.com/parseforge/ingest-worker/internal/upload"
)

// Service is the ingestion pipeline facade.
type Service struct {
	uploads  *upload.Manager
	store    *storage.ObjectStorage
	engine   *engine.Engine
	jobs     *storage.JobStore
	handler  *errors.Handler
	logger   *logging.Logger
	urlTTL   time.Duration
}

// ServiceConfig holds facade dependencies. Jobs may be nil when no
// database is configured.
type ServiceConfig struct {
	Uploads         *upload.Manager
	Store           *storage.ObjectStorage
	Engine          *engine.Engine
	Jobs            *storage.JobStore
	Handler         *errors.Handler
	PresignedURLTTL time.Duration
}

// NewService creates the pipeline facade.
func NewService(cfg *ServiceConfig) (*Service, error) {
	if cfg == nil || cfg.Uploads == nil || cfg.Store == nil || cfg.Engine == nil {
		return nil, fmt.Errorf("uploads, store and engine are required")
	}

	handler := cfg.Handler
	if handler == nil {
		handler = errors.NewHandler()
	}

	ttl := cfg.PresignedURLTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &Service{
		uploads: cfg.Uploads,
		store:   cfg.Store,
		engine:  cfg.Engine,
		jobs:    cfg.Jobs,
		handler: handler,
		logger:  logging.NewLogger("Pipeline"),
		urlTTL:  ttl,
	}, nil
}

// Upload validates one batch and durably stores every accepted file,
// returning metadata with storage URLs stamped. A file whose store fails
// is dropped like a validation failure; the call errors only when nothing
// survives.
func (s *Service) Upload(ctx context.Context, jobID string, files []upload.RawFile) ([]models.FileMetadata, error) {
	metas, indices, err := s.uploads.ValidateAndDescribe(files)
	if err != nil {
		return nil, s.handler.Handle(err, errors.CategoryUpload, "Pipeline", "Upload")
	}

	// Each accepted record carries the index of its source in the batch,
	// so content is paired by position, never by name or size.
	stored := make([]models.FileMetadata, 0, len(metas))
	for k, meta := range metas {
		content := files[indices[k]].Content

		url, serr := s.store.Store(ctx, content,
			meta.FileID, meta.FileType, meta.UploadTime, meta.MimeType,
			map[string]string{"original-name": meta.OriginalName, "job-id": jobID})
		if serr != nil {
			s.handler.Handle(serr, errors.CategoryStorage, "Pipeline", "Upload")
			s.logger.Warn("Dropped file after storage failure",
				"fileId", meta.FileID,
				"filename", meta.OriginalName,
				"error", serr.Error())
			continue
		}
		meta.StorageURL = url
		stored = append(stored, meta)
	}

	if len(stored) == 0 {
		failure := errors.New(errors.ErrorAllFilesFailed, errors.CategoryStorage,
			fmt.Sprintf("all %d accepted files failed to store", len(metas))).
			WithComponent("Pipeline", "Upload").
			WithUserMessage("The uploaded files could not be stored")
		return nil, s.handler.Handle(failure, errors.CategoryStorage, "Pipeline", "Upload")
	}

	if s.jobs != nil && jobID != "" {
		if derr := s.jobs.RecordUploads(ctx, jobID, stored); derr != nil {
			// The objects are durable; a bookkeeping failure must not
			// fail the upload.
			s.handler.Handle(derr, errors.CategoryStorage, "Pipeline", "Upload")
			s.logger.Warn("Failed to record uploads", "jobId", jobID, "error", derr.Error())
		}
	}

	s.logger.Info("Upload complete",
		"jobId", jobID,
		"submitted", len(files),
		"stored", len(stored))

	return stored, nil
}

// Parse extracts content from previously stored files. It never returns
// an error; systemic failure is encoded in the result.
func (s *Service) Parse(ctx context.Context, files []models.FileMetadata) *models.ParsedContent {
	return s.engine.Parse(ctx, files)
}

// Fetch returns the stored bytes of one file.
func (s *Service) Fetch(ctx context.Context, meta models.FileMetadata) ([]byte, error) {
	key := s.store.KeyFor(meta.FileID, meta.FileType, meta.UploadTime)
	return s.store.Fetch(ctx, key)
}

// Exists reports whether the stored object of one file is present.
func (s *Service) Exists(ctx context.Context, meta models.FileMetadata) (bool, error) {
	key := s.store.KeyFor(meta.FileID, meta.FileType, meta.UploadTime)
	return s.store.Exists(ctx, key)
}

// Delete removes the stored object of one file.
func (s *Service) Delete(ctx context.Context, meta models.FileMetadata) error {
	key := s.store.KeyFor(meta.FileID, meta.FileType, meta.UploadTime)
	return s.store.Delete(ctx, key)
}

// PresignedURL returns a time-limited download URL for one file.
func (s *Service) PresignedURL(ctx context.Context, meta models.FileMetadata) (string, error) {
	key := s.store.KeyFor(meta.FileID, meta.FileType, meta.UploadTime)
	return s.store.PresignedURL(ctx, key, s.urlTTL)
}

// PurgeOlderThan removes stored objects older than the cutoff and returns
// the exact count deleted.
func (s *Service) PurgeOlderThan(ctx context.Context, days int) (int, error) {
	return s.store.PurgeOlderThan(ctx, days)
}

// ErrorStats exposes the running error counters.
func (s *Service) ErrorStats() errors.Stats {
	return s.handler.GetStats()
}

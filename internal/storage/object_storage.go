/**
 * Durable object storage for uploaded evidence files.
 *
 * Wraps a blob Transport with retry-with-backoff for transient failures,
 * date-partitioned key layout, and age-based bulk cleanup. Non-transient
 * transport failures (access denied, not found, quota) surface immediately
 * as typed errors.
 */

package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/parseforge/ingest-worker/internal/errors"
	"github.com/parseforge/ingest-worker/internal/logging"
)

// ObjectStorage is the durable blob storage service.
type ObjectStorage struct {
	transport Transport
	prefix    string
	retry     errors.RetryConfig
	logger    *logging.Logger
}

// ObjectStorageConfig holds service configuration.
type ObjectStorageConfig struct {
	Prefix     string
	MaxRetries int
	RetryDelay float64 // seconds
}

// NewObjectStorage creates the storage service over a transport.
func NewObjectStorage(transport Transport, cfg *ObjectStorageConfig) (*ObjectStorage, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}

	retry := errors.DefaultRetryConfig()
	if cfg != nil {
		if cfg.MaxRetries >= 0 {
			retry.MaxRetries = cfg.MaxRetries
		}
		if cfg.RetryDelay > 0 {
			retry.BaseDelay = time.Duration(cfg.RetryDelay * float64(time.Second))
		}
	}
	retry.Recoverable = isTransient

	prefix := "uploads"
	if cfg != nil && cfg.Prefix != "" {
		prefix = strings.Trim(cfg.Prefix, "/")
	}

	return &ObjectStorage{
		transport: transport,
		prefix:    prefix,
		retry:     retry,
		logger:    logging.NewLogger("ObjectStorage"),
	}, nil
}

// isTransient gates the retry loop on the transport error code.
func isTransient(err error) bool {
	var te *TransportError
	if !asTransportError(err, &te) {
		return false
	}
	return errors.IsTransientStorageCode(te.Code)
}

// KeyFor builds the date-partitioned object key
// <prefix>/<YYYY/MM/DD>/<file_id><ext>. The date comes from the upload
// timestamp, so the key is reproducible from the file metadata alone.
func (s *ObjectStorage) KeyFor(fileID, fileType string, uploadTime time.Time) string {
	ext := ""
	if fileType != "" {
		ext = "." + strings.ToLower(strings.TrimPrefix(fileType, "."))
	}
	return path.Join(s.prefix, uploadTime.UTC().Format("2006/01/02"), fileID+ext)
}

// Store durably writes one file and returns its canonical URL. Writing the
// same key with the same bytes is idempotent: a retried put overwrites the
// identical object, never duplicates it.
func (s *ObjectStorage) Store(ctx context.Context, data []byte, fileID, fileType string, uploadTime time.Time, contentType string, metadata map[string]string) (string, error) {
	key := s.KeyFor(fileID, fileType, uploadTime)

	err := errors.WithRetry(ctx, s.retry, func() error {
		return s.transport.Put(ctx, key, data, contentType, metadata)
	})
	if err != nil {
		return "", s.liftError(err, errors.ErrorStorageFailed, "store", key)
	}

	url := s.transport.ObjectURL(key)
	s.logger.Info("Stored object", "key", key, "bytes", len(data))
	return url, nil
}

// Fetch reads one object back. Absence is reported as OBJECT_NOT_FOUND
// without retry; all other failures are retried then raised.
func (s *ObjectStorage) Fetch(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := errors.WithRetry(ctx, s.retry, func() error {
		var ferr error
		data, ferr = s.transport.Get(ctx, key)
		return ferr
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, errors.New(errors.ErrorObjectNotFound, errors.CategoryStorage,
				fmt.Sprintf("object %s does not exist", key)).
				WithUserMessage("The requested file was not found in storage").
				WithCause(err)
		}
		return nil, s.liftError(err, errors.ErrorStorageFailed, "fetch", key)
	}
	return data, nil
}

// Exists reports whether the object is present. Only a definitive
// present/absent answer returns nil error.
func (s *ObjectStorage) Exists(ctx context.Context, key string) (bool, error) {
	var found bool
	err := errors.WithRetry(ctx, s.retry, func() error {
		_, herr := s.transport.Head(ctx, key)
		if herr != nil {
			if IsNotFound(herr) {
				found = false
				return nil
			}
			return herr
		}
		found = true
		return nil
	})
	if err != nil {
		return false, s.liftError(err, errors.ErrorStorageFailed, "exists", key)
	}
	return found, nil
}

// Delete removes one object.
func (s *ObjectStorage) Delete(ctx context.Context, key string) error {
	err := errors.WithRetry(ctx, s.retry, func() error {
		return s.transport.Delete(ctx, key)
	})
	if err != nil {
		return s.liftError(err, errors.ErrorStorageFailed, "delete", key)
	}
	return nil
}

// PresignedURL returns a time-limited download URL for one object.
func (s *ObjectStorage) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	var url string
	err := errors.WithRetry(ctx, s.retry, func() error {
		var perr error
		url, perr = s.transport.Presign(ctx, key, ttl)
		return perr
	})
	if err != nil {
		return "", s.liftError(err, errors.ErrorStorageFailed, "presign", key)
	}
	return url, nil
}

// PurgeOlderThan deletes every object under the service prefix whose
// last-modified timestamp is older than the cutoff, in batches bounded by
// the transport's batch limit. Returns the exact number deleted. The date
// partitioning keeps the listing prefix-scoped and cheap.
func (s *ObjectStorage) PurgeOlderThan(ctx context.Context, days int) (int, error) {
	if days < 0 {
		return 0, fmt.Errorf("days must not be negative, got %d", days)
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	var infos []ObjectInfo
	err := errors.WithRetry(ctx, s.retry, func() error {
		var lerr error
		infos, lerr = s.transport.ListByPrefix(ctx, s.prefix+"/")
		return lerr
	})
	if err != nil {
		return 0, s.liftError(err, errors.ErrorStorageFailed, "purge", s.prefix)
	}

	var stale []string
	for _, info := range infos {
		if info.LastModified.Before(cutoff) {
			stale = append(stale, info.Key)
		}
	}

	deleted := 0
	batchSize := s.transport.MaxBatchSize()
	for start := 0; start < len(stale); start += batchSize {
		end := start + batchSize
		if end > len(stale) {
			end = len(stale)
		}
		batch := stale[start:end]

		err := errors.WithRetry(ctx, s.retry, func() error {
			return s.transport.DeleteBatch(ctx, batch)
		})
		if err != nil {
			return deleted, s.liftError(err, errors.ErrorStorageFailed, "purge", s.prefix)
		}
		deleted += len(batch)
	}

	if deleted > 0 {
		s.logger.Info("Purged stale objects", "deleted", deleted, "cutoffDays", days)
	}
	return deleted, nil
}

// liftError converts an exhausted or terminal transport error into a
// classified ProcessingError with the transport code preserved.
func (s *ObjectStorage) liftError(err error, fallback errors.ErrorCode, operation, key string) error {
	code := fallback
	var te *TransportError
	if asTransportError(err, &te) {
		switch te.Code {
		case CodeNoSuchKey, CodeNoSuchBucket:
			code = errors.ErrorObjectNotFound
		case CodeAccessDenied:
			code = errors.ErrorAccessDenied
		case "QuotaExceeded":
			code = errors.ErrorQuotaExceeded
		}
	}

	cls := errors.ClassifyStorage(err)
	pe := errors.New(code, errors.CategoryStorage, err.Error()).
		WithCause(err).
		WithComponent("ObjectStorage", operation).
		WithUserMessage(cls.UserMessage).
		WithDetail("key", key)
	pe.Severity = cls.Severity
	pe.Recoverable = cls.Recoverable
	pe.MaxRetries = cls.MaxRetries
	return pe
}

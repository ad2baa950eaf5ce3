/**
 * Blob transport abstraction for the object storage service.
 *
 * The transport is the thin S3-compatible wire layer: every error it
 * returns carries a machine-readable code so the storage service and the
 * error classifiers can decide between retry and immediate failure.
 */

package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"
)

func asTransportError(err error, target **TransportError) bool {
	return stderrors.As(err, target)
}

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// TransportError is a blob transport failure with a machine-readable code
// (NoSuchKey, AccessDenied, SlowDown, ...).
type TransportError struct {
	Code    string
	Message string
	Cause   error
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// transport error codes used across implementations
const (
	CodeNoSuchKey    = "NoSuchKey"
	CodeNoSuchBucket = "NoSuchBucket"
	CodeAccessDenied = "AccessDenied"
)

// IsNotFound reports whether err means "object absent" rather than a
// transport failure.
func IsNotFound(err error) bool {
	var te *TransportError
	if !asTransportError(err, &te) {
		return false
	}
	return te.Code == CodeNoSuchKey || te.Code == CodeNoSuchBucket
}

// Transport is the S3-compatible wire interface consumed by ObjectStorage.
type Transport interface {
	Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Head(ctx context.Context, key string) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	DeleteBatch(ctx context.Context, keys []string) error
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
	ListByPrefix(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// MaxBatchSize is the largest key count DeleteBatch accepts per call.
	MaxBatchSize() int
	// ObjectURL builds the canonical (non-presigned) URL for a key.
	ObjectURL(key string) string
}

/**
 * MinIO transport for the object storage service.
 *
 * Works against any S3-compatible provider (MinIO, AWS S3, Ceph RGW).
 */

package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/parseforge/ingest-worker/internal/logging"
)

// deleteBatchLimit matches the S3 DeleteObjects request cap.
const deleteBatchLimit = 1000

// MinioConfig holds transport configuration.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Region    string
}

// MinioTransport implements Transport over minio-go.
type MinioTransport struct {
	client *minio.Client
	bucket string
	useSSL bool
	logger *logging.Logger
}

// NewMinioTransport connects to the endpoint and ensures the bucket exists.
func NewMinioTransport(ctx context.Context, cfg *MinioConfig) (*MinioTransport, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("storage endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	t := &MinioTransport{
		client: client,
		bucket: cfg.Bucket,
		useSSL: cfg.UseSSL,
		logger: logging.NewLogger("MinioTransport"),
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, wrapMinioError(err, "failed to check bucket")
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, wrapMinioError(err, "failed to create bucket")
		}
		t.logger.Info("Created storage bucket", "bucket", cfg.Bucket)
	}

	return t, nil
}

// wrapMinioError lifts a minio error into a TransportError carrying the
// S3 error code.
func wrapMinioError(err error, msg string) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	code := resp.Code
	if code == "" {
		// Connection-level failures have no S3 code; classify as
		// service unavailability so the retry layer treats them as
		// transient.
		code = "ServiceUnavailable"
	}
	return &TransportError{Code: code, Message: msg, Cause: err}
}

func (t *MinioTransport) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	_, err := t.client.PutObject(ctx, t.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: metadata,
	})
	if err != nil {
		return wrapMinioError(err, fmt.Sprintf("failed to put object %s", key))
	}
	return nil
}

func (t *MinioTransport) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := t.client.GetObject(ctx, t.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, wrapMinioError(err, fmt.Sprintf("failed to get object %s", key))
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, wrapMinioError(err, fmt.Sprintf("failed to read object %s", key))
	}
	return data, nil
}

func (t *MinioTransport) Head(ctx context.Context, key string) (ObjectInfo, error) {
	stat, err := t.client.StatObject(ctx, t.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, wrapMinioError(err, fmt.Sprintf("failed to stat object %s", key))
	}
	return ObjectInfo{Key: stat.Key, Size: stat.Size, LastModified: stat.LastModified}, nil
}

func (t *MinioTransport) Delete(ctx context.Context, key string) error {
	if err := t.client.RemoveObject(ctx, t.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return wrapMinioError(err, fmt.Sprintf("failed to delete object %s", key))
	}
	return nil
}

func (t *MinioTransport) DeleteBatch(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if len(keys) > deleteBatchLimit {
		return &TransportError{Code: "InvalidRequest", Message: fmt.Sprintf("batch of %d exceeds limit %d", len(keys), deleteBatchLimit)}
	}

	objectsCh := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objectsCh <- minio.ObjectInfo{Key: key}
	}
	close(objectsCh)

	for res := range t.client.RemoveObjects(ctx, t.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if res.Err != nil {
			return wrapMinioError(res.Err, fmt.Sprintf("failed to delete object %s in batch", res.ObjectName))
		}
	}
	return nil
}

func (t *MinioTransport) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := t.client.PresignedGetObject(ctx, t.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", wrapMinioError(err, fmt.Sprintf("failed to presign object %s", key))
	}
	return u.String(), nil
}

func (t *MinioTransport) ListByPrefix(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var infos []ObjectInfo
	for obj := range t.client.ListObjects(ctx, t.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, wrapMinioError(obj.Err, fmt.Sprintf("failed to list objects under %s", prefix))
		}
		infos = append(infos, ObjectInfo{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
	}
	return infos, nil
}

func (t *MinioTransport) MaxBatchSize() int {
	return deleteBatchLimit
}

func (t *MinioTransport) ObjectURL(key string) string {
	scheme := "http"
	if t.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, t.client.EndpointURL().Host, t.bucket, key)
}

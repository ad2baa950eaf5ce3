package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parseforge/ingest-worker/internal/errors"
)

// fakeTransport is an in-memory Transport with programmable failures.
type fakeTransport struct {
	objects map[string][]byte
	mtimes  map[string]time.Time

	failCode  string // transport code to fail with
	failCount int    // fail this many calls, then succeed; -1 fails forever
	calls     int
	batchMax  int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		objects:  make(map[string][]byte),
		mtimes:   make(map[string]time.Time),
		batchMax: 2,
	}
}

func (f *fakeTransport) maybeFail() error {
	if f.failCode == "" {
		return nil
	}
	f.calls++
	if f.failCount < 0 || f.calls <= f.failCount {
		return &TransportError{Code: f.failCode, Message: "simulated " + f.failCode}
	}
	return nil
}

func (f *fakeTransport) Put(_ context.Context, key string, data []byte, _ string, _ map[string]string) error {
	if err := f.maybeFail(); err != nil {
		return err
	}
	f.objects[key] = append([]byte(nil), data...)
	if _, ok := f.mtimes[key]; !ok {
		f.mtimes[key] = time.Now().UTC()
	}
	return nil
}

func (f *fakeTransport) Get(_ context.Context, key string) ([]byte, error) {
	if err := f.maybeFail(); err != nil {
		return nil, err
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, &TransportError{Code: CodeNoSuchKey, Message: "missing " + key}
	}
	return data, nil
}

func (f *fakeTransport) Head(_ context.Context, key string) (ObjectInfo, error) {
	if err := f.maybeFail(); err != nil {
		return ObjectInfo{}, err
	}
	data, ok := f.objects[key]
	if !ok {
		return ObjectInfo{}, &TransportError{Code: CodeNoSuchKey, Message: "missing " + key}
	}
	return ObjectInfo{Key: key, Size: int64(len(data)), LastModified: f.mtimes[key]}, nil
}

func (f *fakeTransport) Delete(_ context.Context, key string) error {
	if err := f.maybeFail(); err != nil {
		return err
	}
	delete(f.objects, key)
	delete(f.mtimes, key)
	return nil
}

func (f *fakeTransport) DeleteBatch(_ context.Context, keys []string) error {
	if err := f.maybeFail(); err != nil {
		return err
	}
	if len(keys) > f.batchMax {
		return &TransportError{Code: "InvalidRequest", Message: "batch too large"}
	}
	for _, key := range keys {
		delete(f.objects, key)
		delete(f.mtimes, key)
	}
	return nil
}

func (f *fakeTransport) Presign(_ context.Context, key string, ttl time.Duration) (string, error) {
	if err := f.maybeFail(); err != nil {
		return "", err
	}
	return fmt.Sprintf("https://fake/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

func (f *fakeTransport) ListByPrefix(_ context.Context, prefix string) ([]ObjectInfo, error) {
	if err := f.maybeFail(); err != nil {
		return nil, err
	}
	var infos []ObjectInfo
	for key, data := range f.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			infos = append(infos, ObjectInfo{Key: key, Size: int64(len(data)), LastModified: f.mtimes[key]})
		}
	}
	return infos, nil
}

func (f *fakeTransport) MaxBatchSize() int { return f.batchMax }

func (f *fakeTransport) ObjectURL(key string) string { return "https://fake/" + key }

func testStorage(t *testing.T, transport Transport) *ObjectStorage {
	t.Helper()
	s, err := NewObjectStorage(transport, &ObjectStorageConfig{
		Prefix:     "uploads",
		MaxRetries: 3,
		RetryDelay: 0.001,
	})
	require.NoError(t, err)
	return s
}

func TestKeyForIsDeterministicAndDatePartitioned(t *testing.T) {
	s := testStorage(t, newFakeTransport())
	when := time.Date(2026, 3, 7, 15, 4, 5, 0, time.UTC)

	key := s.KeyFor("abc-123", "png", when)
	assert.Equal(t, "uploads/2026/03/07/abc-123.png", key)

	// Same metadata always yields the same key.
	assert.Equal(t, key, s.KeyFor("abc-123", "png", when))
	assert.Equal(t, "uploads/2026/03/07/abc-123", s.KeyFor("abc-123", "", when))
}

func TestStoreAndFetchRoundTrip(t *testing.T) {
	transport := newFakeTransport()
	s := testStorage(t, transport)
	when := time.Now().UTC()
	data := []byte("evidence bytes")

	url, err := s.Store(context.Background(), data, "file-1", "txt", when, "text/plain", nil)
	require.NoError(t, err)
	assert.Contains(t, url, "file-1.txt")

	got, err := s.Fetch(context.Background(), s.KeyFor("file-1", "txt", when))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestStoreIsIdempotentUnderRetry(t *testing.T) {
	transport := newFakeTransport()
	s := testStorage(t, transport)
	when := time.Now().UTC()
	data := []byte("same bytes")

	_, err := s.Store(context.Background(), data, "file-1", "txt", when, "text/plain", nil)
	require.NoError(t, err)
	_, err = s.Store(context.Background(), data, "file-1", "txt", when, "text/plain", nil)
	require.NoError(t, err)

	assert.Len(t, transport.objects, 1)
}

func TestStoreRetriesTransientFailuresThenSucceeds(t *testing.T) {
	transport := newFakeTransport()
	transport.failCode = "SlowDown"
	transport.failCount = 3 // exactly maxRetries failures, then success
	s := testStorage(t, transport)

	_, err := s.Store(context.Background(), []byte("x"), "file-1", "txt", time.Now().UTC(), "text/plain", nil)
	require.NoError(t, err)
	assert.Equal(t, 4, transport.calls)
}

func TestStoreFailsAfterExactlyMaxRetriesPlusOneAttempts(t *testing.T) {
	transport := newFakeTransport()
	transport.failCode = "ServiceUnavailable"
	transport.failCount = -1
	s := testStorage(t, transport)

	_, err := s.Store(context.Background(), []byte("x"), "file-1", "txt", time.Now().UTC(), "text/plain", nil)
	require.Error(t, err)
	assert.Equal(t, 4, transport.calls)
	assert.Equal(t, errors.ErrorStorageFailed, errors.CodeOf(err))
}

func TestStoreDoesNotRetryTerminalFailures(t *testing.T) {
	transport := newFakeTransport()
	transport.failCode = CodeAccessDenied
	transport.failCount = -1
	s := testStorage(t, transport)

	_, err := s.Store(context.Background(), []byte("x"), "file-1", "txt", time.Now().UTC(), "text/plain", nil)
	require.Error(t, err)
	assert.Equal(t, 1, transport.calls)
	assert.Equal(t, errors.ErrorAccessDenied, errors.CodeOf(err))
}

func TestFetchMissingObjectIsNotFoundWithoutRetry(t *testing.T) {
	transport := newFakeTransport()
	s := testStorage(t, transport)

	_, err := s.Fetch(context.Background(), "uploads/2026/01/01/ghost.txt")
	require.Error(t, err)
	assert.Equal(t, errors.ErrorObjectNotFound, errors.CodeOf(err))
}

func TestExistsDistinguishesAbsenceFromFailure(t *testing.T) {
	transport := newFakeTransport()
	s := testStorage(t, transport)
	when := time.Now().UTC()

	_, err := s.Store(context.Background(), []byte("x"), "file-1", "txt", when, "text/plain", nil)
	require.NoError(t, err)

	found, err := s.Exists(context.Background(), s.KeyFor("file-1", "txt", when))
	require.NoError(t, err)
	assert.True(t, found)

	found, err = s.Exists(context.Background(), s.KeyFor("ghost", "txt", when))
	require.NoError(t, err)
	assert.False(t, found)

	transport.failCode = CodeAccessDenied
	transport.failCount = -1
	_, err = s.Exists(context.Background(), s.KeyFor("file-1", "txt", when))
	assert.Error(t, err)
}

func TestPresignedURL(t *testing.T) {
	transport := newFakeTransport()
	s := testStorage(t, transport)
	when := time.Now().UTC()

	_, err := s.Store(context.Background(), []byte("x"), "file-1", "png", when, "image/png", nil)
	require.NoError(t, err)

	url, err := s.PresignedURL(context.Background(), s.KeyFor("file-1", "png", when), time.Hour)
	require.NoError(t, err)
	assert.Contains(t, url, "file-1.png")
	assert.Contains(t, url, "ttl=3600")
}

func TestPurgeOlderThanDeletesExactlyStaleObjects(t *testing.T) {
	transport := newFakeTransport()
	s := testStorage(t, transport)
	ctx := context.Background()

	now := time.Now().UTC()
	old := now.AddDate(0, 0, -10)

	// Three stale objects (exceeds the batch limit of 2) and one fresh.
	for i, when := range []time.Time{old, old, old, now} {
		fileID := fmt.Sprintf("file-%d", i)
		_, err := s.Store(ctx, []byte("x"), fileID, "txt", when, "text/plain", nil)
		require.NoError(t, err)
		transport.mtimes[s.KeyFor(fileID, "txt", when)] = when
	}

	deleted, err := s.PurgeOlderThan(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)
	assert.Len(t, transport.objects, 1)

	// A second purge finds nothing.
	deleted, err = s.PurgeOlderThan(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestPurgeRejectsNegativeDays(t *testing.T) {
	s := testStorage(t, newFakeTransport())
	_, err := s.PurgeOlderThan(context.Background(), -1)
	assert.Error(t, err)
}

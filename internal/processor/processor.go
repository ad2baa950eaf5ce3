/**
 * Processor contract for type-specific content extraction.
 *
 * Each processor declares the extensions it handles and turns one stored
 * file into a ProcessedContent record. Process calls share no mutable
 * state, so the parsing engine runs them concurrently without locking.
 */

package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parseforge/ingest-worker/internal/models"
	"github.com/parseforge/ingest-worker/internal/storage"
)

// Processor extracts structured text and metadata from one file.
type Processor interface {
	CanProcess(ext string) bool
	SupportedTypes() []string
	Process(ctx context.Context, meta models.FileMetadata) (models.ProcessedContent, error)
}

// ContentSource resolves a file's bytes from wherever they live. The two
// document-processing paths (stored object vs local file) differ only in
// this resolution step.
type ContentSource interface {
	// Bytes returns the file content.
	Bytes(ctx context.Context, meta models.FileMetadata) ([]byte, error)
	// ScratchPath materializes the content as a local file and returns its
	// path with a cleanup func the caller must run on every exit path.
	ScratchPath(ctx context.Context, meta models.FileMetadata) (string, func(), error)
}

// StorageSource fetches content from the object storage service.
type StorageSource struct {
	store   *storage.ObjectStorage
	tempDir string
}

// NewStorageSource creates a storage-backed content source. tempDir may be
// empty to use the system default.
func NewStorageSource(store *storage.ObjectStorage, tempDir string) *StorageSource {
	return &StorageSource{store: store, tempDir: tempDir}
}

func (s *StorageSource) Bytes(ctx context.Context, meta models.FileMetadata) ([]byte, error) {
	key := s.store.KeyFor(meta.FileID, meta.FileType, meta.UploadTime)
	return s.store.Fetch(ctx, key)
}

func (s *StorageSource) ScratchPath(ctx context.Context, meta models.FileMetadata) (string, func(), error) {
	data, err := s.Bytes(ctx, meta)
	if err != nil {
		return "", nil, err
	}
	return writeScratch(s.tempDir, meta, data)
}

// LocalSource serves content from a directory of already-materialized
// files named <file_id><ext>. Used by tests and local batch runs.
type LocalSource struct {
	baseDir string
}

// NewLocalSource creates a directory-backed content source.
func NewLocalSource(baseDir string) *LocalSource {
	return &LocalSource{baseDir: baseDir}
}

func (s *LocalSource) localPath(meta models.FileMetadata) string {
	name := meta.FileID
	if meta.FileType != "" {
		name += "." + meta.FileType
	}
	return filepath.Join(s.baseDir, name)
}

func (s *LocalSource) Bytes(_ context.Context, meta models.FileMetadata) ([]byte, error) {
	data, err := os.ReadFile(s.localPath(meta))
	if err != nil {
		return nil, fmt.Errorf("failed to read local file for %s: %w", meta.FileID, err)
	}
	return data, nil
}

func (s *LocalSource) ScratchPath(_ context.Context, meta models.FileMetadata) (string, func(), error) {
	path := s.localPath(meta)
	if _, err := os.Stat(path); err != nil {
		return "", nil, fmt.Errorf("local file for %s not found: %w", meta.FileID, err)
	}
	// The caller does not own local files, so cleanup is a no-op.
	return path, func() {}, nil
}

// writeScratch writes data to a temp file carrying the original extension
// and returns the path plus its remover.
func writeScratch(tempDir string, meta models.FileMetadata, data []byte) (string, func(), error) {
	pattern := "ingest-*"
	if meta.FileType != "" {
		pattern = "ingest-*." + meta.FileType
	}

	f, err := os.CreateTemp(tempDir, pattern)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create scratch file for %s: %w", meta.FileID, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("failed to write scratch file for %s: %w", meta.FileID, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("failed to close scratch file for %s: %w", meta.FileID, err)
	}

	path := f.Name()
	return path, func() { os.Remove(path) }, nil
}

// newResult seeds a ProcessedContent with identity and timing filled in.
func newResult(meta models.FileMetadata, contentType string, start time.Time) models.ProcessedContent {
	return models.ProcessedContent{
		FileID:         meta.FileID,
		FileName:       meta.OriginalName,
		ContentType:    contentType,
		Metadata:       make(map[string]string),
		ProcessingTime: time.Since(start).Seconds(),
		Success:        true,
	}
}

/**
 * Upload validation for the evidence ingestion worker.
 *
 * Validates raw byte buffers against the configured limits and produces
 * FileMetadata records. A single bad file is dropped and logged; the batch
 * only fails when every file is rejected.
 */

package upload

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parseforge/ingest-worker/internal/config"
	"github.com/parseforge/ingest-worker/internal/errors"
	"github.com/parseforge/ingest-worker/internal/logging"
	"github.com/parseforge/ingest-worker/internal/models"
)

// RawFile is one record of an incoming upload batch.
type RawFile struct {
	Filename     string
	Content      []byte
	DeclaredSize int64
}

// Manager validates upload batches.
type Manager struct {
	maxFileSize        int64
	maxFilesPerRequest int
	supported          map[string]bool
	logger             *logging.Logger
}

// ManagerConfig holds upload limits.
type ManagerConfig struct {
	MaxFileSize        int64
	MaxFilesPerRequest int
	SupportedFormats   []string
}

// NewManager creates an upload manager.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.MaxFileSize < 1 {
		return nil, fmt.Errorf("max file size must be positive")
	}
	if cfg.MaxFilesPerRequest < 1 {
		return nil, fmt.Errorf("max files per request must be positive")
	}
	if len(cfg.SupportedFormats) == 0 {
		return nil, fmt.Errorf("supported formats must not be empty")
	}

	supported := make(map[string]bool, len(cfg.SupportedFormats))
	for _, ext := range cfg.SupportedFormats {
		supported[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}

	return &Manager{
		maxFileSize:        cfg.MaxFileSize,
		maxFilesPerRequest: cfg.MaxFilesPerRequest,
		supported:          supported,
		logger:             logging.NewLogger("UploadManager"),
	}, nil
}

// ValidateAndDescribe validates a batch and returns metadata for every
// accepted file, in batch order, alongside each accepted file's index in
// the submitted batch. Per-file failures drop only that file; the call
// fails only when the batch is empty, oversized, or every file was
// rejected.
func (m *Manager) ValidateAndDescribe(batch []RawFile) ([]models.FileMetadata, []int, error) {
	if len(batch) == 0 {
		return nil, nil, errors.New(errors.ErrorNoFiles, errors.CategoryUpload,
			"no files were provided").
			WithComponent("UploadManager", "ValidateAndDescribe").
			WithUserMessage("No files were provided for upload")
	}

	if len(batch) > m.maxFilesPerRequest {
		return nil, nil, errors.New(errors.ErrorTooManyFiles, errors.CategoryUpload,
			fmt.Sprintf("%d files exceed the limit of %d per request", len(batch), m.maxFilesPerRequest)).
			WithComponent("UploadManager", "ValidateAndDescribe").
			WithUserMessage(fmt.Sprintf("At most %d files can be uploaded at once", m.maxFilesPerRequest)).
			WithDetail("file_count", len(batch))
	}

	accepted := make([]models.FileMetadata, 0, len(batch))
	indices := make([]int, 0, len(batch))
	for i, raw := range batch {
		meta, err := m.validateOne(raw)
		if err != nil {
			m.logger.Warn("Rejected file",
				"index", i,
				"filename", raw.Filename,
				"code", errors.CodeOf(err),
				"reason", err.Error())
			continue
		}
		accepted = append(accepted, meta)
		indices = append(indices, i)
	}

	if len(accepted) == 0 {
		return nil, nil, errors.New(errors.ErrorAllFilesFailed, errors.CategoryUpload,
			fmt.Sprintf("all %d files failed validation", len(batch))).
			WithComponent("UploadManager", "ValidateAndDescribe").
			WithUserMessage("None of the uploaded files could be accepted").
			WithDetail("file_count", len(batch))
	}

	m.logger.Info("Validated upload batch",
		"submitted", len(batch),
		"accepted", len(accepted))

	return accepted, indices, nil
}

// validateOne runs the per-file checks in order and builds the metadata
// record for a passing file.
func (m *Manager) validateOne(raw RawFile) (models.FileMetadata, error) {
	var zero models.FileMetadata

	if strings.TrimSpace(raw.Filename) == "" {
		return zero, errors.New(errors.ErrorEmptyFilename, errors.CategoryUpload,
			"filename is empty").
			WithUserMessage("A file was submitted without a name")
	}

	if raw.DeclaredSize <= 0 {
		return zero, errors.New(errors.ErrorInvalidFileSize, errors.CategoryUpload,
			fmt.Sprintf("declared size %d is invalid for %s", raw.DeclaredSize, raw.Filename)).
			WithUserMessage(fmt.Sprintf("%s has an invalid size", raw.Filename))
	}

	if raw.DeclaredSize > m.maxFileSize {
		return zero, errors.New(errors.ErrorFileTooLarge, errors.CategoryUpload,
			fmt.Sprintf("%s is %s, limit is %s", raw.Filename,
				config.FormatSize(raw.DeclaredSize), config.FormatSize(m.maxFileSize))).
			WithUserMessage(fmt.Sprintf("%s is larger than the %s limit",
				raw.Filename, config.FormatSize(m.maxFileSize))).
			WithDetail("declared_size", raw.DeclaredSize).
			WithDetail("max_size", m.maxFileSize)
	}

	ext := extractExtension(raw.Filename)
	if ext == "" {
		return zero, errors.New(errors.ErrorUnknownFileType, errors.CategoryUpload,
			fmt.Sprintf("%s has no recognizable extension", raw.Filename)).
			WithUserMessage(fmt.Sprintf("The type of %s could not be determined", raw.Filename))
	}

	if !m.supported[ext] {
		return zero, errors.New(errors.ErrorUnsupportedType, errors.CategoryUpload,
			fmt.Sprintf("extension %q of %s is not in the allow-list", ext, raw.Filename)).
			WithUserMessage(fmt.Sprintf("Files of type .%s are not supported", ext)).
			WithDetail("extension", ext)
	}

	if len(raw.Content) == 0 {
		return zero, errors.New(errors.ErrorEmptyContent, errors.CategoryUpload,
			fmt.Sprintf("%s has no content", raw.Filename)).
			WithUserMessage(fmt.Sprintf("%s is empty", raw.Filename))
	}

	if int64(len(raw.Content)) != raw.DeclaredSize {
		return zero, errors.New(errors.ErrorSizeMismatch, errors.CategoryUpload,
			fmt.Sprintf("%s declared %d bytes but carries %d", raw.Filename,
				raw.DeclaredSize, len(raw.Content))).
			WithUserMessage(fmt.Sprintf("%s was corrupted during upload", raw.Filename)).
			WithDetail("declared_size", raw.DeclaredSize).
			WithDetail("actual_size", len(raw.Content))
	}

	return models.FileMetadata{
		FileID:       uuid.New().String(),
		OriginalName: raw.Filename,
		FileType:     ext,
		FileSize:     int64(len(raw.Content)),
		UploadTime:   time.Now().UTC(),
		MimeType:     SniffMimeType(raw.Filename, raw.Content),
	}, nil
}

// extractExtension returns the lower-cased extension without the dot, or
// "" when the name has none.
func extractExtension(filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" || ext == "." {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// SupportedFormats returns the sorted-by-nothing allow-list view used in
// logs and reports.
func (m *Manager) SupportedFormats() []string {
	out := make([]string, 0, len(m.supported))
	for ext := range m.supported {
		out = append(out, ext)
	}
	return out
}

/**
 * Shared data model for the evidence ingestion worker.
 *
 * FileMetadata describes one accepted upload, ProcessedContent the
 * extraction result for one file, ParsedContent the aggregate of one
 * parse invocation.
 */

package models

import "time"

// FileMetadata describes one uploaded file. Created by the upload manager;
// StorageURL is set exactly once by the storage layer after a durable store.
type FileMetadata struct {
	FileID       string    `json:"fileId"`
	OriginalName string    `json:"originalName"`
	FileType     string    `json:"fileType"` // lower-cased extension, no dot
	FileSize     int64     `json:"fileSize"`
	UploadTime   time.Time `json:"uploadTime"` // UTC
	StorageURL   string    `json:"s3Url,omitempty"`
	MimeType     string    `json:"mimeType"`
}

// ProcessedContent is the extraction result for one file. Immutable after
// creation. A failed result always carries a non-empty ErrorMessage.
type ProcessedContent struct {
	FileID         string            `json:"fileId"`
	FileName       string            `json:"fileName"`
	ContentType    string            `json:"contentType"` // processor category, or "error"
	ProcessedText  string            `json:"processedText"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	ProcessingTime float64           `json:"processingTime"` // seconds
	Success        bool              `json:"success"`
	ErrorMessage   string            `json:"errorMessage,omitempty"`
}

// ProcessingSummary holds the post-hoc statistics of one parse invocation.
type ProcessingSummary struct {
	ByContentType      map[string]TypeStats `json:"byContentType"`
	ErrorCodes         map[string]int       `json:"errorCodes,omitempty"`
	TotalTimeSeconds   float64              `json:"totalTimeSeconds"`
	WallClockSeconds   float64              `json:"wallClockSeconds"`
	ParallelEfficiency float64              `json:"parallelEfficiency"`
}

// TypeStats is the per-content-type slice of a ProcessingSummary.
type TypeStats struct {
	Total       int     `json:"total"`
	Successful  int     `json:"successful"`
	Failed      int     `json:"failed"`
	TimeSeconds float64 `json:"timeSeconds"`
}

// ParsedContent is the aggregate root of one parse call. FileResults is in
// the same order as the input file list regardless of completion order.
type ParsedContent struct {
	TotalFiles      int                `json:"totalFiles"`
	SuccessfulFiles int                `json:"successfulFiles"`
	FailedFiles     int                `json:"failedFiles"`
	MarkdownOutput  string             `json:"markdownOutput"`
	FileResults     []ProcessedContent `json:"fileResults"`
	Summary         ProcessingSummary  `json:"processingSummary"`
}

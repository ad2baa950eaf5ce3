package errors

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

/**
 * Custom error types for the evidence ingestion worker.
 *
 * Every handled failure is classified on two axes (category, severity)
 * which drive the recovery policy: transparent retry, per-item
 * degradation, or immediate failure.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Upload validation errors
	ErrorNoFiles         ErrorCode = "NO_FILES"
	ErrorTooManyFiles    ErrorCode = "TOO_MANY_FILES"
	ErrorEmptyFilename   ErrorCode = "EMPTY_FILENAME"
	ErrorInvalidFileSize ErrorCode = "INVALID_FILE_SIZE"
	ErrorFileTooLarge    ErrorCode = "FILE_TOO_LARGE"
	ErrorUnknownFileType ErrorCode = "UNKNOWN_FILE_TYPE"
	ErrorUnsupportedType ErrorCode = "UNSUPPORTED_FORMAT"
	ErrorEmptyContent    ErrorCode = "EMPTY_CONTENT"
	ErrorSizeMismatch    ErrorCode = "SIZE_MISMATCH"
	ErrorAllFilesFailed  ErrorCode = "ALL_FILES_FAILED"

	// Processing errors
	ErrorProcessingFailed  ErrorCode = "PROCESSING_FAILED"
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
	ErrorCorruptFile       ErrorCode = "CORRUPT_FILE"

	// Storage errors
	ErrorStorageFailed  ErrorCode = "STORAGE_FAILED"
	ErrorObjectNotFound ErrorCode = "OBJECT_NOT_FOUND"
	ErrorAccessDenied   ErrorCode = "ACCESS_DENIED"
	ErrorQuotaExceeded  ErrorCode = "QUOTA_EXCEEDED"

	// Model errors
	ErrorModelUnavailable ErrorCode = "MODEL_UNAVAILABLE"
	ErrorModelRateLimited ErrorCode = "MODEL_RATE_LIMITED"
	ErrorModelAuthFailed  ErrorCode = "MODEL_AUTH_FAILED"

	// Network errors
	ErrorNetworkTimeout ErrorCode = "NETWORK_TIMEOUT"
	ErrorAPICallFailed  ErrorCode = "API_CALL_FAILED"

	// Configuration errors
	ErrorConfigurationInvalid ErrorCode = "CONFIGURATION_INVALID"
)

// Category identifies which subsystem an error originated in.
type Category string

const (
	CategoryUpload        Category = "upload"
	CategoryProcessing    Category = "processing"
	CategoryStorage       Category = "storage"
	CategoryModel         Category = "model"
	CategoryNetwork       Category = "network"
	CategoryConfiguration Category = "configuration"
	CategorySystem        Category = "system"
)

// Severity grades how serious a handled error is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ProcessingError is the structured record of one handled failure. It
// doubles as the error value carried through the pipeline and as the
// tracked context in the handler's active registry.
type ProcessingError struct {
	ID          string
	Code        ErrorCode
	Category    Category
	Severity    Severity
	Component   string
	Operation   string
	Message     string // technical detail, logged but never surfaced in reports
	UserMessage string // short non-technical message for the report
	Timestamp   time.Time
	Details     map[string]interface{}
	RetryCount  int
	MaxRetries  int
	Recoverable bool
	Cause       error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// New creates a ProcessingError with a generated id and sane defaults.
func New(code ErrorCode, category Category, message string) *ProcessingError {
	return &ProcessingError{
		ID:          uuid.New().String(),
		Code:        code,
		Category:    category,
		Severity:    SeverityMedium,
		Message:     message,
		UserMessage: message,
		Timestamp:   time.Now().UTC(),
		Details:     map[string]interface{}{},
	}
}

// WithCause attaches the underlying error.
func (e *ProcessingError) WithCause(cause error) *ProcessingError {
	e.Cause = cause
	return e
}

// WithDetail records one context_data entry.
func (e *ProcessingError) WithDetail(key string, value interface{}) *ProcessingError {
	e.Details[key] = value
	return e
}

// WithComponent records where the error was raised.
func (e *ProcessingError) WithComponent(component, operation string) *ProcessingError {
	e.Component = component
	e.Operation = operation
	return e
}

// WithUserMessage overrides the surfaced message.
func (e *ProcessingError) WithUserMessage(msg string) *ProcessingError {
	e.UserMessage = msg
	return e
}

// ToMap converts error to map for persistence and event payloads
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_id":     e.ID,
		"error_code":   string(e.Code),
		"category":     string(e.Category),
		"severity":     string(e.Severity),
		"message":      e.Message,
		"user_message": e.UserMessage,
		"component":    e.Component,
		"operation":    e.Operation,
		"recoverable":  e.Recoverable,
		"retry_count":  e.RetryCount,
		"timestamp":    e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}

// CodeOf extracts the machine-readable code from an error chain, or
// API_CALL_FAILED when the error carries none.
func CodeOf(err error) ErrorCode {
	var pe *ProcessingError
	if As(err, &pe) {
		return pe.Code
	}
	return ErrorAPICallFailed
}

// UserMessageOf extracts the surfaced message from an error chain, falling
// back to a generic one so raw technical detail never leaks into reports.
func UserMessageOf(err error) string {
	var pe *ProcessingError
	if As(err, &pe) && pe.UserMessage != "" {
		return pe.UserMessage
	}
	return "An unexpected error occurred while processing the file"
}

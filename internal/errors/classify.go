package errors

import (
	stderrors "errors"
	"strings"
)

// As and Is re-export the standard helpers so callers importing this
// package do not need a second errors import.
func As(err error, target interface{}) bool { return stderrors.As(err, target) }
func Is(err, target error) bool             { return stderrors.Is(err, target) }

// Classification is the outcome of mapping a raw failure into the error
// taxonomy: how bad it is, what the user sees, and whether retrying can
// help.
type Classification struct {
	Severity    Severity
	UserMessage string
	Recoverable bool
	MaxRetries  int
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// ClassifyUpload maps upload-stage failures. Validation failures are
// user-correctable, never retryable.
func ClassifyUpload(err error) Classification {
	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, "too large", "exceeds maximum", "file_too_large"):
		return Classification{SeverityMedium, "The file is larger than the allowed upload size", false, 0}
	case containsAny(msg, "unsupported", "unknown file type"):
		return Classification{SeverityLow, "This file type is not supported", false, 0}
	case containsAny(msg, "empty"):
		return Classification{SeverityLow, "The file appears to be empty", false, 0}
	case containsAny(msg, "mismatch"):
		return Classification{SeverityMedium, "The file was corrupted during upload, please try again", false, 0}
	default:
		return Classification{SeverityMedium, "The file could not be accepted for upload", false, 0}
	}
}

// ClassifyProcessing maps extraction-stage failures.
func ClassifyProcessing(err error) Classification {
	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, "timeout", "timed out", "deadline"):
		return Classification{SeverityHigh, "Processing took too long and was stopped", true, 2}
	case containsAny(msg, "corrupt", "malformed", "invalid format", "cannot be decoded", "not a valid"):
		return Classification{SeverityMedium, "The file appears to be corrupted or in an invalid format", false, 0}
	case containsAny(msg, "memory", "too big"):
		return Classification{SeverityHigh, "The file is too complex to process", false, 0}
	default:
		return Classification{SeverityMedium, "The file could not be processed", true, 1}
	}
}

// ClassifyModel maps multimodal model service failures. Rate limits and
// availability are retryable; bad credentials are terminal.
func ClassifyModel(err error) Classification {
	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, "quota", "rate limit", "too many requests", "429"):
		return Classification{SeverityHigh, "The analysis service is busy, the request will be retried", true, 5}
	case containsAny(msg, "unauthorized", "credentials", "api key", "401", "403"):
		return Classification{SeverityCritical, "The analysis service rejected our credentials", false, 0}
	case containsAny(msg, "unavailable", "connection refused", "no such host", "timeout", "timed out", "502", "503"):
		return Classification{SeverityHigh, "The analysis service is temporarily unavailable", true, 3}
	default:
		return Classification{SeverityMedium, "The analysis service could not process the content", true, 2}
	}
}

// transientStorageCodes are the transport error codes that warrant a
// transparent retry.
var transientStorageCodes = map[string]bool{
	"SlowDown":            true,
	"ServiceUnavailable":  true,
	"InternalError":       true,
	"RequestTimeout":      true,
	"Throttling":          true,
	"ThrottlingException": true,
}

// IsTransientStorageCode reports whether a transport error code is
// retry-eligible.
func IsTransientStorageCode(code string) bool {
	return transientStorageCodes[code]
}

// ClassifyStorage maps blob-storage failures.
func ClassifyStorage(err error) Classification {
	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, "access denied", "accessdenied", "forbidden"):
		return Classification{SeverityCritical, "Storage access was denied", false, 0}
	case containsAny(msg, "quota", "storage full", "quotaexceeded"):
		return Classification{SeverityCritical, "Storage capacity has been exhausted", false, 0}
	case containsAny(msg, "not found", "nosuchkey", "no such key", "nosuchbucket"):
		return Classification{SeverityMedium, "The requested file was not found in storage", false, 0}
	case containsAny(msg, "slowdown", "unavailable", "throttl", "timeout", "timed out", "connection"):
		return Classification{SeverityHigh, "Storage is temporarily unavailable, the request will be retried", true, 3}
	default:
		return Classification{SeverityMedium, "The file could not be stored", true, 2}
	}
}

// Classify dispatches to the category-specific classifier.
func Classify(category Category, err error) Classification {
	switch category {
	case CategoryUpload:
		return ClassifyUpload(err)
	case CategoryProcessing:
		return ClassifyProcessing(err)
	case CategoryModel:
		return ClassifyModel(err)
	case CategoryStorage:
		return ClassifyStorage(err)
	case CategoryNetwork:
		return Classification{SeverityHigh, "A network error occurred, the request will be retried", true, 3}
	case CategoryConfiguration:
		return Classification{SeverityCritical, "The service is misconfigured", false, 0}
	default:
		return Classification{SeverityHigh, "An internal error occurred", false, 0}
	}
}

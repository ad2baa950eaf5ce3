package errors

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parseforge/ingest-worker/internal/logging"
)

// Stats is a snapshot of the handler's running counters.
type Stats struct {
	Total      int
	ByCategory map[Category]int
	BySeverity map[Severity]int
	Active     int
}

// Handler classifies raw failures into ProcessingErrors, keeps running
// counters, and tracks unresolved errors in an active registry keyed by
// error id.
type Handler struct {
	logger *logging.Logger

	mu         sync.Mutex
	total      int
	byCategory map[Category]int
	bySeverity map[Severity]int
	active     map[string]*ProcessingError
}

// NewHandler creates an error handler.
func NewHandler() *Handler {
	return &Handler{
		logger:     logging.NewLogger("ErrorHandler"),
		byCategory: make(map[Category]int),
		bySeverity: make(map[Severity]int),
		active:     make(map[string]*ProcessingError),
	}
}

// Handle classifies err for the given category, records it in the
// statistics and the active registry, and returns the structured record.
// If err already is a classified ProcessingError it is tracked as-is.
func (h *Handler) Handle(err error, category Category, component, operation string) *ProcessingError {
	var pe *ProcessingError
	if !As(err, &pe) {
		cls := Classify(category, err)
		pe = &ProcessingError{
			ID:          uuid.New().String(),
			Code:        codeFor(category),
			Category:    category,
			Severity:    cls.Severity,
			Component:   component,
			Operation:   operation,
			Message:     err.Error(),
			UserMessage: cls.UserMessage,
			Timestamp:   time.Now().UTC(),
			Details:     map[string]interface{}{},
			MaxRetries:  cls.MaxRetries,
			Recoverable: cls.Recoverable,
			Cause:       err,
		}
	} else {
		if pe.Component == "" {
			pe.Component = component
		}
		if pe.Operation == "" {
			pe.Operation = operation
		}
	}

	h.mu.Lock()
	h.total++
	h.byCategory[pe.Category]++
	h.bySeverity[pe.Severity]++
	h.active[pe.ID] = pe
	h.mu.Unlock()

	h.logger.Error("Handled error",
		"errorId", pe.ID,
		"code", pe.Code,
		"category", pe.Category,
		"severity", pe.Severity,
		"component", pe.Component,
		"operation", pe.Operation,
		"recoverable", pe.Recoverable,
		"detail", pe.Message)

	return pe
}

// codeFor returns the fallback code for unclassified errors per category.
func codeFor(category Category) ErrorCode {
	switch category {
	case CategoryUpload:
		return ErrorAllFilesFailed
	case CategoryProcessing:
		return ErrorProcessingFailed
	case CategoryStorage:
		return ErrorStorageFailed
	case CategoryModel:
		return ErrorModelUnavailable
	case CategoryNetwork:
		return ErrorNetworkTimeout
	case CategoryConfiguration:
		return ErrorConfigurationInvalid
	default:
		return ErrorAPICallFailed
	}
}

// Resolve removes one error from the active registry. Returns false if the
// id is unknown (already cleaned up or never tracked).
func (h *Handler) Resolve(errorID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.active[errorID]; !ok {
		return false
	}
	delete(h.active, errorID)
	return true
}

// CleanupCategory drops all active errors of one category and returns how
// many were removed.
func (h *Handler) CleanupCategory(category Category) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for id, pe := range h.active {
		if pe.Category == category {
			delete(h.active, id)
			removed++
		}
	}
	return removed
}

// ActiveError looks up one tracked error by id.
func (h *Handler) ActiveError(errorID string) (*ProcessingError, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pe, ok := h.active[errorID]
	return pe, ok
}

// GetStats returns a snapshot of the running counters.
func (h *Handler) GetStats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	byCat := make(map[Category]int, len(h.byCategory))
	for k, v := range h.byCategory {
		byCat[k] = v
	}
	bySev := make(map[Severity]int, len(h.bySeverity))
	for k, v := range h.bySeverity {
		bySev[k] = v
	}

	return Stats{
		Total:      h.total,
		ByCategory: byCat,
		BySeverity: bySev,
		Active:     len(h.active),
	}
}

package matrix

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/odyssey-erp/slotbook/internal/platform/httpx"
)

var (
	// ErrNotEditing is returned when a mutation is attempted outside Editing.
	ErrNotEditing = fmt.Errorf("matrix: grid is not in edit mode: %w", httpx.ErrConflict)
	// ErrAlreadyEditing is returned by BeginEdit while a session is open.
	ErrAlreadyEditing = fmt.Errorf("matrix: grid is already in edit mode: %w", httpx.ErrConflict)
	// ErrInvalidMatrix marks upstream data that cannot be normalised.
	ErrInvalidMatrix = fmt.Errorf("matrix: invalid matrix: %w", httpx.ErrInvalidData)
	// ErrMatrixNotFound is returned when no matrix matches.
	ErrMatrixNotFound = fmt.Errorf("matrix: %w", httpx.ErrNotFound)
	// ErrRowNotFound is returned for an unknown row id.
	ErrRowNotFound = fmt.Errorf("matrix: row %w", httpx.ErrNotFound)
	// ErrColumnNotFound is returned for an unknown column id.
	ErrColumnNotFound = fmt.Errorf("matrix: column %w", httpx.ErrNotFound)
	// ErrSessionNotFound is returned for an expired or unknown edit session.
	ErrSessionNotFound = fmt.Errorf("matrix: edit session %w", httpx.ErrNotFound)
	// ErrSaveInProgress is returned when another save holds the matrix lock.
	ErrSaveInProgress = fmt.Errorf("matrix: save already in progress: %w", httpx.ErrConflict)
	// ErrOptionNotAllowed is returned when a fixed-option editor receives a foreign value.
	ErrOptionNotAllowed = fmt.Errorf("matrix: value is not one of the allowed options: %w", httpx.ErrValidation)
	// ErrEditorDisabled is returned when a disabled editor is asked to change.
	ErrEditorDisabled = fmt.Errorf("matrix: cell editor is disabled: %w", httpx.ErrConflict)
)

// ValidationError collects field level validation failures.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, field := range sortedKeys(e.Fields) {
		parts = append(parts, field+": "+e.Fields[field])
	}
	return "matrix: " + strings.Join(parts, "; ")
}

// FieldErrors exposes the failing fields to the HTTP layer.
func (e *ValidationError) FieldErrors() map[string]string {
	return maps.Clone(e.Fields)
}

// Unwrap lets callers match httpx.ErrValidation.
func (e *ValidationError) Unwrap() error {
	return httpx.ErrValidation
}

func invalidField(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}

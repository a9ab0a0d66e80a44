package forum

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates the requested record is absent or soft-deleted.
	ErrNotFound = errors.New("forum: record not found")
	// ErrConflict indicates an action that does not apply to the record's
	// current state, such as approving an already active user.
	ErrConflict = errors.New("forum: action conflicts with current state")
	// ErrPermission indicates the session lacks a required permission.
	ErrPermission = errors.New("forum: permission denied")
	// ErrUnsupportedType indicates a record type handed to a workflow that
	// only understands a fixed set of types. It is a programming error and
	// propagates uncaught.
	ErrUnsupportedType = errors.New("forum: unsupported record type")
	// ErrUpstream indicates a collaborator completed without producing a
	// usable result, such as a registration that yields no identifier.
	ErrUpstream = errors.New("forum: upstream operation produced no result")
	// ErrFloodControl indicates a user exceeded the permitted rate for an
	// action within the control window.
	ErrFloodControl = errors.New("forum: flood control limit exceeded")
)

// ValidationError carries field-level validation failures suitable for
// returning to the submitting user.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for field, message := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, message))
	}
	sort.Strings(parts)
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records an additional failing field and returns the receiver for
// chaining while collecting.
func (e *ValidationError) Add(field, message string) *ValidationError {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[field] = message
	return e
}

// AsValidationError unwraps err into a *ValidationError when possible.
func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

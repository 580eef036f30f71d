package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrTemporary    = errors.New("temporary failure")
	ErrConversion   = errors.New("conversion failed")
	ErrGrading      = errors.New("grading failed")
	ErrTimeout      = errors.New("deadline exceeded")
	ErrDelivery     = errors.New("delivery failed")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// FieldError names a single rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError blocks an action before it has any effect. It always matches
// ErrInvalidInput.
type ValidationError struct {
	Op     string
	Fields []FieldError
}

func NewValidationError(op string, fields ...FieldError) *ValidationError {
	return &ValidationError{Op: op, Fields: fields}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "validation error"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	msg := "invalid input"
	if len(parts) > 0 {
		msg += ": " + strings.Join(parts, "; ")
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

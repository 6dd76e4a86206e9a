package policy

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidDefinition = errors.New("invalid schedule definition")
	ErrInvalidPolicy     = errors.New("invalid schedule policy")
	ErrInvalidContext    = errors.New("invalid evaluation context")
)

// ValidationError describes a single constructor failure.
type ValidationError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// ValidationErrors aggregates every problem found while building a value.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("validation failed:")
	for _, err := range e {
		sb.WriteString("\n  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (e ValidationErrors) Unwrap() []error {
	errs := make([]error, len(e))
	for i, err := range e {
		errs[i] = err
	}
	return errs
}

func (e ValidationErrors) orNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

type validator struct {
	cause error
	errs  ValidationErrors
}

func (v *validator) add(field, format string, args ...any) {
	v.errs = append(v.errs, &ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Cause:   v.cause,
	})
}

// IsValidationError reports whether err came from a constructor.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

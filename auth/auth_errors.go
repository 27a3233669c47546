package auth

import (
	"sort"
	"strings"

	"github.com/jrsteele09/as2-portal-session/internal/errors"
)

// ValidationError reports which fields of a request were rejected. It wraps
// errors.ErrInvalidRequest.
type ValidationError struct {
	Fields map[string]string
}

func (v *ValidationError) Error() string {
	names := make([]string, 0, len(v.Fields))
	for name := range v.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+v.Fields[name])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v *ValidationError) Unwrap() error {
	return errors.ErrInvalidRequest
}

func newValidationError(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

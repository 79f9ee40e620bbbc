package types

import (
	"errors"
	"fmt"
	"strings"
)

// Schema and data errors returned by the type system.
var (
	ErrInvalidSchema       = errors.New("avro: invalid schema")
	ErrUnresolvedReference = errors.New("avro: unresolved type reference")
	ErrIncompatibleSchema  = errors.New("avro: incompatible schemas")
	ErrValidation          = errors.New("avro: value does not match type")
	ErrTruncated           = errors.New("avro: truncated data")
	ErrTrailingData        = errors.New("avro: trailing data after value")
	ErrCorruptData         = errors.New("avro: corrupt data")
)

// ValidationError describes a value that does not conform to a type. Path
// locates the offending value inside records, arrays, maps and unions.
type ValidationError struct {
	Path   []string
	Type   *Type
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("avro: invalid value")
	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}
	fmt.Fprintf(&b, " for %s: %T", e.Type.branchName(), e.Value)
	if e.Reason != "" {
		b.WriteString(" (")
		b.WriteString(e.Reason)
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(t *Type, v any, reason string) *ValidationError {
	return &ValidationError{Type: t, Value: v, Reason: reason}
}

// within prepends a path element to a validation error.
func within(err error, elem string) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		verr.Path = append([]string{elem}, verr.Path...)
	}
	return err
}

func schemaErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSchema, fmt.Sprintf(format, args...))
}

func incompatiblef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIncompatibleSchema, fmt.Sprintf(format, args...))
}

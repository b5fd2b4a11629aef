package naturalid

import (
	"errors"
	"fmt"
)

// Sentinel errors for natural-id resolution
var (
	// ErrInvalidInput is returned when a raw natural-id value cannot be interpreted against a mapping
	ErrInvalidInput = errors.New("invalid natural-id input")

	// ErrMissingAttribute is returned when a name-keyed input lacks one of the mapping attributes
	ErrMissingAttribute = errors.New("missing natural-id attribute")

	// ErrIncompatibleShape is returned when a simple-style entry point receives a plain scalar
	// for a compound natural id
	ErrIncompatibleShape = errors.New("incompatible natural-id value shape")

	// ErrEntityNotFound is returned when a resolved identifier no longer matches a row
	ErrEntityNotFound = errors.New("entity not found for natural id")

	// ErrImmutableNaturalID is returned when an update changes an immutable natural id
	ErrImmutableNaturalID = errors.New("natural id is immutable")

	// ErrInvalidMapping is returned when a natural-id descriptor cannot be built
	ErrInvalidMapping = errors.New("invalid natural-id mapping")
)

// InvalidInputError describes a raw value that could not be normalized
type InvalidInputError struct {
	Entity string
	Reason string
	Value  any
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid natural-id value [%v] for %s: %s", e.Value, e.Entity, e.Reason)
}

func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// MissingAttributeError names the attribute absent from a name-keyed input
type MissingAttributeError struct {
	Entity    string
	Attribute string
}

func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("natural-id attribute %q missing for %s", e.Attribute, e.Entity)
}

// Is matches both ErrMissingAttribute and ErrInvalidInput
func (e *MissingAttributeError) Is(target error) bool {
	return target == ErrMissingAttribute || target == ErrInvalidInput
}

// IncompatibleShapeError is raised by the simplicity check
type IncompatibleShapeError struct {
	Entity string
	Value  any
}

func (e *IncompatibleShapeError) Error() string {
	return fmt.Sprintf("cannot interpret natural-id value [%v] for compound natural-id: %s", e.Value, e.Entity)
}

func (e *IncompatibleShapeError) Is(target error) bool {
	return target == ErrIncompatibleShape
}

// EntityNotFoundError is raised when an initialized reference finds no row for its identifier
type EntityNotFoundError struct {
	Entity string
	ID     any
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("%s with id [%v] not found", e.Entity, e.ID)
}

func (e *EntityNotFoundError) Is(target error) bool {
	return target == ErrEntityNotFound
}

func newInvalidInput(entity string, value any, format string, args ...any) error {
	return &InvalidInputError{Entity: entity, Value: value, Reason: fmt.Sprintf(format, args...)}
}

// IsInvalidInput checks if an error is an input normalization failure
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsMissingAttribute checks if an error is ErrMissingAttribute
func IsMissingAttribute(err error) bool {
	return errors.Is(err, ErrMissingAttribute)
}

// IsIncompatibleShape checks if an error is ErrIncompatibleShape
func IsIncompatibleShape(err error) bool {
	return errors.Is(err, ErrIncompatibleShape)
}

// IsEntityNotFound checks if an error is ErrEntityNotFound
func IsEntityNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound)
}

package tuplizer

import (
	"errors"
	"fmt"

	"github.com/conduit-lang/tuplizer/internal/orm/schema"
)

var (
	// ErrNoIdentifierAttribute is returned when identifier access is attempted on an
	// entity that declares no identifier attribute
	ErrNoIdentifierAttribute = errors.New("entity declares no identifier attribute")

	// ErrNotInstantiable is returned when typed-object construction is impossible
	ErrNotInstantiable = errors.New("entity type is not instantiable")

	// ErrOrdinalOutOfRange is returned for an attribute ordinal outside the declared attributes
	ErrOrdinalOutOfRange = errors.New("attribute ordinal out of range")

	// ErrRepresentationMismatch is returned when a value is not a legitimate instance
	ErrRepresentationMismatch = errors.New("representation mismatch")

	// ErrUnknownFactory is returned when metadata names an unregistered tuplizer factory
	ErrUnknownFactory = errors.New("unknown tuplizer factory")

	// ErrMissingAccessor is returned when a typed binding has no accessor for an attribute
	ErrMissingAccessor = errors.New("no accessor bound for attribute")
)

// MismatchError reports a runtime value that is not an instance of the expected entity
type MismatchError struct {
	Entity string
	Mode   schema.RepresentationMode
	Got    interface{}
}

// Error implements the error interface
func (e *MismatchError) Error() string {
	return fmt.Sprintf("%T is not a %s instance of entity %s", e.Got, e.Mode, e.Entity)
}

// Is reports whether target is ErrRepresentationMismatch
func (e *MismatchError) Is(target error) bool {
	return target == ErrRepresentationMismatch
}

// IsMismatch returns true if the error is a representation mismatch
func IsMismatch(err error) bool {
	return errors.Is(err, ErrRepresentationMismatch)
}

func noIdentifier(meta *schema.EntityMetadata) error {
	return fmt.Errorf("%s: %w", meta.Name, ErrNoIdentifierAttribute)
}

func outOfRange(meta *schema.EntityMetadata, ordinal int) error {
	return fmt.Errorf("%s: %w: %d (entity has %d attributes)", meta.Name, ErrOrdinalOutOfRange, ordinal, len(meta.Attributes))
}

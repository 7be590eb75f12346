package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateEntity is returned when an entity-name is registered twice in one mode
	ErrDuplicateEntity = errors.New("duplicate entity")

	// ErrUnknownEntity is returned when an entity-name has no registered metadata
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrRegistryFrozen is returned when registering into a frozen registry
	ErrRegistryFrozen = errors.New("registry is frozen")

	// ErrInvalidMetadata is returned when metadata fails structural validation
	ErrInvalidMetadata = errors.New("invalid entity metadata")

	// ErrNotInitialized is returned when the process-wide registry is read before Init
	ErrNotInitialized = errors.New("entity registry not initialized")

	// ErrAlreadyInitialized is returned when Init is called twice
	ErrAlreadyInitialized = errors.New("entity registry already initialized")
)

// DuplicateEntityError reports a second registration of an entity-name in the same mode
type DuplicateEntityError struct {
	Entity string
	Mode   RepresentationMode
}

// Error implements the error interface
func (e *DuplicateEntityError) Error() string {
	return fmt.Sprintf("entity %s is already registered in %s mode", e.Entity, e.Mode)
}

// Is reports whether target is ErrDuplicateEntity
func (e *DuplicateEntityError) Is(target error) bool {
	return target == ErrDuplicateEntity
}

// UnknownEntityError reports a lookup of an entity-name that was never registered
type UnknownEntityError struct {
	Entity string
}

// Error implements the error interface
func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("entity %s is not registered", e.Entity)
}

// Is reports whether target is ErrUnknownEntity
func (e *UnknownEntityError) Is(target error) bool {
	return target == ErrUnknownEntity
}

// IsDuplicateEntity returns true if the error is ErrDuplicateEntity
func IsDuplicateEntity(err error) bool {
	return errors.Is(err, ErrDuplicateEntity)
}

// IsUnknownEntity returns true if the error is ErrUnknownEntity
func IsUnknownEntity(err error) bool {
	return errors.Is(err, ErrUnknownEntity)
}

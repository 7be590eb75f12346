package storage

import (
	"errors"
	"fmt"

	"github.com/conduit-lang/tuplizer/internal/orm/identity"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("row not found")

	// ErrConflict is returned when a row with the same identifier already exists
	ErrConflict = errors.New("row already exists")

	// ErrConstraint is returned when the store rejects a row for violating a constraint
	ErrConstraint = errors.New("storage constraint violation")
)

// EntityNotFoundError reports a missing row for a specific entity key
type EntityNotFoundError struct {
	Key identity.EntityKey
}

// Error implements the error interface
func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("entity %s not found", e.Key)
}

// Is reports whether target is ErrNotFound
func (e *EntityNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// UnkeyedEntityError is returned when a row operation needs an identifier the
// entity does not declare
type UnkeyedEntityError struct {
	Entity string
}

// Error implements the error interface
func (e *UnkeyedEntityError) Error() string {
	return fmt.Sprintf("entity %s declares no identifier and cannot be stored by key", e.Entity)
}

// NotFound builds the error for a missing row
func NotFound(entity string, id interface{}) error {
	return &EntityNotFoundError{Key: identity.EntityKey{Entity: entity, ID: id}}
}

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the error is ErrConflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsConstraint returns true if the error is ErrConstraint
func IsConstraint(err error) bool {
	return errors.Is(err, ErrConstraint)
}

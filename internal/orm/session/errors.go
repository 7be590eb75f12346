package session

import "errors"

var (
	// ErrSessionClosed is returned by every operation after Close
	ErrSessionClosed = errors.New("session is closed")

	// ErrTransientInstance is returned when an operation needs a persistent
	// instance but the identifier is unset
	ErrTransientInstance = errors.New("instance is transient")

	// ErrNonUniqueInstance is returned when a different instance for the same
	// row is already managed by the session
	ErrNonUniqueInstance = errors.New("a different instance with the same key is already managed")

	// ErrTransientReference is returned when an association points at an
	// instance that has not been saved
	ErrTransientReference = errors.New("association references an unsaved instance")
)

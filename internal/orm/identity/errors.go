package identity

import "errors"

var (
	// ErrUnsetIdentifier is returned when a key is built from an absent identifier
	ErrUnsetIdentifier = errors.New("identifier is not set")

	// ErrNoBusinessKey is returned when an instance offers no business key
	ErrNoBusinessKey = errors.New("instance has no business key")

	// ErrUnsupportedStrategy is returned for strategies without an in-process generator
	ErrUnsupportedStrategy = errors.New("identifier strategy has no generator")
)

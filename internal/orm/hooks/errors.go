package hooks

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrValidationFailed is matched by every ValidationFailure
	ErrValidationFailed = errors.New("validation failed")

	// ErrValidateMutated is returned when a Validate hook changed the instance
	ErrValidateMutated = errors.New("validate hook modified the instance")
)

// HookError reports an unexpected hook failure, including a recovered panic
type HookError struct {
	Entity string
	Point  Point
	Err    error
}

// Error implements the error interface
func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook for %s failed: %v", e.Point, e.Entity, e.Err)
}

// Unwrap returns the underlying error
func (e *HookError) Unwrap() error {
	return e.Err
}

// ValidationFailure reports broken invariants, grouped by attribute name.
// Violations that concern the whole instance use the empty attribute name.
type ValidationFailure struct {
	Entity     string
	Violations map[string][]string
}

// NewValidationFailure creates an empty failure for an entity
func NewValidationFailure(entity string) *ValidationFailure {
	return &ValidationFailure{Entity: entity, Violations: make(map[string][]string)}
}

// Add records a violation for an attribute
func (v *ValidationFailure) Add(attribute, message string) {
	if v.Violations == nil {
		v.Violations = make(map[string][]string)
	}
	v.Violations[attribute] = append(v.Violations[attribute], message)
}

// HasViolations returns true if any violation was recorded
func (v *ValidationFailure) HasViolations() bool {
	return len(v.Violations) > 0
}

// Error implements the error interface
func (v *ValidationFailure) Error() string {
	if !v.HasViolations() {
		return fmt.Sprintf("validation failed for %s", v.Entity)
	}

	attrs := make([]string, 0, len(v.Violations))
	for attr := range v.Violations {
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs)

	var messages []string
	for _, attr := range attrs {
		for _, msg := range v.Violations[attr] {
			if attr == "" {
				messages = append(messages, msg)
			} else {
				messages = append(messages, attr+": "+msg)
			}
		}
	}
	return fmt.Sprintf("validation failed for %s: %s", v.Entity, strings.Join(messages, "; "))
}

// Is reports whether target is ErrValidationFailed
func (v *ValidationFailure) Is(target error) bool {
	return target == ErrValidationFailed
}

// IsValidationFailure returns true if the error is a ValidationFailure
func IsValidationFailure(err error) bool {
	return errors.Is(err, ErrValidationFailed)
}

// IsHookError returns true if the error came from a failing hook
func IsHookError(err error) bool {
	var he *HookError
	return errors.As(err, &he)
}

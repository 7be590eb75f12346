package hooks

import (
	"github.com/conduit-lang/tuplizer/internal/orm/tuplizer"
)

// Point identifies where in the persistence pipeline a hook runs
type Point int

const (
	PreSave Point = iota
	PreUpdate
	PreDelete
	PostLoad
	// Validate is not tied to a pipeline stage; it runs before persisting
	Validate
)

// String returns the string representation of the hook point
func (p Point) String() string {
	switch p {
	case PreSave:
		return "pre_save"
	case PreUpdate:
		return "pre_update"
	case PreDelete:
		return "pre_delete"
	case PostLoad:
		return "post_load"
	case Validate:
		return "validate"
	default:
		return "unknown"
	}
}

// Outcome is the result of a hook that may cancel its operation
type Outcome int

const (
	// Proceed lets the operation continue
	Proceed Outcome = iota
	// Veto cancels the operation silently. It is not an error.
	Veto
)

// String returns the string representation of the outcome
func (o Outcome) String() string {
	if o == Veto {
		return "veto"
	}
	return "proceed"
}

// VetoFunc is the signature of PreSave, PreUpdate and PreDelete hooks
type VetoFunc func(ctx *Context, t tuplizer.Tuple) (Outcome, error)

// Func is the signature of PostLoad and Validate hooks
type Func func(ctx *Context, t tuplizer.Tuple) error

// PreSaver is implemented by hooks that run before a new instance is persisted
type PreSaver interface {
	PreSave(ctx *Context, t tuplizer.Tuple) (Outcome, error)
}

// PreUpdater is implemented by hooks that run when a detached instance is
// reattached for update
type PreUpdater interface {
	PreUpdate(ctx *Context, t tuplizer.Tuple) (Outcome, error)
}

// PreDeleter is implemented by hooks that run before a row is deleted
type PreDeleter interface {
	PreDelete(ctx *Context, t tuplizer.Tuple) (Outcome, error)
}

// PostLoader is implemented by hooks that run after an instance is populated
// from storage. They must not call back into storage.
type PostLoader interface {
	PostLoad(ctx *Context, t tuplizer.Tuple) error
}

// Validator is implemented by hooks that check invariants before persisting.
// Validate must not modify the instance.
type Validator interface {
	Validate(ctx *Context, t tuplizer.Tuple) error
}

// Funcs adapts plain functions to the hook capabilities. Nil fields are skipped.
type Funcs struct {
	PreSave   VetoFunc
	PreUpdate VetoFunc
	PreDelete VetoFunc
	PostLoad  Func
	Validate  Func
}

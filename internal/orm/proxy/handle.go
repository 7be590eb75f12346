// Package proxy provides the stand-in for an entity whose state has not been
// loaded yet. A Handle carries the entity key and a load trigger; tuplizers
// bound through a tuplizer.Catalog realize it on first attribute access.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/conduit-lang/tuplizer/internal/orm/identity"
	"github.com/conduit-lang/tuplizer/internal/orm/storage"
	"github.com/conduit-lang/tuplizer/internal/orm/tuplizer"
)

// State is the materialization state of a Handle
type State int

const (
	Unrealized State = iota
	Realized
)

// String returns the string representation of the state
func (s State) String() string {
	if s == Realized {
		return "realized"
	}
	return "unrealized"
}

// LoadFunc materializes the instance for key. Returning an error matching
// storage.ErrNotFound, or a nil instance, means the row no longer exists.
type LoadFunc func(ctx context.Context, key identity.EntityKey) (tuplizer.Tuple, error)

// Handle stands in for one persistent entity. Everyone holding the handle
// shares the instance it realizes to.
type Handle struct {
	key  identity.EntityKey
	ctx  context.Context
	load LoadFunc

	mu     sync.Mutex
	state  State
	target tuplizer.Tuple
}

// New creates an unrealized handle. ctx is kept for loads triggered through
// Realize, which may run long after the call that created the handle; callers
// holding a fresher context should use RealizeContext.
func New(ctx context.Context, key identity.EntityKey, load LoadFunc) *Handle {
	return &Handle{key: key, ctx: ctx, load: load}
}

// Key returns the entity key the handle stands for
func (h *Handle) Key() identity.EntityKey {
	return h.key
}

// EntityName implements tuplizer.Deferred
func (h *Handle) EntityName() string {
	return h.key.Entity
}

// Identifier returns the identifier without loading
func (h *Handle) Identifier() interface{} {
	return h.key.ID
}

// State returns the current state
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Realized reports whether the instance has been loaded
func (h *Handle) Realized() bool {
	return h.State() == Realized
}

// Target returns the realized instance without loading
func (h *Handle) Target() (tuplizer.Tuple, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.target, h.state == Realized
}

// Realize loads the instance on first call and returns it on every later
// call. A failed load leaves the handle unrealized.
func (h *Handle) Realize() (tuplizer.Tuple, error) {
	return h.RealizeContext(h.ctx)
}

// RealizeContext is Realize with ctx governing the load
func (h *Handle) RealizeContext(ctx context.Context) (tuplizer.Tuple, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == Realized {
		return h.target, nil
	}
	if h.load == nil {
		return nil, fmt.Errorf("proxy %s has no load trigger", h.key)
	}

	t, err := h.load(ctx, h.key)
	if err != nil {
		var notFound *storage.EntityNotFoundError
		if errors.Is(err, storage.ErrNotFound) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("realize proxy: %w", &storage.EntityNotFoundError{Key: h.key})
		}
		return nil, fmt.Errorf("realize proxy %s: %w", h.key, err)
	}
	if t == nil {
		return nil, &storage.EntityNotFoundError{Key: h.key}
	}

	h.target = t
	h.state = Realized
	return t, nil
}

// Resolve returns the instance behind v, realizing it when v is a Handle
func Resolve(v interface{}) (tuplizer.Tuple, error) {
	if h, ok := v.(*Handle); ok {
		return h.Realize()
	}
	return v, nil
}

// ResolveContext is Resolve with ctx governing the load
func ResolveContext(ctx context.Context, v interface{}) (tuplizer.Tuple, error) {
	if h, ok := v.(*Handle); ok {
		return h.RealizeContext(ctx)
	}
	return v, nil
}

// IsUnrealized reports whether v is a handle that has not been loaded
func IsUnrealized(v interface{}) bool {
	h, ok := v.(*Handle)
	return ok && !h.Realized()
}

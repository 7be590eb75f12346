package hooks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/tuplizer/internal/orm/tuplizer"
)

// Dispatcher runs the hooks bound in a Table. A hook that fails or panics
// leaves the instance exactly as it was before the dispatch started.
type Dispatcher struct {
	table  *Table
	logger *zap.Logger
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithLogger sets the logger used for hook failures
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a dispatcher over a hook table
func NewDispatcher(table *Table, opts ...Option) *Dispatcher {
	if table == nil {
		table = NewTable()
	}
	d := &Dispatcher{table: table, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Table returns the hook table
func (d *Dispatcher) Table() *Table {
	return d.table
}

// PreSave runs the PreSave hooks of the instance's entity
func (d *Dispatcher) PreSave(ctx context.Context, tz tuplizer.Tuplizer, t tuplizer.Tuple) (Outcome, error) {
	return d.dispatchVeto(ctx, PreSave, tz, t)
}

// PreUpdate runs the PreUpdate hooks of the instance's entity
func (d *Dispatcher) PreUpdate(ctx context.Context, tz tuplizer.Tuplizer, t tuplizer.Tuple) (Outcome, error) {
	return d.dispatchVeto(ctx, PreUpdate, tz, t)
}

// PreDelete runs the PreDelete hooks of the instance's entity
func (d *Dispatcher) PreDelete(ctx context.Context, tz tuplizer.Tuplizer, t tuplizer.Tuple) (Outcome, error) {
	return d.dispatchVeto(ctx, PreDelete, tz, t)
}

// PostLoad runs the PostLoad hooks of the instance's entity
func (d *Dispatcher) PostLoad(ctx context.Context, tz tuplizer.Tuplizer, t tuplizer.Tuple) error {
	hooks := d.table.funcHooks(tz.Metadata().Name, PostLoad)
	if len(hooks) == 0 {
		return nil
	}

	snap, err := tuplizer.TakeSnapshot(tz, t)
	if err != nil {
		return err
	}

	hctx := NewContext(ctx, tz, PostLoad)
	for _, hook := range hooks {
		if err := d.call(func() error { return hook(hctx, t) }); err != nil {
			return d.fail(hctx, tz, t, snap, err)
		}
	}
	return nil
}

// Validate runs the Validate hooks. Broken invariants are reported as a
// ValidationFailure; a hook that modifies the instance fails with
// ErrValidateMutated and the modification is undone.
func (d *Dispatcher) Validate(ctx context.Context, tz tuplizer.Tuplizer, t tuplizer.Tuple) error {
	entity := tz.Metadata().Name
	hooks := d.table.funcHooks(entity, Validate)
	if len(hooks) == 0 {
		return nil
	}

	before, err := tuplizer.TakeSnapshot(tz, t)
	if err != nil {
		return err
	}

	hctx := NewContext(ctx, tz, Validate)
	failure := NewValidationFailure(entity)
	for _, hook := range hooks {
		err := d.call(func() error { return hook(hctx, t) })

		after, snapErr := tuplizer.TakeSnapshot(tz, t)
		if snapErr != nil {
			return snapErr
		}
		if !before.Equal(after) {
			return d.fail(hctx, tz, t, before, ErrValidateMutated)
		}

		if err == nil {
			continue
		}
		var vf *ValidationFailure
		if errors.As(err, &vf) {
			if !vf.HasViolations() {
				failure.Add("", "invalid state")
			}
			for attr, msgs := range vf.Violations {
				for _, msg := range msgs {
					failure.Add(attr, msg)
				}
			}
			continue
		}
		return d.fail(hctx, tz, t, before, err)
	}

	if failure.HasViolations() {
		d.logger.Debug("validation failed",
			zap.String("entity", entity),
			zap.Error(failure),
		)
		return failure
	}
	return nil
}

func (d *Dispatcher) dispatchVeto(ctx context.Context, point Point, tz tuplizer.Tuplizer, t tuplizer.Tuple) (Outcome, error) {
	hooks := d.table.vetoHooks(tz.Metadata().Name, point)
	if len(hooks) == 0 {
		return Proceed, nil
	}

	snap, err := tuplizer.TakeSnapshot(tz, t)
	if err != nil {
		return Proceed, err
	}

	hctx := NewContext(ctx, tz, point)
	for _, hook := range hooks {
		var outcome Outcome
		err := d.call(func() error {
			var err error
			outcome, err = hook(hctx, t)
			return err
		})
		if err != nil {
			return Proceed, d.fail(hctx, tz, t, snap, err)
		}
		if outcome == Veto {
			return Veto, nil
		}
	}
	return Proceed, nil
}

// call runs one hook, turning a panic into an error
func (d *Dispatcher) call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// fail restores the instance and wraps the hook error
func (d *Dispatcher) fail(hctx *Context, tz tuplizer.Tuplizer, t tuplizer.Tuple, snap *tuplizer.Snapshot, cause error) error {
	if err := snap.Restore(tz, t); err != nil {
		d.logger.Warn("failed to restore instance after hook failure",
			zap.String("entity", hctx.Entity()),
			zap.String("hook", hctx.Point().String()),
			zap.Error(err),
		)
	}

	d.logger.Debug("hook failed",
		zap.String("entity", hctx.Entity()),
		zap.String("hook", hctx.Point().String()),
		zap.Error(cause),
	)
	return &HookError{Entity: hctx.Entity(), Point: hctx.Point(), Err: cause}
}

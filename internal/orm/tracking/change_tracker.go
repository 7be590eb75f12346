// Package tracking detects attribute modifications made to an instance since
// it was loaded or last written, so updates can be limited to what changed.
package tracking

import (
	"sync"

	"github.com/conduit-lang/tuplizer/internal/orm/tuplizer"
)

// FieldChange represents a change to a single attribute
type FieldChange struct {
	Field    string
	Ordinal  int
	OldValue interface{}
	NewValue interface{}
}

// Normalizer maps an attribute value to the form it is compared in. Sessions
// use it to compare associations by target identifier rather than by instance.
type Normalizer func(ordinal int, value interface{}) interface{}

// ChangeTracker holds the baseline state of one instance
type ChangeTracker struct {
	mu        sync.RWMutex
	tz        tuplizer.Tuplizer
	normalize Normalizer
	baseline  []interface{}
	id        interface{}
}

// Option configures a ChangeTracker
type Option func(*ChangeTracker)

// WithNormalizer sets how attribute values are compared
func WithNormalizer(n Normalizer) Option {
	return func(ct *ChangeTracker) {
		ct.normalize = n
	}
}

// NewChangeTracker captures the current state of t as the baseline
func NewChangeTracker(tz tuplizer.Tuplizer, t tuplizer.Tuple, opts ...Option) (*ChangeTracker, error) {
	ct := &ChangeTracker{tz: tz}
	for _, opt := range opts {
		opt(ct)
	}
	if err := ct.Reset(t); err != nil {
		return nil, err
	}
	return ct, nil
}

func (ct *ChangeTracker) capture(t tuplizer.Tuple) (*tuplizer.Snapshot, error) {
	snap, err := tuplizer.TakeSnapshot(ct.tz, t)
	if err != nil {
		return nil, err
	}
	if ct.normalize != nil {
		for i, v := range snap.Values {
			snap.Values[i] = ct.normalize(i, v)
		}
	}
	return snap, nil
}

// Reset makes the current state of t the new baseline. Call it after the
// instance has been written.
func (ct *ChangeTracker) Reset(t tuplizer.Tuple) error {
	snap, err := ct.capture(t)
	if err != nil {
		return err
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.baseline = snap.Values
	ct.id = snap.ID
	return nil
}

// PreviousValue returns the baseline value of an attribute
func (ct *ChangeTracker) PreviousValue(field string) interface{} {
	ord, ok := ct.tz.Metadata().Ordinal(field)
	if !ok {
		return nil
	}

	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.baseline[ord]
}

// Compute compares the current state of t against the baseline
func (ct *ChangeTracker) Compute(t tuplizer.Tuple) (*ChangeSet, error) {
	snap, err := ct.capture(t)
	if err != nil {
		return nil, err
	}

	ct.mu.RLock()
	defer ct.mu.RUnlock()

	meta := ct.tz.Metadata()
	cs := &ChangeSet{changes: make(map[string]*FieldChange)}
	for i, current := range snap.Values {
		if tuplizer.ValuesEqual(ct.baseline[i], current) {
			continue
		}
		name := meta.Attributes[i].Name
		cs.order = append(cs.order, name)
		cs.changes[name] = &FieldChange{
			Field:    name,
			Ordinal:  i,
			OldValue: ct.baseline[i],
			NewValue: current,
		}
	}
	cs.identifierChanged = snap.HasID && !tuplizer.ValuesEqual(ct.id, snap.ID)
	return cs, nil
}

// ChangeSet lists the attributes that differ from the baseline, in
// declaration order
type ChangeSet struct {
	changes           map[string]*FieldChange
	order             []string
	identifierChanged bool
}

// Changed returns true if the attribute has changed
func (cs *ChangeSet) Changed(field string) bool {
	_, ok := cs.changes[field]
	return ok
}

// ChangedFields returns the changed attribute names
func (cs *ChangeSet) ChangedFields() []string {
	return append([]string(nil), cs.order...)
}

// Ordinals returns the ordinals of changed attributes
func (cs *ChangeSet) Ordinals() []int {
	out := make([]int, len(cs.order))
	for i, name := range cs.order {
		out[i] = cs.changes[name].Ordinal
	}
	return out
}

// GetChange returns the change for an attribute, or nil if unchanged
func (cs *ChangeSet) GetChange(field string) *FieldChange {
	return cs.changes[field]
}

// HasChanges returns true if any attribute changed
func (cs *ChangeSet) HasChanges() bool {
	return len(cs.order) > 0
}

// IdentifierChanged reports whether the identifier was reassigned
func (cs *ChangeSet) IdentifierChanged() bool {
	return cs.identifierChanged
}

// ChangedTo returns true if the attribute changed to value
func (cs *ChangeSet) ChangedTo(field string, value interface{}) bool {
	change, ok := cs.changes[field]
	return ok && tuplizer.ValuesEqual(change.NewValue, value)
}

// ChangedFrom returns true if the attribute changed from value
func (cs *ChangeSet) ChangedFrom(field string, value interface{}) bool {
	change, ok := cs.changes[field]
	return ok && tuplizer.ValuesEqual(change.OldValue, value)
}

// ChangedData returns the new values of changed attributes keyed by name
func (cs *ChangeSet) ChangedData() map[string]interface{} {
	out := make(map[string]interface{}, len(cs.changes))
	for name, change := range cs.changes {
		out[name] = change.NewValue
	}
	return out
}

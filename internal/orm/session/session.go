// Package session is the unit of work that drives the representation core.
// It owns an identity map, turns stored rows into instances through the
// entity's tuplizer, substitutes proxies for lazy associations, and brackets
// every storage call with the lifecycle hooks.
package session

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"go.uber.org/zap"

	"github.com/conduit-lang/tuplizer/internal/orm/hooks"
	"github.com/conduit-lang/tuplizer/internal/orm/identity"
	"github.com/conduit-lang/tuplizer/internal/orm/proxy"
	"github.com/conduit-lang/tuplizer/internal/orm/schema"
	"github.com/conduit-lang/tuplizer/internal/orm/storage"
	"github.com/conduit-lang/tuplizer/internal/orm/tracking"
	"github.com/conduit-lang/tuplizer/internal/orm/tuplizer"
)

// Status distinguishes a completed operation from one a hook vetoed
type Status int

const (
	Completed Status = iota
	Vetoed
)

// String returns the string representation of the status
func (s Status) String() string {
	if s == Vetoed {
		return "vetoed"
	}
	return "completed"
}

// entry is one managed row. handle is set when the row was first referenced
// lazily; tuple is set once the row has been loaded or saved.
type entry struct {
	key     identity.EntityKey
	tz      tuplizer.Tuplizer
	tuple   tuplizer.Tuple
	handle  *proxy.Handle
	tracker *tracking.ChangeTracker
}

// Session is a single unit of work. It is not safe for concurrent use.
type Session struct {
	catalog    *tuplizer.Catalog
	store      storage.Store
	hooks      *hooks.Dispatcher
	notifier   *hooks.Notifier
	generators identity.Generators
	mode       schema.RepresentationMode
	logger     *zap.Logger

	managed  *identity.Map // EntityKey -> *entry
	inFlight []tuplizer.Tuple
	closed   bool
}

// New creates a session over a tuplizer catalog and a store
func New(catalog *tuplizer.Catalog, store storage.Store, opts ...Option) *Session {
	s := &Session{
		catalog:    catalog,
		store:      store,
		generators: identity.DefaultGenerators(),
		mode:       catalog.Registry().DefaultMode(),
		logger:     zap.NewNop(),
		managed:    identity.NewMap(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hooks == nil {
		s.hooks = hooks.NewDispatcher(nil, hooks.WithLogger(s.logger))
	}
	return s
}

// Mode returns the representation mode of the session
func (s *Session) Mode() schema.RepresentationMode {
	return s.mode
}

// Tuplizer returns the tuplizer the session uses for an entity
func (s *Session) Tuplizer(entity string) (tuplizer.Tuplizer, error) {
	return s.catalog.Tuplizer(entity, s.mode)
}

// New creates a transient instance of an entity
func (s *Session) New(entity string) (tuplizer.Tuple, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	tz, err := s.Tuplizer(entity)
	if err != nil {
		return nil, err
	}
	return tz.CreateInstance()
}

// Get returns the managed instance for a row, loading it if needed
func (s *Session) Get(ctx context.Context, entity string, id interface{}) (tuplizer.Tuple, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	tz, key, err := s.keyFor(entity, id)
	if err != nil {
		return nil, err
	}
	return s.get(ctx, tz, key)
}

func (s *Session) get(ctx context.Context, tz tuplizer.Tuplizer, key identity.EntityKey) (tuplizer.Tuple, error) {
	if e, ok := s.lookup(key); ok {
		if e.tuple != nil {
			return e.tuple, nil
		}
		if e.handle != nil {
			return e.handle.RealizeContext(ctx)
		}
	}
	return s.load(ctx, tz, key)
}

// Reference returns an instance for a row without loading it. Rows already
// managed are returned as they are; others come back as an unrealized
// *proxy.Handle that loads on first attribute access.
func (s *Session) Reference(ctx context.Context, entity string, id interface{}) (tuplizer.Tuple, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	tz, key, err := s.keyFor(entity, id)
	if err != nil {
		return nil, err
	}
	return s.reference(ctx, tz, key), nil
}

func (s *Session) reference(ctx context.Context, tz tuplizer.Tuplizer, key identity.EntityKey) tuplizer.Tuple {
	if e, ok := s.lookup(key); ok {
		if e.tuple != nil {
			return e.tuple
		}
		return e.handle
	}

	// Save or Update may attach an instance for key before the handle is
	// touched; the handle then realizes to that instance.
	h := proxy.New(ctx, key, func(ctx context.Context, key identity.EntityKey) (tuplizer.Tuple, error) {
		if e, ok := s.lookup(key); ok && e.tuple != nil {
			return e.tuple, nil
		}
		return s.load(ctx, tz, key)
	})
	s.managed.Add(key, &entry{key: key, tz: tz, handle: h})
	return h
}

// load reads a row and turns it into a managed instance
func (s *Session) load(ctx context.Context, tz tuplizer.Tuplizer, key identity.EntityKey) (tuplizer.Tuple, error) {
	meta := tz.Metadata()

	row, err := s.store.LoadRow(ctx, meta, key.ID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, &storage.EntityNotFoundError{Key: key}
		}
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	s.logger.Debug("row loaded", zap.String("entity", meta.Name), zap.Stringer("key", key))

	t, err := tz.CreateInstance()
	if err != nil {
		return nil, err
	}
	if err := tz.SetIdentifier(t, key.ID); err != nil {
		return nil, err
	}

	// Register before resolving associations so cycles find this instance
	e, _ := s.lookup(key)
	if e == nil {
		e = &entry{key: key, tz: tz}
		s.managed.Add(key, e)
	}
	e.tuple = t

	if err := s.populate(ctx, tz, t, row); err != nil {
		s.forget(key, e)
		return nil, err
	}
	if e.tracker, err = s.track(tz, t); err != nil {
		s.forget(key, e)
		return nil, err
	}
	if err := s.hooks.PostLoad(ctx, tz, t); err != nil {
		s.forget(key, e)
		return nil, err
	}
	return t, nil
}

// forget drops an entry whose load failed. A lazily referenced row keeps its
// handle so a later access can retry.
func (s *Session) forget(key identity.EntityKey, e *entry) {
	e.tuple = nil
	e.tracker = nil
	if e.handle == nil {
		s.managed.Remove(key)
	}
}

func (s *Session) populate(ctx context.Context, tz tuplizer.Tuplizer, t tuplizer.Tuple, row storage.Row) error {
	meta := tz.Metadata()
	for i, attr := range meta.Attributes {
		raw, ok := row[attr.Name]
		if !ok {
			continue
		}

		var value interface{}
		var err error
		if attr.IsAssociation() {
			value, err = s.resolveAssociation(ctx, attr, raw)
		} else {
			value, err = attr.Type.Coerce(raw)
		}
		if err != nil {
			return fmt.Errorf("%s.%s: %w", meta.Name, attr.Name, err)
		}
		if err := tz.SetAttribute(t, i, value); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) resolveAssociation(ctx context.Context, attr *schema.AttributeDescriptor, raw interface{}) (interface{}, error) {
	if identity.IsUnset(raw) {
		return nil, nil
	}
	tz, key, err := s.keyFor(attr.Target, raw)
	if err != nil {
		return nil, err
	}
	if attr.Fetch == schema.FetchEager {
		return s.get(ctx, tz, key)
	}
	return s.reference(ctx, tz, key), nil
}

// Save persists a transient instance. PreSave runs after the identifier is
// assigned, except for store-assigned identifiers, which are only known once
// the row exists. A veto leaves the instance transient and untouched.
func (s *Session) Save(ctx context.Context, t tuplizer.Tuple) (Status, error) {
	if s.closed {
		return Completed, ErrSessionClosed
	}
	if _, ok := t.(*proxy.Handle); ok {
		return Completed, nil
	}

	tz, err := s.catalog.Resolve(t, s.mode)
	if err != nil {
		return Completed, err
	}
	if s.Contains(t) || s.saving(t) {
		return Completed, nil
	}
	meta := tz.Metadata()

	previous, err := tz.GetIdentifier(t)
	if err != nil {
		return Completed, err
	}
	if err := s.assignIdentifier(ctx, tz, t, previous); err != nil {
		return Completed, err
	}
	restoreID := func() {
		if err := tz.SetIdentifier(t, previous); err != nil {
			s.logger.Warn("failed to restore identifier", zap.String("entity", meta.Name), zap.Error(err))
		}
	}

	outcome, err := s.hooks.PreSave(ctx, tz, t)
	if err != nil {
		restoreID()
		return Completed, err
	}
	if outcome == hooks.Veto {
		restoreID()
		s.logger.Info("save vetoed", zap.String("entity", meta.Name))
		return Vetoed, nil
	}

	s.inFlight = append(s.inFlight, t)
	defer func() { s.inFlight = s.inFlight[:len(s.inFlight)-1] }()

	if err := s.cascadeSave(ctx, tz, t); err != nil {
		restoreID()
		return Completed, err
	}
	if err := s.hooks.Validate(ctx, tz, t); err != nil {
		restoreID()
		return Completed, err
	}

	row, err := s.row(tz, t, nil)
	if err != nil {
		restoreID()
		return Completed, err
	}
	if meta.Strategy == schema.StoreAssigned {
		delete(row, meta.Identifier.Name)
	} else {
		id, _ := tz.GetIdentifier(t)
		if existing, ok := s.lookup(identity.EntityKey{Entity: meta.Name, ID: id}); ok && existing.tuple != nil && !sameInstance(existing.tuple, t) {
			restoreID()
			return Completed, fmt.Errorf("save %s: %w", existing.key, ErrNonUniqueInstance)
		}
	}

	id, err := s.store.PersistRow(ctx, meta, row)
	if err != nil {
		restoreID()
		return Completed, fmt.Errorf("save %s: %w", meta.Name, err)
	}
	if meta.Strategy == schema.StoreAssigned {
		if id, err = meta.Identifier.Type.Coerce(id); err != nil {
			return Completed, fmt.Errorf("save %s: store returned identifier: %w", meta.Name, err)
		}
		if err := tz.SetIdentifier(t, id); err != nil {
			return Completed, err
		}
		row[meta.Identifier.Name] = id
	}

	key := identity.EntityKey{Entity: meta.Name, ID: id}
	if err := s.manage(key, tz, t); err != nil {
		return Completed, err
	}
	s.logger.Debug("row persisted", zap.String("entity", meta.Name), zap.Stringer("key", key))
	s.notify(hooks.Persisted, key, row)
	return Completed, nil
}

func (s *Session) assignIdentifier(ctx context.Context, tz tuplizer.Tuplizer, t tuplizer.Tuple, current interface{}) error {
	meta := tz.Metadata()
	switch meta.Strategy {
	case schema.StoreAssigned:
		return nil
	case schema.Assigned:
		if identity.IsUnset(current) {
			return fmt.Errorf("save %s: %w", meta.Name, identity.ErrUnsetIdentifier)
		}
		return nil
	}
	if !identity.IsUnset(current) {
		return nil
	}

	var id interface{}
	if src, ok := s.store.(storage.SequenceSource); ok && meta.Strategy == schema.Sequence {
		n, err := src.NextSequence(ctx, meta)
		if err != nil {
			return fmt.Errorf("next sequence for %s: %w", meta.Name, err)
		}
		id = n
	} else {
		gen, err := s.generators.For(meta.Strategy)
		if err != nil {
			return err
		}
		if id, err = gen.Generate(ctx, meta); err != nil {
			return err
		}
	}
	return tz.SetIdentifier(t, id)
}

func (s *Session) cascadeSave(ctx context.Context, tz tuplizer.Tuplizer, t tuplizer.Tuple) error {
	meta := tz.Metadata()
	for _, ord := range meta.Associations() {
		attr := meta.Attributes[ord]
		if !attr.Cascade.CascadesSave() {
			continue
		}
		target, err := tz.GetAttribute(t, ord)
		if err != nil {
			return err
		}
		if target == nil {
			continue
		}
		if _, ok := target.(*proxy.Handle); ok {
			continue
		}
		if status, err := s.Save(ctx, target); err != nil {
			return fmt.Errorf("cascade save %s.%s: %w", meta.Name, attr.Name, err)
		} else if status == Vetoed {
			s.logger.Info("cascaded save vetoed", zap.String("entity", attr.Target))
		}
	}
	return nil
}

// Update reattaches a detached instance and writes all of its attributes.
// PreUpdate runs here and only here; changes to instances the session
// already manages are written by Flush instead.
func (s *Session) Update(ctx context.Context, t tuplizer.Tuple) (Status, error) {
	if s.closed {
		return Completed, ErrSessionClosed
	}
	if _, ok := t.(*proxy.Handle); ok {
		return Completed, nil
	}
	tz, key, err := s.keyOf(t)
	if err != nil {
		return Completed, err
	}
	meta := tz.Metadata()

	if e, ok := s.lookup(key); ok {
		if sameInstance(e.tuple, t) {
			return Completed, nil
		}
		if e.tuple != nil {
			return Completed, fmt.Errorf("update %s: %w", key, ErrNonUniqueInstance)
		}
	}

	outcome, err := s.hooks.PreUpdate(ctx, tz, t)
	if err != nil {
		return Completed, err
	}
	if outcome == hooks.Veto {
		s.logger.Info("update vetoed", zap.String("entity", meta.Name), zap.Stringer("key", key))
		return Vetoed, nil
	}

	if err := s.cascadeSave(ctx, tz, t); err != nil {
		return Completed, err
	}
	if err := s.hooks.Validate(ctx, tz, t); err != nil {
		return Completed, err
	}

	row, err := s.row(tz, t, nil)
	if err != nil {
		return Completed, err
	}
	delete(row, meta.Identifier.Name)
	if err := s.store.UpdateRow(ctx, meta, key.ID, row); err != nil {
		if storage.IsNotFound(err) {
			return Completed, &storage.EntityNotFoundError{Key: key}
		}
		return Completed, fmt.Errorf("update %s: %w", key, err)
	}

	if err := s.manage(key, tz, t); err != nil {
		return Completed, err
	}
	s.logger.Debug("row updated", zap.String("entity", meta.Name), zap.Stringer("key", key))
	s.notify(hooks.Updated, key, row)
	return Completed, nil
}

// Delete removes the row of a persistent instance. Unrealized proxies are
// loaded first so PreDelete sees the real state. Cascaded deletes run after
// the owner's row is gone.
func (s *Session) Delete(ctx context.Context, t tuplizer.Tuple) (Status, error) {
	if s.closed {
		return Completed, ErrSessionClosed
	}
	t, err := proxy.ResolveContext(ctx, t)
	if err != nil {
		return Completed, err
	}
	tz, key, err := s.keyOf(t)
	if err != nil {
		return Completed, err
	}
	meta := tz.Metadata()

	outcome, err := s.hooks.PreDelete(ctx, tz, t)
	if err != nil {
		return Completed, err
	}
	if outcome == hooks.Veto {
		s.logger.Info("delete vetoed", zap.String("entity", meta.Name), zap.Stringer("key", key))
		return Vetoed, nil
	}

	var cascaded []tuplizer.Tuple
	for _, ord := range meta.Associations() {
		if !meta.Attributes[ord].Cascade.CascadesDelete() {
			continue
		}
		target, err := tz.GetAttribute(t, ord)
		if err != nil {
			return Completed, err
		}
		if target != nil {
			cascaded = append(cascaded, target)
		}
	}

	values, err := s.row(tz, t, nil)
	if err != nil {
		s.logger.Warn("deleted event carries no values", zap.Stringer("key", key), zap.Error(err))
	}
	if err := s.store.DeleteRow(ctx, meta, key.ID); err != nil {
		if storage.IsNotFound(err) {
			return Completed, &storage.EntityNotFoundError{Key: key}
		}
		return Completed, fmt.Errorf("delete %s: %w", key, err)
	}
	s.managed.Remove(key)
	s.logger.Debug("row deleted", zap.String("entity", meta.Name), zap.Stringer("key", key))
	s.notify(hooks.Deleted, key, values)

	for _, target := range cascaded {
		if _, err := s.Delete(ctx, target); err != nil {
			return Completed, fmt.Errorf("cascade delete from %s: %w", key, err)
		}
	}
	return Completed, nil
}

// Flush writes changed attributes of every managed instance and returns the
// number of rows written. No PreUpdate hook runs; Validate does.
func (s *Session) Flush(ctx context.Context) (int, error) {
	if s.closed {
		return 0, ErrSessionClosed
	}

	keys := s.managed.Keys()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	written := 0
	for _, key := range keys {
		e, ok := s.lookup(key)
		if !ok || e.tuple == nil || e.tracker == nil {
			continue
		}

		cs, err := e.tracker.Compute(e.tuple)
		if err != nil {
			return written, err
		}
		if !cs.HasChanges() {
			continue
		}
		if err := s.hooks.Validate(ctx, e.tz, e.tuple); err != nil {
			return written, err
		}

		row, err := s.row(e.tz, e.tuple, cs.Ordinals())
		if err != nil {
			return written, err
		}
		if err := s.store.UpdateRow(ctx, e.tz.Metadata(), key.ID, row); err != nil {
			if storage.IsNotFound(err) {
				return written, &storage.EntityNotFoundError{Key: key}
			}
			return written, fmt.Errorf("flush %s: %w", key, err)
		}
		if err := e.tracker.Reset(e.tuple); err != nil {
			return written, err
		}

		written++
		s.logger.Debug("row flushed",
			zap.Stringer("key", key),
			zap.Strings("attributes", cs.ChangedFields()),
		)
		s.notify(hooks.Updated, key, row)
	}
	return written, nil
}

// Contains reports whether t is the instance the session manages for its row
func (s *Session) Contains(t tuplizer.Tuple) bool {
	if h, ok := t.(*proxy.Handle); ok {
		e, ok := s.lookup(h.Key())
		return ok && e.handle == h
	}
	_, key, err := s.keyOf(t)
	if err != nil {
		return false
	}
	e, ok := s.lookup(key)
	return ok && sameInstance(e.tuple, t)
}

// Evict detaches t; later changes to it are not flushed
func (s *Session) Evict(t tuplizer.Tuple) {
	if !s.Contains(t) {
		return
	}
	if h, ok := t.(*proxy.Handle); ok {
		s.managed.Remove(h.Key())
		return
	}
	if _, key, err := s.keyOf(t); err == nil {
		s.managed.Remove(key)
	}
}

// Values returns the attribute values of t as a storage row, with
// associations reduced to the target identifier. Unrealized proxies are not
// loaded.
func (s *Session) Values(t tuplizer.Tuple) (storage.Row, error) {
	if h, ok := t.(*proxy.Handle); ok {
		if target, realized := h.Target(); realized {
			t = target
		} else {
			return nil, fmt.Errorf("%s is not loaded", h.Key())
		}
	}
	tz, err := s.catalog.Resolve(t, s.mode)
	if err != nil {
		return nil, err
	}
	return s.row(tz, t, nil)
}

// Len returns the number of managed rows
func (s *Session) Len() int {
	return s.managed.Len()
}

// Close detaches every instance and ends the unit of work
func (s *Session) Close() {
	s.managed.Clear()
	s.closed = true
}

func (s *Session) keyFor(entity string, id interface{}) (tuplizer.Tuplizer, identity.EntityKey, error) {
	tz, err := s.Tuplizer(entity)
	if err != nil {
		return nil, identity.EntityKey{}, err
	}
	meta := tz.Metadata()
	if !meta.HasIdentifier() {
		return nil, identity.EntityKey{}, fmt.Errorf("%s: %w", meta.Name, tuplizer.ErrNoIdentifierAttribute)
	}
	id, err = meta.Identifier.Type.Coerce(id)
	if err != nil {
		return nil, identity.EntityKey{}, fmt.Errorf("%s identifier: %w", meta.Name, err)
	}
	key, err := identity.NewKey(meta.Name, id)
	return tz, key, err
}

func (s *Session) keyOf(t tuplizer.Tuple) (tuplizer.Tuplizer, identity.EntityKey, error) {
	tz, err := s.catalog.Resolve(t, s.mode)
	if err != nil {
		return nil, identity.EntityKey{}, err
	}
	id, err := tz.GetIdentifier(t)
	if err != nil {
		return nil, identity.EntityKey{}, err
	}
	if identity.IsUnset(id) {
		return nil, identity.EntityKey{}, fmt.Errorf("%s: %w", tz.Metadata().Name, ErrTransientInstance)
	}
	return tz, identity.EntityKey{Entity: tz.Metadata().Name, ID: id}, nil
}

func (s *Session) lookup(key identity.EntityKey) (*entry, bool) {
	v, ok := s.managed.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*entry), true
}

func (s *Session) manage(key identity.EntityKey, tz tuplizer.Tuplizer, t tuplizer.Tuple) error {
	tracker, err := s.track(tz, t)
	if err != nil {
		return err
	}
	if e, ok := s.lookup(key); ok {
		e.tuple = t
		e.tracker = tracker
		return nil
	}
	s.managed.Add(key, &entry{key: key, tz: tz, tuple: t, tracker: tracker})
	return nil
}

func (s *Session) track(tz tuplizer.Tuplizer, t tuplizer.Tuple) (*tracking.ChangeTracker, error) {
	meta := tz.Metadata()
	return tracking.NewChangeTracker(tz, t, tracking.WithNormalizer(func(ord int, v interface{}) interface{} {
		if !meta.Attributes[ord].IsAssociation() || v == nil {
			return v
		}
		id, err := s.associationID(meta.Attributes[ord], v)
		if err != nil {
			return v
		}
		return id
	}))
}

// row converts the given ordinals of t, or all attributes when ordinals is
// nil, into a storage row. The identifier is always included.
func (s *Session) row(tz tuplizer.Tuplizer, t tuplizer.Tuple, ordinals []int) (storage.Row, error) {
	meta := tz.Metadata()
	if ordinals == nil {
		ordinals = make([]int, len(meta.Attributes))
		for i := range ordinals {
			ordinals[i] = i
		}
	}

	row := make(storage.Row, len(ordinals)+1)
	if meta.HasIdentifier() {
		id, err := tz.GetIdentifier(t)
		if err != nil {
			return nil, err
		}
		row[meta.Identifier.Name] = id
	}

	for _, ord := range ordinals {
		attr := meta.Attributes[ord]
		v, err := tz.GetAttribute(t, ord)
		if err != nil {
			return nil, err
		}
		if attr.IsAssociation() && v != nil {
			if v, err = s.associationID(attr, v); err != nil {
				return nil, err
			}
		}
		row[attr.Name] = v
	}
	return row, nil
}

func (s *Session) associationID(attr *schema.AttributeDescriptor, v interface{}) (interface{}, error) {
	if h, ok := v.(*proxy.Handle); ok {
		return h.Identifier(), nil
	}
	target, err := s.catalog.Tuplizer(attr.Target, s.mode)
	if err != nil {
		return nil, err
	}
	id, err := target.GetIdentifier(v)
	if err != nil {
		return nil, err
	}
	if identity.IsUnset(id) {
		return nil, fmt.Errorf("%s: %w", attr.Name, ErrTransientReference)
	}
	return id, nil
}

func (s *Session) saving(t tuplizer.Tuple) bool {
	for _, in := range s.inFlight {
		if sameInstance(in, t) {
			return true
		}
	}
	return false
}

func (s *Session) notify(op hooks.Operation, key identity.EntityKey, row storage.Row) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(hooks.Event{
		Entity:    key.Entity,
		Operation: op,
		ID:        key.ID,
		Values:    map[string]interface{}(row),
	})
}

// sameInstance reports reference identity for every representation,
// including map-backed instances that cannot be compared with ==
func sameInstance(a, b interface{}) bool {
	if a == nil || b == nil {
		return false
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Map, reflect.Ptr, reflect.Slice, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	}
	if va.Type().Comparable() {
		return a == b
	}
	return false
}

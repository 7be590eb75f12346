package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/conduit-lang/tuplizer/internal/orm/hooks"
	"github.com/conduit-lang/tuplizer/internal/orm/proxy"
	"github.com/conduit-lang/tuplizer/internal/orm/schema"
	"github.com/conduit-lang/tuplizer/internal/orm/storage"
	"github.com/conduit-lang/tuplizer/internal/orm/tuplizer"
)

// countingStore wraps the memory store and counts storage calls
type countingStore struct {
	*storage.Memory
	loads, persists, updates, deletes int
}

func (c *countingStore) LoadRow(ctx context.Context, meta *schema.EntityMetadata, id interface{}) (storage.Row, error) {
	c.loads++
	return c.Memory.LoadRow(ctx, meta, id)
}

func (c *countingStore) PersistRow(ctx context.Context, meta *schema.EntityMetadata, row storage.Row) (interface{}, error) {
	c.persists++
	return c.Memory.PersistRow(ctx, meta, row)
}

func (c *countingStore) UpdateRow(ctx context.Context, meta *schema.EntityMetadata, id interface{}, row storage.Row) error {
	c.updates++
	return c.Memory.UpdateRow(ctx, meta, id, row)
}

func (c *countingStore) DeleteRow(ctx context.Context, meta *schema.EntityMetadata, id interface{}) error {
	c.deletes++
	return c.Memory.DeleteRow(ctx, meta, id)
}

type association struct {
	cascade schema.CascadePolicy
	fetch   schema.FetchMode
}

func customerMetas(org association, strategy schema.IdentifierStrategy) []*schema.EntityMetadata {
	return []*schema.EntityMetadata{
		schema.NewEntityMetadata("Customer", schema.DynamicMap,
			&schema.AttributeDescriptor{Name: "name", Type: schema.TypeString},
			&schema.AttributeDescriptor{
				Name:     "organization",
				Type:     schema.TypeAssociation,
				Target:   "Organization",
				Nullable: true,
				Cascade:  org.cascade,
				Fetch:    org.fetch,
			},
		).WithIdentifier(&schema.AttributeDescriptor{Name: "id", Type: schema.TypeInt}, strategy),
		schema.NewEntityMetadata("Organization", schema.DynamicMap,
			&schema.AttributeDescriptor{Name: "title", Type: schema.TypeString},
		).WithIdentifier(&schema.AttributeDescriptor{Name: "id", Type: schema.TypeInt}, schema.Sequence),
	}
}

type fixture struct {
	reg     *schema.Registry
	catalog *tuplizer.Catalog
	store   *countingStore
	table   *hooks.Table
}

func newFixture(t *testing.T, metas []*schema.EntityMetadata) *fixture {
	t.Helper()
	reg := schema.NewRegistry(schema.DynamicMap)
	for _, m := range metas {
		require.NoError(t, reg.Register(m))
	}
	require.NoError(t, reg.Freeze())
	return &fixture{
		reg:     reg,
		catalog: tuplizer.NewCatalog(reg),
		store:   &countingStore{Memory: storage.NewMemory()},
		table:   hooks.NewTable(),
	}
}

func (f *fixture) session(t *testing.T, opts ...Option) *Session {
	t.Helper()
	logger := zaptest.NewLogger(t)
	opts = append([]Option{
		WithDispatcher(hooks.NewDispatcher(f.table, hooks.WithLogger(logger))),
		WithLogger(logger),
	}, opts...)
	return New(f.catalog, f.store, opts...)
}

func (f *fixture) meta(t *testing.T, entity string) *schema.EntityMetadata {
	t.Helper()
	meta, err := f.reg.LookupMode(entity, schema.DynamicMap)
	require.NoError(t, err)
	return meta
}

func (f *fixture) seed(t *testing.T, entity string, row storage.Row) {
	t.Helper()
	_, err := f.store.Memory.PersistRow(context.Background(), f.meta(t, entity), row)
	require.NoError(t, err)
}

func newCustomer(t *testing.T, s *Session, name string) (tuplizer.Tuplizer, tuplizer.Tuple) {
	t.Helper()
	tz, err := s.Tuplizer("Customer")
	require.NoError(t, err)
	c, err := s.New("Customer")
	require.NoError(t, err)
	require.NoError(t, tuplizer.SetAttributeByName(tz, c, "name", name))
	return tz, c
}

func TestSession_SaveAssignsSequenceAndManages(t *testing.T) {
	f := newFixture(t, customerMetas(association{}, schema.Sequence))
	s := f.session(t)
	ctx := context.Background()

	tz, c := newCustomer(t, s, "Ann")
	status, err := s.Save(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, Completed, status)
	assert.Equal(t, 1, f.store.persists)

	id, err := tz.GetIdentifier(c)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.True(t, s.Contains(c))

	got, err := s.Get(ctx, "Customer", 1)
	require.NoError(t, err)
	assert.True(t, sameInstance(c, got), "Get returns the managed instance")
	assert.Equal(t, 0, f.store.loads)

	status, err = s.Save(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, Completed, status)
	assert.Equal(t, 1, f.store.persists, "saving a managed instance is a no-op")
}

func TestSession_GetIdentityMap(t *testing.T) {
	f := newFixture(t, customerMetas(association{}, schema.Sequence))
	f.seed(t, "Customer", storage.Row{"id": int64(1), "name": "Ann"})
	s := f.session(t)
	ctx := context.Background()

	first, err := s.Get(ctx, "Customer", 1)
	require.NoError(t, err)
	second, err := s.Get(ctx, "Customer", int32(1))
	require.NoError(t, err)

	assert.True(t, sameInstance(first, second))
	assert.Equal(t, 1, f.store.loads)

	tz, err := s.Tuplizer("Customer")
	require.NoError(t, err)
	name, err := tuplizer.AttributeByName(tz, first, "name")
	require.NoError(t, err)
	assert.Equal(t, "Ann", name)
}

func TestSession_GetNotFound(t *testing.T) {
	f := newFixture(t, customerMetas(association{}, schema.Sequence))
	s := f.session(t)

	_, err := s.Get(context.Background(), "Customer", 404)
	require.Error(t, err)
	assert.True(t, storage.IsNotFound(err))

	var notFound *storage.EntityNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "Customer", notFound.Key.Entity)
	assert.Equal(t, 0, s.Len())
}

func TestSession_PreSaveVeto(t *testing.T) {
	f := newFixture(t, customerMetas(association{}, schema.Sequence))
	require.NoError(t, f.table.Register("Customer", hooks.Funcs{
		PreSave: func(ctx *hooks.Context, c tuplizer.Tuple) (hooks.Outcome, error) {
			name, err := ctx.Get(c, "name")
			if err != nil {
				return hooks.Proceed, err
			}
			if name == "Mallory" {
				return hooks.Veto, nil
			}
			return hooks.Proceed, nil
		},
	}))
	s := f.session(t)

	tz, c := newCustomer(t, s, "Mallory")
	status, err := s.Save(context.Background(), c)
	require.NoError(t, err, "a veto is not an error")
	assert.Equal(t, Vetoed, status)
	assert.Equal(t, 0, f.store.persists)
	assert.False(t, s.Contains(c))

	id, err := tz.GetIdentifier(c)
	require.NoError(t, err)
	assert.Nil(t, id, "generated identifier is withdrawn on veto")
}

func TestSession_PreSaveSeesIdentifier(t *testing.T) {
	var seen []interface{}
	record := hooks.Funcs{PreSave: func(ctx *hooks.Context, c tuplizer.Tuple) (hooks.Outcome, error) {
		id, err := ctx.Identifier(c)
		seen = append(seen, id)
		return hooks.Proceed, err
	}}

	t.Run("generated before PreSave", func(t *testing.T) {
		seen = nil
		f := newFixture(t, customerMetas(association{}, schema.Sequence))
		require.NoError(t, f.table.Register("Customer", record))
		s := f.session(t)

		_, c := newCustomer(t, s, "Ann")
		_, err := s.Save(context.Background(), c)
		require.NoError(t, err)
		assert.Equal(t, []interface{}{int64(1)}, seen)
	})

	t.Run("store assigned after PreSave", func(t *testing.T) {
		seen = nil
		f := newFixture(t, customerMetas(association{}, schema.StoreAssigned))
		require.NoError(t, f.table.Register("Customer", record))
		s := f.session(t)

		tz, c := newCustomer(t, s, "Ann")
		_, err := s.Save(context.Background(), c)
		require.NoError(t, err)
		assert.Equal(t, []interface{}{nil}, seen, "identifier is unknown until the row exists")

		id, err := tz.GetIdentifier(c)
		require.NoError(t, err)
		assert.Equal(t, int64(1), id)
		assert.True(t, s.Contains(c))
	})
}

func TestSession_AssignedRequiresIdentifier(t *testing.T) {
	f := newFixture(t, customerMetas(association{}, schema.Assigned))
	s := f.session(t)

	_, c := newCustomer(t, s, "Ann")
	_, err := s.Save(context.Background(), c)
	require.Error(t, err)
	assert.Equal(t, 0, f.store.persists)
}

func TestSession_ValidateAbortsSave(t *testing.T) {
	f := newFixture(t, customerMetas(association{}, schema.Sequence))
	require.NoError(t, f.table.Register("Customer", hooks.Funcs{
		Validate: func(ctx *hooks.Context, c tuplizer.Tuple) error {
			name, err := ctx.Get(c, "name")
			if err != nil {
				return err
			}
			if name == "" {
				failure := hooks.NewValidationFailure("Customer")
				failure.Add("name", "is required")
				return failure
			}
			return nil
		},
	}))
	s := f.session(t)

	tz, c := newCustomer(t, s, "")
	_, err := s.Save(context.Background(), c)
	require.Error(t, err)
	assert.True(t, hooks.IsValidationFailure(err))
	assert.Equal(t, 0, f.store.persists)

	id, err := tz.GetIdentifier(c)
	require.NoError(t, err)
	assert.Nil(t, id)
}

func TestSession_PreDeleteFailureAborts(t *testing.T) {
	f := newFixture(t, customerMetas(association{}, schema.Sequence))
	boom := errors.New("customers with open invoices cannot be deleted")
	require.NoError(t, f.table.Register("Customer", hooks.Funcs{
		PreDelete: func(ctx *hooks.Context, c tuplizer.Tuple) (hooks.Outcome, error) {
			if err := ctx.Set(c, "name", "deleting"); err != nil {
				return hooks.Proceed, err
			}
			return hooks.Proceed, boom
		},
	}))
	f.seed(t, "Customer", storage.Row{"id": int64(1), "name": "Ann"})
	s := f.session(t)
	ctx := context.Background()

	c, err := s.Get(ctx, "Customer", 1)
	require.NoError(t, err)

	status, err := s.Delete(ctx, c)
	require.Error(t, err)
	assert.Equal(t, Completed, status)
	assert.ErrorIs(t, err, boom)
	assert.True(t, hooks.IsHookError(err))
	assert.Equal(t, 0, f.store.deletes)
	assert.Equal(t, 1, f.store.Len(f.meta(t, "Customer")))

	tz, err := s.Tuplizer("Customer")
	require.NoError(t, err)
	name, err := tuplizer.AttributeByName(tz, c, "name")
	require.NoError(t, err)
	assert.Equal(t, "Ann", name, "hook mutation is undone")
	assert.True(t, s.Contains(c))
}

func TestSession_PreDeleteVeto(t *testing.T) {
	f := newFixture(t, customerMetas(association{}, schema.Sequence))
	require.NoError(t, f.table.Register("Customer", hooks.Funcs{
		PreDelete: func(ctx *hooks.Context, c tuplizer.Tuple) (hooks.Outcome, error) {
			return hooks.Veto, nil
		},
	}))
	f.seed(t, "Customer", storage.Row{"id": int64(1), "name": "Ann"})
	s := f.session(t)

	c, err := s.Get(context.Background(), "Customer", 1)
	require.NoError(t, err)

	status, err := s.Delete(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, Vetoed, status)
	assert.Equal(t, 0, f.store.deletes)
}

func TestSession_Delete(t *testing.T) {
	f := newFixture(t, customerMetas(association{}, schema.Sequence))
	f.seed(t, "Customer", storage.Row{"id": int64(1), "name": "Ann"})
	s := f.session(t)
	ctx := context.Background()

	ref, err := s.Reference(ctx, "Customer", 1)
	require.NoError(t, err)

	status, err := s.Delete(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, Completed, status)
	assert.Equal(t, 1, f.store.loads, "a proxy is realized before PreDelete")
	assert.Equal(t, 0, f.store.Len(f.meta(t, "Customer")))
	assert.Equal(t, 0, s.Len())

	_, err = s.Delete(ctx, ref)
	assert.True(t, storage.IsNotFound(err))
}

func TestSession_PreUpdateOnlyOnReattach(t *testing.T) {
	f := newFixture(t, customerMetas(association{}, schema.Sequence))
	preUpdates := 0
	require.NoError(t, f.table.Register("Customer", hooks.Funcs{
		PreUpdate: func(ctx *hooks.Context, c tuplizer.Tuple) (hooks.Outcome, error) {
			preUpdates++
			return hooks.Proceed, nil
		},
	}))
	f.seed(t, "Customer", storage.Row{"id": int64(1), "name": "Ann"})
	ctx := context.Background()

	s := f.session(t)
	c, err := s.Get(ctx, "Customer", 1)
	require.NoError(t, err)
	tz, err := s.Tuplizer("Customer")
	require.NoError(t, err)
	require.NoError(t, tuplizer.SetAttributeByName(tz, c, "name", "Annie"))

	written, err := s.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, written)
	assert.Equal(t, 0, preUpdates, "flushing a managed instance is not an update")

	written, err = s.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, written, "nothing changed since the last flush")

	other := f.session(t)
	detached, err := other.New("Customer")
	require.NoError(t, err)
	require.NoError(t, tz.SetIdentifier(detached, int64(1)))
	require.NoError(t, tuplizer.SetAttributeByName(tz, detached, "name", "Anne"))

	status, err := other.Update(ctx, detached)
	require.NoError(t, err)
	assert.Equal(t, Completed, status)
	assert.Equal(t, 1, preUpdates)
	assert.True(t, other.Contains(detached))

	row, err := f.store.Memory.LoadRow(ctx, f.meta(t, "Customer"), int64(1))
	require.NoError(t, err)
	assert.Equal(t, "Anne", row["name"])
}

func TestSession_UpdateErrors(t *testing.T) {
	f := newFixture(t, customerMetas(association{}, schema.Sequence))
	f.seed(t, "Customer", storage.Row{"id": int64(1), "name": "Ann"})
	s := f.session(t)
	ctx := context.Background()

	_, transient := newCustomer(t, s, "Ann")
	_, err := s.Update(ctx, transient)
	assert.ErrorIs(t, err, ErrTransientInstance)

	_, err = s.Get(ctx, "Customer", 1)
	require.NoError(t, err)

	tz, duplicate := newCustomer(t, s, "Ann")
	require.NoError(t, tz.SetIdentifier(duplicate, int64(1)))
	_, err = s.Update(ctx, duplicate)
	assert.ErrorIs(t, err, ErrNonUniqueInstance)

	require.NoError(t, tz.SetIdentifier(duplicate, int64(2)))
	_, err = s.Update(ctx, duplicate)
	assert.True(t, storage.IsNotFound(err))
}

func TestSession_PreUpdateVeto(t *testing.T) {
	f := newFixture(t, customerMetas(association{}, schema.Sequence))
	require.NoError(t, f.table.Register("Customer", hooks.Funcs{
		PreUpdate: func(ctx *hooks.Context, c tuplizer.Tuple) (hooks.Outcome, error) {
			return hooks.Veto, nil
		},
	}))
	f.seed(t, "Customer", storage.Row{"id": int64(1), "name": "Ann"})
	s := f.session(t)

	tz, c := newCustomer(t, s, "Bob")
	require.NoError(t, tz.SetIdentifier(c, int64(1)))

	status, err := s.Update(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, Vetoed, status)
	assert.Equal(t, 0, f.store.updates)
	assert.False(t, s.Contains(c))
}

func TestSession_PostLoadSeesPopulatedState(t *testing.T) {
	f := newFixture(t, customerMetas(association{}, schema.Sequence))
	var loaded []string
	require.NoError(t, f.table.Register("Customer", hooks.Funcs{
		PostLoad: func(ctx *hooks.Context, c tuplizer.Tuple) error {
			name, err := ctx.Get(c, "name")
			if err != nil {
				return err
			}
			loaded = append(loaded, name.(string))
			return nil
		},
	}))
	f.seed(t, "Customer", storage.Row{"id": int64(1), "name": "Ann"})
	s := f.session(t)

	_, err := s.Get(context.Background(), "Customer", 1)
	require.NoError(t, err)
	_, err = s.Get(context.Background(), "Customer", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ann"}, loaded, "PostLoad runs once per load")
}

func TestSession_PostLoadFailureForgetsInstance(t *testing.T) {
	f := newFixture(t, customerMetas(association{}, schema.Sequence))
	boom := errors.New("corrupt row")
	require.NoError(t, f.table.Register("Customer", hooks.Funcs{
		PostLoad: func(ctx *hooks.Context, c tuplizer.Tuple) error { return boom },
	}))
	f.seed(t, "Customer", storage.Row{"id": int64(1), "name": "Ann"})
	s := f.session(t)

	_, err := s.Get(context.Background(), "Customer", 1)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.Len())
}

func TestSession_ReferenceIsLazy(t *testing.T) {
	f := newFixture(t, customerMetas(association{}, schema.Sequence))
	f.seed(t, "Customer", storage.Row{"id": int64(7), "name": "Ann"})
	s := f.session(t)
	ctx := context.Background()

	ref, err := s.Reference(ctx, "Customer", 7)
	require.NoError(t, err)
	require.IsType(t, &proxy.Handle{}, ref)

	tz, err := s.Tuplizer("Customer")
	require.NoError(t, err)
	id, err := tz.GetIdentifier(ref)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, 0, f.store.loads, "identifier access does not load")
	assert.True(t, s.Contains(ref))

	name, err := tuplizer.AttributeByName(tz, ref, "name")
	require.NoError(t, err)
	assert.Equal(t, "Ann", name)
	assert.Equal(t, 1, f.store.loads)

	got, err := s.Get(ctx, "Customer", 7)
	require.NoError(t, err)
	target, ok := ref.(*proxy.Handle).Target()
	require.True(t, ok)
	assert.True(t, sameInstance(target, got))
	assert.Equal(t, 1, f.store.loads)

	again, err := s.Reference(ctx, "Customer", 7)
	require.NoError(t, err)
	assert.True(t, sameInstance(got, again), "references to loaded rows return the instance")
}

func TestSession_ReferenceRealizesToReattachedInstance(t *testing.T) {
	f := newFixture(t, customerMetas(association{}, schema.Sequence))
	f.seed(t, "Customer", storage.Row{"id": int64(7), "name": "Ann"})
	s := f.session(t)
	ctx := context.Background()

	ref, err := s.Reference(ctx, "Customer", 7)
	require.NoError(t, err)

	tz, err := s.Tuplizer("Customer")
	require.NoError(t, err)
	detached, err := s.New("Customer")
	require.NoError(t, err)
	require.NoError(t, tz.SetIdentifier(detached, int64(7)))
	require.NoError(t, tuplizer.SetAttributeByName(tz, detached, "name", "Anne"))

	status, err := s.Update(ctx, detached)
	require.NoError(t, err)
	assert.Equal(t, Completed, status)
	require.NoError(t, tuplizer.SetAttributeByName(tz, detached, "name", "Local"))

	name, err := tuplizer.AttributeByName(tz, ref, "name")
	require.NoError(t, err)
	assert.Equal(t, "Local", name)
	assert.Equal(t, 0, f.store.loads, "the handle realizes to the managed instance")
	assert.True(t, s.Contains(detached))

	got, err := s.Get(ctx, "Customer", 7)
	require.NoError(t, err)
	assert.True(t, sameInstance(got, detached))
	target, ok := ref.(*proxy.Handle).Target()
	require.True(t, ok)
	assert.True(t, sameInstance(target, detached))
}

func TestSession_ReferenceRealizesToSavedInstance(t *testing.T) {
	f := newFixture(t, customerMetas(association{}, schema.Assigned))
	s := f.session(t)
	ctx := context.Background()

	ref, err := s.Reference(ctx, "Customer", 9)
	require.NoError(t, err)

	tz, c := newCustomer(t, s, "Zed")
	require.NoError(t, tz.SetIdentifier(c, int64(9)))
	status, err := s.Save(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, Completed, status)
	assert.Equal(t, 1, f.store.persists)

	name, err := tuplizer.AttributeByName(tz, ref, "name")
	require.NoError(t, err)
	assert.Equal(t, "Zed", name)
	assert.Equal(t, 0, f.store.loads)

	got, err := s.Get(ctx, "Customer", 9)
	require.NoError(t, err)
	assert.True(t, sameInstance(got, c))
}

func TestSession_LazyAssociation(t *testing.T) {
	f := newFixture(t, customerMetas(association{fetch: schema.FetchLazy}, schema.Sequence))
	f.seed(t, "Organization", storage.Row{"id": int64(5), "title": "Acme"})
	f.seed(t, "Customer", storage.Row{"id": int64(1), "name": "Ann", "organization": int64(5)})
	s := f.session(t)

	c, err := s.Get(context.Background(), "Customer", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.loads)

	custTz, err := s.Tuplizer("Customer")
	require.NoError(t, err)
	org, err := tuplizer.AttributeByName(custTz, c, "organization")
	require.NoError(t, err)
	assert.True(t, proxy.IsUnrealized(org))

	orgTz, err := s.Tuplizer("Organization")
	require.NoError(t, err)
	id, err := orgTz.GetIdentifier(org)
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
	assert.Equal(t, 1, f.store.loads)

	title, err := tuplizer.AttributeByName(orgTz, org, "title")
	require.NoError(t, err)
	assert.Equal(t, "Acme", title)
	assert.Equal(t, 2, f.store.loads)

	written, err := s.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, written, "realizing a proxy is not a change")
}

func TestSession_EagerAssociation(t *testing.T) {
	f := newFixture(t, customerMetas(association{fetch: schema.FetchEager}, schema.Sequence))
	f.seed(t, "Organization", storage.Row{"id": int64(5), "title": "Acme"})
	f.seed(t, "Customer", storage.Row{"id": int64(1), "name": "Ann", "organization": int64(5)})
	s := f.session(t)

	c, err := s.Get(context.Background(), "Customer", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.loads)

	custTz, err := s.Tuplizer("Customer")
	require.NoError(t, err)
	org, err := tuplizer.AttributeByName(custTz, c, "organization")
	require.NoError(t, err)
	assert.IsType(t, &tuplizer.Record{}, org)
	assert.True(t, s.Contains(org))
}

func TestSession_TransientReference(t *testing.T) {
	f := newFixture(t, customerMetas(association{}, schema.Sequence))
	s := f.session(t)

	tz, c := newCustomer(t, s, "Ann")
	org, err := s.New("Organization")
	require.NoError(t, err)
	require.NoError(t, tuplizer.SetAttributeByName(tz, c, "organization", org))

	_, err = s.Save(context.Background(), c)
	assert.ErrorIs(t, err, ErrTransientReference)
	assert.Equal(t, 0, f.store.persists)
}

func TestSession_CascadeSaveAndDelete(t *testing.T) {
	f := newFixture(t, customerMetas(association{cascade: schema.CascadeAll}, schema.Sequence))
	s := f.session(t)
	ctx := context.Background()

	tz, c := newCustomer(t, s, "Ann")
	orgTz, err := s.Tuplizer("Organization")
	require.NoError(t, err)
	org, err := s.New("Organization")
	require.NoError(t, err)
	require.NoError(t, tuplizer.SetAttributeByName(orgTz, org, "title", "Acme"))
	require.NoError(t, tuplizer.SetAttributeByName(tz, c, "organization", org))

	_, err = s.Save(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.persists)
	assert.True(t, s.Contains(org))

	orgID, err := orgTz.GetIdentifier(org)
	require.NoError(t, err)
	row, err := f.store.Memory.LoadRow(ctx, f.meta(t, "Customer"), int64(1))
	require.NoError(t, err)
	assert.Equal(t, orgID, row["organization"], "associations are stored by identifier")

	_, err = s.Delete(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.deletes)
	assert.Equal(t, 0, f.store.Len(f.meta(t, "Organization")))
}

func TestSession_FlushAssociationChange(t *testing.T) {
	f := newFixture(t, customerMetas(association{}, schema.Sequence))
	f.seed(t, "Organization", storage.Row{"id": int64(5), "title": "Acme"})
	f.seed(t, "Organization", storage.Row{"id": int64(6), "title": "Globex"})
	f.seed(t, "Customer", storage.Row{"id": int64(1), "name": "Ann", "organization": int64(5)})
	s := f.session(t)
	ctx := context.Background()

	c, err := s.Get(ctx, "Customer", 1)
	require.NoError(t, err)
	globex, err := s.Reference(ctx, "Organization", 6)
	require.NoError(t, err)

	tz, err := s.Tuplizer("Customer")
	require.NoError(t, err)
	require.NoError(t, tuplizer.SetAttributeByName(tz, c, "organization", globex))

	written, err := s.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, written)
	assert.True(t, proxy.IsUnrealized(globex), "flushing writes the identifier only")

	row, err := f.store.Memory.LoadRow(ctx, f.meta(t, "Customer"), int64(1))
	require.NoError(t, err)
	assert.Equal(t, int64(6), row["organization"])
}

func TestSession_EvictAndClose(t *testing.T) {
	f := newFixture(t, customerMetas(association{}, schema.Sequence))
	f.seed(t, "Customer", storage.Row{"id": int64(1), "name": "Ann"})
	s := f.session(t)
	ctx := context.Background()

	c, err := s.Get(ctx, "Customer", 1)
	require.NoError(t, err)
	s.Evict(c)
	assert.False(t, s.Contains(c))

	tz, err := s.Tuplizer("Customer")
	require.NoError(t, err)
	require.NoError(t, tuplizer.SetAttributeByName(tz, c, "name", "Annie"))
	written, err := s.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, written, "evicted instances are not flushed")

	again, err := s.Get(ctx, "Customer", 1)
	require.NoError(t, err)
	assert.False(t, sameInstance(c, again))

	s.Close()
	assert.Equal(t, 0, s.Len())
	_, err = s.Get(ctx, "Customer", 1)
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.Save(ctx, again)
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.Flush(ctx)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_NotifiesListeners(t *testing.T) {
	f := newFixture(t, customerMetas(association{}, schema.Sequence))
	notifier := hooks.NewNotifier(2, zaptest.NewLogger(t))

	var mu sync.Mutex
	var events []hooks.Event
	notifier.Subscribe(hooks.AllEntities, func(_ context.Context, ev hooks.Event) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
		return nil
	})
	notifier.Start()

	s := f.session(t, WithNotifier(notifier))
	ctx := context.Background()

	tz, c := newCustomer(t, s, "Ann")
	_, err := s.Save(ctx, c)
	require.NoError(t, err)
	require.NoError(t, tuplizer.SetAttributeByName(tz, c, "name", "Annie"))
	_, err = s.Flush(ctx)
	require.NoError(t, err)
	_, err = s.Delete(ctx, c)
	require.NoError(t, err)

	notifier.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 3)

	ops := make([]string, len(events))
	for i, ev := range events {
		ops[i] = string(ev.Operation)
		assert.Equal(t, "Customer", ev.Entity)
		assert.Equal(t, int64(1), ev.ID)
	}
	sort.Strings(ops)
	assert.Equal(t, []string{"deleted", "persisted", "updated"}, ops)
}

func TestSession_DeleteLogsUnconvertibleValues(t *testing.T) {
	f := newFixture(t, customerMetas(association{}, schema.Sequence))
	f.seed(t, "Customer", storage.Row{"id": int64(1), "name": "Ann"})
	core, logs := observer.New(zap.WarnLevel)
	s := f.session(t, WithLogger(zap.New(core)))
	ctx := context.Background()

	c, err := s.Get(ctx, "Customer", 1)
	require.NoError(t, err)
	tz, err := s.Tuplizer("Customer")
	require.NoError(t, err)
	org, err := s.New("Organization")
	require.NoError(t, err)
	require.NoError(t, tuplizer.SetAttributeByName(tz, c, "organization", org))

	status, err := s.Delete(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, Completed, status)
	assert.Equal(t, 1, f.store.deletes)

	warned := logs.FilterMessage("deleted event carries no values").All()
	require.Len(t, warned, 1)
	assert.Contains(t, warned[0].ContextMap()["error"], ErrTransientReference.Error())
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "completed", Completed.String())
	assert.Equal(t, "vetoed", Vetoed.String())
}

func TestSession_Values(t *testing.T) {
	f := newFixture(t, customerMetas(association{}, schema.Sequence))
	f.seed(t, "Organization", storage.Row{"id": int64(5), "title": "Acme"})
	f.seed(t, "Customer", storage.Row{"id": int64(1), "name": "Ann", "organization": int64(5)})
	s := f.session(t)
	ctx := context.Background()

	c, err := s.Get(ctx, "Customer", 1)
	require.NoError(t, err)

	values, err := s.Values(c)
	require.NoError(t, err)
	assert.Equal(t, storage.Row{"id": int64(1), "name": "Ann", "organization": int64(5)}, values)
	assert.Equal(t, 1, f.store.loads, "associations are reported by identifier")

	ref, err := s.Reference(ctx, "Organization", 6)
	require.NoError(t, err)
	_, err = s.Values(ref)
	assert.Error(t, err)
}

package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/tuplizer/internal/orm/schema"
)

func catMeta(strategy schema.IdentifierStrategy) *schema.EntityMetadata {
	return schema.NewEntityMetadata("Cat", schema.DynamicMap,
		&schema.AttributeDescriptor{Name: "name", Type: schema.TypeString},
	).WithIdentifier(&schema.AttributeDescriptor{Name: "id", Type: schema.TypeInt}, strategy)
}

func TestMemory_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	meta := catMeta(schema.Assigned)

	id, err := store.PersistRow(ctx, meta, Row{"id": int64(1), "name": "Felix"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	row, err := store.LoadRow(ctx, meta, 1)
	require.NoError(t, err, "identifier widths do not matter")
	assert.Equal(t, "Felix", row["name"])

	row["name"] = "mutated"
	again, err := store.LoadRow(ctx, meta, int64(1))
	require.NoError(t, err)
	assert.Equal(t, "Felix", again["name"], "loaded rows are copies")

	require.NoError(t, store.UpdateRow(ctx, meta, int64(1), Row{"name": "Tom"}))
	again, err = store.LoadRow(ctx, meta, int64(1))
	require.NoError(t, err)
	assert.Equal(t, Row{"id": int64(1), "name": "Tom"}, again)

	require.NoError(t, store.DeleteRow(ctx, meta, int64(1)))
	_, err = store.LoadRow(ctx, meta, int64(1))
	assert.True(t, IsNotFound(err))

	var notFound *EntityNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "Cat#1", notFound.Key.String())
}

func TestMemory_Errors(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	meta := catMeta(schema.Assigned)

	_, err := store.PersistRow(ctx, meta, Row{"name": "no id"})
	assert.Error(t, err)

	_, err = store.PersistRow(ctx, meta, Row{"id": int64(1)})
	require.NoError(t, err)
	_, err = store.PersistRow(ctx, meta, Row{"id": 1})
	assert.True(t, IsConflict(err))

	assert.True(t, IsNotFound(store.UpdateRow(ctx, meta, int64(9), Row{"name": "x"})))
	assert.True(t, IsNotFound(store.DeleteRow(ctx, meta, int64(9))))

	unkeyed := schema.NewEntityMetadata("Audit", schema.DynamicMap,
		&schema.AttributeDescriptor{Name: "line", Type: schema.TypeString})
	_, err = store.PersistRow(ctx, unkeyed, Row{"line": "x"})
	var unkeyedErr *UnkeyedEntityError
	assert.True(t, errors.As(err, &unkeyedErr))
}

func TestMemory_StoreAssigned(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	meta := catMeta(schema.StoreAssigned)

	first, err := store.PersistRow(ctx, meta, Row{"name": "a"})
	require.NoError(t, err)
	second, err := store.PersistRow(ctx, meta, Row{"name": "b"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
	assert.Equal(t, 2, store.Len(meta))

	ids, err := store.Identifiers(ctx, meta)
	require.NoError(t, err)
	assert.ElementsMatch(t, []interface{}{int64(1), int64(2)}, ids)
}

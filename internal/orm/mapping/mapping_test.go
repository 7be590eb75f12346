package mapping

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/tuplizer/internal/orm/schema"
)

const customers = `
entities:
  - name: Customer
    modes: [typed-object, dynamic-map]
    table: customers
    identifier: {name: id, type: int, strategy: sequence}
    tuplizer:
      dynamic-map: plainmap
    attributes:
      - {name: name, type: string}
      - {name: tier, type: int, default: 1}
      - name: organization
        type: association
        target: Organization
        nullable: true
        cascade: save-update
        fetch: eager
`

const organizations = `
entities:
  - name: Organization
    identifier: {name: id, type: uuid, strategy: uuid}
    attributes:
      - {name: title, type: string, column: org_title}
`

func TestParse(t *testing.T) {
	metas, err := Parse("customers.yaml", []byte(customers))
	require.NoError(t, err)
	require.Len(t, metas, 2)

	typed, dynamic := metas[0], metas[1]
	assert.Equal(t, schema.TypedObject, typed.Mode)
	assert.Equal(t, schema.DynamicMap, dynamic.Mode)
	assert.Equal(t, "", typed.Tuplizer)
	assert.Equal(t, "plainmap", dynamic.Tuplizer)

	assert.Equal(t, "Customer", dynamic.Name)
	assert.Equal(t, "customers", dynamic.TableName())
	assert.Equal(t, schema.Sequence, dynamic.Strategy)
	require.NotNil(t, dynamic.Identifier)
	assert.Equal(t, schema.TypeInt, dynamic.Identifier.Type)

	require.Len(t, dynamic.Attributes, 3)
	assert.Equal(t, int64(1), dynamic.Attributes[1].Default)

	org := dynamic.Attributes[2]
	assert.True(t, org.IsAssociation())
	assert.Equal(t, "Organization", org.Target)
	assert.Equal(t, schema.CascadeSaveUpdate, org.Cascade)
	assert.Equal(t, schema.FetchEager, org.Fetch)
	assert.True(t, org.Nullable)
}

func TestParse_Defaults(t *testing.T) {
	metas, err := Parse("organizations.yaml", []byte(organizations))
	require.NoError(t, err)
	require.Len(t, metas, 1)

	meta := metas[0]
	assert.Equal(t, schema.DynamicMap, meta.Mode)
	assert.Equal(t, schema.StrategyUUID, meta.Strategy)
	assert.Equal(t, "org_title", meta.Attributes[0].ColumnName())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown type", "entities: [{name: A, attributes: [{name: x, type: money}]}]"},
		{"unknown mode", "entities: [{name: A, mode: xml}]"},
		{"unknown cascade", "entities: [{name: A, attributes: [{name: x, type: ref, target: B, cascade: sometimes}]}]"},
		{"unknown strategy", "entities: [{name: A, identifier: {name: id, strategy: guess}}]"},
		{"bad default", "entities: [{name: A, attributes: [{name: x, type: int, default: many}]}]"},
		{"unknown field", "entities: [{name: A, colour: red}]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.yaml", []byte(tt.doc))
			require.Error(t, err)
			var mappingErr *MappingError
			assert.True(t, errors.As(err, &mappingErr))
			assert.Equal(t, "bad.yaml", mappingErr.Source)
		})
	}
}

func TestLoadAndApply(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_customers.yml"), []byte(customers), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_organizations.yaml"), []byte(organizations), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	metas, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, metas, 3)
	assert.Equal(t, "Organization", metas[0].Name, "files load in name order")

	reg := schema.NewRegistry(schema.DynamicMap)
	require.NoError(t, Apply(reg, metas))
	assert.True(t, reg.Exists("Customer"))

	_, err = reg.LookupMode("Customer", schema.TypedObject)
	assert.NoError(t, err)
}

func TestApply_UnresolvedTarget(t *testing.T) {
	metas, err := Parse("customers.yaml", []byte(customers))
	require.NoError(t, err)

	reg := schema.NewRegistry(schema.DynamicMap)
	assert.Error(t, Apply(reg, metas), "Organization is not registered")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	_, err = Load(t.TempDir())
	assert.ErrorIs(t, err, ErrNoMappings)
}

// Package storage defines the storage collaborator the representation core
// brackets with lifecycle hooks, and an in-memory implementation of it.
package storage

import (
	"context"

	"github.com/conduit-lang/tuplizer/internal/orm/schema"
)

// Row holds stored attribute values keyed by attribute name. The identifier
// is stored under the identifier attribute's name and association values are
// the target's identifier.
type Row map[string]interface{}

// Clone returns a copy of the row safe to hand to another owner
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		if b, ok := v.([]byte); ok {
			v = append([]byte(nil), b...)
		}
		out[k] = v
	}
	return out
}

// Store is the storage collaborator
type Store interface {
	// LoadRow returns the row for id, or an error matching ErrNotFound
	LoadRow(ctx context.Context, meta *schema.EntityMetadata, id interface{}) (Row, error)

	// PersistRow inserts a new row and returns its identifier, which the
	// store produces itself for StoreAssigned entities
	PersistRow(ctx context.Context, meta *schema.EntityMetadata, row Row) (interface{}, error)

	// UpdateRow writes the given attributes of an existing row
	UpdateRow(ctx context.Context, meta *schema.EntityMetadata, id interface{}, row Row) error

	// DeleteRow removes an existing row
	DeleteRow(ctx context.Context, meta *schema.EntityMetadata, id interface{}) error
}

// SequenceSource is implemented by stores that can issue Sequence identifiers
// shared between processes
type SequenceSource interface {
	NextSequence(ctx context.Context, meta *schema.EntityMetadata) (int64, error)
}

// Scanner is implemented by stores that can enumerate stored identifiers
type Scanner interface {
	Identifiers(ctx context.Context, meta *schema.EntityMetadata) ([]interface{}, error)
}

// IdentifierName returns the row key holding the identifier of meta
func IdentifierName(meta *schema.EntityMetadata) (string, error) {
	if meta.Identifier == nil {
		return "", &UnkeyedEntityError{Entity: meta.Name}
	}
	return meta.Identifier.Name, nil
}

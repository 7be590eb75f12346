package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/conduit-lang/tuplizer/internal/orm/identity"
	"github.com/conduit-lang/tuplizer/internal/orm/schema"
)

// Memory is a Store keeping rows in process memory
type Memory struct {
	mu     sync.RWMutex
	tables map[string]*identity.Map
	seq    map[string]int64
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		tables: make(map[string]*identity.Map),
		seq:    make(map[string]int64),
	}
}

func (m *Memory) table(meta *schema.EntityMetadata) *identity.Map {
	t, ok := m.tables[meta.TableName()]
	if !ok {
		t = identity.NewMap()
		m.tables[meta.TableName()] = t
	}
	return t
}

func (m *Memory) LoadRow(_ context.Context, meta *schema.EntityMetadata, id interface{}) (Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tables[meta.TableName()]
	if !ok {
		return nil, NotFound(meta.Name, id)
	}
	row, ok := t.Get(identity.EntityKey{Entity: meta.Name, ID: id})
	if !ok {
		return nil, NotFound(meta.Name, id)
	}
	return row.(Row).Clone(), nil
}

func (m *Memory) PersistRow(_ context.Context, meta *schema.EntityMetadata, row Row) (interface{}, error) {
	idName, err := IdentifierName(meta)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := row.Clone()
	id := stored[idName]
	if meta.Strategy == schema.StoreAssigned {
		m.seq[meta.Name]++
		id = m.seq[meta.Name]
		stored[idName] = id
	}
	if identity.IsUnset(id) {
		return nil, fmt.Errorf("persist %s: %w", meta.Name, identity.ErrUnsetIdentifier)
	}

	if _, added := m.table(meta).Add(identity.EntityKey{Entity: meta.Name, ID: id}, stored); !added {
		return nil, fmt.Errorf("persist %s: %w", identity.EntityKey{Entity: meta.Name, ID: id}, ErrConflict)
	}
	return id, nil
}

func (m *Memory) UpdateRow(_ context.Context, meta *schema.EntityMetadata, id interface{}, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := identity.EntityKey{Entity: meta.Name, ID: id}
	existing, ok := m.table(meta).Get(key)
	if !ok {
		return NotFound(meta.Name, id)
	}

	merged := existing.(Row).Clone()
	for k, v := range row.Clone() {
		merged[k] = v
	}
	m.table(meta).Replace(key, merged)
	return nil
}

func (m *Memory) DeleteRow(_ context.Context, meta *schema.EntityMetadata, id interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.table(meta).Remove(identity.EntityKey{Entity: meta.Name, ID: id}) {
		return NotFound(meta.Name, id)
	}
	return nil
}

func (m *Memory) NextSequence(_ context.Context, meta *schema.EntityMetadata) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq[meta.Name]++
	return m.seq[meta.Name], nil
}

func (m *Memory) Identifiers(_ context.Context, meta *schema.EntityMetadata) ([]interface{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tables[meta.TableName()]
	if !ok {
		return nil, nil
	}
	keys := t.Keys()
	ids := make([]interface{}, len(keys))
	for i, k := range keys {
		ids[i] = k.ID
	}
	return ids, nil
}

// Len returns the number of rows stored for an entity
func (m *Memory) Len(meta *schema.EntityMetadata) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if t, ok := m.tables[meta.TableName()]; ok {
		return t.Len()
	}
	return 0
}

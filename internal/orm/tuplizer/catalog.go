package tuplizer

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/conduit-lang/tuplizer/internal/orm/schema"
)

type bindingKey struct {
	entity string
	mode   schema.RepresentationMode
}

// Catalog binds registered entities to their Tuplizers. Each (entity-name, mode)
// pair is bound once, on first use, and the result is shared by every caller.
type Catalog struct {
	registry *schema.Registry
	types    map[string]*TypeBinding
	local    map[string]Factory

	bound sync.Map // bindingKey -> Tuplizer
	bindM sync.Mutex
}

// CatalogOption configures a Catalog
type CatalogOption func(*Catalog)

// WithTypeBinding registers the Go type backing a TypedObject entity
func WithTypeBinding(entity string, b *TypeBinding) CatalogOption {
	return func(c *Catalog) {
		c.types[entity] = b
	}
}

// WithFactory registers a factory visible only to this catalog
func WithFactory(name string, f Factory) CatalogOption {
	return func(c *Catalog) {
		c.local[name] = f
	}
}

// NewCatalog creates a catalog over a registry
func NewCatalog(reg *schema.Registry, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		registry: reg,
		types:    make(map[string]*TypeBinding),
		local:    make(map[string]Factory),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the registry the catalog binds from
func (c *Catalog) Registry() *schema.Registry {
	return c.registry
}

// Tuplizer returns the tuplizer for an entity-name in a representation mode
func (c *Catalog) Tuplizer(entity string, mode schema.RepresentationMode) (Tuplizer, error) {
	key := bindingKey{entity: entity, mode: mode}
	if tz, ok := c.bound.Load(key); ok {
		return tz.(Tuplizer), nil
	}

	meta, err := c.registry.LookupMode(entity, mode)
	if err != nil {
		return nil, err
	}
	return c.bind(key, meta)
}

// For returns the tuplizer for registered metadata
func (c *Catalog) For(meta *schema.EntityMetadata) (Tuplizer, error) {
	return c.Tuplizer(meta.Name, meta.Mode)
}

// Lookup returns the tuplizer for an entity-name in the registry's preferred mode
func (c *Catalog) Lookup(entity string) (Tuplizer, error) {
	meta, err := c.registry.Lookup(entity)
	if err != nil {
		return nil, err
	}
	return c.For(meta)
}

// BindAll binds every registered entity, reporting the first configuration error
func (c *Catalog) BindAll() error {
	for _, meta := range c.registry.All() {
		if _, err := c.For(meta); err != nil {
			return err
		}
	}
	return nil
}

// Resolve finds the tuplizer for a runtime value by inspecting its representation
func (c *Catalog) Resolve(v interface{}, mode schema.RepresentationMode) (Tuplizer, error) {
	switch val := v.(type) {
	case Deferred:
		return c.Tuplizer(val.EntityName(), mode)
	case *Record:
		return c.Tuplizer(val.Entity(), mode)
	case map[string]interface{}:
		if name, ok := val[PlainMapEntityKey].(string); ok {
			return c.Tuplizer(name, mode)
		}
	default:
		if v != nil {
			t := reflect.TypeOf(v)
			for entity, b := range c.types {
				if b.Type == t {
					return c.Tuplizer(entity, mode)
				}
			}
		}
	}
	return nil, fmt.Errorf("%w: cannot determine entity of %T", ErrRepresentationMismatch, v)
}

func (c *Catalog) bind(key bindingKey, meta *schema.EntityMetadata) (Tuplizer, error) {
	c.bindM.Lock()
	defer c.bindM.Unlock()

	if tz, ok := c.bound.Load(key); ok {
		return tz.(Tuplizer), nil
	}

	name := meta.Tuplizer
	if name == "" {
		name = defaultFactory(meta.Mode)
	}
	factory, ok := c.local[name]
	if !ok {
		factory, ok = LookupFactory(name)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w: %s", meta.Name, ErrUnknownFactory, name)
	}

	inner, err := factory(meta, c.types[meta.Name])
	if err != nil {
		return nil, fmt.Errorf("bind tuplizer for %s: %w", meta.Name, err)
	}
	if inner == nil {
		return nil, fmt.Errorf("bind tuplizer for %s: factory %s returned nil", meta.Name, name)
	}

	tz := guard(inner, c.Tuplizer)
	c.bound.Store(key, tz)
	return tz, nil
}

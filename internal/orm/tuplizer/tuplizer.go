// Package tuplizer maps between stored attribute values and in-memory entity
// instances. A Tuplizer hides the representation mode of an entity: callers
// create instances and read or write attributes by ordinal without knowing
// whether the instance is a typed Go value or a dynamic attribute map.
package tuplizer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/conduit-lang/tuplizer/internal/orm/schema"
)

// Tuple is a runtime entity instance in whichever representation the Tuplizer uses
type Tuple = interface{}

// Tuplizer is the polymorphic contract over entity representations
type Tuplizer interface {
	// Metadata returns the entity metadata the tuplizer was bound to
	Metadata() *schema.EntityMetadata

	CreateInstance() (Tuple, error)

	GetIdentifier(t Tuple) (interface{}, error)
	SetIdentifier(t Tuple, id interface{}) error

	// GetAttribute and SetAttribute address attributes by declaration ordinal
	GetAttribute(t Tuple, ordinal int) (interface{}, error)
	SetAttribute(t Tuple, ordinal int, value interface{}) error

	// IsInstance reports whether v is a legitimate instance for this tuplizer
	IsInstance(v interface{}) bool
}

// Deferred is implemented by stand-ins for entities whose state is not yet loaded.
// Tuplizers bound through a Catalog resolve Deferred values before any attribute
// operation other than identifier read.
type Deferred interface {
	EntityName() string
	Identifier() interface{}
	Realized() bool
	Realize() (Tuple, error)
}

// Factory builds a Tuplizer for an entity. binding is nil for entities without a
// typed binding.
type Factory func(meta *schema.EntityMetadata, binding *TypeBinding) (Tuplizer, error)

const (
	FactoryTyped    = "typed"
	FactoryDynamic  = "dynamic"
	FactoryPlainMap = "plainmap"
)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{
		FactoryTyped:    NewTyped,
		FactoryDynamic:  func(meta *schema.EntityMetadata, _ *TypeBinding) (Tuplizer, error) { return NewDynamic(meta), nil },
		FactoryPlainMap: func(meta *schema.EntityMetadata, _ *TypeBinding) (Tuplizer, error) { return NewPlainMap(meta), nil },
	}
)

// RegisterFactory makes a tuplizer factory available under name for metadata overrides
func RegisterFactory(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("tuplizer factory needs a name and a function")
	}

	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if _, exists := factories[name]; exists {
		return fmt.Errorf("tuplizer factory %s is already registered", name)
	}
	factories[name] = f
	return nil
}

// LookupFactory returns the factory registered under name
func LookupFactory(name string) (Factory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// Factories returns the sorted names of all registered factories
func Factories() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// defaultFactory returns the factory name used when metadata has no override
func defaultFactory(mode schema.RepresentationMode) string {
	if mode == schema.TypedObject {
		return FactoryTyped
	}
	return FactoryDynamic
}

// AttributeByName reads an attribute through a tuplizer by attribute name
func AttributeByName(tz Tuplizer, t Tuple, name string) (interface{}, error) {
	meta := tz.Metadata()
	ord, ok := meta.Ordinal(name)
	if !ok {
		return nil, fmt.Errorf("%s has no attribute %s", meta.Name, name)
	}
	return tz.GetAttribute(t, ord)
}

// SetAttributeByName writes an attribute through a tuplizer by attribute name
func SetAttributeByName(tz Tuplizer, t Tuple, name string, value interface{}) error {
	meta := tz.Metadata()
	ord, ok := meta.Ordinal(name)
	if !ok {
		return fmt.Errorf("%s has no attribute %s", meta.Name, name)
	}
	return tz.SetAttribute(t, ord, value)
}

package tuplizer

import (
	"fmt"

	"github.com/conduit-lang/tuplizer/internal/orm/schema"
)

// targetLookup resolves the tuplizer of an association target
type targetLookup func(entity string, mode schema.RepresentationMode) (Tuplizer, error)

// guarded wraps a Tuplizer with the checks every representation shares:
// Deferred instances are realized before any operation other than identifier
// read, ordinals and identifier presence are checked up front, and association
// values must be instances of their target entity.
type guarded struct {
	inner   Tuplizer
	meta    *schema.EntityMetadata
	targets targetLookup
}

func guard(inner Tuplizer, targets targetLookup) Tuplizer {
	if g, ok := inner.(*guarded); ok {
		return g
	}
	return &guarded{inner: inner, meta: inner.Metadata(), targets: targets}
}

// Unguarded returns the representation-specific tuplizer behind a Catalog tuplizer
func Unguarded(tz Tuplizer) Tuplizer {
	if g, ok := tz.(*guarded); ok {
		return g.inner
	}
	return tz
}

func (g *guarded) Metadata() *schema.EntityMetadata {
	return g.meta
}

func (g *guarded) CreateInstance() (Tuple, error) {
	return g.inner.CreateInstance()
}

// GetIdentifier never realizes a Deferred instance
func (g *guarded) GetIdentifier(t Tuple) (interface{}, error) {
	if !g.meta.HasIdentifier() {
		return nil, noIdentifier(g.meta)
	}
	if d, ok := t.(Deferred); ok {
		if err := g.checkDeferred(d); err != nil {
			return nil, err
		}
		if !d.Realized() {
			return d.Identifier(), nil
		}
	}
	target, err := g.resolve(t)
	if err != nil {
		return nil, err
	}
	return g.inner.GetIdentifier(target)
}

func (g *guarded) SetIdentifier(t Tuple, id interface{}) error {
	if !g.meta.HasIdentifier() {
		return noIdentifier(g.meta)
	}
	target, err := g.resolve(t)
	if err != nil {
		return err
	}
	return g.inner.SetIdentifier(target, id)
}

func (g *guarded) GetAttribute(t Tuple, ordinal int) (interface{}, error) {
	if _, ok := g.meta.Attribute(ordinal); !ok {
		return nil, outOfRange(g.meta, ordinal)
	}
	target, err := g.resolve(t)
	if err != nil {
		return nil, err
	}
	return g.inner.GetAttribute(target, ordinal)
}

func (g *guarded) SetAttribute(t Tuple, ordinal int, value interface{}) error {
	attr, ok := g.meta.Attribute(ordinal)
	if !ok {
		return outOfRange(g.meta, ordinal)
	}
	if attr.IsAssociation() && value != nil {
		if err := g.checkAssociation(attr, value); err != nil {
			return err
		}
	}
	target, err := g.resolve(t)
	if err != nil {
		return err
	}
	return g.inner.SetAttribute(target, ordinal, value)
}

// IsInstance accepts Deferred stand-ins for the same entity-name
func (g *guarded) IsInstance(v interface{}) bool {
	if d, ok := v.(Deferred); ok {
		return d.EntityName() == g.meta.Name
	}
	return g.inner.IsInstance(v)
}

// resolve returns the instance attribute operations act on, realizing a
// Deferred stand-in first
func (g *guarded) resolve(t Tuple) (Tuple, error) {
	d, ok := t.(Deferred)
	if !ok {
		if !g.inner.IsInstance(t) {
			return nil, &MismatchError{Entity: g.meta.Name, Mode: g.meta.Mode, Got: t}
		}
		return t, nil
	}

	if err := g.checkDeferred(d); err != nil {
		return nil, err
	}
	loaded, err := d.Realize()
	if err != nil {
		return nil, err
	}
	if !g.inner.IsInstance(loaded) {
		return nil, &MismatchError{Entity: g.meta.Name, Mode: g.meta.Mode, Got: loaded}
	}
	return loaded, nil
}

func (g *guarded) checkDeferred(d Deferred) error {
	if d.EntityName() != g.meta.Name {
		return &MismatchError{Entity: g.meta.Name, Mode: g.meta.Mode, Got: d}
	}
	return nil
}

func (g *guarded) checkAssociation(attr *schema.AttributeDescriptor, value interface{}) error {
	if g.targets == nil {
		return nil
	}
	target, err := g.targets(attr.Target, g.meta.Mode)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", g.meta.Name, attr.Name, err)
	}
	if !target.IsInstance(value) {
		return fmt.Errorf("%s.%s: %w", g.meta.Name, attr.Name,
			&MismatchError{Entity: attr.Target, Mode: g.meta.Mode, Got: value})
	}
	return nil
}

package hooks

import (
	"context"

	"github.com/conduit-lang/tuplizer/internal/orm/schema"
	"github.com/conduit-lang/tuplizer/internal/orm/tuplizer"
)

// Context is handed to every hook. It gives access to the instance's
// attributes through its tuplizer and deliberately carries no reference to
// the session or store.
type Context struct {
	context.Context
	tz    tuplizer.Tuplizer
	point Point
}

// NewContext creates a hook context
func NewContext(ctx context.Context, tz tuplizer.Tuplizer, point Point) *Context {
	return &Context{Context: ctx, tz: tz, point: point}
}

// Metadata returns the metadata of the entity the hook runs for
func (c *Context) Metadata() *schema.EntityMetadata {
	return c.tz.Metadata()
}

// Entity returns the entity-name
func (c *Context) Entity() string {
	return c.tz.Metadata().Name
}

// Point returns the hook point being dispatched
func (c *Context) Point() Point {
	return c.point
}

// Tuplizer returns the tuplizer of the entity
func (c *Context) Tuplizer() tuplizer.Tuplizer {
	return c.tz
}

// Get reads an attribute by name
func (c *Context) Get(t tuplizer.Tuple, name string) (interface{}, error) {
	return tuplizer.AttributeByName(c.tz, t, name)
}

// Set writes an attribute by name
func (c *Context) Set(t tuplizer.Tuple, name string, value interface{}) error {
	return tuplizer.SetAttributeByName(c.tz, t, name, value)
}

// Identifier reads the instance identifier
func (c *Context) Identifier(t tuplizer.Tuple) (interface{}, error) {
	return c.tz.GetIdentifier(t)
}

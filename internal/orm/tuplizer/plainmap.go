package tuplizer

import (
	"github.com/conduit-lang/tuplizer/internal/orm/schema"
)

// PlainMapEntityKey is the map key under which plain-map instances carry their entity-name
const PlainMapEntityKey = "$entity"

// plainMapTuplizer is an alternate dynamic representation backed by a bare
// map[string]interface{}, for callers that exchange records as generic maps
type plainMapTuplizer struct {
	meta *schema.EntityMetadata
}

// NewPlainMap creates a tuplizer whose instances are map[string]interface{}
// values tagged with PlainMapEntityKey
func NewPlainMap(meta *schema.EntityMetadata) Tuplizer {
	return &plainMapTuplizer{meta: meta}
}

func (p *plainMapTuplizer) Metadata() *schema.EntityMetadata {
	return p.meta
}

func (p *plainMapTuplizer) CreateInstance() (Tuple, error) {
	return map[string]interface{}{PlainMapEntityKey: p.meta.Name}, nil
}

func (p *plainMapTuplizer) GetIdentifier(t Tuple) (interface{}, error) {
	if p.meta.Identifier == nil {
		return nil, noIdentifier(p.meta)
	}
	m, err := p.asMap(t)
	if err != nil {
		return nil, err
	}
	return m[p.meta.Identifier.Name], nil
}

func (p *plainMapTuplizer) SetIdentifier(t Tuple, id interface{}) error {
	if p.meta.Identifier == nil {
		return noIdentifier(p.meta)
	}
	m, err := p.asMap(t)
	if err != nil {
		return err
	}
	m[p.meta.Identifier.Name] = id
	return nil
}

func (p *plainMapTuplizer) GetAttribute(t Tuple, ordinal int) (interface{}, error) {
	attr, ok := p.meta.Attribute(ordinal)
	if !ok {
		return nil, outOfRange(p.meta, ordinal)
	}
	m, err := p.asMap(t)
	if err != nil {
		return nil, err
	}
	if v, ok := m[attr.Name]; ok {
		return v, nil
	}
	return attr.DefaultValue(), nil
}

func (p *plainMapTuplizer) SetAttribute(t Tuple, ordinal int, value interface{}) error {
	attr, ok := p.meta.Attribute(ordinal)
	if !ok {
		return outOfRange(p.meta, ordinal)
	}
	m, err := p.asMap(t)
	if err != nil {
		return err
	}
	m[attr.Name] = value
	return nil
}

func (p *plainMapTuplizer) IsInstance(v interface{}) bool {
	m, ok := v.(map[string]interface{})
	if !ok || m == nil {
		return false
	}
	name, _ := m[PlainMapEntityKey].(string)
	return name == p.meta.Name
}

func (p *plainMapTuplizer) asMap(t Tuple) (map[string]interface{}, error) {
	if !p.IsInstance(t) {
		return nil, &MismatchError{Entity: p.meta.Name, Mode: p.meta.Mode, Got: t}
	}
	return t.(map[string]interface{}), nil
}

package tuplizer

import (
	"github.com/conduit-lang/tuplizer/internal/orm/schema"
)

// dynamicTuplizer represents entities as *Record values
type dynamicTuplizer struct {
	meta         *schema.EntityMetadata
	instantiator Instantiator
	getters      []func(*Record) interface{}
	setters      []func(*Record, interface{})
}

// NewDynamic creates the DynamicMap tuplizer for an entity. Accessors are
// resolved here, once per attribute.
func NewDynamic(meta *schema.EntityMetadata) Tuplizer {
	tz := &dynamicTuplizer{
		meta:         meta,
		instantiator: recordInstantiator{entity: meta.Name},
		getters:      make([]func(*Record) interface{}, len(meta.Attributes)),
		setters:      make([]func(*Record, interface{}), len(meta.Attributes)),
	}

	for i, attr := range meta.Attributes {
		key := attr.Name
		def := attr.DefaultValue()
		tz.getters[i] = func(r *Record) interface{} {
			if v, ok := r.values[key]; ok {
				return v
			}
			return def
		}
		tz.setters[i] = func(r *Record, v interface{}) {
			r.Set(key, v)
		}
	}

	return tz
}

func (d *dynamicTuplizer) Metadata() *schema.EntityMetadata {
	return d.meta
}

func (d *dynamicTuplizer) CreateInstance() (Tuple, error) {
	return d.instantiator.Instantiate()
}

func (d *dynamicTuplizer) GetIdentifier(t Tuple) (interface{}, error) {
	if d.meta.Identifier == nil {
		return nil, noIdentifier(d.meta)
	}
	rec, err := d.record(t)
	if err != nil {
		return nil, err
	}
	// A missing identifier is null: the instance is transient
	v, _ := rec.Get(d.meta.Identifier.Name)
	return v, nil
}

func (d *dynamicTuplizer) SetIdentifier(t Tuple, id interface{}) error {
	if d.meta.Identifier == nil {
		return noIdentifier(d.meta)
	}
	rec, err := d.record(t)
	if err != nil {
		return err
	}
	rec.Set(d.meta.Identifier.Name, id)
	return nil
}

func (d *dynamicTuplizer) GetAttribute(t Tuple, ordinal int) (interface{}, error) {
	if ordinal < 0 || ordinal >= len(d.getters) {
		return nil, outOfRange(d.meta, ordinal)
	}
	rec, err := d.record(t)
	if err != nil {
		return nil, err
	}
	return d.getters[ordinal](rec), nil
}

func (d *dynamicTuplizer) SetAttribute(t Tuple, ordinal int, value interface{}) error {
	if ordinal < 0 || ordinal >= len(d.setters) {
		return outOfRange(d.meta, ordinal)
	}
	rec, err := d.record(t)
	if err != nil {
		return err
	}
	d.setters[ordinal](rec, value)
	return nil
}

func (d *dynamicTuplizer) IsInstance(v interface{}) bool {
	return d.instantiator.IsInstance(v)
}

func (d *dynamicTuplizer) record(t Tuple) (*Record, error) {
	if !d.instantiator.IsInstance(t) {
		return nil, &MismatchError{Entity: d.meta.Name, Mode: schema.DynamicMap, Got: t}
	}
	return t.(*Record), nil
}

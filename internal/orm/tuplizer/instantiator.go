package tuplizer

import (
	"fmt"
	"reflect"

	"github.com/conduit-lang/tuplizer/internal/orm/schema"
)

// Instantiator produces new, empty instances for one entity
type Instantiator interface {
	Instantiate() (Tuple, error)
	IsInstance(v interface{}) bool
}

// recordInstantiator creates empty Records
type recordInstantiator struct {
	entity string
}

func (i recordInstantiator) Instantiate() (Tuple, error) {
	return NewRecord(i.entity), nil
}

func (i recordInstantiator) IsInstance(v interface{}) bool {
	rec, ok := v.(*Record)
	return ok && rec != nil && rec.entity == i.entity
}

// typedInstantiator creates values through a binding's constructor
type typedInstantiator struct {
	meta    *schema.EntityMetadata
	binding *TypeBinding
}

func (i typedInstantiator) Instantiate() (Tuple, error) {
	if i.binding == nil || i.binding.New == nil {
		return nil, fmt.Errorf("%s: %w: no constructor bound", i.meta.Name, ErrNotInstantiable)
	}

	t := i.binding.New()
	if t == nil {
		return nil, fmt.Errorf("%s: %w: constructor returned nil", i.meta.Name, ErrNotInstantiable)
	}
	if !i.IsInstance(t) {
		return nil, fmt.Errorf("%s: %w: constructor returned %T, want %s", i.meta.Name, ErrNotInstantiable, t, i.binding.Type)
	}
	return t, nil
}

func (i typedInstantiator) IsInstance(v interface{}) bool {
	if i.binding == nil || i.binding.Type == nil || v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	if rv.Type() != i.binding.Type {
		return false
	}
	return rv.Kind() != reflect.Ptr || !rv.IsNil()
}

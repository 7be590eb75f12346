package tuplizer

import (
	"fmt"
	"reflect"
	"strings"
	"unsafe"

	"github.com/conduit-lang/tuplizer/internal/orm/schema"
)

// TypeBinding ties an entity to a concrete Go type: how to construct it and how
// to reach each attribute, including the identifier. Bindings are registered
// explicitly when metadata is loaded, so no introspection happens per call.
type TypeBinding struct {
	// Type is the dynamic type of instances, usually a pointer to a struct
	Type reflect.Type
	// New returns a fresh, independent instance of Type
	New func() interface{}
	// Accessors maps attribute names to their get/set pair
	Accessors map[string]Accessor
}

// accessor finds the accessor for an attribute name, falling back to a
// case-insensitive match so Go field names like Birthdate bind to "birthdate"
func (b *TypeBinding) accessor(name string) (Accessor, bool) {
	if a, ok := b.Accessors[name]; ok {
		return a, true
	}
	for key, a := range b.Accessors {
		if strings.EqualFold(key, name) {
			return a, true
		}
	}
	return Accessor{}, false
}

// BindStruct derives a binding for *T by resolving struct fields once. A field
// binds under its `orm:"name"` tag or its Go name; `orm:"-"` skips it.
// Unexported fields are bound too.
func BindStruct[T any]() (*TypeBinding, error) {
	st := reflect.TypeOf((*T)(nil)).Elem()
	if st.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrNotInstantiable, st)
	}

	b := &TypeBinding{
		Type:      reflect.PointerTo(st),
		New:       func() interface{} { return new(T) },
		Accessors: make(map[string]Accessor, st.NumField()),
	}

	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if f.Anonymous {
			continue
		}

		name := f.Name
		if tag, ok := f.Tag.Lookup("orm"); ok {
			tag = strings.Split(tag, ",")[0]
			if tag == "-" {
				continue
			}
			if tag != "" {
				name = tag
			}
		}
		b.Accessors[name] = structFieldAccessor(i, f.Type)
	}

	return b, nil
}

// MustBindStruct is BindStruct that panics on error
func MustBindStruct[T any]() *TypeBinding {
	b, err := BindStruct[T]()
	if err != nil {
		panic(err)
	}
	return b
}

func structFieldAccessor(index int, ft reflect.Type) Accessor {
	return Accessor{
		Get: func(t Tuple) interface{} {
			fv := settableField(t, index)
			if ft.Kind() == reflect.Ptr && ft.Elem().Kind() != reflect.Struct {
				if fv.IsNil() {
					return nil
				}
				return fv.Elem().Interface()
			}
			return fv.Interface()
		},
		Set: func(t Tuple, value interface{}) error {
			fv := settableField(t, index)
			if value == nil {
				fv.Set(reflect.Zero(ft))
				return nil
			}
			rv, err := convertValue(reflect.ValueOf(value), ft)
			if err != nil {
				return err
			}
			fv.Set(rv)
			return nil
		},
	}
}

// settableField returns the struct field of the pointed-to value, made settable
// even when the field is unexported
func settableField(t Tuple, index int) reflect.Value {
	fv := reflect.ValueOf(t).Elem().Field(index)
	if !fv.CanSet() {
		fv = reflect.NewAt(fv.Type(), unsafe.Pointer(fv.UnsafeAddr())).Elem()
	}
	return fv
}

// typedTuplizer represents entities as values of a bound Go type
type typedTuplizer struct {
	meta         *schema.EntityMetadata
	instantiator typedInstantiator
	accessors    []Accessor
	id           *Accessor
}

// NewTyped creates the TypedObject tuplizer for an entity. Accessors are
// resolved here for every declared attribute; a missing constructor is only
// reported when the first instance is created.
func NewTyped(meta *schema.EntityMetadata, binding *TypeBinding) (Tuplizer, error) {
	tz := &typedTuplizer{
		meta:         meta,
		instantiator: typedInstantiator{meta: meta, binding: binding},
		accessors:    make([]Accessor, len(meta.Attributes)),
	}

	if binding == nil {
		return nil, fmt.Errorf("%s: %w: no type binding registered", meta.Name, ErrNotInstantiable)
	}

	var missing []string
	for i, attr := range meta.Attributes {
		a, ok := binding.accessor(attr.Name)
		if !ok || a.Get == nil || a.Set == nil {
			missing = append(missing, attr.Name)
			continue
		}
		tz.accessors[i] = a
	}
	if meta.Identifier != nil {
		a, ok := binding.accessor(meta.Identifier.Name)
		if !ok || a.Get == nil || a.Set == nil {
			missing = append(missing, meta.Identifier.Name)
		} else {
			tz.id = &a
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s: %w: %s", meta.Name, ErrMissingAccessor, strings.Join(missing, ", "))
	}

	return tz, nil
}

func (tt *typedTuplizer) Metadata() *schema.EntityMetadata {
	return tt.meta
}

func (tt *typedTuplizer) CreateInstance() (Tuple, error) {
	return tt.instantiator.Instantiate()
}

func (tt *typedTuplizer) GetIdentifier(t Tuple) (interface{}, error) {
	if tt.id == nil {
		return nil, noIdentifier(tt.meta)
	}
	if err := tt.check(t); err != nil {
		return nil, err
	}
	return tt.id.Get(t), nil
}

func (tt *typedTuplizer) SetIdentifier(t Tuple, id interface{}) error {
	if tt.id == nil {
		return noIdentifier(tt.meta)
	}
	if err := tt.check(t); err != nil {
		return err
	}
	if err := tt.id.Set(t, id); err != nil {
		return fmt.Errorf("%s.%s: %w", tt.meta.Name, tt.meta.Identifier.Name, err)
	}
	return nil
}

func (tt *typedTuplizer) GetAttribute(t Tuple, ordinal int) (interface{}, error) {
	if ordinal < 0 || ordinal >= len(tt.accessors) {
		return nil, outOfRange(tt.meta, ordinal)
	}
	if err := tt.check(t); err != nil {
		return nil, err
	}
	return tt.accessors[ordinal].Get(t), nil
}

func (tt *typedTuplizer) SetAttribute(t Tuple, ordinal int, value interface{}) error {
	if ordinal < 0 || ordinal >= len(tt.accessors) {
		return outOfRange(tt.meta, ordinal)
	}
	if err := tt.check(t); err != nil {
		return err
	}
	if err := tt.accessors[ordinal].Set(t, value); err != nil {
		return fmt.Errorf("%s.%s: %w", tt.meta.Name, tt.meta.Attributes[ordinal].Name, err)
	}
	return nil
}

func (tt *typedTuplizer) IsInstance(v interface{}) bool {
	return tt.instantiator.IsInstance(v)
}

func (tt *typedTuplizer) check(t Tuple) error {
	if !tt.instantiator.IsInstance(t) {
		return &MismatchError{Entity: tt.meta.Name, Mode: schema.TypedObject, Got: t}
	}
	return nil
}

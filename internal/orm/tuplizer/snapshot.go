package tuplizer

import (
	"reflect"
	"time"

	"github.com/conduit-lang/tuplizer/internal/orm/schema"
)

// Snapshot is a deep copy of an instance's identifier and attribute values,
// taken through a Tuplizer so it works for every representation. Association
// values are kept by reference so the copy never duplicates another entity.
type Snapshot struct {
	ID     interface{}
	HasID  bool
	Values []interface{}
}

// TakeSnapshot copies the current state of t
func TakeSnapshot(tz Tuplizer, t Tuple) (*Snapshot, error) {
	meta := tz.Metadata()
	s := &Snapshot{Values: make([]interface{}, len(meta.Attributes))}

	if meta.HasIdentifier() {
		id, err := tz.GetIdentifier(t)
		if err != nil {
			return nil, err
		}
		s.ID = CopyValue(id)
		s.HasID = true
	}

	for i := range meta.Attributes {
		v, err := tz.GetAttribute(t, i)
		if err != nil {
			return nil, err
		}
		s.Values[i] = snapshotValue(meta.Attributes[i], v)
	}
	return s, nil
}

// Restore writes the snapshot back into t
func (s *Snapshot) Restore(tz Tuplizer, t Tuple) error {
	meta := tz.Metadata()
	if s.HasID {
		if err := tz.SetIdentifier(t, CopyValue(s.ID)); err != nil {
			return err
		}
	}
	for i, v := range s.Values {
		if err := tz.SetAttribute(t, i, snapshotValue(meta.Attributes[i], v)); err != nil {
			return err
		}
	}
	return nil
}

// Changed returns the ordinals whose values differ between s and other
func (s *Snapshot) Changed(other *Snapshot) []int {
	var out []int
	for i := range s.Values {
		if i >= len(other.Values) || !ValuesEqual(s.Values[i], other.Values[i]) {
			out = append(out, i)
		}
	}
	return out
}

// Equal reports whether both snapshots hold the same identifier and values
func (s *Snapshot) Equal(other *Snapshot) bool {
	if other == nil || s.HasID != other.HasID || len(s.Values) != len(other.Values) {
		return false
	}
	if !ValuesEqual(s.ID, other.ID) {
		return false
	}
	return len(s.Changed(other)) == 0
}

func snapshotValue(attr *schema.AttributeDescriptor, v interface{}) interface{} {
	if attr.IsAssociation() {
		return v
	}
	return CopyValue(v)
}

// ValuesEqual compares two attribute values, treating instants equal across locations
func ValuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

// CopyValue returns a deep copy of v. Maps, slices, arrays, pointers and the
// exported fields of structs are copied recursively; shared and cyclic
// pointers keep their shape in the copy. Other values are copied by
// assignment.
func CopyValue(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	out := copyValue(reflect.ValueOf(v), make(map[uintptr]reflect.Value))
	return out.Interface()
}

func copyValue(v reflect.Value, seen map[uintptr]reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(copyValue(v.Elem(), seen))
		return out

	case reflect.Ptr:
		if v.IsNil() {
			return v
		}
		if done, ok := seen[v.Pointer()]; ok {
			return done
		}
		if r, ok := recordOf(v); ok {
			out := NewRecord(r.entity)
			seen[v.Pointer()] = reflect.ValueOf(out)
			for _, k := range r.keys {
				item := r.values[k]
				if item != nil {
					item = copyValue(reflect.ValueOf(item), seen).Interface()
				}
				out.Set(k, item)
			}
			return reflect.ValueOf(out)
		}
		out := reflect.New(v.Type().Elem())
		seen[v.Pointer()] = out
		out.Elem().Set(copyValue(v.Elem(), seen))
		return out

	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), copyValue(iter.Value(), seen))
		}
		return out

	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(copyValue(v.Index(i), seen))
		}
		return out

	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(copyValue(v.Index(i), seen))
		}
		return out

	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		for i := 0; i < v.NumField(); i++ {
			if f := out.Field(i); f.CanSet() {
				f.Set(copyValue(v.Field(i), seen))
			}
		}
		return out

	default:
		return v
	}
}

func recordOf(v reflect.Value) (*Record, bool) {
	if !v.CanInterface() {
		return nil, false
	}
	r, ok := v.Interface().(*Record)
	return r, ok
}

package tuplizer

import (
	"fmt"
	"reflect"
)

// Accessor is the get/set pair for one attribute of a typed entity
type Accessor struct {
	Get func(t Tuple) interface{}
	Set func(t Tuple, value interface{}) error
}

// Field builds an Accessor from typed getter and setter functions. Values are
// converted to V on set; nil sets the zero value.
func Field[T any, V any](get func(*T) V, set func(*T, V)) Accessor {
	return Accessor{
		Get: func(t Tuple) interface{} {
			return get(t.(*T))
		},
		Set: func(t Tuple, value interface{}) error {
			v, err := convert[V](value)
			if err != nil {
				return err
			}
			set(t.(*T), v)
			return nil
		},
	}
}

// convert turns an arbitrary value into V, allowing numeric widening and
// same-kind conversions but never cross-kind ones such as int to string
func convert[V any](value interface{}) (V, error) {
	var zero V
	if value == nil {
		return zero, nil
	}
	if v, ok := value.(V); ok {
		return v, nil
	}

	target := reflect.TypeOf((*V)(nil)).Elem()
	rv, err := convertValue(reflect.ValueOf(value), target)
	if err != nil {
		return zero, err
	}
	return rv.Interface().(V), nil
}

func convertValue(rv reflect.Value, target reflect.Type) (reflect.Value, error) {
	if rv.Type().AssignableTo(target) {
		return rv, nil
	}

	// Nullable attributes are commonly declared as pointers
	if target.Kind() == reflect.Ptr && rv.Type().ConvertibleTo(target.Elem()) && compatibleKinds(rv.Kind(), target.Elem().Kind()) {
		p := reflect.New(target.Elem())
		p.Elem().Set(rv.Convert(target.Elem()))
		return p, nil
	}

	if rv.Type().ConvertibleTo(target) && compatibleKinds(rv.Kind(), target.Kind()) {
		return rv.Convert(target), nil
	}

	return reflect.Value{}, fmt.Errorf("cannot assign %s to %s", rv.Type(), target)
}

func compatibleKinds(from, to reflect.Kind) bool {
	if from == to {
		return true
	}
	return isNumeric(from) && isNumeric(to)
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

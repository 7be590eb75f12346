// Package identity decides when two entity references denote the same
// persistent row. Identity is scoped to one unit of work: within it an
// EntityKey maps to at most one in-memory instance, across units callers
// compare business keys instead.
package identity

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntityKey is the (entity-name, identifier) pair naming one persistent row
type EntityKey struct {
	Entity string
	ID     interface{}
}

// Composite is implemented by identifier values made of several components.
// Two composite identifiers are equal when every component is equal.
type Composite interface {
	Components() []interface{}
}

// NewKey creates a key, rejecting unset identifiers
func NewKey(entity string, id interface{}) (EntityKey, error) {
	if entity == "" {
		return EntityKey{}, fmt.Errorf("entity key needs an entity name")
	}
	if IsUnset(id) {
		return EntityKey{}, fmt.Errorf("%s: %w", entity, ErrUnsetIdentifier)
	}
	return EntityKey{Entity: entity, ID: id}, nil
}

// SameEntity reports whether two keys denote the same row
func SameEntity(a, b EntityKey) bool {
	return a.Entity == b.Entity && IdentifiersEqual(a.ID, b.ID)
}

// Equal is SameEntity with k as the first key
func (k EntityKey) Equal(other EntityKey) bool {
	return SameEntity(k, other)
}

// String renders the key as Entity#id
func (k EntityKey) String() string {
	return k.Entity + "#" + formatID(k.ID)
}

// IdentifiersEqual compares identifier values by value. Integers compare
// across widths, instants across locations, composites component-wise.
func IdentifiersEqual(a, b interface{}) bool {
	na, nb := normalize(a), normalize(b)

	ca, aok := na.([]interface{})
	cb, bok := nb.([]interface{})
	if aok || bok {
		if !aok || !bok || len(ca) != len(cb) {
			return false
		}
		for i := range ca {
			if !IdentifiersEqual(ca[i], cb[i]) {
				return false
			}
		}
		return true
	}

	if ta, ok := na.(time.Time); ok {
		tb, ok := nb.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(na, nb)
}

// IsUnset reports whether id is absent: nil, a zero number, an empty string,
// the nil UUID, or a composite whose components are all unset
func IsUnset(id interface{}) bool {
	switch v := normalize(id).(type) {
	case nil:
		return true
	case int64:
		return v == 0
	case uint64:
		return v == 0
	case float64:
		return v == 0
	case string:
		return v == ""
	case uuid.UUID:
		return v == uuid.Nil
	case []byte:
		return len(v) == 0
	case []interface{}:
		for _, c := range v {
			if !IsUnset(c) {
				return false
			}
		}
		return true
	}

	rv := reflect.ValueOf(id)
	if rv.Kind() == reflect.Ptr && rv.IsNil() {
		return true
	}
	return rv.IsZero()
}

// normalize maps identifier values onto a canonical representation: signed
// integers to int64, unsigned ones to int64 when they fit, floats to float64
// and composites to their component slice
func normalize(id interface{}) interface{} {
	switch v := id.(type) {
	case nil:
		return nil
	case Composite:
		return v.Components()
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case uint:
		return normalizeUnsigned(uint64(v))
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return normalizeUnsigned(v)
	case float32:
		return float64(v)
	}

	// pointer identifiers compare by the value they point at
	rv := reflect.ValueOf(id)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	}
	return id
}

func normalizeUnsigned(v uint64) interface{} {
	if v > math.MaxInt64 {
		return v
	}
	return int64(v)
}

// formatID renders an identifier the same way for every width it may arrive in
func formatID(id interface{}) string {
	switch v := normalize(id).(type) {
	case nil:
		return "<unset>"
	case []interface{}:
		parts := make([]string, len(v))
		for i, c := range v {
			parts[i] = formatID(c)
		}
		return "(" + strings.Join(parts, ",") + ")"
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case []byte:
		return fmt.Sprintf("%x", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

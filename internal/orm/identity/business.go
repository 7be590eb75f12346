package identity

import (
	"fmt"

	"github.com/conduit-lang/tuplizer/internal/orm/tuplizer"
)

// BusinessKeyed is implemented by typed entities that can be compared across
// units of work by a stable subset of non-identifier attributes
type BusinessKeyed interface {
	BusinessKey() []interface{}
}

// SameBusinessKey compares two instances by business key. Both must
// implement BusinessKeyed.
func SameBusinessKey(a, b interface{}) (bool, error) {
	ka, ok := a.(BusinessKeyed)
	if !ok {
		return false, fmt.Errorf("%T: %w", a, ErrNoBusinessKey)
	}
	kb, ok := b.(BusinessKeyed)
	if !ok {
		return false, fmt.Errorf("%T: %w", b, ErrNoBusinessKey)
	}
	return componentsEqual(ka.BusinessKey(), kb.BusinessKey()), nil
}

// AttributeKey derives business keys from named attributes through a
// tuplizer, for representations that cannot carry methods
type AttributeKey struct {
	tz       tuplizer.Tuplizer
	ordinals []int
}

// NewAttributeKey resolves the named attributes once
func NewAttributeKey(tz tuplizer.Tuplizer, names ...string) (*AttributeKey, error) {
	meta := tz.Metadata()
	if len(names) == 0 {
		return nil, fmt.Errorf("%s: business key needs at least one attribute", meta.Name)
	}

	k := &AttributeKey{tz: tz, ordinals: make([]int, len(names))}
	for i, name := range names {
		ord, ok := meta.Ordinal(name)
		if !ok {
			return nil, fmt.Errorf("%s has no attribute %s", meta.Name, name)
		}
		if meta.Attributes[ord].IsAssociation() {
			return nil, fmt.Errorf("%s.%s: associations cannot be part of a business key", meta.Name, name)
		}
		k.ordinals[i] = ord
	}
	return k, nil
}

// Of returns the business key of t
func (k *AttributeKey) Of(t tuplizer.Tuple) ([]interface{}, error) {
	out := make([]interface{}, len(k.ordinals))
	for i, ord := range k.ordinals {
		v, err := k.tz.GetAttribute(t, ord)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Same compares two instances by their attribute business key
func (k *AttributeKey) Same(a, b tuplizer.Tuple) (bool, error) {
	ka, err := k.Of(a)
	if err != nil {
		return false, err
	}
	kb, err := k.Of(b)
	if err != nil {
		return false, err
	}
	return componentsEqual(ka, kb), nil
}

func componentsEqual(a, b []interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !IdentifiersEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

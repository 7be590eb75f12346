package tuplizer

// Record is the default dynamic-map representation: an ordered attribute
// container tagged with the entity-name it belongs to. Keys keep the order in
// which they were first set.
type Record struct {
	entity string
	keys   []string
	values map[string]interface{}
}

// NewRecord creates an empty record for an entity
func NewRecord(entity string) *Record {
	return &Record{
		entity: entity,
		values: make(map[string]interface{}),
	}
}

// Entity returns the entity-name the record belongs to
func (r *Record) Entity() string {
	return r.entity
}

// Get returns the value stored under key
func (r *Record) Get(key string) (interface{}, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Set stores a value under key
func (r *Record) Set(key string, value interface{}) {
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Delete removes key from the record
func (r *Record) Delete(key string) {
	if _, exists := r.values[key]; !exists {
		return
	}
	delete(r.values, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order
func (r *Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of keys set
func (r *Record) Len() int {
	return len(r.keys)
}

// Map returns a shallow copy of the record contents
func (r *Record) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

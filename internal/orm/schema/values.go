package schema

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ValueType is the declared type of an attribute value
type ValueType int

const (
	TypeString ValueType = iota
	TypeInt
	TypeFloat
	TypeBool
	TypeDate
	TypeTimestamp
	TypeUUID
	TypeBytes
	TypeJSON
	// TypeAssociation values are references to another entity
	TypeAssociation
	// TypeComponent values are user-defined composite values, stored as-is
	TypeComponent
)

// String returns the string representation of the value type
func (t ValueType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeDate:
		return "date"
	case TypeTimestamp:
		return "timestamp"
	case TypeUUID:
		return "uuid"
	case TypeBytes:
		return "bytes"
	case TypeJSON:
		return "json"
	case TypeAssociation:
		return "association"
	case TypeComponent:
		return "component"
	default:
		return "unknown"
	}
}

// ParseValueType converts a string to a ValueType
func ParseValueType(s string) (ValueType, error) {
	switch s {
	case "string", "text":
		return TypeString, nil
	case "int", "integer", "bigint", "long":
		return TypeInt, nil
	case "float", "double", "decimal":
		return TypeFloat, nil
	case "bool", "boolean":
		return TypeBool, nil
	case "date":
		return TypeDate, nil
	case "timestamp", "datetime":
		return TypeTimestamp, nil
	case "uuid":
		return TypeUUID, nil
	case "bytes", "binary":
		return TypeBytes, nil
	case "json":
		return TypeJSON, nil
	case "association", "ref":
		return TypeAssociation, nil
	case "component":
		return TypeComponent, nil
	default:
		return 0, fmt.Errorf("unknown value type: %s", s)
	}
}

// Zero returns the zero value of the type. Associations, components, bytes
// and json have no meaningful zero and return nil.
func (t ValueType) Zero() interface{} {
	switch t {
	case TypeString:
		return ""
	case TypeInt:
		return int64(0)
	case TypeFloat:
		return float64(0)
	case TypeBool:
		return false
	case TypeDate, TypeTimestamp:
		return time.Time{}
	case TypeUUID:
		return uuid.Nil
	default:
		return nil
	}
}

// Coerce normalizes a value arriving from storage or configuration into the
// canonical Go representation of the type: int64, float64, string, bool,
// time.Time, uuid.UUID or []byte. Nil passes through unchanged.
func (t ValueType) Coerce(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}

	switch t {
	case TypeString:
		switch val := v.(type) {
		case string:
			return val, nil
		case []byte:
			return string(val), nil
		case fmt.Stringer:
			return val.String(), nil
		}
	case TypeInt:
		return coerceInt(v)
	case TypeFloat:
		switch val := v.(type) {
		case float64:
			return val, nil
		case float32:
			return float64(val), nil
		case string:
			return strconv.ParseFloat(val, 64)
		case []byte:
			return strconv.ParseFloat(string(val), 64)
		}
		if n, err := coerceInt(v); err == nil {
			return float64(n.(int64)), nil
		}
	case TypeBool:
		switch val := v.(type) {
		case bool:
			return val, nil
		case string:
			return strconv.ParseBool(val)
		case int64:
			return val != 0, nil
		}
	case TypeDate, TypeTimestamp:
		return coerceTime(t, v)
	case TypeUUID:
		switch val := v.(type) {
		case uuid.UUID:
			return val, nil
		case string:
			return uuid.Parse(val)
		case []byte:
			if len(val) == 16 {
				return uuid.FromBytes(val)
			}
			return uuid.ParseBytes(val)
		}
	case TypeBytes:
		switch val := v.(type) {
		case []byte:
			return val, nil
		case string:
			// JSON documents carry bytes base64-encoded
			if b, err := base64.StdEncoding.DecodeString(val); err == nil {
				return b, nil
			}
			return []byte(val), nil
		}
	case TypeJSON:
		switch val := v.(type) {
		case []byte:
			var out interface{}
			if err := json.Unmarshal(val, &out); err != nil {
				return nil, fmt.Errorf("invalid json value: %w", err)
			}
			return out, nil
		case string:
			var out interface{}
			if err := json.Unmarshal([]byte(val), &out); err != nil {
				return nil, fmt.Errorf("invalid json value: %w", err)
			}
			return out, nil
		default:
			return val, nil
		}
	case TypeAssociation, TypeComponent:
		return v, nil
	}

	return nil, fmt.Errorf("cannot coerce %T to %s", v, t)
}

func coerceInt(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case uint:
		return int64(val), nil
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", val)
		}
		return int64(val), nil
	case float64:
		if val != math.Trunc(val) {
			return nil, fmt.Errorf("cannot coerce fractional %v to int", val)
		}
		return int64(val), nil
	case json.Number:
		return val.Int64()
	case string:
		return strconv.ParseInt(val, 10, 64)
	case []byte:
		return strconv.ParseInt(string(val), 10, 64)
	}
	return nil, fmt.Errorf("cannot coerce %T to int", v)
}

func coerceTime(t ValueType, v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case time.Time:
		if t == TypeDate {
			y, m, d := val.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
		return val, nil
	case string:
		layouts := []string{time.RFC3339Nano, "2006-01-02 15:04:05", time.DateOnly}
		for _, layout := range layouts {
			if parsed, err := time.Parse(layout, val); err == nil {
				return coerceTime(t, parsed)
			}
		}
		return nil, fmt.Errorf("cannot parse %q as %s", val, t)
	case []byte:
		return coerceTime(t, string(val))
	}
	return nil, fmt.Errorf("cannot coerce %T to %s", v, t)
}

package sqlstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/conduit-lang/tuplizer/internal/orm/schema"
)

// Dialect captures the SQL differences between the supported databases
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

// String returns the string representation of the dialect
func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

// DialectFor returns the dialect of a database/sql driver name
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "pgx", "postgres":
		return Postgres, nil
	case "sqlite3", "sqlite":
		return SQLite, nil
	default:
		return 0, fmt.Errorf("unsupported driver: %s", driver)
	}
}

// Placeholder returns the bind parameter for the n-th argument, counting from 1
func (d Dialect) Placeholder(n int) string {
	if d == SQLite {
		return "?"
	}
	return "$" + strconv.Itoa(n)
}

// Quote quotes an identifier
func (d Dialect) Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ColumnType returns the column type used for an attribute type
func (d Dialect) ColumnType(t schema.ValueType) string {
	switch t {
	case schema.TypeInt:
		if d == SQLite {
			return "INTEGER"
		}
		return "BIGINT"
	case schema.TypeFloat:
		if d == SQLite {
			return "REAL"
		}
		return "DOUBLE PRECISION"
	case schema.TypeBool:
		return "BOOLEAN"
	case schema.TypeDate:
		return "DATE"
	case schema.TypeTimestamp:
		if d == SQLite {
			return "DATETIME"
		}
		return "TIMESTAMPTZ"
	case schema.TypeUUID:
		if d == SQLite {
			return "TEXT"
		}
		return "UUID"
	case schema.TypeBytes:
		if d == SQLite {
			return "BLOB"
		}
		return "BYTEA"
	case schema.TypeJSON, schema.TypeComponent:
		if d == SQLite {
			return "TEXT"
		}
		return "JSONB"
	default:
		return "TEXT"
	}
}

// identityColumn is the column definition of a store-assigned identifier
func (d Dialect) identityColumn() string {
	if d == SQLite {
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
}

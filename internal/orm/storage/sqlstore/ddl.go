package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/conduit-lang/tuplizer/internal/orm/schema"
)

// CreateTableSQL returns the CREATE TABLE statement for an entity. Association
// columns take the type of the target identifier when the target is among
// metas, and TEXT otherwise.
func (d Dialect) CreateTableSQL(meta *schema.EntityMetadata, metas ...*schema.EntityMetadata) (string, error) {
	if meta.Identifier == nil {
		return "", fmt.Errorf("entity %s has no identifier", meta.Name)
	}

	idDef := d.ColumnType(meta.Identifier.Type) + " PRIMARY KEY"
	if meta.Strategy == schema.StoreAssigned {
		idDef = d.identityColumn()
	}
	cols := []string{d.Quote(meta.Identifier.ColumnName()) + " " + idDef}

	for _, attr := range meta.Attributes {
		typ := attr.Type
		if attr.IsAssociation() {
			typ = schema.TypeString
			for _, target := range metas {
				if target.Name == attr.Target && target.Identifier != nil {
					typ = target.Identifier.Type
					break
				}
			}
		}

		def := d.Quote(attr.ColumnName()) + " " + d.ColumnType(typ)
		if !attr.Nullable && !attr.IsAssociation() {
			def += " NOT NULL"
		}
		cols = append(cols, def)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)",
		d.Quote(meta.TableName()), strings.Join(cols, ",\n  ")), nil
}

// EnsureTables creates the table of every entity that does not have one
func (s *Store) EnsureTables(ctx context.Context, metas ...*schema.EntityMetadata) error {
	for _, meta := range metas {
		stmt, err := s.dialect.CreateTableSQL(meta, metas...)
		if err != nil {
			return err
		}
		s.trace(stmt)
		if _, err := s.q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table for %s: %w", meta.Name, ConvertDBError(err))
		}
	}
	return nil
}

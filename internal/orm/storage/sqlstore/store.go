// Package sqlstore implements storage.Store on database/sql. Postgres is
// reached through pgx or lib/pq, SQLite through go-sqlite3.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/tuplizer/internal/orm/schema"
	"github.com/conduit-lang/tuplizer/internal/orm/storage"
)

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store is a storage.Store over a SQL database. Each entity maps to one table
// whose columns are the identifier column followed by the attribute columns.
type Store struct {
	db      *sql.DB
	q       querier
	dialect Dialect
	logger  *zap.Logger
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger statements are traced to
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a store over an open database
func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{
		db:      db,
		q:       db,
		dialect: dialect,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens and pings a database with one of the registered drivers
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return New(db, dialect, opts...), nil
}

// DB returns the underlying database
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect of the store
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) LoadRow(ctx context.Context, meta *schema.EntityMetadata, id interface{}) (storage.Row, error) {
	idCol, err := identifierColumn(meta)
	if err != nil {
		return nil, err
	}

	cols := []string{s.dialect.Quote(idCol)}
	for _, attr := range meta.Attributes {
		cols = append(cols, s.dialect.Quote(attr.ColumnName()))
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		strings.Join(cols, ", "),
		s.dialect.Quote(meta.TableName()),
		s.dialect.Quote(idCol),
		s.dialect.Placeholder(1),
	)
	s.trace(query)

	values := make([]interface{}, len(cols))
	dest := make([]interface{}, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}

	if err := s.q.QueryRowContext(ctx, query, bindValue(id)).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.NotFound(meta.Name, id)
		}
		return nil, ConvertDBError(err)
	}
	return decodeRow(meta, values)
}

func (s *Store) PersistRow(ctx context.Context, meta *schema.EntityMetadata, row storage.Row) (interface{}, error) {
	idCol, err := identifierColumn(meta)
	if err != nil {
		return nil, err
	}
	storeAssigned := meta.Strategy == schema.StoreAssigned

	var cols, params []string
	var args []interface{}
	if !storeAssigned {
		cols = append(cols, s.dialect.Quote(idCol))
		args = append(args, bindValue(row[meta.Identifier.Name]))
	}
	for _, attr := range meta.Attributes {
		cols = append(cols, s.dialect.Quote(attr.ColumnName()))
		v, err := encodeValue(attr, row[attr.Name])
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	for i := range cols {
		params = append(params, s.dialect.Placeholder(i+1))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.dialect.Quote(meta.TableName()),
		strings.Join(cols, ", "),
		strings.Join(params, ", "),
	)

	if !storeAssigned {
		s.trace(query)
		if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
			return nil, ConvertDBError(err)
		}
		return row[meta.Identifier.Name], nil
	}

	if s.dialect == Postgres {
		query += " RETURNING " + s.dialect.Quote(idCol)
		s.trace(query)
		var id int64
		if err := s.q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
			return nil, ConvertDBError(err)
		}
		return id, nil
	}

	s.trace(query)
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("persist %s: %w", meta.Name, err)
	}
	return id, nil
}

func (s *Store) UpdateRow(ctx context.Context, meta *schema.EntityMetadata, id interface{}, row storage.Row) error {
	idCol, err := identifierColumn(meta)
	if err != nil {
		return err
	}

	var sets []string
	var args []interface{}
	for _, attr := range meta.Attributes {
		raw, ok := row[attr.Name]
		if !ok {
			continue
		}
		v, err := encodeValue(attr, raw)
		if err != nil {
			return err
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = %s", s.dialect.Quote(attr.ColumnName()), s.dialect.Placeholder(len(args))))
	}
	if len(sets) == 0 {
		_, err := s.LoadRow(ctx, meta, id)
		return err
	}
	args = append(args, bindValue(id))

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		s.dialect.Quote(meta.TableName()),
		strings.Join(sets, ", "),
		s.dialect.Quote(idCol),
		s.dialect.Placeholder(len(args)),
	)
	s.trace(query)

	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return ConvertDBError(err)
	}
	return expectRow(res, meta, id)
}

func (s *Store) DeleteRow(ctx context.Context, meta *schema.EntityMetadata, id interface{}) error {
	idCol, err := identifierColumn(meta)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		s.dialect.Quote(meta.TableName()),
		s.dialect.Quote(idCol),
		s.dialect.Placeholder(1),
	)
	s.trace(query)

	res, err := s.q.ExecContext(ctx, query, bindValue(id))
	if err != nil {
		return ConvertDBError(err)
	}
	return expectRow(res, meta, id)
}

// Identifiers returns every stored identifier of an entity in ascending order
func (s *Store) Identifiers(ctx context.Context, meta *schema.EntityMetadata) ([]interface{}, error) {
	idCol, err := identifierColumn(meta)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		s.dialect.Quote(idCol),
		s.dialect.Quote(meta.TableName()),
		s.dialect.Quote(idCol),
	)
	s.trace(query)

	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	defer rows.Close()

	var ids []interface{}
	for rows.Next() {
		var raw interface{}
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := meta.Identifier.Type.Coerce(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) trace(query string) {
	s.logger.Debug("executing statement", zap.String("query", query))
}

func identifierColumn(meta *schema.EntityMetadata) (string, error) {
	if meta.Identifier == nil {
		return "", &storage.UnkeyedEntityError{Entity: meta.Name}
	}
	return meta.Identifier.ColumnName(), nil
}

func expectRow(res sql.Result, meta *schema.EntityMetadata, id interface{}) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.NotFound(meta.Name, id)
	}
	return nil
}

// decodeRow converts scanned columns into a row in canonical representation.
// Association columns hold the target identifier and are passed through.
func decodeRow(meta *schema.EntityMetadata, values []interface{}) (storage.Row, error) {
	row := make(storage.Row, len(values))

	id, err := meta.Identifier.Type.Coerce(values[0])
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", meta.Name, meta.Identifier.Name, err)
	}
	row[meta.Identifier.Name] = id

	for i, attr := range meta.Attributes {
		raw := values[i+1]
		if b, ok := raw.([]byte); ok && attr.Type != schema.TypeBytes {
			raw = string(b)
		}
		if attr.IsAssociation() {
			row[attr.Name] = raw
			continue
		}
		v, err := attr.Type.Coerce(raw)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", meta.Name, attr.Name, err)
		}
		row[attr.Name] = v
	}
	return row, nil
}

// encodeValue converts an attribute value into a driver argument
func encodeValue(attr *schema.AttributeDescriptor, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch attr.Type {
	case schema.TypeJSON, schema.TypeComponent:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", attr.Name, err)
		}
		return string(b), nil
	}
	return bindValue(v), nil
}

// bindValue widens integer types the drivers do not all accept
func bindValue(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int16:
		return int64(n)
	case int8:
		return int64(n)
	case uint32:
		return int64(n)
	case uint16:
		return int64(n)
	case uint8:
		return int64(n)
	}
	return v
}

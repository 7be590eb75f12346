package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/conduit-lang/tuplizer/internal/orm/storage"
)

// Postgres SQLSTATE codes of integrity violations
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeNotNullViolation    = "23502"
)

// ConvertDBError maps driver errors onto the storage error kinds
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}

	// pgx
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return convertSQLState(pgErr.Code, pgErr.Detail, err)
	}

	// lib/pq
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return convertSQLState(string(pqErr.Code), pqErr.Detail, err)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && liteErr.Code == sqlite3.ErrConstraint {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %s", storage.ErrConflict, liteErr.Error())
		default:
			return fmt.Errorf("%w: %s", storage.ErrConstraint, liteErr.Error())
		}
	}

	return err
}

func convertSQLState(code, detail string, err error) error {
	switch code {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %s", storage.ErrConflict, detail)
	case codeForeignKeyViolation, codeCheckViolation, codeNotNullViolation:
		return fmt.Errorf("%w: %s", storage.ErrConstraint, detail)
	}
	return err
}

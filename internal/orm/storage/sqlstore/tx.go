package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// savepointCounter keeps savepoint names unique across transactions
var savepointCounter atomic.Uint64

// WithTx runs fn against a store bound to one transaction. The transaction
// commits when fn returns nil and rolls back on error or panic. Calling WithTx
// on a store that is already bound nests the work in a savepoint.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) (err error) {
	if tx, ok := s.q.(*sql.Tx); ok {
		return s.withSavepoint(ctx, tx, fn)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	bound := &Store{db: s.db, q: tx, dialect: s.dialect, logger: s.logger}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(bound); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) withSavepoint(ctx context.Context, tx *sql.Tx, fn func(tx *Store) error) error {
	name := fmt.Sprintf("sp_%d", savepointCounter.Add(1))
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_, _ = tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name)
			panic(p)
		}
	}()

	if err := fn(s); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			s.logger.Error("failed to rollback to savepoint", zap.String("savepoint", name), zap.Error(rbErr))
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

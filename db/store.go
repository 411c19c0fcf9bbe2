package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	apperrors "learning-platform/errors"
	"learning-platform/services"
)

const uniqueViolation = "23505"

// Store runs repository work in Postgres transactions.
type Store struct {
	db *sql.DB
}

func NewStore(conn *sql.DB) *Store {
	return &Store{db: conn}
}

// WithinTx implements services.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(services.Repository) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.E(apperrors.Internal, "begin transaction", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&repository{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.E(apperrors.Internal, "commit transaction", err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// repository implements services.Repository on one transaction.
type repository struct {
	tx *sql.Tx
}

var _ services.Repository = (*repository)(nil)

func notFound(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.E(apperrors.NotFound, what+" not found")
	}
	return apperrors.E(apperrors.Internal, "query "+what, err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shop_service/internal/domain"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

var (
	_ domain.Store              = (*Store)(nil)
	_ domain.Transactor         = (*Store)(nil)
	_ domain.UserRepository     = (*Store)(nil)
	_ domain.CategoryRepository = (*Store)(nil)
)

// querier is the part of *sql.DB and *sql.Tx the repositories use.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

type Store struct {
	db  *sql.DB
	tx  *sql.Tx
	q   querier
	log *logrus.Logger
}

func NewStore(db *sql.DB, logger *logrus.Logger) *Store {
	return &Store{
		db:  db,
		q:   db,
		log: logger,
	}
}

// WithinTx runs fn inside a database transaction. A Store already bound to a
// transaction joins it instead of opening a new one.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, st domain.Store) error) (err error) {
	if s.tx != nil {
		return fn(ctx, s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.log.Errorf("Repository: Failed to begin transaction: %v", err)
		return fmt.Errorf("could not start transaction: %w", err)
	}
	txStore := &Store{db: s.db, tx: tx, q: tx, log: s.log}

	defer func() {
		if p := recover(); p != nil {
			s.log.Error("Repository: Recovered from panic, rolling back transaction")
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.log.Errorf("Repository: Failed to rollback transaction: %v", rbErr)
				err = fmt.Errorf("tx err: %w; rollback err: %v", err, rbErr)
			}
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			s.log.Errorf("Repository: Failed to commit transaction: %v", cErr)
			err = fmt.Errorf("failed to commit transaction: %w", cErr)
		}
	}()

	return fn(ctx, txStore)
}

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

// constraintError maps foreign key and check violations to ErrInvalidInput.
func constraintError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23503", "23514":
			return fmt.Errorf("%w: constraint violation: %s", domain.ErrInvalidInput, pqErr.Message)
		}
	}
	return err
}

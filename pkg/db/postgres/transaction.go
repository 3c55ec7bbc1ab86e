package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateExclusionViolation   = "23P01"
	sqlStateUniqueViolation      = "23505"
)

var (
	ErrSerializationFailure = errors.New("serializable transaction aborted")
	ErrExclusionViolation   = errors.New("exclusion constraint violated")
	ErrUniqueViolation      = errors.New("unique constraint violated")
	ErrCommitUnknown        = errors.New("transaction commit result unknown")
)

type TxFunc func(ctx context.Context, tx pgx.Tx) error

type TransactionManager interface {
	ExecuteSerializable(ctx context.Context, fn TxFunc) error
}

// Beginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type Beginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type pgxTransactionManager struct {
	db Beginner
}

func NewTransactionManager(db Beginner) TransactionManager {
	return &pgxTransactionManager{db: db}
}

// ExecuteSerializable runs fn once in a SERIALIZABLE read-write transaction.
func (m *pgxTransactionManager) ExecuteSerializable(ctx context.Context, fn TxFunc) error {
	tx, err := m.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", Classify(err))
	}

	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback(context.Background())
		return Classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) || errors.Is(err, pgx.ErrTxCommitRollback) {
			return Classify(err)
		}
		return fmt.Errorf("%w: %v", ErrCommitUnknown, err)
	}
	return nil
}

// Classify tags PostgreSQL errors with the sentinel matching their SQLSTATE.
func Classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected:
		return errors.Join(ErrSerializationFailure, err)
	case sqlStateExclusionViolation:
		return errors.Join(ErrExclusionViolation, err)
	case sqlStateUniqueViolation:
		return errors.Join(ErrUniqueViolation, err)
	default:
		return err
	}
}

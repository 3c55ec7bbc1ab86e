package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, ErrSerializationFailure},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, ErrSerializationFailure},
		{"exclusion violation", &pgconn.PgError{Code: "23P01"}, ErrExclusionViolation},
		{"unique violation", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), ErrUniqueViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.ErrorIs(t, got, tt.expected)

			var pgErr *pgconn.PgError
			assert.True(t, errors.As(got, &pgErr), "original error must stay reachable")
		})
	}

	plain := errors.New("boom")
	assert.Equal(t, plain, Classify(plain))
	assert.Equal(t, &pgconn.PgError{Code: "42P01"}, Classify(&pgconn.PgError{Code: "42P01"}))
}

type fakeBeginner struct {
	tx       *fakeTx
	beginErr error
	opts     pgx.TxOptions
}

func (f *fakeBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	f.opts = opts
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return f.tx, nil
}

// fakeTx embeds pgx.Tx so only the methods used by the manager need bodies.
type fakeTx struct {
	pgx.Tx
	commitErr  error
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Commit(ctx context.Context) error {
	f.committed = true
	return f.commitErr
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	f.rolledBack = true
	return nil
}

func TestExecuteSerializable_Commits(t *testing.T) {
	db := &fakeBeginner{tx: &fakeTx{}}
	m := NewTransactionManager(db)

	err := m.ExecuteSerializable(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, pgx.Serializable, db.opts.IsoLevel)
	assert.True(t, db.tx.committed)
	assert.False(t, db.tx.rolledBack)
}

func TestExecuteSerializable_RollsBackOnError(t *testing.T) {
	db := &fakeBeginner{tx: &fakeTx{}}
	m := NewTransactionManager(db)

	err := m.ExecuteSerializable(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		return &pgconn.PgError{Code: "23P01"}
	})

	assert.ErrorIs(t, err, ErrExclusionViolation)
	assert.True(t, db.tx.rolledBack)
	assert.False(t, db.tx.committed)
}

func TestExecuteSerializable_CommitErrors(t *testing.T) {
	t.Run("server rejected commit", func(t *testing.T) {
		db := &fakeBeginner{tx: &fakeTx{commitErr: &pgconn.PgError{Code: "40001"}}}
		err := NewTransactionManager(db).ExecuteSerializable(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
			return nil
		})
		assert.ErrorIs(t, err, ErrSerializationFailure)
		assert.NotErrorIs(t, err, ErrCommitUnknown)
	})

	t.Run("connection lost during commit", func(t *testing.T) {
		db := &fakeBeginner{tx: &fakeTx{commitErr: errors.New("unexpected EOF")}}
		err := NewTransactionManager(db).ExecuteSerializable(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
			return nil
		})
		assert.ErrorIs(t, err, ErrCommitUnknown)
	})
}

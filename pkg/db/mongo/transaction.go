package mongo

import (
	"context"
	"errors"
	"fmt"
	apperrors "staybook/pkg/errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	labelTransientTransaction = "TransientTransactionError"
	labelUnknownCommitResult  = "UnknownTransactionCommitResult"
)

var (
	// ErrTransientTransaction means the server aborted the transaction, usually
	// because of a write conflict. Nothing was written.
	ErrTransientTransaction = errors.New("transaction aborted by a concurrent transaction")

	// ErrUnknownCommitResult means the commit outcome could not be determined.
	ErrUnknownCommitResult = errors.New("transaction commit result unknown")
)

type TransactionFunc func(ctx mongo.SessionContext) error

type TransactionManager interface {
	ExecuteTransaction(ctx context.Context, fn TransactionFunc) error
}

type mongoTransactionManager struct {
	client *mongo.Client
	opts   *options.TransactionOptions
}

func NewTransactionManager(client *mongo.Client) TransactionManager {
	return &mongoTransactionManager{
		client: client,
		opts: options.Transaction().
			SetReadConcern(readconcern.Snapshot()).
			SetWriteConcern(writeconcern.Majority()).
			SetReadPreference(readpref.Primary()),
	}
}

// ExecuteTransaction runs fn exactly once inside a snapshot transaction.
// Unlike session.WithTransaction it never retries fn; callers decide.
func (m *mongoTransactionManager) ExecuteTransaction(ctx context.Context, fn TransactionFunc) error {
	session, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(context.Background())

	return mongo.WithSession(ctx, session, func(sessCtx mongo.SessionContext) error {
		if err := session.StartTransaction(m.opts); err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if err := fn(sessCtx); err != nil {
			_ = session.AbortTransaction(context.Background())
			return classify(err)
		}

		return commit(sessCtx, session)
	})
}

// commit retries once on an unknown result; committing the same transaction
// twice is safe.
func commit(ctx mongo.SessionContext, session mongo.Session) error {
	err := session.CommitTransaction(ctx)
	if err == nil {
		return nil
	}
	if hasLabel(err, labelUnknownCommitResult) {
		err = session.CommitTransaction(ctx)
		if err == nil {
			return nil
		}
		if hasLabel(err, labelUnknownCommitResult) {
			return fmt.Errorf("%w: %v", ErrUnknownCommitResult, err)
		}
	}
	return classify(err)
}

func classify(err error) error {
	if apperrors.IsAppError(err) {
		return err
	}
	if hasLabel(err, labelTransientTransaction) {
		return fmt.Errorf("%w: %v", ErrTransientTransaction, err)
	}
	return fmt.Errorf("transaction failed: %w", err)
}

func hasLabel(err error, label string) bool {
	var serverErr mongo.ServerError
	return errors.As(err, &serverErr) && serverErr.HasErrorLabel(label)
}

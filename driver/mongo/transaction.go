package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

// mongoTransaction adapts a mongo session transaction to core.Transaction.
// The session ends when the transaction commits or aborts.
type mongoTransaction struct {
	session mongo.Session
}

func (transaction *mongoTransaction) Commit(ctx context.Context) error {
	defer transaction.session.EndSession(ctx)
	return transaction.session.CommitTransaction(ctx)
}

func (transaction *mongoTransaction) Rollback(ctx context.Context) error {
	defer transaction.session.EndSession(ctx)
	return transaction.session.AbortTransaction(ctx)
}

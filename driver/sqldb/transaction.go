package sqldb

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// sqlTransaction adapts sqlx.Tx to core.Transaction.
type sqlTransaction struct {
	tx *sqlx.Tx
}

func (transaction *sqlTransaction) Commit(ctx context.Context) error {
	return transaction.tx.Commit()
}

func (transaction *sqlTransaction) Rollback(ctx context.Context) error {
	return transaction.tx.Rollback()
}

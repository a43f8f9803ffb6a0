package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// postgresTransaction adapts pgx.Tx to core.Transaction.
type postgresTransaction struct {
	tx pgx.Tx
}

func (transaction *postgresTransaction) Commit(ctx context.Context) error {
	return transaction.tx.Commit(ctx)
}

func (transaction *postgresTransaction) Rollback(ctx context.Context) error {
	return transaction.tx.Rollback(ctx)
}

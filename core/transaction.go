// Package core provides the building blocks of the ormx persistence layer.
// This file defines transaction helpers: context injection, extraction, and
// an ergonomic callback runner.
//
// Single statements never need these helpers; drivers scope a pooled
// connection around each standalone statement automatically. Multi-statement
// transactions must be wrapped explicitly, and in a nested-transaction
// scenario only the outermost one:
//
//	err := core.RunTransaction(ctx, driver, func(txCtx context.Context) error {
//		if err := users.Save(txCtx, &user); err != nil {
//			return err
//		}
//		return orders.Save(txCtx, &order)
//	})
package core

import "context"

// transactionKey is an unexported context key type. Using a private type
// prevents collisions with other context values.
type transactionKey struct{}

// WithTransaction injects a Transaction into the given context.
//
// Drivers detect it and route all statements through the transaction instead
// of opening ad-hoc connection scopes.
func WithTransaction(ctx context.Context, tx Transaction) context.Context {
	return context.WithValue(ctx, transactionKey{}, tx)
}

// TransactionFrom extracts a Transaction from the given context, if any.
//
// Returns nil if the context does not contain a transaction.
func TransactionFrom(ctx context.Context) Transaction {
	if v, ok := ctx.Value(transactionKey{}).(Transaction); ok {
		return v
	}
	return nil
}

// TransactionFunc is the callback signature used by RunTransaction.
//
// If the function returns an error, the transaction is rolled back.
// If it returns nil, the transaction is committed.
type TransactionFunc func(txCtx context.Context) error

// RunTransaction executes a function inside a transaction, handling commit
// and rollback automatically.
func RunTransaction(ctx context.Context, driver Driver, fn TransactionFunc) error {
	tx, err := driver.Transaction(ctx)
	if err != nil {
		return err
	}
	txCtx := WithTransaction(ctx, tx)

	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx) // rollback on error
		return err
	}
	return tx.Commit(ctx)
}

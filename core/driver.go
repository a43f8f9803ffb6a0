// Package core provides the building blocks of the ormx persistence layer.
// This file defines the Driver contract implemented by database backends,
// along with the query option types shared by all of them.
package core

import "context"

// Dialect identifies the SQL (or document) flavor a driver speaks. Field
// codecs use it to pick the storage column type.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
	DialectMongo    Dialect = "mongo"
)

// Sort represents an ordering rule used in queries.
//
// FieldName specifies which column/field to sort by.
// Order determines the direction: 1 for ascending (ASC), -1 for descending (DESC).
type Sort struct {
	FieldName string
	Order     int // 1 = ASC, -1 = DESC
}

// Where encapsulates filtering and pagination options for queries.
type Where struct {
	Condition *Condition
	Limit     int
	Offset    int
	Sort      []Sort
}

// Changes represents a set of field updates, mapping column names to new values.
// It is typically used in Update operations.
type Changes map[string]any

// Transaction defines the contract for database transaction management.
//
// Implementations must provide atomic commit and rollback semantics.
type Transaction interface {
	// Commit finalizes the transaction and makes all changes permanent.
	Commit(ctx context.Context) error
	// Rollback reverts the transaction, discarding all changes.
	Rollback(ctx context.Context) error
}

// Driver defines the contract for database backends.
//
// Each driver (postgres, sqldb, mongo) must implement this interface to
// handle CRUD operations, transactions, and connectivity. Every operation
// runs on the transaction carried by ctx when one is present; otherwise the
// driver scopes a pooled connection to the single statement and releases it
// on all exit paths.
type Driver interface {
	// Dialect reports the backend flavor, used for column type mapping.
	Dialect() Dialect
	// Connect establishes a new connection or validates connectivity.
	Connect(ctx context.Context) error
	// Ping checks if the underlying database is reachable.
	Ping(ctx context.Context) error
	// Close terminates the connection and releases resources.
	Close(ctx context.Context) error

	// Transaction starts a new database transaction.
	Transaction(ctx context.Context) (Transaction, error)

	// Insert persists one or more documents/entities in the database.
	Insert(ctx context.Context, schema *SchemaCore, documents ...any) error
	// FindOne retrieves a single row matching the given options, as a
	// column-keyed map, or nil when nothing matches.
	FindOne(ctx context.Context, schema *SchemaCore, options *Where) (map[string]any, error)
	// FindMany retrieves all rows matching the given options.
	FindMany(ctx context.Context, schema *SchemaCore, options *Where) ([]map[string]any, error)
	// Update modifies existing rows matching the condition.
	Update(ctx context.Context, schema *SchemaCore, condition *Condition, changes Changes) error
	// Delete removes rows matching the condition.
	Delete(ctx context.Context, schema *SchemaCore, condition *Condition) error
	// Count returns the number of rows matching the condition.
	Count(ctx context.Context, schema *SchemaCore, condition *Condition) (int64, error)
}

// Execer is implemented by SQL drivers that can run raw statements. The
// statement inherits the same connection scoping as the typed operations:
// context transaction when active, a single auto-released pooled connection
// otherwise.
type Execer interface {
	// Exec runs a raw statement and returns the number of affected rows.
	Exec(ctx context.Context, statement string, args ...any) (int64, error)
}

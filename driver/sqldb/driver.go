// Package sqldb implements the core.Driver contract on database/sql via
// sqlx. It backs both the MySQL and SQLite flavors: the two differ only in
// identifier quoting, column types, and connection setup, so they share one
// statement builder. Statements run on the context transaction when one is
// active; otherwise they go through the pool, which scopes a connection to
// the call and releases it on return.
package sqldb

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/earlzo/ormx/core"
)

// Flavor selects the SQL dialect served by a Driver.
type Flavor string

const (
	FlavorMySQL  Flavor = "mysql"
	FlavorSQLite Flavor = "sqlite3"
)

// Options tunes the pool behind the driver.
type Options struct {
	MaxOpenConns int
	MaxIdleConns int
}

// Driver is the sqlx-backed core.Driver for MySQL and SQLite.
type Driver struct {
	db     *sqlx.DB
	flavor Flavor
}

var (
	_ core.Driver = (*Driver)(nil)
	_ core.Execer = (*Driver)(nil)
)

// NewDriver opens a pool for the given DSN. The flavor must match a
// registered database/sql driver name ("mysql" or "sqlite3").
func NewDriver(ctx context.Context, flavor Flavor, dsn string, options Options) (*Driver, error) {
	db, err := sqlx.Open(string(flavor), dsn)
	if err != nil {
		return nil, err
	}
	if options.MaxOpenConns > 0 {
		db.SetMaxOpenConns(options.MaxOpenConns)
	}
	if options.MaxIdleConns > 0 {
		db.SetMaxIdleConns(options.MaxIdleConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &Driver{db: db, flavor: flavor}, nil
}

// Dialect reports the dialect served by this driver.
func (driver *Driver) Dialect() core.Dialect {
	if driver.flavor == FlavorMySQL {
		return core.DialectMySQL
	}
	return core.DialectSQLite
}

// DB exposes the underlying pool for schema setup in callers and tests.
func (driver *Driver) DB() *sqlx.DB { return driver.db }

func (driver *Driver) quote(identifier string) string {
	if driver.flavor == FlavorMySQL {
		return "`" + identifier + "`"
	}
	return `"` + identifier + `"`
}

func (driver *Driver) formatTable(schema *core.SchemaCore) string {
	if schema.Database != "" && driver.flavor == FlavorMySQL {
		return driver.quote(schema.Database) + "." + driver.quote(schema.Table)
	}
	return driver.quote(schema.Table)
}

func (driver *Driver) buildCondition(condition *core.Condition, argList *[]any) string {
	if condition == nil {
		return "1=1"
	}
	if len(condition.Children) > 0 {
		partList := []string{}
		for _, child := range condition.Children {
			partList = append(partList, driver.buildCondition(child, argList))
		}
		switch *condition.Operator {
		case core.OpAnd:
			return "(" + strings.Join(partList, " AND ") + ")"
		case core.OpOr:
			return "(" + strings.Join(partList, " OR ") + ")"
		case core.OpNot:
			return "NOT (" + strings.Join(partList, " AND ") + ")"
		}
	}

	column := driver.quote(condition.FieldName)
	switch *condition.Operator {
	case core.OpNil:
		return column + " IS NULL"
	case core.OpEq:
		*argList = append(*argList, condition.Value)
		return column + " = ?"
	case core.OpGt:
		*argList = append(*argList, condition.Value)
		return column + " > ?"
	case core.OpGte:
		*argList = append(*argList, condition.Value)
		return column + " >= ?"
	case core.OpLt:
		*argList = append(*argList, condition.Value)
		return column + " < ?"
	case core.OpLte:
		*argList = append(*argList, condition.Value)
		return column + " <= ?"
	case core.OpLike:
		*argList = append(*argList, condition.Value)
		return column + " LIKE ?"
	case core.OpIn:
		valueList, _ := condition.Value.([]any)
		placeholderList := []string{}
		for _, v := range valueList {
			*argList = append(*argList, v)
			placeholderList = append(placeholderList, "?")
		}
		return column + " IN (" + strings.Join(placeholderList, ", ") + ")"
	}
	return "1=1"
}

func (driver *Driver) exec(ctx context.Context, sqlQuery string, args ...any) (int64, error) {
	if tx := core.TransactionFrom(ctx); tx != nil {
		if sqlTx, ok := tx.(*sqlTransaction); ok {
			result, err := sqlTx.tx.ExecContext(ctx, sqlQuery, args...)
			if err != nil {
				return 0, err
			}
			affected, _ := result.RowsAffected()
			return affected, nil
		}
	}
	result, err := driver.db.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		return 0, err
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

func (driver *Driver) query(ctx context.Context, sqlQuery string, args ...any) (*sqlx.Rows, error) {
	if tx := core.TransactionFrom(ctx); tx != nil {
		if sqlTx, ok := tx.(*sqlTransaction); ok {
			return sqlTx.tx.QueryxContext(ctx, sqlQuery, args...)
		}
	}
	return driver.db.QueryxContext(ctx, sqlQuery, args...)
}

// Exec runs a raw statement and returns the number of affected rows.
func (driver *Driver) Exec(ctx context.Context, statement string, args ...any) (int64, error) {
	return driver.exec(ctx, statement, args...)
}

func (driver *Driver) find(ctx context.Context, schema *core.SchemaCore, query *core.Where, single bool) ([]map[string]any, error) {
	columnNameList := []string{}
	for _, field := range schema.Fields {
		columnNameList = append(columnNameList, driver.quote(field.DatabaseColumnName))
	}

	argList := []any{}
	whereClause := driver.buildCondition(query.Condition, &argList)

	sqlQuery := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(columnNameList, ", "), driver.formatTable(schema), whereClause)

	if len(query.Sort) > 0 {
		orderPartList := []string{}
		for _, sortItem := range query.Sort {
			direction := "ASC"
			if sortItem.Order < 0 {
				direction = "DESC"
			}
			orderPartList = append(orderPartList, driver.quote(sortItem.FieldName)+" "+direction)
		}
		sqlQuery += " ORDER BY " + strings.Join(orderPartList, ", ")
	}
	if single {
		sqlQuery += " LIMIT 1"
	} else {
		if query.Limit > 0 {
			sqlQuery += fmt.Sprintf(" LIMIT %d", query.Limit)
		}
		if query.Offset > 0 {
			sqlQuery += fmt.Sprintf(" OFFSET %d", query.Offset)
		}
	}

	rowList, err := driver.query(ctx, sqlQuery, argList...)
	if err != nil {
		return nil, err
	}
	defer rowList.Close()

	var resultList []map[string]any
	for rowList.Next() {
		rowMap := map[string]any{}
		if err := rowList.MapScan(rowMap); err != nil {
			return nil, err
		}
		resultList = append(resultList, rowMap)
		if single {
			break
		}
	}
	return resultList, rowList.Err()
}

func (driver *Driver) Connect(ctx context.Context) error {
	return driver.db.PingContext(ctx)
}

func (driver *Driver) Ping(ctx context.Context) error {
	return driver.db.PingContext(ctx)
}

func (driver *Driver) Close(ctx context.Context) error {
	return driver.db.Close()
}

func (driver *Driver) Transaction(ctx context.Context) (core.Transaction, error) {
	tx, err := driver.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTransaction{tx: tx}, nil
}

func (driver *Driver) Insert(ctx context.Context, schema *core.SchemaCore, documents ...any) error {
	if len(documents) == 0 {
		return nil
	}

	columnNameList := []string{}
	placeholderList := []string{}
	for _, field := range schema.Fields {
		columnNameList = append(columnNameList, driver.quote(field.DatabaseColumnName))
		placeholderList = append(placeholderList, "?")
	}
	sqlQuery := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		driver.formatTable(schema),
		strings.Join(columnNameList, ", "),
		strings.Join(placeholderList, ", "))

	for _, doc := range documents {
		valueList, err := core.EncodeDocumentValues(schema, doc)
		if err != nil {
			return err
		}
		if _, err := driver.exec(ctx, sqlQuery, valueList...); err != nil {
			return err
		}
	}
	return nil
}

func (driver *Driver) FindOne(ctx context.Context, schema *core.SchemaCore, query *core.Where) (map[string]any, error) {
	rowList, err := driver.find(ctx, schema, query, true)
	if err != nil {
		return nil, err
	}
	if len(rowList) == 0 {
		return nil, nil
	}
	return rowList[0], nil
}

func (driver *Driver) FindMany(ctx context.Context, schema *core.SchemaCore, query *core.Where) ([]map[string]any, error) {
	return driver.find(ctx, schema, query, false)
}

func (driver *Driver) Update(ctx context.Context, schema *core.SchemaCore, condition *core.Condition, changes core.Changes) error {
	setArgList := []any{}
	setPartList := []string{}
	for column, value := range changes {
		setArgList = append(setArgList, value)
		setPartList = append(setPartList, driver.quote(column)+" = ?")
	}

	whereArgList := []any{}
	whereClause := driver.buildCondition(condition, &whereArgList)

	sqlQuery := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		driver.formatTable(schema), strings.Join(setPartList, ", "), whereClause)

	_, err := driver.exec(ctx, sqlQuery, append(setArgList, whereArgList...)...)
	return err
}

func (driver *Driver) Delete(ctx context.Context, schema *core.SchemaCore, condition *core.Condition) error {
	argList := []any{}
	whereClause := driver.buildCondition(condition, &argList)
	sqlQuery := fmt.Sprintf("DELETE FROM %s WHERE %s", driver.formatTable(schema), whereClause)
	_, err := driver.exec(ctx, sqlQuery, argList...)
	return err
}

func (driver *Driver) Count(ctx context.Context, schema *core.SchemaCore, condition *core.Condition) (int64, error) {
	argList := []any{}
	whereClause := driver.buildCondition(condition, &argList)
	sqlQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", driver.formatTable(schema), whereClause)

	var count int64
	rowList, err := driver.query(ctx, sqlQuery, argList...)
	if err != nil {
		return 0, err
	}
	defer rowList.Close()
	if rowList.Next() {
		if err := rowList.Scan(&count); err != nil {
			return 0, err
		}
	}
	return count, rowList.Err()
}

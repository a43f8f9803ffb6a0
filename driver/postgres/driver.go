// Package postgres implements the core.Driver contract on pgx. Statements
// run on the context transaction when one is active; otherwise each
// statement borrows a pooled connection for its own duration and the pool
// releases it on return, error included.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/earlzo/ormx/core"
)

// Options tunes the pool behind the driver.
type Options struct {
	MaxConns int32
	MinConns int32
	// Ext switches the extended query mode (per-statement describe cache),
	// selected by the *ext* connection-string schemes.
	Ext bool
}

// Driver is the pgx-backed core.Driver.
type Driver struct {
	pool *pgxpool.Pool
}

var (
	_ core.Driver = (*Driver)(nil)
	_ core.Execer = (*Driver)(nil)
)

// NewDriver connects a pool for the given connection string.
func NewDriver(ctx context.Context, connString string, options Options) (*Driver, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	if options.MaxConns > 0 {
		cfg.MaxConns = options.MaxConns
	}
	if options.MinConns > 0 {
		cfg.MinConns = options.MinConns
	}
	if options.Ext {
		cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Driver{pool: pool}, nil
}

// Dialect reports the postgres dialect.
func (driver *Driver) Dialect() core.Dialect { return core.DialectPostgres }

func (driver *Driver) formatTable(schema *core.SchemaCore) string {
	if schema.Database != "" {
		return fmt.Sprintf("%q.%q", schema.Database, schema.Table)
	}
	return fmt.Sprintf("%q", schema.Table)
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

	column := fmt.Sprintf("%q", condition.FieldName)
	switch *condition.Operator {
	case core.OpNil:
		return column + " IS NULL"
	case core.OpEq:
		*argList = append(*argList, condition.Value)
		return fmt.Sprintf("%s = $%d", column, len(*argList))
	case core.OpGt:
		*argList = append(*argList, condition.Value)
		return fmt.Sprintf("%s > $%d", column, len(*argList))
	case core.OpGte:
		*argList = append(*argList, condition.Value)
		return fmt.Sprintf("%s >= $%d", column, len(*argList))
	case core.OpLt:
		*argList = append(*argList, condition.Value)
		return fmt.Sprintf("%s < $%d", column, len(*argList))
	case core.OpLte:
		*argList = append(*argList, condition.Value)
		return fmt.Sprintf("%s <= $%d", column, len(*argList))
	case core.OpLike:
		*argList = append(*argList, condition.Value)
		return fmt.Sprintf("%s ILIKE $%d", column, len(*argList))
	case core.OpIn:
		valueList, _ := condition.Value.([]any)
		placeholderList := []string{}
		for _, v := range valueList {
			*argList = append(*argList, v)
			placeholderList = append(placeholderList, fmt.Sprintf("$%d", len(*argList)))
		}
		return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholderList, ", "))
	}
	return "1=1"
}

// exec routes a statement through the context transaction when one is
// active, else through the pool (which scopes a connection to the call).
func (driver *Driver) exec(ctx context.Context, sqlQuery string, args ...any) (int64, error) {
	if tx := core.TransactionFrom(ctx); tx != nil {
		if pgTx, ok := tx.(*postgresTransaction); ok {
			tag, err := pgTx.tx.Exec(ctx, sqlQuery, args...)
			return tag.RowsAffected(), err
		}
	}
	tag, err := driver.pool.Exec(ctx, sqlQuery, args...)
	return tag.RowsAffected(), err
}

func (driver *Driver) query(ctx context.Context, sqlQuery string, args ...any) (pgx.Rows, error) {
	if tx := core.TransactionFrom(ctx); tx != nil {
		if pgTx, ok := tx.(*postgresTransaction); ok {
			return pgTx.tx.Query(ctx, sqlQuery, args...)
		}
	}
	return driver.pool.Query(ctx, sqlQuery, args...)
}

func (driver *Driver) queryRow(ctx context.Context, sqlQuery string, args ...any) pgx.Row {
	if tx := core.TransactionFrom(ctx); tx != nil {
		if pgTx, ok := tx.(*postgresTransaction); ok {
			return pgTx.tx.QueryRow(ctx, sqlQuery, args...)
		}
	}
	return driver.pool.QueryRow(ctx, sqlQuery, args...)
}

// Exec runs a raw statement and returns the number of affected rows.
func (driver *Driver) Exec(ctx context.Context, statement string, args ...any) (int64, error) {
	return driver.exec(ctx, statement, args...)
}

func (driver *Driver) find(ctx context.Context, schema *core.SchemaCore, query *core.Where, single bool) ([]map[string]any, error) {
	columnNameList := []string{}
	for _, field := range schema.Fields {
		columnNameList = append(columnNameList, fmt.Sprintf("%q", field.DatabaseColumnName))
	}
	selectColumns := strings.Join(columnNameList, ", ")

	argList := []any{}
	whereClause := driver.buildCondition(query.Condition, &argList)

	sqlQuery := fmt.Sprintf("SELECT %s FROM %s WHERE %s", selectColumns, driver.formatTable(schema), whereClause)

	if len(query.Sort) > 0 {
		orderPartList := []string{}
		for _, sortItem := range query.Sort {
			direction := "ASC"
			if sortItem.Order < 0 {
				direction = "DESC"
			}
			orderPartList = append(orderPartList, fmt.Sprintf("%q %s", sortItem.FieldName, direction))
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

	columnDescriptionList := rowList.FieldDescriptions()
	var resultList []map[string]any

	for rowList.Next() {
		valueList, err := rowList.Values()
		if err != nil {
			return nil, err
		}
		rowMap := make(map[string]any, len(columnDescriptionList))
		for i, col := range columnDescriptionList {
			rowMap[col.Name] = valueList[i]
		}
		resultList = append(resultList, rowMap)
		if single {
			break
		}
	}
	return resultList, rowList.Err()
}

func (driver *Driver) Connect(ctx context.Context) error {
	return driver.pool.Ping(ctx)
}

func (driver *Driver) Ping(ctx context.Context) error {
	return driver.pool.Ping(ctx)
}

func (driver *Driver) Close(ctx context.Context) error {
	driver.pool.Close()
	return nil
}

func (driver *Driver) Transaction(ctx context.Context) (core.Transaction, error) {
	tx, err := driver.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	return &postgresTransaction{tx: tx}, nil
}

func (driver *Driver) Insert(ctx context.Context, schema *core.SchemaCore, documents ...any) error {
	if len(documents) == 0 {
		return nil
	}

	columnNameList := []string{}
	placeholderList := []string{}
	for i, field := range schema.Fields {
		columnNameList = append(columnNameList, fmt.Sprintf("%q", field.DatabaseColumnName))
		placeholderList = append(placeholderList, fmt.Sprintf("$%d", i+1))
	}
	columnList := "(" + strings.Join(columnNameList, ", ") + ")"

	for _, doc := range documents {
		valueList, err := core.EncodeDocumentValues(schema, doc)
		if err != nil {
			return err
		}
		sqlQuery := fmt.Sprintf("INSERT INTO %s %s VALUES (%s)",
			driver.formatTable(schema), columnList, strings.Join(placeholderList, ", "))

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
	argList := []any{}
	whereClause := driver.buildCondition(condition, &argList)

	setPartList := []string{}
	for column, value := range changes {
		argList = append(argList, value)
		setPartList = append(setPartList, fmt.Sprintf("%q = $%d", column, len(argList)))
	}

	sqlQuery := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		driver.formatTable(schema), strings.Join(setPartList, ", "), whereClause)

	_, err := driver.exec(ctx, sqlQuery, argList...)
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
	if err := driver.queryRow(ctx, sqlQuery, argList...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

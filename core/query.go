// Package core provides the building blocks of the ormx persistence layer.
// This file defines the fluent query builder used by the model's find and
// count operations.
package core

// Query represents a fluent query builder for an entity of type T.
//
// Example:
//
//	notes, err := noteModel.FindMany(ctx,
//		core.NewQuery(noteSchema).
//			Filter(func(f core.Filter[Note]) []*core.Condition {
//				return []*core.Condition{
//					f.Where(func(n *Note) any { return &n.Author }).Eq("ana"),
//				}
//			}).
//			OrderBy("created_at", -1).
//			Limit(10))
type Query[T any] struct {
	schema *SchemaMeta[T]
	where  *Where
}

// NewQuery creates a new Query instance for the given schema.
func NewQuery[T any](schema *SchemaMeta[T]) *Query[T] {
	return &Query[T]{
		schema: schema,
		where:  &Where{},
	}
}

// Where starts a condition for the selected field.
//
// It accepts either a selector function (func(*T) any returning a field
// pointer) or a column name string. The returned Condition maps the field
// to its database column name.
func (q *Query[T]) Where(field any) *Condition {
	var goFieldName string

	switch f := field.(type) {
	case func(*T) any:
		goFieldName = fieldNameFromSelectorFor[T](f)
	case string:
		if col := q.schema.FieldByColumn(f); col != nil {
			return &Condition{FieldName: col.DatabaseColumnName}
		}
		goFieldName = f
	default:
		panic("core: Where argument must be a column name or selector func(*T) any")
	}

	dbCol := goFieldName
	for _, f := range q.schema.Fields {
		if f.StructFieldName == goFieldName {
			dbCol = f.DatabaseColumnName
			break
		}
	}

	return &Condition{FieldName: dbCol}
}

// Filter builds the query's condition set functionally. The returned
// conditions are combined with AND.
func (q *Query[T]) Filter(build func(Filter[T]) []*Condition) *Query[T] {
	if build == nil {
		q.where.Condition = nil
		return q
	}
	scope := Filter[T]{query: q}
	conds := build(scope)
	q.where.Condition = foldConditionsAnd(conds...)
	return q
}

// Filter is the scope passed to the Filter function. It exposes a type-safe
// Where bound to the parent query.
type Filter[T any] struct{ query *Query[T] }

// Where delegates to the parent query's Where method.
func (f Filter[T]) Where(fieldPtr any) *Condition {
	return f.query.Where(fieldPtr)
}

// OrderBy adds an ordering rule. order is 1 (ASC) or -1 (DESC).
func (q *Query[T]) OrderBy(field string, order int) *Query[T] {
	q.where.Sort = append(q.where.Sort, Sort{FieldName: field, Order: order})
	return q
}

// Limit sets the maximum number of results to return.
func (q *Query[T]) Limit(limit int) *Query[T] {
	q.where.Limit = limit
	return q
}

// Offset sets the number of rows to skip.
func (q *Query[T]) Offset(offset int) *Query[T] {
	q.where.Offset = offset
	return q
}

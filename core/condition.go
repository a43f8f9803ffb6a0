// Package core provides the building blocks of the ormx persistence layer.
// This file defines the Condition tree used to express query filters in a
// backend-agnostic way; drivers translate it to SQL or BSON.
package core

// Condition represents a single clause in a query filter.
//
// A leaf condition names a column, an operator, and a value. Logical
// conditions (AND/OR/NOT) carry children instead.
type Condition struct {
	FieldName string
	Operator  *Operator
	Value     any
	Children  []*Condition
}

// And combines this condition with others using logical AND.
func (c *Condition) And(conditions ...*Condition) *Condition {
	return &Condition{
		Operator: &OpAnd,
		Children: append([]*Condition{c}, conditions...),
	}
}

// Or combines this condition with others using logical OR.
func (c *Condition) Or(conditions ...*Condition) *Condition {
	return &Condition{
		Operator: &OpOr,
		Children: append([]*Condition{c}, conditions...),
	}
}

// Not negates this condition.
func (c *Condition) Not() *Condition {
	return &Condition{
		Operator: &OpNot,
		Children: []*Condition{c},
	}
}

// Nil marks the condition as an IS NULL check.
func (c *Condition) Nil() *Condition {
	c.Operator = &OpNil
	c.Value = nil
	return c
}

// Eq sets an equality comparison.
func (c *Condition) Eq(v any) *Condition {
	c.Operator = &OpEq
	c.Value = v
	return c
}

// Gt sets a greater-than comparison.
func (c *Condition) Gt(v any) *Condition {
	c.Operator = &OpGt
	c.Value = v
	return c
}

// Gte sets a greater-than-or-equal comparison.
func (c *Condition) Gte(v any) *Condition {
	c.Operator = &OpGte
	c.Value = v
	return c
}

// Lt sets a less-than comparison.
func (c *Condition) Lt(v any) *Condition {
	c.Operator = &OpLt
	c.Value = v
	return c
}

// Lte sets a less-than-or-equal comparison.
func (c *Condition) Lte(v any) *Condition {
	c.Operator = &OpLte
	c.Value = v
	return c
}

// Like sets a pattern comparison. SQL drivers translate it to LIKE/ILIKE,
// the mongo driver to an anchored regex.
func (c *Condition) Like(v any) *Condition {
	c.Operator = &OpLike
	c.Value = v
	return c
}

// In sets a membership comparison against the given value list.
func (c *Condition) In(values ...any) *Condition {
	c.Operator = &OpIn
	c.Value = values
	return c
}

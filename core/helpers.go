// Package core provides the building blocks of the ormx persistence layer.
// This file contains the reflection helpers shared by the schema builder,
// the record model, and the export/import code: selector resolution, field
// access, value assignment, and condition folding.
package core

import (
	"reflect"
	"time"
	"unsafe"

	"github.com/pkg/errors"
)

var timeType = reflect.TypeOf(time.Time{})

// isTimeType reports whether t is time.Time or *time.Time.
func isTimeType(t reflect.Type) bool {
	return t == timeType || (t.Kind() == reflect.Pointer && t.Elem() == timeType)
}

// offsetOf returns the memory offset of a struct field selected by the given
// selector function.
func offsetOf[T any, F any](selector func(*T) *F) uintptr {
	var zero T
	base := uintptr(unsafe.Pointer(&zero))
	ptr := selector(&zero)
	return uintptr(unsafe.Pointer(ptr)) - base
}

// fieldNameFromSelectorFor resolves the Go struct field name from a selector
// function of the form func(*T) *F (or func(*T) any returning a field
// pointer).
//
// Panics if the argument is not a function or does not return a field pointer.
func fieldNameFromSelectorFor[T any](selector any) string {
	if selector == nil {
		return ""
	}
	selectorValue := reflect.ValueOf(selector)
	if selectorValue.Kind() != reflect.Func {
		panic("core: selector must be a function")
	}

	var zero T
	typ := reflect.TypeOf(zero)
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	arg := reflect.New(typ) // *T

	out := selectorValue.Call([]reflect.Value{arg})
	if len(out) == 0 {
		panic("core: selector must return a pointer to a field")
	}
	ret := out[0]
	if ret.Kind() == reflect.Interface {
		ret = ret.Elem()
	}
	if ret.Kind() != reflect.Pointer {
		panic("core: selector must return a pointer to a field")
	}

	offset := ret.Pointer() - arg.Pointer()
	for _, sf := range reflect.VisibleFields(typ) {
		if sf.Offset == offset {
			return sf.Name
		}
	}
	panic("core: selector does not point into the struct")
}

// fieldValue reads the value of a schema field from a struct, flattening
// non-nil pointers. A nil pointer field reads as untyped nil.
func fieldValue(doc reflect.Value, field *Field) any {
	fv := doc.FieldByName(field.StructFieldName)
	if fv.Kind() == reflect.Pointer {
		if fv.IsNil() {
			return nil
		}
		return fv.Elem().Interface()
	}
	return fv.Interface()
}

// assignField writes a raw value into a struct field, bridging the common
// shape mismatches between driver values and Go fields:
//
//  1. exact type match
//  2. value → pointer (time.Time → *time.Time)
//  3. pointer → value (*time.Time → time.Time)
//  4. convertible types (int64 → int, []byte → string)
func assignField(field reflect.Value, raw any) bool {
	if !field.IsValid() || !field.CanSet() {
		return false
	}

	if raw == nil {
		if field.Kind() == reflect.Pointer {
			field.Set(reflect.Zero(field.Type()))
			return true
		}
		return false
	}

	rv := reflect.ValueOf(raw)

	if rv.Type().AssignableTo(field.Type()) {
		field.Set(rv)
		return true
	}

	if field.Kind() == reflect.Pointer && rv.Type().AssignableTo(field.Type().Elem()) {
		ptr := reflect.New(field.Type().Elem())
		ptr.Elem().Set(rv)
		field.Set(ptr)
		return true
	}

	if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Type().Elem().AssignableTo(field.Type()) {
		field.Set(rv.Elem())
		return true
	}

	if rv.Type().ConvertibleTo(field.Type()) {
		field.Set(rv.Convert(field.Type()))
		return true
	}
	if field.Kind() == reflect.Pointer && rv.Type().ConvertibleTo(field.Type().Elem()) {
		ptr := reflect.New(field.Type().Elem())
		ptr.Elem().Set(rv.Convert(field.Type().Elem()))
		field.Set(ptr)
		return true
	}

	return false
}

// EncodeDocumentValues extracts every schema field value from doc in schema
// order, running field codecs on the way out. Drivers call it to obtain
// plain values they can bind directly.
func EncodeDocumentValues(schema *SchemaCore, doc any) ([]any, error) {
	value := reflect.ValueOf(doc)
	if value.Kind() == reflect.Pointer {
		value = value.Elem()
	}

	valueList := make([]any, 0, len(schema.Fields))
	for _, field := range schema.Fields {
		v := fieldValue(value, field)
		if field.Codec != nil {
			encoded, err := field.Codec.EncodeValue(v)
			if err != nil {
				return nil, errors.Wrapf(err, "encode column %q", field.DatabaseColumnName)
			}
			v = encoded
		}
		valueList = append(valueList, v)
	}
	return valueList, nil
}

// hydrateDocument maps a column-keyed row into a struct, running field
// codecs on the way in. Columns without a schema field fall back to
// case-insensitive struct field matching, so drivers may return extra
// columns without breaking hydration.
func hydrateDocument(schema *SchemaCore, row map[string]any, out reflect.Value) error {
	for column, raw := range row {
		field := schema.FieldByColumn(column)
		if field == nil {
			continue
		}
		if field.Codec != nil {
			decoded, err := field.Codec.DecodeValue(raw)
			if err != nil {
				return errors.Wrapf(err, "decode column %q", column)
			}
			raw = decoded
		}
		assignField(out.FieldByName(field.StructFieldName), raw)
	}
	return nil
}

// foldConditionsAnd combines conditions into a single AND condition.
// Zero conditions fold to nil, one folds to itself.
func foldConditionsAnd(conds ...*Condition) *Condition {
	switch len(conds) {
	case 0:
		return nil
	case 1:
		return conds[0]
	default:
		acc := conds[0]
		for i := 1; i < len(conds); i++ {
			acc = acc.And(conds[i])
		}
		return acc
	}
}

// setTimeField sets a time.Time into a struct field, supporting both value
// and pointer kinds.
func setTimeField(field reflect.Value, t time.Time) {
	if !field.IsValid() || !field.CanSet() {
		return
	}

	switch field.Kind() {
	case reflect.Struct:
		if field.Type() == timeType {
			field.Set(reflect.ValueOf(t))
		}
	case reflect.Pointer:
		if field.Type().Elem() == timeType {
			if field.IsNil() {
				ptr := reflect.New(timeType)
				ptr.Elem().Set(reflect.ValueOf(t))
				field.Set(ptr)
			} else {
				field.Elem().Set(reflect.ValueOf(t))
			}
		}
	}
}

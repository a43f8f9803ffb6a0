// Package core provides the building blocks of the ormx persistence layer.
// This file defines the Model[T], which ties a schema, a driver, and a
// signal dispatcher together: every construction, save, and delete runs
// through the model and emits the corresponding lifecycle signals.
package core

import (
	"context"
	"reflect"
	"time"

	"github.com/pkg/errors"
)

// ErrNoPrimaryKey is returned by operations that need to address one row
// (update-by-save, delete) on a schema without a primary key field.
var ErrNoPrimaryKey = errors.New("core: schema has no primary key field")

// Model is a repository-like abstraction for a schema T.
//
// It exposes the lifecycle operations (NewRecord, Save, Delete), the query
// operations (FindOne, FindMany, Count), and the model's signal dispatcher.
type Model[T any] struct {
	schema  *SchemaMeta[T]
	driver  Driver
	signals *Dispatcher[T]
}

// ModelOption customizes model construction.
type ModelOption[T any] func(*Model[T])

// WithDispatcher injects a shared signal dispatcher. Without it every model
// owns a private one.
func WithDispatcher[T any](d *Dispatcher[T]) ModelOption[T] {
	return func(m *Model[T]) { m.signals = d }
}

// NewModel creates a Model bound to a schema and driver.
//
// When the schema declares an updated_at field, a touch observer is
// pre-registered on pre_save: it refreshes the field to the current UTC
// instant before the delegated write, so the new value lands in the
// persisted row.
func NewModel[T any](schema *SchemaMeta[T], driver Driver, opts ...ModelOption[T]) *Model[T] {
	m := &Model[T]{schema: schema, driver: driver}
	for _, opt := range opts {
		opt(m)
	}
	if m.signals == nil {
		m.signals = NewDispatcher[T]()
	}

	if field := schema.updatedAtField; field != nil {
		m.signals.OnPreSave(func(doc *T, created bool) error {
			value := reflect.ValueOf(doc).Elem()
			setTimeField(value.FieldByName(field.StructFieldName), time.Now().UTC())
			return nil
		})
	}

	return m
}

// Signals returns the model's dispatcher for observer registration.
func (m *Model[T]) Signals() *Dispatcher[T] { return m.signals }

// Schema returns the model's schema.
func (m *Model[T]) Schema() *SchemaMeta[T] { return m.schema }

// Driver returns the model's driver.
func (m *Model[T]) Driver() Driver { return m.driver }

// NewRecord constructs a record: it allocates a zero T, populates the
// created_at/updated_at fields with the current UTC instant, and emits
// pre_init with the fully constructed instance. Observers may inspect or
// mutate fields before any persistence occurs.
func (m *Model[T]) NewRecord() (*T, error) {
	doc := new(T)
	m.applyTimestampDefaults(doc)
	if err := m.signals.emitInit(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (m *Model[T]) applyTimestampDefaults(doc *T) {
	now := time.Now().UTC()
	value := reflect.ValueOf(doc).Elem()
	if f := m.schema.createdAtField; f != nil {
		setTimeField(value.FieldByName(f.StructFieldName), now)
	}
	if f := m.schema.updatedAtField; f != nil {
		setTimeField(value.FieldByName(f.StructFieldName), now)
	}
}

// saveSettings collects per-save options.
type saveSettings struct {
	forceInsert bool
}

// SaveOption customizes a single Save call.
type SaveOption func(*saveSettings)

// ForceInsert makes Save insert even when the record already has a primary
// key value. The save counts as a creation: signals fire with created=true.
func ForceInsert() SaveOption {
	return func(s *saveSettings) { s.forceInsert = true }
}

// pkIsZero reports whether doc carries no primary key value. A schema
// without a primary key field reports true, so such records always insert.
func (m *Model[T]) pkIsZero(doc *T) bool {
	pk := m.schema.pkField
	if pk == nil {
		return true
	}
	fv := reflect.ValueOf(doc).Elem().FieldByName(pk.StructFieldName)
	return !fv.IsValid() || fv.IsZero()
}

// Save persists the record as an insert or an update.
//
// created is true when the record has no primary key value, or when the
// caller forces an insert. The sequence is: emit pre_save(created),
// delegate the write to the driver, emit post_save(created). A pre_save
// observer error aborts before the write; a driver error skips post_save.
// The driver's error is returned unchanged.
func (m *Model[T]) Save(ctx context.Context, doc *T, opts ...SaveOption) error {
	var settings saveSettings
	for _, opt := range opts {
		opt(&settings)
	}
	created := settings.forceInsert || m.pkIsZero(doc)

	op := OperationUpdate
	if created {
		op = OperationInsert
	}

	return dispatchOperation(ctx, op, doc, func() error {
		if err := m.signals.emitSave(SignalPreSave, doc, created); err != nil {
			return err
		}

		if created {
			if f := m.schema.createdAtField; f != nil {
				value := reflect.ValueOf(doc).Elem()
				if fv := value.FieldByName(f.StructFieldName); fv.IsValid() && fv.IsZero() {
					setTimeField(fv, time.Now().UTC())
				}
			}
			if err := m.driver.Insert(ctx, &m.schema.SchemaCore, doc); err != nil {
				return err
			}
		} else {
			changes, err := m.changesFor(doc)
			if err != nil {
				return err
			}
			cond, err := m.pkCondition(doc)
			if err != nil {
				return err
			}
			if err := m.driver.Update(ctx, &m.schema.SchemaCore, cond, changes); err != nil {
				return err
			}
		}

		return m.signals.emitSave(SignalPostSave, doc, created)
	})
}

// changesFor builds the update set for doc: every non-primary-key column,
// with field codecs applied.
func (m *Model[T]) changesFor(doc *T) (Changes, error) {
	value := reflect.ValueOf(doc).Elem()
	changes := make(Changes, len(m.schema.Fields))
	for _, field := range m.schema.Fields {
		if field.IsPrimaryKey {
			continue
		}
		v := fieldValue(value, field)
		if field.Codec != nil {
			encoded, err := field.Codec.EncodeValue(v)
			if err != nil {
				return nil, errors.Wrapf(err, "encode column %q", field.DatabaseColumnName)
			}
			v = encoded
		}
		changes[field.DatabaseColumnName] = v
	}
	return changes, nil
}

func (m *Model[T]) pkCondition(doc *T) (*Condition, error) {
	pk := m.schema.pkField
	if pk == nil {
		return nil, ErrNoPrimaryKey
	}
	value := reflect.ValueOf(doc).Elem()
	return (&Condition{FieldName: pk.DatabaseColumnName}).Eq(fieldValue(value, pk)), nil
}

// Delete removes the record addressed by its primary key.
//
// The sequence is: emit pre_delete, delegate to the driver, emit
// post_delete. A pre_delete observer error aborts before the delete; the
// driver's error is returned unchanged. Observers cannot veto beyond that.
func (m *Model[T]) Delete(ctx context.Context, doc *T) error {
	cond, err := m.pkCondition(doc)
	if err != nil {
		return err
	}
	return dispatchOperation(ctx, OperationDelete, doc, func() error {
		if err := m.signals.emitDelete(SignalPreDelete, doc); err != nil {
			return err
		}
		if err := m.driver.Delete(ctx, &m.schema.SchemaCore, cond); err != nil {
			return err
		}
		return m.signals.emitDelete(SignalPostDelete, doc)
	})
}

// FindOne retrieves the first record matching the query, or nil. Hydrated
// records emit pre_init, like constructed ones.
func (m *Model[T]) FindOne(ctx context.Context, query *Query[T]) (*T, error) {
	var result *T
	err := dispatchOperation(ctx, OperationFind, query, func() error {
		row, err := m.driver.FindOne(ctx, &m.schema.SchemaCore, query.where)
		if err != nil || row == nil {
			return err
		}
		doc, err := m.hydrate(row)
		if err != nil {
			return err
		}
		result = doc
		return nil
	})
	return result, err
}

// FindMany retrieves all records matching the query.
func (m *Model[T]) FindMany(ctx context.Context, query *Query[T]) ([]T, error) {
	var results []T
	err := dispatchOperation(ctx, OperationFind, query, func() error {
		rows, err := m.driver.FindMany(ctx, &m.schema.SchemaCore, query.where)
		if err != nil {
			return err
		}
		for _, row := range rows {
			doc, err := m.hydrate(row)
			if err != nil {
				return err
			}
			results = append(results, *doc)
		}
		return nil
	})
	return results, err
}

// Count returns the number of records matching the query.
func (m *Model[T]) Count(ctx context.Context, query *Query[T]) (int64, error) {
	var count int64
	err := dispatchOperation(ctx, OperationFind, query, func() error {
		var err error
		count, err = m.driver.Count(ctx, &m.schema.SchemaCore, query.where.Condition)
		return err
	})
	return count, err
}

func (m *Model[T]) hydrate(row map[string]any) (*T, error) {
	doc := new(T)
	if err := hydrateDocument(&m.schema.SchemaCore, row, reflect.ValueOf(doc).Elem()); err != nil {
		return nil, err
	}
	if err := m.signals.emitInit(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

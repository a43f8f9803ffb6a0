// Package core provides the building blocks of the ormx persistence layer.
// This file defines the schema system, which maps Go structs to database
// tables/collections, describes fields, codecs, relations, and the static
// export configuration used by ToDict and friends.
package core

import (
	"reflect"
	"strings"

	"github.com/gogo/protobuf/proto"
)

// Codec transforms a single field's values between Go and the database.
//
// EncodeValue runs on the write path (Save/Insert/Update), DecodeValue on the
// read path (row hydration). ColumnType reports the storage type to declare
// for the given dialect; schema migration tooling may use it, the runtime
// does not.
type Codec interface {
	EncodeValue(v any) (any, error)
	DecodeValue(v any) (any, error)
	ColumnType(d Dialect) string
}

// Field represents a struct field mapped to a database column.
type Field struct {
	StructFieldName    string       // Name of the field in the Go struct
	DatabaseColumnName string       // Name of the column in the database
	Type               reflect.Type // Go type of the field
	IsPrimaryKey       bool
	IsUnique           bool
	IsRequired         bool
	DefaultValue       string
	MemoryOffset       uintptr
	Codec              Codec // optional per-field value transform

	IsCreatedAt bool
	IsUpdatedAt bool
}

// FieldOption customizes a Field during schema construction.
type FieldOption func(*Field)

// PrimaryKey marks the field as the primary key.
func PrimaryKey() FieldOption {
	return func(f *Field) { f.IsPrimaryKey = true }
}

// Unique marks the field as unique.
func Unique() FieldOption {
	return func(f *Field) { f.IsUnique = true }
}

// Required marks the field as required (NOT NULL).
func Required() FieldOption {
	return func(f *Field) { f.IsRequired = true }
}

// Default sets the declared default value expression for the field.
func Default(value string) FieldOption {
	return func(f *Field) { f.DefaultValue = value }
}

// CreatedAt marks the field as the creation timestamp. It is populated once,
// when the record is constructed, and never touched again.
func CreatedAt() FieldOption {
	return func(f *Field) { f.IsCreatedAt = true }
}

// UpdatedAt marks the field as the modification timestamp. A pre_save
// observer refreshes it on every save.
func UpdatedAt() FieldOption {
	return func(f *Field) { f.IsUpdatedAt = true }
}

// WithCodec attaches a value codec to the field.
func WithCodec(codec Codec) FieldOption {
	return func(f *Field) { f.Codec = codec }
}

// ExportConfig is the static dict-export configuration of a schema,
// overridable per ToDict call.
type ExportConfig struct {
	Recurse    bool     // follow relations into nested dicts
	Backrefs   bool     // include relations marked as back-references
	Only       []string // column allow-list; empty means all
	Exclude    []string // column deny-list
	ExtraAttrs []string // zero-argument method names exported as extra keys
	MaxDepth   int      // relation recursion depth limit; 0 = unlimited
	ManyToMany bool     // include many-to-many relations
}

// SchemaCore is the type-erased part of a schema, shared with drivers.
type SchemaCore struct {
	Database       string
	Table          string
	Fields         []*Field
	fieldsByOffset map[uintptr]*Field
	pkField        *Field
}

// PrimaryKeyField returns the schema's primary key field, or nil when the
// schema declares none.
func (s *SchemaCore) PrimaryKeyField() *Field {
	return s.pkField
}

// FieldByColumn returns the field mapped to the given database column name,
// matching case-insensitively, or nil.
func (s *SchemaCore) FieldByColumn(column string) *Field {
	for _, f := range s.Fields {
		if strings.EqualFold(f.DatabaseColumnName, column) {
			return f
		}
	}
	return nil
}

// RelationKind distinguishes the supported relation shapes.
type RelationKind int

const (
	OneToOne   RelationKind = 1
	OneToMany  RelationKind = 2
	ManyToMany RelationKind = 3
)

// Relation declares a relation between two schemas using field selectors.
// It is resolved into a relationInternal at registration time.
type Relation[L any, F any] struct {
	Kind       RelationKind
	Field      any       // func(*L) any returning a pointer to the relation field
	RefSchema  SchemaRef // schema of the related entity
	LocalKey   any       // func(*L) any
	ForeignKey any       // func(*F) any
	JoinTable  string    // pivot table name (ManyToMany only)
	Backref    bool      // reverse relation, excluded from export unless Backrefs is set
}

// relationInternal is the normalized runtime form used by the export walker.
type relationInternal struct {
	Kind      RelationKind
	FieldName string
	Ref       SchemaRef
	Backref   bool
}

// SchemaRef is the type-erased view of a SchemaMeta, held by relations.
type SchemaRef interface {
	Core() *SchemaCore
	// exportValue exports a related struct value as a dict, sharing the
	// caller's recursion state.
	exportValue(v reflect.Value, st *exportState) any
}

// SchemaMeta describes one persistable type T: its storage mapping, special
// timestamp fields, relations, export defaults, and optional message binding.
type SchemaMeta[T any] struct {
	SchemaCore
	Export       ExportConfig
	relationList []relationInternal

	newMessage func() proto.Message

	createdAtField *Field
	updatedAtField *Field
}

// Core returns the type-erased part of the schema.
func (s *SchemaMeta[T]) Core() *SchemaCore { return &s.SchemaCore }

// AddRelation resolves the relation's selectors into field names and
// registers it on the schema.
func AddRelation[L any, F any](schema *SchemaMeta[L], r Relation[L, F]) {
	schema.relationList = append(schema.relationList, relationInternal{
		Kind:      r.Kind,
		FieldName: fieldNameFromSelectorFor[L](r.Field),
		Ref:       r.RefSchema,
		Backref:   r.Backref,
	})
}

// SchemaBuilder accumulates schema options before the fields are reflected.
type SchemaBuilder[T any] struct {
	database       string
	table          string
	tagKey         string
	export         *ExportConfig
	newMessage     func() proto.Message
	structType     reflect.Type
	fields         []*Field
	fieldsByOffset map[uintptr]*Field
}

// SchemaOption customizes schema construction.
type SchemaOption[T any] func(*SchemaBuilder[T])

// TagKey overrides the struct tag key used for column names (default "db").
func TagKey[T any](key string) SchemaOption[T] {
	return func(b *SchemaBuilder[T]) { b.tagKey = key }
}

// Table sets the table/collection name.
func Table[T any](name string) SchemaOption[T] {
	return func(b *SchemaBuilder[T]) { b.table = name }
}

// Database sets the database/schema name.
func Database[T any](name string) SchemaOption[T] {
	return func(b *SchemaBuilder[T]) { b.database = name }
}

// ExportDefaults sets the schema's static dict-export configuration.
func ExportDefaults[T any](cfg ExportConfig) SchemaOption[T] {
	return func(b *SchemaBuilder[T]) { b.export = &cfg }
}

// Message binds a protobuf message factory to the schema, used by ToMessage
// when the caller does not supply a message.
func Message[T any](factory func() proto.Message) SchemaOption[T] {
	return func(b *SchemaBuilder[T]) { b.newMessage = factory }
}

// OverrideField applies field options to the field selected by the selector.
//
// Example:
//
//	core.OverrideField(func(u *User) *string { return &u.Email }, core.Unique())
func OverrideField[T any, F any](selector func(*T) *F, opts ...FieldOption) SchemaOption[T] {
	return func(b *SchemaBuilder[T]) {
		// Options run once before reflection and once after; the override
		// only applies on the second pass, when the fields exist.
		if len(b.fieldsByOffset) == 0 {
			return
		}
		offset := offsetOf(selector)
		field, ok := b.fieldsByOffset[offset]
		if !ok {
			panic("core: OverrideField selector does not match a mapped field")
		}
		for _, opt := range opts {
			opt(field)
		}
	}
}

// Schema reflects T into a SchemaMeta.
//
// Column names come from the struct tag (default key "db"); tag flags after
// the name map to field options: pk, unique, required, created, updated.
// A field tagged "-" is ignored. Untagged fields use the Go field name.
//
// Example:
//
//	type Note struct {
//		ID        int64     `db:"id,pk"`
//		Body      string    `db:"body"`
//		CreatedAt time.Time `db:"created_at,created"`
//		UpdatedAt time.Time `db:"updated_at,updated"`
//	}
//
//	noteSchema := core.Schema[Note](core.Table[Note]("notes"))
func Schema[T any](options ...SchemaOption[T]) *SchemaMeta[T] {
	var zero T
	structType := reflect.TypeOf(zero)
	if structType.Kind() == reflect.Pointer {
		structType = structType.Elem()
	}

	builder := &SchemaBuilder[T]{
		structType:     structType,
		fieldsByOffset: make(map[uintptr]*Field),
	}

	// First pass so Table/Database/TagKey take effect before reflection.
	// OverrideField needs the fields to exist, so options run again below.
	for _, option := range options {
		option(builder)
	}

	tagKey := builder.tagKey
	if tagKey == "" {
		tagKey = "db"
	}

	for _, sf := range reflect.VisibleFields(structType) {
		tag := sf.Tag.Get(tagKey)
		name, flags, _ := strings.Cut(tag, ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = sf.Name
		}

		field := &Field{
			StructFieldName:    sf.Name,
			DatabaseColumnName: name,
			Type:               sf.Type,
			MemoryOffset:       sf.Offset,
		}
		applyTagFlags(field, flags)
		builder.fields = append(builder.fields, field)
		builder.fieldsByOffset[sf.Offset] = field
	}

	for _, option := range options {
		option(builder)
	}

	meta := &SchemaMeta[T]{
		SchemaCore: SchemaCore{
			Database:       builder.database,
			Table:          builder.table,
			Fields:         builder.fields,
			fieldsByOffset: builder.fieldsByOffset,
		},
		Export: ExportConfig{Recurse: true},
	}
	if builder.export != nil {
		meta.Export = *builder.export
	}
	meta.newMessage = builder.newMessage

	for _, f := range builder.fields {
		if f.IsPrimaryKey && meta.pkField == nil {
			meta.pkField = f
		}
		if f.IsCreatedAt {
			meta.createdAtField = f
		}
		if f.IsUpdatedAt {
			meta.updatedAtField = f
		}
		// Timestamp fields store timezone-aware UTC instants.
		if (f.IsCreatedAt || f.IsUpdatedAt) && f.Codec == nil && isTimeType(f.Type) {
			f.Codec = DatetimeTZ{}
		}
	}

	return meta
}

func applyTagFlags(field *Field, flags string) {
	for _, flag := range strings.Split(flags, ",") {
		switch flag {
		case "pk":
			field.IsPrimaryKey = true
		case "unique":
			field.IsUnique = true
		case "required":
			field.IsRequired = true
		case "created":
			field.IsCreatedAt = true
		case "updated":
			field.IsUpdatedAt = true
		}
	}
}

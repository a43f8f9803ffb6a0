// Package core provides the building blocks of the ormx persistence layer.
// This file defines the record export and import helpers: dict export with
// value casting, JSON export, protobuf message export, and partial update
// from a mapping.
package core

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/gogo/protobuf/jsonpb"
	"github.com/gogo/protobuf/proto"
	"github.com/pkg/errors"
)

// CastFunc coerces a single exported leaf value into its serialized form.
type CastFunc func(v any) any

// DefaultCast renders temporal values as RFC 3339 text in UTC and leaves
// everything else untouched. It is the cast applied by ToDict unless the
// caller overrides it.
func DefaultCast(v any) any {
	switch value := v.(type) {
	case time.Time:
		return value.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if value == nil {
			return nil
		}
		return value.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

// CastDict walks a dict recursively (nested dicts and lists included) and
// applies fn to every leaf value.
func CastDict(d map[string]any, fn CastFunc) map[string]any {
	out := make(map[string]any, len(d))
	for key, value := range d {
		out[key] = castValue(value, fn)
	}
	return out
}

func castValue(v any, fn CastFunc) any {
	switch value := v.(type) {
	case map[string]any:
		return CastDict(value, fn)
	case []any:
		list := make([]any, len(value))
		for i, item := range value {
			list[i] = castValue(item, fn)
		}
		return list
	default:
		return fn(v)
	}
}

// exportSettings is the per-call view of ExportConfig plus the options that
// only exist per call (cast function, JSON indentation).
type exportSettings struct {
	ExportConfig
	cast    CastFunc
	castSet bool
	indent  string
}

// ExportOption overrides the schema's static export configuration for one
// ToDict/ToJSON call.
type ExportOption func(*exportSettings)

// Recurse toggles following relations into nested dicts.
func Recurse(v bool) ExportOption {
	return func(s *exportSettings) { s.ExportConfig.Recurse = v }
}

// Backrefs toggles including relations marked as back-references.
func Backrefs(v bool) ExportOption {
	return func(s *exportSettings) { s.ExportConfig.Backrefs = v }
}

// Only restricts the export to the given columns.
func Only(columns ...string) ExportOption {
	return func(s *exportSettings) { s.ExportConfig.Only = columns }
}

// Exclude drops the given columns from the export.
func Exclude(columns ...string) ExportOption {
	return func(s *exportSettings) { s.ExportConfig.Exclude = columns }
}

// ExtraAttrs exports the named zero-argument methods as extra keys.
func ExtraAttrs(names ...string) ExportOption {
	return func(s *exportSettings) { s.ExportConfig.ExtraAttrs = names }
}

// MaxDepth limits relation recursion depth. Zero means unlimited.
func MaxDepth(n int) ExportOption {
	return func(s *exportSettings) { s.ExportConfig.MaxDepth = n }
}

// IncludeManyToMany toggles exporting many-to-many relations.
func IncludeManyToMany(v bool) ExportOption {
	return func(s *exportSettings) { s.ExportConfig.ManyToMany = v }
}

// CastWith overrides the cast function applied after export. Passing nil
// disables casting entirely.
func CastWith(fn CastFunc) ExportOption {
	return func(s *exportSettings) { s.cast = fn; s.castSet = true }
}

// Indent makes ToJSON emit indented output.
func Indent(indent string) ExportOption {
	return func(s *exportSettings) { s.indent = indent }
}

// exportState carries recursion bookkeeping across nested schemas.
type exportState struct {
	depth    int
	maxDepth int
	recurse  bool
	backrefs bool
	m2m      bool
	seen     map[uintptr]struct{}
}

// ToDict exports the record as a column-keyed map.
//
// The schema's static ExportConfig drives which columns and relations are
// included; per-call options override it. After export the cast function
// (DefaultCast unless overridden) is applied to every leaf value.
func (m *Model[T]) ToDict(doc *T, opts ...ExportOption) map[string]any {
	settings := exportSettings{ExportConfig: m.schema.Export}
	for _, opt := range opts {
		opt(&settings)
	}

	st := &exportState{
		maxDepth: settings.MaxDepth,
		recurse:  settings.ExportConfig.Recurse,
		backrefs: settings.ExportConfig.Backrefs,
		m2m:      settings.ExportConfig.ManyToMany,
		seen:     make(map[uintptr]struct{}),
	}
	d := m.schema.exportOne(reflect.ValueOf(doc).Elem(), &settings.ExportConfig, st)

	cast := CastFunc(DefaultCast)
	if settings.castSet {
		cast = settings.cast
	}
	if cast != nil {
		d = CastDict(d, cast)
	}
	return d
}

// ToJSON exports the record as JSON text, forwarding the Indent option to
// the serializer.
func (m *Model[T]) ToJSON(doc *T, opts ...ExportOption) ([]byte, error) {
	settings := exportSettings{}
	for _, opt := range opts {
		opt(&settings)
	}
	d := m.ToDict(doc, opts...)
	if settings.indent != "" {
		return json.MarshalIndent(d, "", settings.indent)
	}
	return json.Marshal(d)
}

// MessageOption customizes a single ToMessage call.
type MessageOption func(*messageSettings)

type messageSettings struct {
	ignoreUnknown bool
}

// IgnoreUnknownFields downgrades unknown dict keys from an UnknownFieldError
// to a silent skip during message conversion.
func IgnoreUnknownFields() MessageOption {
	return func(s *messageSettings) { s.ignoreUnknown = true }
}

// ToMessage converts the record's dict export into a protobuf message.
//
// msg may be nil when the schema has a message factory bound via the
// Message schema option. Conversion is strict by default: a dict key the
// message schema does not declare fails with an UnknownFieldError.
func (m *Model[T]) ToMessage(doc *T, msg proto.Message, opts ...MessageOption) (proto.Message, error) {
	var settings messageSettings
	for _, opt := range opts {
		opt(&settings)
	}

	if msg == nil {
		if m.schema.newMessage == nil {
			return nil, errors.New("core: no message bound to schema and none supplied")
		}
		msg = m.schema.newMessage()
	}

	data, err := json.Marshal(m.ToDict(doc))
	if err != nil {
		return nil, err
	}

	unmarshaler := jsonpb.Unmarshaler{AllowUnknownFields: settings.ignoreUnknown}
	if err := unmarshaler.Unmarshal(bytes.NewReader(data), msg); err != nil {
		if field, ok := unknownFieldFrom(err); ok {
			return nil, &UnknownFieldError{Field: field}
		}
		return nil, err
	}
	return msg, nil
}

// unknownFieldFrom recognizes jsonpb's unknown-field failure and extracts
// the offending field name.
func unknownFieldFrom(err error) (string, bool) {
	msg := err.Error()
	if !strings.Contains(msg, "unknown field") {
		return "", false
	}
	if start := strings.Index(msg, `"`); start >= 0 {
		if end := strings.Index(msg[start+1:], `"`); end >= 0 {
			return msg[start+1 : start+1+end], true
		}
	}
	return "", true
}

// UpdateFromDict applies a column-keyed mapping onto the record.
//
// Keys are matched against the schema's column names; field codecs run on
// the way in, so values produced by ToDict (temporal values as RFC 3339
// text) restore cleanly. An unrecognized key fails with an
// UnknownFieldError unless ignoreUnknown is set, in which case it is
// silently skipped.
func (m *Model[T]) UpdateFromDict(doc *T, data map[string]any, ignoreUnknown bool) error {
	value := reflect.ValueOf(doc).Elem()
	for key, raw := range data {
		field := m.schema.FieldByColumn(key)
		if field == nil {
			if ignoreUnknown {
				continue
			}
			return &UnknownFieldError{Field: key}
		}
		if field.Codec != nil {
			decoded, err := field.Codec.DecodeValue(raw)
			if err != nil {
				return errors.Wrapf(err, "decode column %q", key)
			}
			raw = decoded
		}
		if !assignField(value.FieldByName(field.StructFieldName), raw) && raw != nil {
			return &InvalidValueError{Field: key, Reason: "incompatible value"}
		}
	}
	return nil
}

// exportOne renders a single struct value as a dict, following relations
// according to the recursion state.
func (s *SchemaMeta[T]) exportOne(value reflect.Value, cfg *ExportConfig, st *exportState) map[string]any {
	if value.CanAddr() {
		addr := value.Addr().Pointer()
		if _, ok := st.seen[addr]; ok {
			return nil
		}
		st.seen[addr] = struct{}{}
	}

	d := make(map[string]any, len(s.Fields))
	for _, field := range s.Fields {
		if len(cfg.Only) > 0 && !containsFold(cfg.Only, field.DatabaseColumnName) {
			continue
		}
		if containsFold(cfg.Exclude, field.DatabaseColumnName) {
			continue
		}
		d[field.DatabaseColumnName] = fieldValue(value, field)
	}

	for _, attr := range cfg.ExtraAttrs {
		if v, ok := callExtraAttr(value, attr); ok {
			d[attr] = v
		}
	}

	if st.recurse && (st.maxDepth == 0 || st.depth < st.maxDepth) {
		for i := range s.relationList {
			rel := &s.relationList[i]
			if rel.Backref && !st.backrefs {
				continue
			}
			if rel.Kind == ManyToMany && !st.m2m {
				continue
			}
			fv := value.FieldByName(rel.FieldName)
			if !fv.IsValid() {
				continue
			}
			st.depth++
			d[columnNameForRelation(rel.FieldName)] = rel.Ref.exportValue(fv, st)
			st.depth--
		}
	}

	return d
}

// exportValue implements SchemaRef: it renders a related field value
// (struct, pointer, or slice) sharing the caller's recursion state.
func (s *SchemaMeta[T]) exportValue(v reflect.Value, st *exportState) any {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		return s.exportValue(v.Elem(), st)
	case reflect.Slice:
		list := make([]any, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			list = append(list, s.exportValue(v.Index(i), st))
		}
		return list
	case reflect.Struct:
		cfg := s.Export
		return s.exportOne(v, &cfg, st)
	default:
		return nil
	}
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}

// callExtraAttr invokes a zero-argument single-return method by name,
// trying the addressable receiver first so pointer methods resolve.
func callExtraAttr(value reflect.Value, name string) (any, bool) {
	method := value.MethodByName(name)
	if !method.IsValid() && value.CanAddr() {
		method = value.Addr().MethodByName(name)
	}
	if !method.IsValid() || method.Type().NumIn() != 0 || method.Type().NumOut() != 1 {
		return nil, false
	}
	return method.Call(nil)[0].Interface(), true
}

// columnNameForRelation derives the exported key from the relation's Go
// field name: snake_case, matching the column naming convention.
func columnNameForRelation(fieldName string) string {
	var b strings.Builder
	for i, r := range fieldName {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

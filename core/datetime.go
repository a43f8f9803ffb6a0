// Package core provides the building blocks of the ormx persistence layer.
// This file defines the timezone-safe datetime codec. Timestamps written
// through it are always timezone-aware and stored normalized to UTC, so rows
// read back the same instant regardless of the backend's session timezone.
package core

import (
	"fmt"
	"strings"
	"time"
)

// datetimeLayouts are tried in order when decoding textual timestamps.
// Layouts without a UTC offset are parsed as UTC.
var datetimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// layoutHasOffset reports whether the layout carries UTC offset information.
func layoutHasOffset(layout string) bool {
	return strings.Contains(layout, "Z07:00")
}

// parseDatetime parses a textual timestamp against the known layouts.
// The second return reports whether the text carried an explicit UTC offset.
func parseDatetime(s string) (time.Time, bool, error) {
	for _, layout := range datetimeLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return t, layoutHasOffset(layout), nil
	}
	return time.Time{}, false, fmt.Errorf("unrecognized timestamp %q", s)
}

// DatetimeTZ is the Codec attached to timezone-aware timestamp columns.
//
// Decode accepts textual timestamps (parsed flexibly, offset-less text taken
// as UTC), time.Time values (converted to UTC), and passes anything else
// through unchanged. Encode accepts nil, time.Time (normalized to UTC), and
// textual timestamps carrying an explicit offset; offset-less text fails with
// an InvalidValueError, as does any non-temporal value. The two error cases
// exist so that naive timestamps can never silently corrupt stored instants.
type DatetimeTZ struct{}

var _ Codec = DatetimeTZ{}

// DecodeValue converts a persisted raw value into a UTC time.Time.
func (DatetimeTZ) DecodeValue(v any) (any, error) {
	switch value := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return value.UTC(), nil
	case *time.Time:
		if value == nil {
			return nil, nil
		}
		return value.UTC(), nil
	case []byte:
		return decodeDatetimeText(string(value))
	case string:
		return decodeDatetimeText(value)
	default:
		return v, nil
	}
}

func decodeDatetimeText(s string) (any, error) {
	t, _, err := parseDatetime(s)
	if err != nil {
		return nil, err
	}
	return t.UTC(), nil
}

// EncodeValue converts a value to persist into a UTC time.Time.
func (DatetimeTZ) EncodeValue(v any) (any, error) {
	switch value := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return value.UTC(), nil
	case *time.Time:
		if value == nil {
			return nil, nil
		}
		return value.UTC(), nil
	case string:
		t, aware, err := parseDatetime(value)
		if err != nil || !aware {
			return nil, &InvalidValueError{Reason: "timezone aware datetime required"}
		}
		return t.UTC(), nil
	default:
		return nil, &InvalidValueError{Reason: "datetime instance required"}
	}
}

// ColumnType declares microsecond precision on MySQL and a timezone-aware
// column on Postgres; other backends store whatever their driver maps
// time.Time to.
func (DatetimeTZ) ColumnType(d Dialect) string {
	switch d {
	case DialectMySQL:
		return "DATETIME(6)"
	case DialectPostgres:
		return "TIMESTAMPTZ"
	default:
		return "DATETIME"
	}
}

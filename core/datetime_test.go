package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/earlzo/ormx/core"
)

func TestDatetimeTZDecodeValue(t *testing.T) {
	codec := core.DatetimeTZ{}

	t.Run("offset-less text is taken as UTC", func(t *testing.T) {
		v, err := codec.DecodeValue("2021-03-04 05:06:07")
		require.NoError(t, err)
		ts, ok := v.(time.Time)
		require.True(t, ok)
		assert.Equal(t, time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC), ts)
	})

	t.Run("T-separated offset-less text is taken as UTC", func(t *testing.T) {
		for _, input := range []string{
			"2021-03-04T05:06:07",
			"2021-03-04T05:06:07.5",
		} {
			v, err := codec.DecodeValue(input)
			require.NoError(t, err, input)
			ts, ok := v.(time.Time)
			require.True(t, ok)
			assert.Equal(t, time.UTC, ts.Location())
			assert.Equal(t, time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC), ts.Truncate(time.Second))
		}
	})

	t.Run("text with offset normalizes to UTC", func(t *testing.T) {
		v, err := codec.DecodeValue("2021-03-04T05:06:07+02:00")
		require.NoError(t, err)
		ts, ok := v.(time.Time)
		require.True(t, ok)
		assert.Equal(t, time.Date(2021, 3, 4, 3, 6, 7, 0, time.UTC), ts)
		assert.Equal(t, time.UTC, ts.Location())
	})

	t.Run("byte slices decode like strings", func(t *testing.T) {
		v, err := codec.DecodeValue([]byte("2021-03-04T05:06:07Z"))
		require.NoError(t, err)
		assert.Equal(t, time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC), v)
	})

	t.Run("time values convert to UTC", func(t *testing.T) {
		loc := time.FixedZone("XST", 8*3600)
		v, err := codec.DecodeValue(time.Date(2021, 3, 4, 13, 6, 7, 0, loc))
		require.NoError(t, err)
		ts := v.(time.Time)
		assert.Equal(t, time.UTC, ts.Location())
		assert.Equal(t, time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC), ts)
	})

	t.Run("nil stays nil", func(t *testing.T) {
		v, err := codec.DecodeValue(nil)
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("garbage text fails", func(t *testing.T) {
		_, err := codec.DecodeValue("not a timestamp")
		assert.Error(t, err)
	})
}

func TestDatetimeTZEncodeValue(t *testing.T) {
	codec := core.DatetimeTZ{}

	t.Run("time values normalize to UTC", func(t *testing.T) {
		loc := time.FixedZone("XST", 8*3600)
		v, err := codec.EncodeValue(time.Date(2021, 3, 4, 13, 6, 7, 0, loc))
		require.NoError(t, err)
		ts := v.(time.Time)
		assert.Equal(t, time.UTC, ts.Location())
		assert.Equal(t, time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC), ts)
	})

	t.Run("aware text is accepted", func(t *testing.T) {
		v, err := codec.EncodeValue("2021-03-04T05:06:07+02:00")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2021, 3, 4, 3, 6, 7, 0, time.UTC), v)
	})

	t.Run("offset-less text is rejected", func(t *testing.T) {
		for _, input := range []string{
			"2021-03-04 05:06:07",
			"2021-03-04T05:06:07",
		} {
			_, err := codec.EncodeValue(input)
			require.Error(t, err, input)
			assert.True(t, core.IsInvalidValue(err))
			assert.Contains(t, err.Error(), "timezone aware datetime required")
		}
	})

	t.Run("non-temporal values are rejected", func(t *testing.T) {
		_, err := codec.EncodeValue(42)
		require.Error(t, err)
		assert.True(t, core.IsInvalidValue(err))
		assert.Contains(t, err.Error(), "datetime instance required")
	})

	t.Run("nil stays nil", func(t *testing.T) {
		v, err := codec.EncodeValue(nil)
		require.NoError(t, err)
		assert.Nil(t, v)
	})
}

func TestDatetimeTZRoundTrip(t *testing.T) {
	codec := core.DatetimeTZ{}
	original := time.Date(2022, 11, 30, 23, 59, 59, 123456000, time.FixedZone("XST", -5*3600))

	encoded, err := codec.EncodeValue(original)
	require.NoError(t, err)
	decoded, err := codec.DecodeValue(encoded)
	require.NoError(t, err)

	assert.True(t, original.Equal(decoded.(time.Time)))
}

func TestDatetimeTZColumnType(t *testing.T) {
	codec := core.DatetimeTZ{}
	assert.Equal(t, "DATETIME(6)", codec.ColumnType(core.DialectMySQL))
	assert.Equal(t, "TIMESTAMPTZ", codec.ColumnType(core.DialectPostgres))
	assert.Equal(t, "DATETIME", codec.ColumnType(core.DialectSQLite))
}

package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/earlzo/ormx/core"
)

func TestSchemaReflectsTagsAndFlags(t *testing.T) {
	schema := noteSchema()

	assert.Equal(t, "notes", schema.Table)
	require.Len(t, schema.Fields, 5)

	pk := schema.PrimaryKeyField()
	require.NotNil(t, pk)
	assert.Equal(t, "id", pk.DatabaseColumnName)
	assert.Equal(t, "ID", pk.StructFieldName)

	created := schema.FieldByColumn("created_at")
	require.NotNil(t, created)
	assert.True(t, created.IsCreatedAt)
	assert.NotNil(t, created.Codec)

	updated := schema.FieldByColumn("updated_at")
	require.NotNil(t, updated)
	assert.True(t, updated.IsUpdatedAt)
}

func TestSchemaSkipsDashFields(t *testing.T) {
	type Draft struct {
		ID    int64  `db:"id,pk"`
		Cache string `db:"-"`
	}
	schema := core.Schema[Draft](core.Table[Draft]("drafts"))
	assert.Len(t, schema.Fields, 1)
	assert.Nil(t, schema.FieldByColumn("Cache"))
}

func TestSchemaFieldByColumnIsCaseInsensitive(t *testing.T) {
	schema := noteSchema()
	assert.NotNil(t, schema.FieldByColumn("Created_At"))
}

func TestSchemaOverrideField(t *testing.T) {
	type Session struct {
		Token   string    `db:"token,pk"`
		Expires time.Time `db:"expires"`
	}
	schema := core.Schema[Session](
		core.Table[Session]("sessions"),
		core.OverrideField[Session](func(s *Session) *time.Time { return &s.Expires },
			core.WithCodec(core.DatetimeTZ{})),
	)

	field := schema.FieldByColumn("expires")
	require.NotNil(t, field)
	assert.NotNil(t, field.Codec)
}

func TestQueryWhereWithSelector(t *testing.T) {
	schema := noteSchema()
	query := core.NewQuery(schema).Filter(func(f core.Filter[Note]) []*core.Condition {
		return []*core.Condition{
			f.Where(func(n *Note) any { return &n.Author }).Eq("ana"),
		}
	})

	cond := queryCondition(t, schema, query)
	assert.Equal(t, "author", cond.FieldName)
	assert.Equal(t, "ana", cond.Value)
}

func TestQueryWhereWithColumnName(t *testing.T) {
	schema := noteSchema()
	query := core.NewQuery(schema).Filter(func(f core.Filter[Note]) []*core.Condition {
		return []*core.Condition{f.Where("body").Like("%go%")}
	})

	cond := queryCondition(t, schema, query)
	assert.Equal(t, "body", cond.FieldName)
	assert.Equal(t, "%go%", cond.Value)
}

func TestQueryFoldsConditionsWithAnd(t *testing.T) {
	schema := noteSchema()
	query := core.NewQuery(schema).Filter(func(f core.Filter[Note]) []*core.Condition {
		return []*core.Condition{
			f.Where("author").Eq("ana"),
			f.Where("id").Gt(int64(10)),
		}
	})

	cond := queryCondition(t, schema, query)
	require.NotNil(t, cond.Operator)
	assert.Equal(t, core.OpAnd, *cond.Operator)
	assert.Len(t, cond.Children, 2)
}

// queryCondition runs the query through a fake driver and captures the
// condition the driver receives, so tests assert on what actually executes.
func queryCondition(t *testing.T, schema *core.SchemaMeta[Note], query *core.Query[Note]) *core.Condition {
	t.Helper()
	driver := &capturingDriver{}
	model := core.NewModel(schema, driver)
	_, err := model.Count(context.Background(), query)
	require.NoError(t, err)
	require.NotNil(t, driver.condition)
	return driver.condition
}

type capturingDriver struct {
	fakeDriver
	condition *core.Condition
}

func (d *capturingDriver) Count(ctx context.Context, schema *core.SchemaCore, condition *core.Condition) (int64, error) {
	d.condition = condition
	return 0, nil
}

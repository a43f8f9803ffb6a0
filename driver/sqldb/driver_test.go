package sqldb_test

import (
	"context"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/earlzo/ormx/core"
	"github.com/earlzo/ormx/driver/sqldb"
)

type Note struct {
	ID        int64     `db:"id,pk"`
	Body      string    `db:"body"`
	Author    string    `db:"author"`
	CreatedAt time.Time `db:"created_at,created"`
	UpdatedAt time.Time `db:"updated_at,updated"`
}

const createNotesTable = `
CREATE TABLE notes (
	id         INTEGER PRIMARY KEY,
	body       TEXT,
	author     TEXT,
	created_at DATETIME,
	updated_at DATETIME
)`

// openSQLite pins the pool to one connection: every in-memory connection
// would otherwise see its own empty database.
func openSQLite(t *testing.T) *sqldb.Driver {
	t.Helper()
	driver, err := sqldb.NewDriver(context.Background(), sqldb.FlavorSQLite, "file::memory:", sqldb.Options{MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { driver.Close(context.Background()) })

	_, err = driver.Exec(context.Background(), createNotesTable)
	require.NoError(t, err)
	return driver
}

func newNoteModel(driver core.Driver) *core.Model[Note] {
	return core.NewModel(core.Schema[Note](core.Table[Note]("notes")), driver)
}

func TestSQLiteInsertAndFindOne(t *testing.T) {
	driver := openSQLite(t)
	model := newNoteModel(driver)
	ctx := context.Background()

	note := &Note{ID: 1, Body: uuid.NewString(), Author: "ana"}
	require.NoError(t, model.Save(ctx, note, core.ForceInsert()))

	found, err := model.FindOne(ctx, core.NewQuery(model.Schema()).
		Filter(func(f core.Filter[Note]) []*core.Condition {
			return []*core.Condition{f.Where("id").Eq(int64(1))}
		}))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, note.Body, found.Body)
	assert.Equal(t, "ana", found.Author)
}

func TestSQLiteTimestampsSurviveStorage(t *testing.T) {
	driver := openSQLite(t)
	model := newNoteModel(driver)
	ctx := context.Background()

	note, err := model.NewRecord()
	require.NoError(t, err)
	note.ID = 2
	note.Body = "instant"
	require.NoError(t, model.Save(ctx, note, core.ForceInsert()))

	found, err := model.FindOne(ctx, core.NewQuery(model.Schema()).
		Filter(func(f core.Filter[Note]) []*core.Condition {
			return []*core.Condition{f.Where("id").Eq(int64(2))}
		}))
	require.NoError(t, err)
	require.NotNil(t, found)

	assert.True(t, note.CreatedAt.Equal(found.CreatedAt))
	assert.Equal(t, time.UTC, found.CreatedAt.Location())
}

func TestSQLiteUpdate(t *testing.T) {
	driver := openSQLite(t)
	model := newNoteModel(driver)
	ctx := context.Background()

	note := &Note{ID: 3, Body: "before"}
	require.NoError(t, model.Save(ctx, note, core.ForceInsert()))

	note.Body = "after"
	require.NoError(t, model.Save(ctx, note))

	found, err := model.FindOne(ctx, core.NewQuery(model.Schema()).
		Filter(func(f core.Filter[Note]) []*core.Condition {
			return []*core.Condition{f.Where("id").Eq(int64(3))}
		}))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "after", found.Body)
}

func TestSQLiteDeleteAndCount(t *testing.T) {
	driver := openSQLite(t)
	model := newNoteModel(driver)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, model.Save(ctx, &Note{ID: i, Body: "n"}, core.ForceInsert()))
	}

	count, err := model.Count(ctx, core.NewQuery(model.Schema()))
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	require.NoError(t, model.Delete(ctx, &Note{ID: 2}))

	count, err = model.Count(ctx, core.NewQuery(model.Schema()))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSQLiteFindManyOrderAndLimit(t *testing.T) {
	driver := openSQLite(t)
	model := newNoteModel(driver)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, model.Save(ctx, &Note{ID: i, Body: "n"}, core.ForceInsert()))
	}

	notes, err := model.FindMany(ctx, core.NewQuery(model.Schema()).
		OrderBy("id", -1).
		Limit(2))
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, int64(5), notes[0].ID)
	assert.Equal(t, int64(4), notes[1].ID)
}

func TestSQLiteTransactionRollback(t *testing.T) {
	driver := openSQLite(t)
	model := newNoteModel(driver)
	ctx := context.Background()

	err := core.RunTransaction(ctx, driver, func(txCtx context.Context) error {
		if err := model.Save(txCtx, &Note{ID: 10, Body: "doomed"}, core.ForceInsert()); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	count, err := model.Count(ctx, core.NewQuery(model.Schema()))
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestSQLiteTransactionCommit(t *testing.T) {
	driver := openSQLite(t)
	model := newNoteModel(driver)
	ctx := context.Background()

	err := core.RunTransaction(ctx, driver, func(txCtx context.Context) error {
		return model.Save(txCtx, &Note{ID: 11, Body: "kept"}, core.ForceInsert())
	})
	require.NoError(t, err)

	count, err := model.Count(ctx, core.NewQuery(model.Schema()))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSQLiteConditionOperators(t *testing.T) {
	driver := openSQLite(t)
	model := newNoteModel(driver)
	ctx := context.Background()

	authors := []string{"ana", "bob", "carla"}
	for i, author := range authors {
		require.NoError(t, model.Save(ctx, &Note{ID: int64(i + 1), Author: author, Body: "x"}, core.ForceInsert()))
	}

	matched, err := model.FindMany(ctx, core.NewQuery(model.Schema()).
		Filter(func(f core.Filter[Note]) []*core.Condition {
			return []*core.Condition{
				f.Where("author").Like("%a%"),
				f.Where("id").Gt(int64(1)),
			}
		}))
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "carla", matched[0].Author)
}

// MySQL runs only when a server is reachable; set ORMX_TEST_MYSQL_DSN to a
// go-sql-driver DSN (user:pass@tcp(host:port)/db?parseTime=true) to enable.
func TestMySQLRoundTrip(t *testing.T) {
	dsn := os.Getenv("ORMX_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("ORMX_TEST_MYSQL_DSN not set")
	}

	ctx := context.Background()
	driver, err := sqldb.NewDriver(ctx, sqldb.FlavorMySQL, dsn, sqldb.Options{MaxOpenConns: 4})
	require.NoError(t, err)
	defer driver.Close(ctx)

	table := "notes_" + uuid.NewString()[:8]
	_, err = driver.Exec(ctx, "CREATE TABLE `"+table+"` (id BIGINT PRIMARY KEY, body TEXT, author TEXT, created_at DATETIME(6), updated_at DATETIME(6))")
	require.NoError(t, err)
	defer driver.Exec(ctx, "DROP TABLE `"+table+"`")

	model := core.NewModel(core.Schema[Note](core.Table[Note](table)), driver)

	note := &Note{ID: 1, Body: "mysql", Author: "ana"}
	require.NoError(t, model.Save(ctx, note, core.ForceInsert()))

	found, err := model.FindOne(ctx, core.NewQuery(model.Schema()).
		Filter(func(f core.Filter[Note]) []*core.Condition {
			return []*core.Condition{f.Where("id").Eq(int64(1))}
		}))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "mysql", found.Body)
}

package core_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gogo/protobuf/proto"
	"github.com/gogo/protobuf/types"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/earlzo/ormx/core"
)

func (n *Note) WordCount() int {
	count := 0
	inWord := false
	for _, r := range n.Body {
		if r == ' ' {
			inWord = false
			continue
		}
		if !inWord {
			count++
			inWord = true
		}
	}
	return count
}

func TestToDictCastsTemporalValues(t *testing.T) {
	model := core.NewModel(noteSchema(), &fakeDriver{})

	note := &Note{
		ID:        1,
		Body:      "hello world",
		Author:    "ana",
		CreatedAt: time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC),
	}

	d := model.ToDict(note)
	assert.Equal(t, int64(1), d["id"])
	assert.Equal(t, "hello world", d["body"])
	assert.Equal(t, "2021-03-04T05:06:07Z", d["created_at"])
}

func TestToDictOnlyAndExclude(t *testing.T) {
	model := core.NewModel(noteSchema(), &fakeDriver{})
	note := &Note{ID: 1, Body: "secret", Author: "ana"}

	only := model.ToDict(note, core.Only("id", "author"))
	assert.Equal(t, map[string]any{"id": int64(1), "author": "ana"}, only)

	excluded := model.ToDict(note, core.Exclude("body"))
	assert.NotContains(t, excluded, "body")
	assert.Contains(t, excluded, "author")
}

func TestToDictExtraAttrs(t *testing.T) {
	model := core.NewModel(noteSchema(), &fakeDriver{})
	note := &Note{Body: "one two three"}

	d := model.ToDict(note, core.ExtraAttrs("WordCount"))
	assert.Equal(t, 3, d["WordCount"])
}

func TestToDictCustomCast(t *testing.T) {
	model := core.NewModel(noteSchema(), &fakeDriver{})
	note := &Note{CreatedAt: time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)}

	d := model.ToDict(note, core.CastWith(func(v any) any {
		if ts, ok := v.(time.Time); ok {
			return ts.Unix()
		}
		return v
	}))
	assert.Equal(t, int64(1614834367), d["created_at"])
}

func TestToJSON(t *testing.T) {
	model := core.NewModel(noteSchema(), &fakeDriver{})
	note := &Note{ID: 5, Body: "json me"}

	raw, err := model.ToJSON(note)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, float64(5), decoded["id"])
	assert.Equal(t, "json me", decoded["body"])
}

func TestToJSONIndent(t *testing.T) {
	model := core.NewModel(noteSchema(), &fakeDriver{})
	raw, err := model.ToJSON(&Note{ID: 5}, core.Indent("  "))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"id\"")
}

func TestUpdateFromDictRoundTrip(t *testing.T) {
	model := core.NewModel(noteSchema(), &fakeDriver{})

	original := &Note{
		ID:        8,
		Body:      "round trip",
		Author:    "ana",
		CreatedAt: time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC),
		UpdatedAt: time.Date(2021, 3, 5, 5, 6, 7, 0, time.UTC),
	}

	restored := &Note{}
	require.NoError(t, model.UpdateFromDict(restored, model.ToDict(original), false))

	if diff := cmp.Diff(original, restored); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateFromDictUnknownKeyStrict(t *testing.T) {
	model := core.NewModel(noteSchema(), &fakeDriver{})

	err := model.UpdateFromDict(&Note{}, map[string]any{"no_such_column": 1}, false)
	require.Error(t, err)
	assert.True(t, core.IsUnknownField(err))
	assert.Contains(t, err.Error(), "no_such_column")
}

func TestUpdateFromDictUnknownKeyIgnored(t *testing.T) {
	model := core.NewModel(noteSchema(), &fakeDriver{})

	note := &Note{}
	err := model.UpdateFromDict(note, map[string]any{
		"body":           "kept",
		"no_such_column": 1,
	}, true)
	require.NoError(t, err)
	assert.Equal(t, "kept", note.Body)
}

func TestUpdateFromDictIncompatibleValue(t *testing.T) {
	model := core.NewModel(noteSchema(), &fakeDriver{})

	err := model.UpdateFromDict(&Note{}, map[string]any{"id": []string{"nope"}}, false)
	require.Error(t, err)
	assert.True(t, core.IsInvalidValue(err))
}

func TestToMessageStrictRejectsUnknownFields(t *testing.T) {
	model := core.NewModel(noteSchema(), &fakeDriver{})

	_, err := model.ToMessage(&Note{ID: 1}, &types.Empty{})
	require.Error(t, err)
	assert.True(t, core.IsUnknownField(err))
}

func TestToMessageIgnoreUnknownFields(t *testing.T) {
	model := core.NewModel(noteSchema(), &fakeDriver{})

	msg, err := model.ToMessage(&Note{ID: 1}, &types.Empty{}, core.IgnoreUnknownFields())
	require.NoError(t, err)
	assert.NotNil(t, msg)
}

func TestToMessageUsesBoundFactory(t *testing.T) {
	schema := core.Schema[Note](
		core.Table[Note]("notes"),
		core.Message[Note](func() proto.Message { return &types.Struct{} }),
	)
	model := core.NewModel(schema, &fakeDriver{})

	msg, err := model.ToMessage(&Note{ID: 1, Body: "structured"}, nil)
	require.NoError(t, err)

	st, ok := msg.(*types.Struct)
	require.True(t, ok)
	assert.Equal(t, "structured", st.Fields["body"].GetStringValue())
}

func TestToMessageWithoutFactoryOrMessage(t *testing.T) {
	model := core.NewModel(noteSchema(), &fakeDriver{})
	_, err := model.ToMessage(&Note{}, nil)
	assert.Error(t, err)
}

type Tag struct {
	ID   int64  `db:"id,pk"`
	Name string `db:"name"`
}

type Post struct {
	ID    int64  `db:"id,pk"`
	Title string `db:"title"`
	Tags  []Tag  `db:"-"`
}

func TestToDictRecursesRelations(t *testing.T) {
	tagSchema := core.Schema[Tag](core.Table[Tag]("tags"))
	postSchema := core.Schema[Post](core.Table[Post]("posts"))
	core.AddRelation(postSchema, core.Relation[Post, Tag]{
		Kind:      core.OneToMany,
		Field:     func(p *Post) any { return &p.Tags },
		RefSchema: tagSchema,
	})

	model := core.NewModel(postSchema, &fakeDriver{})
	post := &Post{
		ID:    1,
		Title: "relations",
		Tags:  []Tag{{ID: 10, Name: "go"}, {ID: 11, Name: "orm"}},
	}

	d := model.ToDict(post)
	tags, ok := d["tags"].([]any)
	require.True(t, ok)
	require.Len(t, tags, 2)
	first := tags[0].(map[string]any)
	assert.Equal(t, "go", first["name"])
}

func TestToDictRecurseDisabled(t *testing.T) {
	tagSchema := core.Schema[Tag](core.Table[Tag]("tags"))
	postSchema := core.Schema[Post](core.Table[Post]("posts"))
	core.AddRelation(postSchema, core.Relation[Post, Tag]{
		Kind:      core.OneToMany,
		Field:     func(p *Post) any { return &p.Tags },
		RefSchema: tagSchema,
	})

	model := core.NewModel(postSchema, &fakeDriver{})
	post := &Post{ID: 1, Tags: []Tag{{ID: 10, Name: "go"}}}

	d := model.ToDict(post, core.Recurse(false))
	assert.NotContains(t, d, "tags")
}

type Employee struct {
	ID      int64     `db:"id,pk"`
	Name    string    `db:"name"`
	Manager *Employee `db:"-"`
}

func TestToDictCyclicRelationTerminates(t *testing.T) {
	schema := core.Schema[Employee](core.Table[Employee]("employees"))
	core.AddRelation(schema, core.Relation[Employee, Employee]{
		Kind:      core.OneToOne,
		Field:     func(e *Employee) any { return &e.Manager },
		RefSchema: schema,
	})

	boss := &Employee{ID: 1, Name: "dana"}
	report := &Employee{ID: 2, Name: "eli", Manager: boss}
	boss.Manager = report

	model := core.NewModel(schema, &fakeDriver{})
	d := model.ToDict(report)
	assert.Equal(t, "eli", d["name"])

	manager, ok := d["manager"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "dana", manager["name"])
	assert.Nil(t, manager["manager"])
}

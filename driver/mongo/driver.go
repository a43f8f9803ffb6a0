// Package mongo implements the core.Driver contract on the official MongoDB
// driver. Operations run under the context transaction's session when one is
// active; otherwise each call uses the client's pooled topology directly.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/earlzo/ormx/core"
)

// Driver is the mongo-backed core.Driver.
type Driver struct {
	client          *mongo.Client
	defaultDatabase string
}

var _ core.Driver = (*Driver)(nil)

// NewDriver connects a client for the given URI. defaultDatabase is used for
// schemas that do not name a database of their own.
func NewDriver(ctx context.Context, uri string, defaultDatabase string) (*Driver, error) {
	opts := mopt.Client().ApplyURI(uri)
	opts.SetConnectTimeout(10 * time.Second).SetServerSelectionTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &Driver{client: client, defaultDatabase: defaultDatabase}, nil
}

// Dialect reports the mongo dialect.
func (driver *Driver) Dialect() core.Dialect { return core.DialectMongo }

func (driver *Driver) coll(schema *core.SchemaCore) (*mongo.Collection, error) {
	dbName := driver.defaultDatabase
	if schema.Database != "" {
		dbName = schema.Database
	}
	if dbName == "" {
		return nil, errors.New("mongo driver: no database name on schema or driver")
	}
	if schema.Table == "" {
		return nil, errors.New("mongo driver: schema has no collection name")
	}
	return driver.client.Database(dbName).Collection(schema.Table), nil
}

// withSession binds the context transaction's session to the context so the
// collection calls below participate in it.
func (driver *Driver) withSession(ctx context.Context) context.Context {
	if tx := core.TransactionFrom(ctx); tx != nil {
		if mt, ok := tx.(*mongoTransaction); ok {
			return mongo.NewSessionContext(ctx, mt.session)
		}
	}
	return ctx
}

func (driver *Driver) buildFilter(condition *core.Condition) bson.M {
	if condition == nil {
		return bson.M{}
	}
	if len(condition.Children) > 0 {
		childFilterList := make([]bson.M, 0, len(condition.Children))
		for _, child := range condition.Children {
			childFilterList = append(childFilterList, driver.buildFilter(child))
		}
		switch *condition.Operator {
		case core.OpAnd:
			return bson.M{"$and": childFilterList}
		case core.OpOr:
			return bson.M{"$or": childFilterList}
		case core.OpNot:
			return bson.M{"$nor": childFilterList}
		default:
			return bson.M{}
		}
	}

	fieldName := condition.FieldName
	switch *condition.Operator {
	case core.OpNil:
		return bson.M{fieldName: bson.M{"$eq": nil}}
	case core.OpEq:
		return bson.M{fieldName: condition.Value}
	case core.OpGt:
		return bson.M{fieldName: bson.M{"$gt": condition.Value}}
	case core.OpGte:
		return bson.M{fieldName: bson.M{"$gte": condition.Value}}
	case core.OpLt:
		return bson.M{fieldName: bson.M{"$lt": condition.Value}}
	case core.OpLte:
		return bson.M{fieldName: bson.M{"$lte": condition.Value}}
	case core.OpLike:
		pattern := toMongoLikePattern(fmt.Sprintf("%v", condition.Value))
		return bson.M{fieldName: primitive.Regex{Pattern: pattern, Options: "i"}}
	case core.OpIn:
		var array []any
		switch v := condition.Value.(type) {
		case []any:
			array = v
		default:
			array = []any{condition.Value}
		}
		return bson.M{fieldName: bson.M{"$in": array}}
	default:
		return bson.M{}
	}
}

// encodeDocument runs the schema's field codecs and builds the bson document
// keyed by column name, so stored values match what the SQL drivers persist.
func (driver *Driver) encodeDocument(schema *core.SchemaCore, doc any) (bson.M, error) {
	valueList, err := core.EncodeDocumentValues(schema, doc)
	if err != nil {
		return nil, err
	}
	out := make(bson.M, len(schema.Fields))
	for i, field := range schema.Fields {
		out[field.DatabaseColumnName] = valueList[i]
	}
	return out, nil
}

func (driver *Driver) Connect(ctx context.Context) error {
	return driver.client.Ping(ctx, nil)
}

func (driver *Driver) Ping(ctx context.Context) error {
	return driver.client.Ping(ctx, nil)
}

func (driver *Driver) Close(ctx context.Context) error {
	return driver.client.Disconnect(ctx)
}

func (driver *Driver) Transaction(ctx context.Context) (core.Transaction, error) {
	session, err := driver.client.StartSession()
	if err != nil {
		return nil, err
	}
	if err := session.StartTransaction(); err != nil {
		return nil, err
	}
	return &mongoTransaction{session: session}, nil
}

func (driver *Driver) Insert(ctx context.Context, schema *core.SchemaCore, documents ...any) error {
	if len(documents) == 0 {
		return nil
	}
	ctx = driver.withSession(ctx)
	collection, err := driver.coll(schema)
	if err != nil {
		return err
	}
	documentList := make([]any, 0, len(documents))
	for _, doc := range documents {
		encoded, err := driver.encodeDocument(schema, doc)
		if err != nil {
			return err
		}
		documentList = append(documentList, encoded)
	}
	_, err = collection.InsertMany(ctx, documentList)
	return err
}

func (driver *Driver) find(ctx context.Context, schema *core.SchemaCore, query *core.Where, single bool) ([]map[string]any, error) {
	ctx = driver.withSession(ctx)
	collection, err := driver.coll(schema)
	if err != nil {
		return nil, err
	}
	filter := driver.buildFilter(safeCondition(query))
	findOpts := mopt.Find()

	if len(query.Sort) > 0 {
		sortDoc := bson.D{}
		for _, sortItem := range query.Sort {
			direction := 1
			if sortItem.Order < 0 {
				direction = -1
			}
			sortDoc = append(sortDoc, bson.E{Key: sortItem.FieldName, Value: direction})
		}
		findOpts.SetSort(sortDoc)
	}

	if single {
		findOpts.SetLimit(1)
	} else {
		if query.Limit > 0 {
			findOpts.SetLimit(int64(query.Limit))
		}
		if query.Offset > 0 {
			findOpts.SetSkip(int64(query.Offset))
		}
	}

	cursor, err := collection.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var resultList []map[string]any
	for cursor.Next(ctx) {
		var bsonMap bson.M
		if err := cursor.Decode(&bsonMap); err != nil {
			return nil, err
		}
		resultList = append(resultList, map[string]any(bsonMap))
		if single {
			break
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return resultList, nil
}

func (driver *Driver) FindOne(ctx context.Context, schema *core.SchemaCore, query *core.Where) (map[string]any, error) {
	rowList, err := driver.find(ctx, schema, query, true)
	if err != nil {
		return nil, err
	}
	if len(rowList) == 0 {
		return nil, nil
	}
	return rowList[0], nil
}

func (driver *Driver) FindMany(ctx context.Context, schema *core.SchemaCore, query *core.Where) ([]map[string]any, error) {
	return driver.find(ctx, schema, query, false)
}

func (driver *Driver) Update(ctx context.Context, schema *core.SchemaCore, condition *core.Condition, changes core.Changes) error {
	ctx = driver.withSession(ctx)
	collection, err := driver.coll(schema)
	if err != nil {
		return err
	}
	filter := driver.buildFilter(condition)
	_, err = collection.UpdateMany(ctx, filter, bson.M{"$set": changes})
	return err
}

func (driver *Driver) Delete(ctx context.Context, schema *core.SchemaCore, condition *core.Condition) error {
	ctx = driver.withSession(ctx)
	collection, err := driver.coll(schema)
	if err != nil {
		return err
	}
	filter := driver.buildFilter(condition)
	_, err = collection.DeleteMany(ctx, filter)
	return err
}

func (driver *Driver) Count(ctx context.Context, schema *core.SchemaCore, condition *core.Condition) (int64, error) {
	ctx = driver.withSession(ctx)
	collection, err := driver.coll(schema)
	if err != nil {
		return 0, err
	}
	filter := driver.buildFilter(condition)
	return collection.CountDocuments(ctx, filter)
}

package etl

import (
	"context"
	"testing"
	"time"

	"github.com/BartekS5/IDA/internal/extract"
	"github.com/BartekS5/IDA/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestBuildRangeFilter(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)

	f, err := buildRangeFilter("updatedAt", from, to, "")
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "updatedAt", Value: bson.D{
		{Key: "$gte", Value: from},
		{Key: "$lte", Value: to},
	}}}, f)

	f, err = buildRangeFilter("updatedAt", from, to, `{"status": "ACTIVE"}`)
	require.NoError(t, err)
	require.Len(t, f, 1)
	assert.Equal(t, "$and", f[0].Key)
	parts := f[0].Value.(bson.A)
	require.Len(t, parts, 2)
	assert.Equal(t, bson.D{{Key: "status", Value: "ACTIVE"}}, parts[1])

	_, err = buildRangeFilter("updatedAt", from, to, `{status:`)
	require.Error(t, err)
}

func TestRangeSort(t *testing.T) {
	assert.Equal(t, bson.D{{Key: "updatedAt", Value: 1}, {Key: "_id", Value: 1}}, rangeSort("updatedAt", "_id"))
	assert.Equal(t, bson.D{{Key: "_id", Value: 1}}, rangeSort("_id", "_id"))
}

func TestMongoSourceResolveField(t *testing.T) {
	src := &MongoSource{Config: testSchema()}

	f, err := src.ResolveField(context.Background(), "updated_at")
	require.NoError(t, err)
	assert.Equal(t, extract.Field{Name: "updated_at", Column: "updatedAt", Resolution: time.Millisecond}, f)

	_, err = src.ResolveField(context.Background(), "username")
	require.Error(t, err)

	_, err = src.ResolveField(context.Background(), "deletedAt")
	require.Error(t, err)
}

func TestTransformerRoundTrip(t *testing.T) {
	tr := NewTransformer(testSchema())
	ts := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

	doc, err := tr.TransformSQLToMongo(extract.Record{
		"id": int64(7), "user_name": "ann", "points": "12", "updated_at": ts, "password": "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"_id": int64(7), "username": "ann", "points": 12, "updatedAt": ts,
	}, doc)

	row, err := tr.TransformMongoToSQL(extract.Record(doc))
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"id": int64(7), "user_name": "ann", "points": 12, "updated_at": ts,
	}, row)

	_, err = tr.TransformSQLToMongo(extract.Record{"id": 1, "points": "many"})
	require.Error(t, err)
}

func TestValidator(t *testing.T) {
	v := NewValidator(testSchema())
	require.NoError(t, v.ValidateDocument(map[string]interface{}{"_id": 1}))
	require.Error(t, v.ValidateDocument(map[string]interface{}{"username": "x"}))
	require.Error(t, v.ValidateDocument(map[string]interface{}{"_id": nil}))
}

// rejectingMongoLoader has no collection, so it fails loudly if a batch gets
// past validation.
func rejectingMongoLoader() *MongoLoader {
	schema := testSchema()
	return &MongoLoader{
		Config:      schema,
		Transformer: NewTransformer(schema),
		Validator:   NewValidator(schema),
		Log:         logger.Nop(),
	}
}

func TestMongoLoaderRejectsBatchWithBadRow(t *testing.T) {
	l := rejectingMongoLoader()

	err := l.Load(context.Background(), []extract.Record{
		{"id": int64(1), "points": "3"},
		{"id": int64(2), "points": "many"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")

	err = l.Load(context.Background(), []extract.Record{{"points": "3"}})
	require.Error(t, err)
}

package etl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BartekS5/IDA/internal/extract"
	"github.com/BartekS5/IDA/pkg/logger"
	"github.com/BartekS5/IDA/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSource reads time windows from a collection. Mongo has no schema to
// inspect, so the mapping file is treated as the schema.
type MongoSource struct {
	Collection *mongo.Collection
	Config     *models.MappingSchema
}

func NewMongoSource(db *mongo.Database, config *models.MappingSchema) *MongoSource {
	return &MongoSource{Collection: db.Collection(config.MongoCollection), Config: config}
}

func (m *MongoSource) ResolveField(_ context.Context, name string) (extract.Field, error) {
	_, f, ok := m.Config.LookupField(name)
	if !ok {
		return extract.Field{}, fmt.Errorf("field %q is not mapped for %s", name, m.Config.Entity)
	}
	if f.Type != "datetime" {
		return extract.Field{}, fmt.Errorf("field %q is mapped as %q, not datetime", name, f.Type)
	}
	if f.MongoField == "" {
		return extract.Field{}, fmt.Errorf("field %q has no mongo field", name)
	}
	// BSON dates have millisecond precision.
	return extract.Field{Name: name, Column: f.MongoField, Resolution: time.Millisecond}, nil
}

func (m *MongoSource) Query(ctx context.Context, q extract.Query) ([]extract.Record, error) {
	filter, err := buildRangeFilter(q.Field.Column, q.From, q.To, q.Where)
	if err != nil {
		return nil, err
	}

	findOpts := options.Find().
		SetSort(rangeSort(q.Field.Column, m.Config.IDStrategy.MongoField)).
		SetSkip(int64(q.Offset)).
		SetLimit(int64(q.Limit))

	cursor, err := m.Collection.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []extract.Record
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode mongo document: %w", err)
		}
		results = append(results, extract.Record(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// buildRangeFilter combines the inclusive time range with an optional extra
// predicate written as relaxed Extended JSON.
func buildRangeFilter(field string, from, to time.Time, where string) (bson.D, error) {
	rng := bson.D{{Key: field, Value: bson.D{
		{Key: "$gte", Value: from},
		{Key: "$lte", Value: to},
	}}}

	where = strings.TrimSpace(where)
	if where == "" {
		return rng, nil
	}

	var extra bson.D
	if err := bson.UnmarshalExtJSON([]byte(where), false, &extra); err != nil {
		return nil, fmt.Errorf("parse where filter %q: %w", where, err)
	}
	return bson.D{{Key: "$and", Value: bson.A{rng, extra}}}, nil
}

func rangeSort(field, idField string) bson.D {
	sort := bson.D{{Key: field, Value: 1}}
	if idField != "" && idField != field {
		sort = append(sort, bson.E{Key: idField, Value: 1})
	}
	return sort
}

// MongoLoader upserts rows into a collection.
type MongoLoader struct {
	Collection  *mongo.Collection
	Config      *models.MappingSchema
	Transformer *Transformer
	Validator   *Validator
	Log         *logger.Logger
}

func NewMongoLoader(db *mongo.Database, config *models.MappingSchema, log *logger.Logger) *MongoLoader {
	if log == nil {
		log = logger.Default()
	}
	return &MongoLoader{
		Collection:  db.Collection(config.MongoCollection),
		Config:      config,
		Transformer: NewTransformer(config),
		Validator:   NewValidator(config),
		Log:         log,
	}
}

func (m *MongoLoader) Load(ctx context.Context, data []extract.Record) error {
	var writes []mongo.WriteModel

	// A rejected row fails the whole batch before anything is written, so the
	// cursor stays on it.
	for _, sqlRow := range data {
		id := sqlRow[m.Config.IDStrategy.SQLField]
		doc, err := m.Transformer.TransformSQLToMongo(sqlRow)
		if err != nil {
			return fmt.Errorf("row %v: %w", id, err)
		}
		if err := m.Validator.ValidateDocument(doc); err != nil {
			return fmt.Errorf("row %v: %w", id, err)
		}

		filter := bson.M{m.Config.IDStrategy.MongoField: doc[m.Config.IDStrategy.MongoField]}
		update := bson.M{"$set": doc}
		model := mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(update).SetUpsert(true)
		writes = append(writes, model)
	}

	if len(writes) == 0 {
		return nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	res, err := m.Collection.BulkWrite(writeCtx, writes)
	if err != nil {
		return err
	}
	m.Log.Infof("Mongo BulkWrite: Match %d, Mod %d, Upsert %d", res.MatchedCount, res.ModifiedCount, res.UpsertedCount)
	return nil
}

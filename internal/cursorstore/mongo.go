package cursorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BartekS5/IDA/internal/extract"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "extract_cursors"

// MongoStore keeps cursors in a collection keyed by task name, which lets
// several hosts share progress.
type MongoStore struct {
	coll *mongo.Collection
}

// cursorDoc stores times as RFC 3339 text: BSON dates only keep
// milliseconds, and a truncated Start would shift the Row offset.
type cursorDoc struct {
	Name      string    `bson:"_id"`
	Start     string    `bson:"start"`
	Row       int       `bson:"row"`
	End       string    `bson:"end,omitempty"`
	BatchSize int       `bson:"batchSize"`
	Enabled   bool      `bson:"enabled"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func toDoc(name string, cur extract.Cursor) cursorDoc {
	doc := cursorDoc{
		Name:      name,
		Start:     cur.Start.Format(time.RFC3339Nano),
		Row:       cur.Row,
		BatchSize: cur.BatchSize,
		Enabled:   cur.Enabled,
		UpdatedAt: time.Now().UTC(),
	}
	if cur.HasEnd() {
		doc.End = cur.End.Format(time.RFC3339Nano)
	}
	return doc
}

func (d cursorDoc) cursor() (extract.Cursor, error) {
	cur := extract.Cursor{Row: d.Row, BatchSize: d.BatchSize, Enabled: d.Enabled}
	var err error
	if cur.Start, err = time.Parse(time.RFC3339Nano, d.Start); err != nil {
		return extract.Cursor{}, fmt.Errorf("cursor %s: bad start: %w", d.Name, err)
	}
	if d.End != "" {
		if cur.End, err = time.Parse(time.RFC3339Nano, d.End); err != nil {
			return extract.Cursor{}, fmt.Errorf("cursor %s: bad end: %w", d.Name, err)
		}
	}
	return cur, nil
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(CollectionName)}
}

func (s *MongoStore) Load(ctx context.Context, name string) (extract.Cursor, bool, error) {
	var doc cursorDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return extract.Cursor{}, false, nil
	}
	if err != nil {
		return extract.Cursor{}, false, fmt.Errorf("load cursor %s: %w", name, err)
	}
	cur, err := doc.cursor()
	if err != nil {
		return extract.Cursor{}, false, err
	}
	return cur, true, nil
}

func (s *MongoStore) Save(ctx context.Context, name string, cur extract.Cursor) error {
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": name}, toDoc(name, cur), options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save cursor %s: %w", name, err)
	}
	return nil
}

func (s *MongoStore) Reset(ctx context.Context, name string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": name}); err != nil {
		return fmt.Errorf("reset cursor %s: %w", name, err)
	}
	return nil
}

// Package cursorstore persists extraction cursors between runs.
package cursorstore

import (
	"context"
	"fmt"

	"github.com/BartekS5/IDA/internal/extract"
	"go.mongodb.org/mongo-driver/mongo"
)

// Store loads and saves cursors by task name.
type Store interface {
	// Load returns the saved cursor and whether one existed.
	Load(ctx context.Context, name string) (extract.Cursor, bool, error)
	Save(ctx context.Context, name string, cur extract.Cursor) error
	// Reset forgets the cursor so the next run starts from the mapping's seed.
	Reset(ctx context.Context, name string) error
}

const (
	KindFile  = "file"
	KindMongo = "mongo"
)

// Options selects and configures a Store.
type Options struct {
	Kind string
	Dir  string
	// DB is required for KindMongo.
	DB *mongo.Database
}

func New(opts Options) (Store, error) {
	switch opts.Kind {
	case "", KindFile:
		return NewFileStore(opts.Dir)
	case KindMongo:
		if opts.DB == nil {
			return nil, fmt.Errorf("cursor store %q needs a MongoDB database", opts.Kind)
		}
		return NewMongoStore(opts.DB), nil
	default:
		return nil, fmt.Errorf("unknown cursor store %q", opts.Kind)
	}
}

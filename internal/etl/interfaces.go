package etl

import (
	"context"

	"github.com/BartekS5/IDA/internal/extract"
)

// Fetcher produces the next batch for a cursor. *extract.Extractor is the
// implementation used outside tests.
type Fetcher interface {
	Fetch(ctx context.Context, cur extract.Cursor) (extract.Batch, extract.Cursor, error)
}

// Loader writes a batch downstream. Loads must be idempotent: after a crash
// between Load and the cursor save, the same batch is loaded again.
type Loader interface {
	Load(ctx context.Context, data []extract.Record) error
}

package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/BartekS5/IDA/pkg/utils"
)

// Record is one row or document returned by a DataSource, keyed by the
// store's native field names.
type Record map[string]interface{}

// Batch is an ordered page of records, ascending by the time field.
// A nil Batch means there was nothing to extract.
type Batch []Record

// Field is a resolved time field.
type Field struct {
	// Name is the name the extraction was configured with.
	Name string
	// Column is the store-native name used in queries and records.
	Column string
	// Resolution is the smallest increment the store keeps for this field.
	Resolution time.Duration
}

// Time decodes the field's value from r.
func (f Field) Time(r Record) (time.Time, error) {
	raw, ok := r[f.Column]
	if !ok || raw == nil {
		return time.Time{}, fmt.Errorf("%w: field %q missing", ErrInvalidRecord, f.Column)
	}
	t, err := utils.ToTime(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: field %q: %v", ErrInvalidRecord, f.Column, err)
	}
	return t, nil
}

// Query is one range-filtered page request.
type Query struct {
	Field Field
	// From and To are both inclusive.
	From time.Time
	To   time.Time
	// Where is an extra predicate in the source's own syntax. Empty means none.
	Where  string
	Offset int
	Limit  int
}

// DataSource executes range queries for an Extractor.
//
// Query must return records ascending by the time field, and records sharing
// a time value must come back in the same order on every call (for example by
// ordering on a unique key as well). The Row offset in a Cursor is only
// meaningful under that guarantee.
type DataSource interface {
	// ResolveField validates a configured time field against the store's schema.
	ResolveField(ctx context.Context, name string) (Field, error)
	Query(ctx context.Context, q Query) ([]Record, error)
}

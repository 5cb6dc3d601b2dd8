// Package extract pulls time-ordered records out of a mutable store in pages,
// tracking progress with a Cursor so that every record in the window is
// returned exactly once, even when many records share a timestamp.
package extract

import (
	"context"
	"fmt"
	"time"
)

// Logger receives informational messages about each fetch.
type Logger interface {
	Infof(format string, v ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{}) {}

// Config is resolved once by New.
type Config struct {
	Source DataSource
	// TimeField names the field extraction is ordered and windowed by.
	TimeField string
	// Where is an optional extra predicate passed through to the source.
	Where string
	// Resolution is used when the source cannot report one for the field.
	// It must not be coarser than the field's own resolution.
	Resolution time.Duration
	Logger     Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// State is the logical state of a cursor at a point in time.
type State int

const (
	Idle State = iota
	Draining
)

func (s State) String() string {
	if s == Draining {
		return "draining"
	}
	return "idle"
}

// Extractor produces successive batches for a cursor.
//
// Fetch is not safe for concurrent use with the same cursor; callers run one
// fetch at a time per cursor and persist the returned cursor between calls.
type Extractor struct {
	source     DataSource
	field      Field
	where      string
	resolution time.Duration
	log        Logger
	now        func() time.Time
}

// New validates cfg and resolves the time field. It fails with an error
// wrapping ErrConfiguration before any query is issued.
func New(ctx context.Context, cfg Config) (*Extractor, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("%w: no data source", ErrConfiguration)
	}
	if cfg.TimeField == "" {
		return nil, fmt.Errorf("%w: no time field", ErrConfiguration)
	}

	field, err := cfg.Source.ResolveField(ctx, cfg.TimeField)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve time field %q: %v", ErrConfiguration, cfg.TimeField, err)
	}

	res, err := effectiveResolution(cfg.Resolution, field.Resolution)
	if err != nil {
		return nil, fmt.Errorf("%w: time field %q: %v", ErrConfiguration, cfg.TimeField, err)
	}

	e := &Extractor{
		source:     cfg.Source,
		field:      field,
		where:      cfg.Where,
		resolution: res,
		log:        cfg.Logger,
		now:        cfg.Now,
	}
	if e.log == nil {
		e.log = nopLogger{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// effectiveResolution picks the step used to move past a drained instant.
// An override may not be coarser than what the store keeps, or rows between
// the last instant and the next Start would be skipped. A finer override is
// raised to the store's resolution.
func effectiveResolution(override, stored time.Duration) (time.Duration, error) {
	switch {
	case stored <= 0 && override > 0:
		return override, nil
	case stored <= 0:
		return DefaultResolution, nil
	case override > stored:
		return 0, fmt.Errorf("resolution %s is coarser than the stored %s", override, stored)
	default:
		return stored, nil
	}
}

// Field returns the time field resolved by New.
func (e *Extractor) Field() Field {
	return e.field
}

// Resolution returns the step added to the last instant of a short page.
func (e *Extractor) Resolution() time.Duration {
	return e.resolution
}

// WindowEnd returns the upper bound of the window for cur at now.
func WindowEnd(cur Cursor, now time.Time) time.Time {
	if cur.HasEnd() && cur.End.Before(now) {
		return cur.End
	}
	return now
}

// StateAt reports whether cur has anything left to drain at now.
func StateAt(cur Cursor, now time.Time) State {
	if !cur.Enabled {
		return Idle
	}
	end := WindowEnd(cur, now)
	if cur.Start.Before(end) {
		return Draining
	}
	// A tie-group pinned exactly at the window end still has unread rows.
	if cur.Start.Equal(end) && cur.Row > 0 {
		return Draining
	}
	return Idle
}

// Fetch returns the next batch for cur and the cursor that follows it.
//
// When there is nothing to extract it returns a nil batch and cur unchanged.
// A query failure is returned as is, again with cur unchanged, so calling
// Fetch again with the same cursor repeats the same attempt.
func (e *Extractor) Fetch(ctx context.Context, cur Cursor) (Batch, Cursor, error) {
	if !cur.Enabled {
		return nil, cur, nil
	}
	now := e.now()
	if StateAt(cur, now) == Idle {
		return nil, cur, nil
	}
	if err := cur.Validate(); err != nil {
		return nil, cur, err
	}
	end := WindowEnd(cur, now)

	q := Query{
		Field:  e.field,
		From:   cur.Start,
		To:     end,
		Where:  e.where,
		Offset: cur.Row,
		Limit:  cur.Size(),
	}

	began := time.Now()
	records, err := e.source.Query(ctx, q)
	if err != nil {
		return nil, cur, err
	}
	if len(records) == 0 {
		e.log.Infof("extract %s: no records in [%s, %s] after row %d",
			e.field.Name, q.From.Format(time.RFC3339Nano), q.To.Format(time.RFC3339Nano), q.Offset)
		return nil, cur, nil
	}

	times := make([]time.Time, len(records))
	for i, r := range records {
		t, err := e.field.Time(r)
		if err != nil {
			return nil, cur, err
		}
		if i > 0 && t.Before(times[i-1]) {
			return nil, cur, fmt.Errorf("%w: records out of order at index %d", ErrInvalidRecord, i)
		}
		times[i] = t
	}

	next := Advance(cur, times, e.resolution)
	e.log.Infof("extract %s: %d records in %s, [%s, %s] row %d -> start %s row %d",
		e.field.Name, len(records), time.Since(began).Round(time.Millisecond),
		q.From.Format(time.RFC3339Nano), q.To.Format(time.RFC3339Nano), q.Offset,
		next.Start.Format(time.RFC3339Nano), next.Row)

	return Batch(records), next, nil
}

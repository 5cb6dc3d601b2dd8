package extract

import (
	"fmt"
	"time"
)

// DefaultBatchSize is used when a cursor carries no positive batch size.
const DefaultBatchSize = 1000

// DefaultResolution is the time increment used to step past a drained instant
// when neither the field nor the configuration supplies one.
const DefaultResolution = time.Second

// Cursor is the persisted progress of one extraction.
//
// Start is the watermark: the inclusive lower bound of the next window.
// Row counts the records at exactly Start that earlier fetches already
// returned. A zero End means the window is bounded by the current time.
type Cursor struct {
	Start     time.Time `json:"start"`
	Row       int       `json:"row"`
	End       time.Time `json:"end"`
	BatchSize int       `json:"batchSize"`
	Enabled   bool      `json:"enabled"`
}

// NewCursor returns an enabled cursor starting at start.
func NewCursor(start time.Time) Cursor {
	return Cursor{
		Start:     start,
		BatchSize: DefaultBatchSize,
		Enabled:   true,
	}
}

// Size returns the effective page size.
func (c Cursor) Size() int {
	if c.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return c.BatchSize
}

// HasEnd reports whether the cursor has a fixed upper bound.
func (c Cursor) HasEnd() bool {
	return !c.End.IsZero()
}

func (c Cursor) Validate() error {
	if c.Row < 0 {
		return fmt.Errorf("%w: negative row offset %d", ErrInvalidCursor, c.Row)
	}
	if c.HasEnd() && c.Start.After(c.End) {
		return fmt.Errorf("%w: start %s is after end %s", ErrInvalidCursor,
			c.Start.Format(time.RFC3339Nano), c.End.Format(time.RFC3339Nano))
	}
	return nil
}

func (c Cursor) String() string {
	end := "now"
	if c.HasEnd() {
		end = c.End.Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("start=%s row=%d end=%s size=%d enabled=%v",
		c.Start.Format(time.RFC3339Nano), c.Row, end, c.Size(), c.Enabled)
}

// Advance computes the cursor that follows a successfully retrieved batch.
// times holds the batch's time-field values in ascending order.
//
// A full page pins Start at the last instant and counts the rows already
// consumed there, since more rows may share it. A short page means the window
// is drained, so Start moves one resolution step past the last instant.
func Advance(cur Cursor, times []time.Time, resolution time.Duration) Cursor {
	if len(times) == 0 {
		return cur
	}
	if resolution <= 0 {
		resolution = DefaultResolution
	}

	last := times[len(times)-1]
	next := cur

	if len(times) >= cur.Size() {
		ties := 0
		for i := len(times) - 1; i >= 0 && times[i].Equal(last); i-- {
			ties++
		}
		// Row is an offset within the instant at Start; it only carries over
		// while the page ends on that same instant.
		if last.Equal(cur.Start) {
			next.Row = cur.Row + ties
		} else {
			next.Row = ties
		}
		next.Start = last
		return next
	}

	next.Start = last.Add(resolution)
	next.Row = 0
	return next
}

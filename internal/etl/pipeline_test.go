package etl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BartekS5/IDA/internal/cursorstore"
	"github.com/BartekS5/IDA/internal/extract"
	"github.com/BartekS5/IDA/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

// sliceSource serves records already sorted by (ts, id).
type sliceSource struct {
	records []extract.Record
	calls   int
}

func (s *sliceSource) ResolveField(context.Context, string) (extract.Field, error) {
	return extract.Field{Name: "updatedAt", Column: "updated_at", Resolution: time.Second}, nil
}

func (s *sliceSource) Query(_ context.Context, q extract.Query) ([]extract.Record, error) {
	s.calls++
	var matched []extract.Record
	for _, r := range s.records {
		ts := r["updated_at"].(time.Time)
		if !ts.Before(q.From) && !ts.After(q.To) {
			matched = append(matched, r)
		}
	}
	if q.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[q.Offset:]
	if len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

// seedRecords returns n records, three per second.
func seedRecords(n int) []extract.Record {
	out := make([]extract.Record, n)
	for i := range out {
		out[i] = extract.Record{"id": i, "updated_at": t0.Add(time.Duration(i/3) * time.Second)}
	}
	return out
}

type recordingLoader struct {
	loaded []int
	calls  int
	failOn int
}

func (l *recordingLoader) Load(_ context.Context, data []extract.Record) error {
	l.calls++
	if l.failOn > 0 && l.calls == l.failOn {
		return errors.New("downstream unavailable")
	}
	for _, r := range data {
		l.loaded = append(l.loaded, r["id"].(int))
	}
	return nil
}

type scriptedFetcher struct {
	errs  []error
	inner Fetcher
	calls int
}

func (f *scriptedFetcher) Fetch(ctx context.Context, cur extract.Cursor) (extract.Batch, extract.Cursor, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, cur, err
	}
	return f.inner.Fetch(ctx, cur)
}

func newPipeline(t *testing.T, src extract.DataSource, loader Loader) (*Pipeline, cursorstore.Store) {
	t.Helper()
	ex, err := extract.New(context.Background(), extract.Config{
		Source:    src,
		TimeField: "updatedAt",
		Now:       func() time.Time { return t0.Add(time.Hour) },
	})
	require.NoError(t, err)

	store, err := cursorstore.NewFileStore(t.TempDir())
	require.NoError(t, err)

	seed := extract.NewCursor(t0)
	seed.BatchSize = 4
	p := NewEnhancedPipeline("users", ex, loader, store, seed, false)
	p.RetryDelay = 0
	p.Log = logger.Nop()
	return p, store
}

func TestPipelineDrainsAllRecordsOnce(t *testing.T) {
	src := &sliceSource{records: seedRecords(14)}
	loader := &recordingLoader{}
	p, store := newPipeline(t, src, loader)

	stats, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 14, stats.Records)
	assert.Len(t, loader.loaded, 14)
	for i, id := range loader.loaded {
		assert.Equal(t, i, id)
	}

	saved, ok, err := store.Load(context.Background(), "users")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stats.Cursor, saved)
	assert.True(t, saved.Start.Equal(t0.Add(5*time.Second)))
	assert.Equal(t, 0, saved.Row)

	// a second run resumes from the saved cursor and finds nothing new
	loader.loaded = nil
	stats, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Records)
	assert.Empty(t, loader.loaded)
}

func TestPipelineRetriesTransientFetchFailure(t *testing.T) {
	src := &sliceSource{records: seedRecords(5)}
	loader := &recordingLoader{}
	p, _ := newPipeline(t, src, loader)
	f := &scriptedFetcher{errs: []error{errors.New("timeout"), errors.New("timeout")}, inner: p.Extractor}
	p.Extractor = f

	stats, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Records)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, loader.loaded)
}

func TestPipelineGivesUpAfterRetries(t *testing.T) {
	src := &sliceSource{records: seedRecords(5)}
	p, store := newPipeline(t, src, &recordingLoader{})
	boom := errors.New("connection refused")
	f := &scriptedFetcher{errs: []error{boom, boom, boom, boom, boom}, inner: p.Extractor}
	p.Extractor = f
	p.Retries = 2

	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, f.calls)

	_, ok, err := store.Load(context.Background(), "users")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPipelineDoesNotRetryInvalidRecords(t *testing.T) {
	p, _ := newPipeline(t, &sliceSource{}, &recordingLoader{})
	f := &scriptedFetcher{errs: []error{extract.ErrInvalidRecord}, inner: p.Extractor}
	p.Extractor = f

	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, extract.ErrInvalidRecord)
	assert.Equal(t, 1, f.calls)
}

func TestPipelineKeepsCursorWhenLoadFails(t *testing.T) {
	src := &sliceSource{records: seedRecords(14)}
	loader := &recordingLoader{failOn: 2}
	p, store := newPipeline(t, src, loader)

	stats, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, stats.Batches)

	saved, ok, err := store.Load(context.Background(), "users")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stats.Cursor, saved)

	// the failed batch is fetched again on the next run
	loader.failOn = 0
	_, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, loader.loaded, 14)
}

func TestPipelineKeepsCursorWhenLoaderRejectsRow(t *testing.T) {
	records := seedRecords(6)
	records[5]["points"] = "many"
	p, store := newPipeline(t, &sliceSource{records: records}, rejectingMongoLoader())

	// load the first batch normally so there is a saved cursor to compare against
	p.Loader = &recordingLoader{}
	p.MaxBatches = 1
	_, err := p.Run(context.Background())
	require.NoError(t, err)
	before, ok, err := store.Load(context.Background(), "users")
	require.NoError(t, err)
	require.True(t, ok)

	p.Loader = rejectingMongoLoader()
	p.MaxBatches = 0
	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 5")

	after, ok, err := store.Load(context.Background(), "users")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, before, after)
}

func TestPipelineDryRun(t *testing.T) {
	src := &sliceSource{records: seedRecords(9)}
	loader := &recordingLoader{}
	p, store := newPipeline(t, src, loader)
	p.DryRun = true

	stats, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, stats.Records)
	assert.Zero(t, loader.calls)

	_, ok, err := store.Load(context.Background(), "users")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPipelinePrefersSavedCursor(t *testing.T) {
	src := &sliceSource{records: seedRecords(9)}
	loader := &recordingLoader{}
	p, store := newPipeline(t, src, loader)

	saved := p.Seed
	saved.Start = t0.Add(2 * time.Second)
	require.NoError(t, store.Save(context.Background(), "users", saved))

	stats, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{6, 7, 8}, loader.loaded)
	assert.Equal(t, 3, stats.Records)
}

func TestPipelineMaxBatches(t *testing.T) {
	src := &sliceSource{records: seedRecords(20)}
	p, _ := newPipeline(t, src, &recordingLoader{})
	p.MaxBatches = 2

	stats, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Batches)
	assert.Equal(t, 8, stats.Records)

	p.BatchSize = 5
	stats, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Records)
	assert.Equal(t, 5, stats.Cursor.BatchSize)
}

func TestRunAll(t *testing.T) {
	a, _ := newPipeline(t, &sliceSource{records: seedRecords(6)}, &recordingLoader{})
	b, _ := newPipeline(t, &sliceSource{records: seedRecords(3)}, &recordingLoader{})
	b.Name = "orders"

	stats, err := RunAll(context.Background(), []*Pipeline{a, b})
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, 6, stats[0].Records)
	assert.Equal(t, 3, stats[1].Records)

	_, err = RunAll(context.Background(), []*Pipeline{a, a})
	require.Error(t, err)
}

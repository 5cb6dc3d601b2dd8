package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BartekS5/IDA/internal/cursorstore"
	"github.com/BartekS5/IDA/internal/extract"
	"github.com/BartekS5/IDA/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Pipeline drives one cursor: fetch, load, save, until nothing is left.
type Pipeline struct {
	Name      string
	Extractor Fetcher
	Loader    Loader
	Store     cursorstore.Store
	// Seed is used when the store has no cursor for Name yet.
	Seed extract.Cursor
	// BatchSize overrides the cursor's page size when positive.
	BatchSize int
	DryRun    bool
	// Retries is how many times a failed fetch is repeated with the same cursor.
	Retries    int
	RetryDelay time.Duration
	// MaxBatches stops the run early when positive.
	MaxBatches int
	Log        *logger.Logger
}

// Stats summarizes one Run.
type Stats struct {
	Batches  int
	Records  int
	Duration time.Duration
	Cursor   extract.Cursor
}

func (s Stats) Rate() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Records) / s.Duration.Seconds()
}

// NewEnhancedPipeline creates a pipeline with dry-run support
func NewEnhancedPipeline(name string, ext Fetcher, loader Loader, store cursorstore.Store, seed extract.Cursor, dryRun bool) *Pipeline {
	return &Pipeline{
		Name:       name,
		Extractor:  ext,
		Loader:     loader,
		Store:      store,
		Seed:       seed,
		DryRun:     dryRun,
		Retries:    3,
		RetryDelay: 2 * time.Second,
		Log:        logger.Default(),
	}
}

// Run drains the cursor. The cursor is saved only after its batch has been
// loaded, so a failure at any step leaves the stored cursor on the last
// loaded batch.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	log := p.Log
	if log == nil {
		log = logger.Default()
	}
	log = log.With("task", p.Name)

	cur, found, err := p.Store.Load(ctx, p.Name)
	if err != nil {
		return Stats{}, err
	}
	if !found {
		cur = p.Seed
		log.Infof("No saved cursor, starting from %s", cur)
	}
	if p.BatchSize > 0 {
		cur.BatchSize = p.BatchSize
	}

	stats := Stats{Cursor: cur}
	startTime := time.Now()
	log.Infof("Starting pipeline. Cursor: %s, DryRun: %v", cur, p.DryRun)

	for p.MaxBatches <= 0 || stats.Batches < p.MaxBatches {
		batch, next, err := p.fetch(ctx, log, cur)
		if err != nil {
			log.Errorf("Extraction failed at %s: %v", cur, err)
			return stats, err
		}
		if batch == nil {
			log.Infof("No more data to process.")
			break
		}

		if !p.DryRun {
			if err := p.Loader.Load(ctx, batch); err != nil {
				log.Errorf("Loading failed at %s: %v", cur, err)
				return stats, fmt.Errorf("load batch: %w", err)
			}
			if err := p.Store.Save(ctx, p.Name, next); err != nil {
				return stats, err
			}
		} else {
			log.Infof("[DRY RUN] Would load %d records", len(batch))
		}

		cur = next
		stats.Batches++
		stats.Records += len(batch)
		stats.Cursor = cur
		stats.Duration = time.Since(startTime)
		log.Infof("Batch done. Total: %d. Rate: %.2f docs/sec. Cursor: %s", stats.Records, stats.Rate(), cur)
	}

	stats.Duration = time.Since(startTime)
	log.Infof("Pipeline finished. Batches: %d, records: %d", stats.Batches, stats.Records)
	return stats, nil
}

// fetch repeats a failed fetch with the unchanged cursor. Invalid data and
// cancellation are not retried.
func (p *Pipeline) fetch(ctx context.Context, log *logger.Logger, cur extract.Cursor) (extract.Batch, extract.Cursor, error) {
	for attempt := 0; ; attempt++ {
		batch, next, err := p.Extractor.Fetch(ctx, cur)
		if err == nil || attempt >= p.Retries || !retryable(ctx, err) {
			return batch, next, err
		}

		log.Warnf("Fetch attempt %d failed, retrying in %s: %v", attempt+1, p.RetryDelay, err)
		select {
		case <-ctx.Done():
			return nil, cur, ctx.Err()
		case <-time.After(p.RetryDelay):
		}
	}
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, extract.ErrInvalidRecord) &&
		!errors.Is(err, extract.ErrInvalidCursor) &&
		!errors.Is(err, context.Canceled)
}

// RunAll runs pipelines concurrently. Each pipeline must own its cursor, so
// names must be unique.
func RunAll(ctx context.Context, pipelines []*Pipeline) ([]Stats, error) {
	seen := make(map[string]bool, len(pipelines))
	for _, p := range pipelines {
		if seen[p.Name] {
			return nil, fmt.Errorf("cursor %q is used by more than one pipeline", p.Name)
		}
		seen[p.Name] = true
	}

	stats := make([]Stats, len(pipelines))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range pipelines {
		g.Go(func() error {
			s, err := p.Run(gctx)
			stats[i] = s
			if err != nil {
				return fmt.Errorf("pipeline %s: %w", p.Name, err)
			}
			return nil
		})
	}
	return stats, g.Wait()
}

package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/BartekS5/IDA/internal/config"
	"github.com/BartekS5/IDA/internal/cursorstore"
	"github.com/BartekS5/IDA/internal/etl"
	"github.com/BartekS5/IDA/internal/extract"
	"github.com/BartekS5/IDA/pkg/database"
	"github.com/BartekS5/IDA/pkg/logger"
	"github.com/BartekS5/IDA/pkg/models"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
)

func setupLogging(cfg *config.Config) error {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	return logger.InitLogger(cfg.LogFile, level)
}

func runExtract(ctx context.Context, opts *ExtractOptions, direction string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if err := setupLogging(cfg); err != nil {
		return err
	}
	defer logger.Close()

	schemas := make([]*models.MappingSchema, 0, len(opts.MappingFiles))
	for _, path := range opts.MappingFiles {
		m, err := config.LoadMapping(path)
		if err != nil {
			return err
		}
		schemas = append(schemas, m)
	}

	sqlDB, err := database.ConnectSQL(ctx, cfg.SQLConnString)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	mongoClient, err := database.ConnectMongo(ctx, cfg.MongoConnString)
	if err != nil {
		return err
	}
	defer database.DisconnectMongo(mongoClient)
	mongoDB := mongoClient.Database(cfg.MongoDatabase)

	store, err := cursorstore.New(cursorstore.Options{Kind: cfg.CursorStore, Dir: cfg.CursorDir, DB: mongoDB})
	if err != nil {
		return err
	}

	pipelines := make([]*etl.Pipeline, 0, len(schemas))
	for _, schema := range schemas {
		p, err := buildPipeline(ctx, schema, direction, sqlDB, mongoDB, store, opts)
		if err != nil {
			return err
		}
		pipelines = append(pipelines, p)
	}

	logger.Infof("Starting %s extraction for %d entities", direction, len(pipelines))
	stats, err := etl.RunAll(ctx, pipelines)
	for i, s := range stats {
		logger.Infof("%s: %d batches, %d records in %s, cursor %s",
			pipelines[i].Name, s.Batches, s.Records, s.Duration.Round(time.Millisecond), s.Cursor)
	}
	if err != nil {
		return err
	}

	logger.Info("Extraction finished successfully.")
	return nil
}

func buildPipeline(ctx context.Context, schema *models.MappingSchema, direction string, sqlDB *sql.DB, mongoDB *mongo.Database, store cursorstore.Store, opts *ExtractOptions) (*etl.Pipeline, error) {
	log := logger.Default().With("entity", schema.Entity)

	var source extract.DataSource
	var loader etl.Loader
	switch direction {
	case directionSQLToMongo:
		source = etl.NewSQLSource(sqlDB, schema)
		loader = etl.NewMongoLoader(mongoDB, schema, log)
	case directionMongoToSQL:
		source = etl.NewMongoSource(mongoDB, schema)
		loader = etl.NewSQLLoader(sqlDB, schema, log)
	default:
		return nil, fmt.Errorf("unknown direction %q", direction)
	}

	resolution, err := schema.Extraction.ResolutionDuration()
	if err != nil {
		return nil, err
	}

	ext, err := extract.New(ctx, extract.Config{
		Source:     source,
		TimeField:  schema.Extraction.TimeField,
		Where:      schema.Extraction.Where,
		Resolution: resolution,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", schema.Entity, err)
	}

	p := etl.NewEnhancedPipeline(taskName(schema, direction), ext, loader, store, seedCursor(schema.Extraction), opts.DryRun)
	p.BatchSize = opts.BatchSize
	p.Retries = opts.Retries
	p.RetryDelay = opts.RetryDelay
	p.MaxBatches = opts.MaxBatches
	p.Log = log
	return p, nil
}

// taskName keys the cursor. Each direction keeps its own progress.
func taskName(schema *models.MappingSchema, direction string) string {
	return schema.Entity + "/" + direction
}

// seedCursor builds the cursor used before anything has been saved.
func seedCursor(e models.ExtractionConfig) extract.Cursor {
	var start time.Time
	if e.Start != nil {
		start = *e.Start
	}
	cur := extract.NewCursor(start)
	if e.End != nil {
		cur.End = *e.End
	}
	if e.BatchSize > 0 {
		cur.BatchSize = e.BatchSize
	}
	cur.Enabled = e.IsEnabled()
	return cur
}

type cursorAction func(ctx context.Context, c cursorTarget) error

type cursorTarget struct {
	Name  string
	Seed  extract.Cursor
	Store cursorstore.Store
	Opts  *CursorOptions
	Print func(format string, a ...interface{})
}

// withCursor opens only what a cursor command needs: MongoDB is connected
// just when cursors are stored there.
func withCursor(cmd *cobra.Command, opts *CursorOptions, action cursorAction) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Direction != directionSQLToMongo && opts.Direction != directionMongoToSQL {
		return fmt.Errorf("unknown direction %q", opts.Direction)
	}

	schema, err := config.LoadMapping(opts.MappingFile)
	if err != nil {
		return err
	}

	cfg := config.LoadStoreConfig()
	storeOpts := cursorstore.Options{Kind: cfg.CursorStore, Dir: cfg.CursorDir}
	if cfg.CursorStore == cursorstore.KindMongo {
		if cfg.MongoConnString == "" {
			return errors.New("MONGO_CONNECTION_STRING environment variable not set")
		}
		client, err := database.ConnectMongo(ctx, cfg.MongoConnString)
		if err != nil {
			return err
		}
		defer database.DisconnectMongo(client)
		storeOpts.DB = client.Database(cfg.MongoDatabase)
	}

	store, err := cursorstore.New(storeOpts)
	if err != nil {
		return err
	}

	return action(ctx, cursorTarget{
		Name:  taskName(schema, opts.Direction),
		Seed:  seedCursor(schema.Extraction),
		Store: store,
		Opts:  opts,
		Print: cmd.Printf,
	})
}

func showCursor(ctx context.Context, c cursorTarget) error {
	cur, found, err := c.Store.Load(ctx, c.Name)
	if err != nil {
		return err
	}
	if !found {
		c.Print("%s: no saved cursor, next run starts from %s\n", c.Name, c.Seed)
		cur = c.Seed
	} else {
		c.Print("%s: %s\n", c.Name, cur)
	}
	c.Print("state: %s\n", extract.StateAt(cur, time.Now()))
	return nil
}

func resetCursor(ctx context.Context, c cursorTarget) error {
	if c.Opts.Start == "" {
		if err := c.Store.Reset(ctx, c.Name); err != nil {
			return err
		}
		c.Print("%s: cursor removed, next run starts from %s\n", c.Name, c.Seed)
		return nil
	}

	start, err := parseStart(c.Opts.Start)
	if err != nil {
		return err
	}
	cur, found, err := c.Store.Load(ctx, c.Name)
	if err != nil {
		return err
	}
	if !found {
		cur = c.Seed
	}
	cur.Start = start
	cur.Row = 0
	if err := cur.Validate(); err != nil {
		return err
	}
	if err := c.Store.Save(ctx, c.Name, cur); err != nil {
		return err
	}
	c.Print("%s: %s\n", c.Name, cur)
	return nil
}

func setCursorEnabled(enabled bool) cursorAction {
	return func(ctx context.Context, c cursorTarget) error {
		cur, found, err := c.Store.Load(ctx, c.Name)
		if err != nil {
			return err
		}
		if !found {
			cur = c.Seed
		}
		cur.Enabled = enabled
		if err := c.Store.Save(ctx, c.Name, cur); err != nil {
			return err
		}
		c.Print("%s: %s\n", c.Name, cur)
		return nil
	}
}

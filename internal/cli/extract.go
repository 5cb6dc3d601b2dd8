package cli

import (
	"time"

	"github.com/spf13/cobra"
)

const (
	directionSQLToMongo = "sql-to-mongo"
	directionMongoToSQL = "mongo-to-sql"
)

type ExtractOptions struct {
	MappingFiles []string
	BatchSize    int
	DryRun       bool
	Retries      int
	RetryDelay   time.Duration
	MaxBatches   int
}

func NewExtractCmd() *cobra.Command {
	opts := &ExtractOptions{}

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Move rows changed since the last run",
	}

	cmd.PersistentFlags().StringSliceVarP(&opts.MappingFiles, "mapping", "m", []string{"configs/mapping.json"}, "Mapping file (repeat for several entities)")
	cmd.PersistentFlags().IntVarP(&opts.BatchSize, "batch-size", "b", 0, "Rows per fetch (0 keeps the cursor's size)")
	cmd.PersistentFlags().BoolVar(&opts.DryRun, "dry-run", false, "Fetch without loading or saving the cursor")
	cmd.PersistentFlags().IntVar(&opts.Retries, "retries", 3, "Retries for a failed fetch")
	cmd.PersistentFlags().DurationVar(&opts.RetryDelay, "retry-delay", 2*time.Second, "Wait between fetch retries")
	cmd.PersistentFlags().IntVar(&opts.MaxBatches, "max-batches", 0, "Stop after this many batches (0 drains the window)")

	sqlToMongo := &cobra.Command{
		Use:   directionSQLToMongo,
		Short: "Extract from SQL Server and upsert into MongoDB",
		RunE: func(c *cobra.Command, args []string) error {
			return runExtract(c.Context(), opts, directionSQLToMongo)
		},
	}

	mongoToSQL := &cobra.Command{
		Use:   directionMongoToSQL,
		Short: "Extract from MongoDB and write into SQL Server",
		RunE: func(c *cobra.Command, args []string) error {
			return runExtract(c.Context(), opts, directionMongoToSQL)
		},
	}

	cmd.AddCommand(sqlToMongo, mongoToSQL)
	return cmd
}

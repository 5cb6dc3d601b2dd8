package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type CursorOptions struct {
	MappingFile string
	Direction   string
	Start       string
}

func NewCursorCmd() *cobra.Command {
	opts := &CursorOptions{}

	cmd := &cobra.Command{
		Use:   "cursor",
		Short: "Inspect or administer extraction cursors",
	}
	cmd.PersistentFlags().StringVarP(&opts.MappingFile, "mapping", "m", "configs/mapping.json", "Path to mapping file")
	cmd.PersistentFlags().StringVarP(&opts.Direction, "direction", "d", directionSQLToMongo, "sql-to-mongo or mongo-to-sql")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the saved cursor",
		RunE: func(c *cobra.Command, args []string) error {
			return withCursor(c, opts, showCursor)
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Forget the cursor, or restart it at --start",
		RunE: func(c *cobra.Command, args []string) error {
			return withCursor(c, opts, resetCursor)
		},
	}
	reset.Flags().StringVar(&opts.Start, "start", "", "RFC 3339 time to restart from")

	enable := &cobra.Command{
		Use:   "enable",
		Short: "Allow extraction for this cursor",
		RunE: func(c *cobra.Command, args []string) error {
			return withCursor(c, opts, setCursorEnabled(true))
		},
	}

	disable := &cobra.Command{
		Use:   "disable",
		Short: "Stop extraction for this cursor without losing its position",
		RunE: func(c *cobra.Command, args []string) error {
			return withCursor(c, opts, setCursorEnabled(false))
		},
	}

	cmd.AddCommand(show, reset, enable, disable)
	return cmd
}

func parseStart(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --start %q: %w", s, err)
	}
	return t, nil
}

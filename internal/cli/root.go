// Package cli handles the command-line interface logic
// using the Cobra library.
package cli

import (
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ida",
		Short: "IDA - incremental extraction between SQL Server and MongoDB",
		Long: `IDA incrementally extracts changed rows between SQL Server and MongoDB.
Each mapping file describes one entity and the time field its changes are tracked by;
progress is kept in a cursor so every run only moves new or updated rows.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.AddCommand(NewExtractCmd(), NewCursorCmd())

	return rootCmd
}

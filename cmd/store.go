package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zjrosen/flowstate/internal/changelog"
	"github.com/zjrosen/flowstate/internal/paths"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print store statistics as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, closer, err := openRegistry()
		if err != nil {
			return err
		}
		defer closer()

		return printJSON(reg.GetStatistics())
	},
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Write pending changes to disk",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, closer, err := openRegistry()
		if err != nil {
			return err
		}
		defer closer()

		return reg.Flush()
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile with the on-disk store",
	Long:  `Flush pending changes, then reload the store if another process has moved it forward. Both steps happen under one inter-process lock acquisition.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, closer, err := openRegistry()
		if err != nil {
			return err
		}
		defer closer()

		return reg.Sync()
	},
}

var findCmd = &cobra.Command{
	Use:   "find <name>",
	Short: "Find flows, plans and tasks by exact name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, closer, err := openRegistry()
		if err != nil {
			return err
		}
		defer closer()

		return printJSON(reg.FindByName(args[0]))
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <kind> <id>",
	Short: "Show the recorded change history of one entity",
	Long: `Show every change recorded for an entity, newest first.

Requires the SQLite changelog sink (changelog.sqlite_enabled: true); the
JSONL sink alone is append-only and not queryable.

Examples:
  flowstate history task task-9c0d1e2f
  flowstate history flow flow-1a2b3c4d`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Changelog.SQLiteEnabled {
			return fmt.Errorf("history requires changelog.sqlite_enabled: true")
		}
		baseDir := paths.ResolveStateDir(cfg.BaseDir)
		sink, err := changelog.NewSQLiteSink(filepath.Join(baseDir, changelog.DBFileName))
		if err != nil {
			return err
		}
		defer sink.Close()

		changes, err := sink.History(args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(changes)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd, flushCmd, syncCmd, findCmd, historyCmd)
}

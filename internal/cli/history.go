package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [source]",
	Short: "List import run history",
	Long: `List past import runs, most recent first, optionally filtered to one
source.

Examples:
  cmdbsync history
  cmdbsync history proxmox-prod -n 10`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "max runs to list")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var sourceID *int64
	if len(args) == 1 {
		source, err := resolveSource(ctx, args[0])
		if err != nil {
			return fmt.Errorf("resolve source: %w", err)
		}
		sourceID = &source.ID
	}

	logs, err := dbClient.ListImportLogs(ctx, sourceID, historyLimit)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		fmt.Println("No runs found")
		return nil
	}

	fmt.Printf("%-6s %-24s %-16s %-10s %-8s %-8s %-8s %s\n",
		"ID", "SOURCE", "STATUS", "PROCESSED", "CREATED", "UPDATED", "FAILED", "STARTED")
	fmt.Println("--------------------------------------------------------------------------------------------")
	for _, l := range logs {
		fmt.Printf("%-6d %-24s %-16s %-10d %-8d %-8d %-8d %s\n",
			l.ID, l.Source, l.Status, l.RecordsProcessed, l.RecordsCreated,
			l.RecordsUpdated, l.RecordsFailed, l.StartedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

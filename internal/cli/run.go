package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cmdb-tools/cmdbsync/internal/models"
)

var runCmd = &cobra.Command{
	Use:   "run <source>",
	Short: "Run an import for one source",
	Long: `Run a full import and reconciliation pass for one source, identified
by id or name.

Examples:
  cmdbsync run proxmox-prod
  cmdbsync run 3`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	source, err := resolveSource(ctx, args[0])
	if err != nil {
		return fmt.Errorf("resolve source: %w", err)
	}

	log, err := newRunner().Run(ctx, source.ID)
	if err != nil {
		if log != nil {
			printRunSummary(log)
		}
		return err
	}

	printRunSummary(log)
	return nil
}

func printRunSummary(log *models.ImportLog) {
	fmt.Printf("Run #%d for %q: %s\n", log.ID, log.Source, log.Status)
	fmt.Printf("  processed: %d\n", log.RecordsProcessed)
	fmt.Printf("  created:   %d\n", log.RecordsCreated)
	fmt.Printf("  updated:   %d\n", log.RecordsUpdated)
	fmt.Printf("  failed:    %d\n", log.RecordsFailed)
	if log.Details != nil {
		if log.Details.Message != "" {
			fmt.Printf("  message:   %s\n", log.Details.Message)
		}
		if log.Details.AuditFile != "" {
			fmt.Printf("  audit:     %s\n", log.Details.AuditFile)
		}
	}
}

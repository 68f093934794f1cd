package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cmdb-tools/cmdbsync/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the import scheduler",
	Long: `Host the cron scheduler: every active source with a schedule_cron
expression is imported on its schedule until the process is stopped.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(dbClient, newRunner(), logger)
	if err := sched.Reload(ctx); err != nil {
		return fmt.Errorf("load scheduled sources: %w", err)
	}

	sched.Start()
	fmt.Printf("Scheduler running with %d source(s); Ctrl-C to stop\n", len(sched.ScheduledSources()))

	<-ctx.Done()
	logger.Info("shutting down scheduler")
	sched.Stop()
	return nil
}

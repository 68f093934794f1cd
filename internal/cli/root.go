// Package cli provides the command-line interface for cmdbsync.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cmdb-tools/cmdbsync/internal/config"
	"github.com/cmdb-tools/cmdbsync/internal/connector"
	"github.com/cmdb-tools/cmdbsync/internal/db"
	"github.com/cmdb-tools/cmdbsync/internal/models"
	"github.com/cmdb-tools/cmdbsync/internal/reconcile"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	verbose bool

	// Global config, logger and db client, wired in PersistentPreRunE.
	cfg        config.Config
	logger     *slog.Logger
	logCleanup func() error
	dbClient   *db.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "cmdbsync",
	Short: "CMDB import and reconciliation engine",
	Long: `Cmdbsync imports asset inventory records from external systems
(directories, hypervisors, patch databases, SQL exports, flat files, list
services) and reconciles them into a canonical configuration item store.

Sources are configured declaratively: a connector kind with connection
parameters, a field mapping, and a reconciliation policy.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		logger, logCleanup = config.SetupLogger(cfg.LogFile, level)
		slog.SetDefault(logger)
		connector.SetDefaultTimeout(cfg.ConnectorTimeout)

		var err error
		dbClient, err = db.NewClient(context.Background(), db.Config{URL: cfg.DatabaseURL}, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if dbClient != nil {
			dbClient.Close()
		}
		if logCleanup != nil {
			_ = logCleanup()
		}
	},
}

// newRunner builds the import runner over the global db client.
func newRunner() *reconcile.Runner {
	return reconcile.NewRunner(dbClient, logger, cfg.ArtifactDir)
}

// resolveSource accepts a numeric source id or a source name.
func resolveSource(ctx context.Context, arg string) (*models.ImportSource, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return dbClient.GetSource(ctx, id)
	}
	return dbClient.GetSourceByName(ctx, arg)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initCmd)
}

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cmdb-tools/cmdbsync/internal/connector"
)

var testCmd = &cobra.Command{
	Use:   "test <source>",
	Short: "Test a source's connection",
	Args:  cobra.ExactArgs(1),
	RunE:  runTestConnection,
}

func runTestConnection(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	source, err := resolveSource(ctx, args[0])
	if err != nil {
		return fmt.Errorf("resolve source: %w", err)
	}

	conn, err := connector.New(source.SourceType, source.ConnectionParams)
	if err != nil {
		return err
	}

	if !conn.TestConnection(ctx) {
		return fmt.Errorf("source %q is not reachable", source.Name)
	}
	fmt.Printf("Source %q: connection ok\n", source.Name)
	return nil
}

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cmdb-tools/cmdbsync/internal/connector"
)

var schemaCmd = &cobra.Command{
	Use:   "schema <source>",
	Short: "Introspect a source's fields and categories",
	Long: `Show the field names a source exposes (as dotted paths usable in a
field mapping) and, where the source has one, its object-type taxonomy.`,
	Args: cobra.ExactArgs(1),
	RunE: runSchema,
}

func runSchema(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	source, err := resolveSource(ctx, args[0])
	if err != nil {
		return fmt.Errorf("resolve source: %w", err)
	}

	conn, err := connector.New(source.SourceType, source.ConnectionParams)
	if err != nil {
		return err
	}

	fields := conn.Schema(ctx)
	if len(fields) == 0 {
		fmt.Println("No fields discovered")
	} else {
		fmt.Printf("Fields (%d):\n", len(fields))
		for _, field := range fields {
			fmt.Printf("  %s\n", field)
		}
	}

	if categories := conn.Categories(ctx); len(categories) > 0 {
		fmt.Printf("Categories (%d):\n", len(categories))
		for _, c := range categories {
			fmt.Printf("  %-12s %s\n", c.ID, c.Name)
		}
	}
	return nil
}

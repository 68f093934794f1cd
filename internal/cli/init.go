package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := dbClient.InitSchema(context.Background()); err != nil {
			return err
		}
		fmt.Println("Schema initialized")
		return nil
	},
}

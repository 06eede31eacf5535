package cli

import (
	"github.com/spf13/cobra"

	"example.com/trackerimport/internal/app"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunMigrations(cmd.Context())
		},
	}
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/edgard/tokenbot/internal/database"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and print the schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := openBase(opts)
			if err != nil {
				return err
			}
			defer b.Close()

			version, dirty, err := database.MigrationVersion(b.db.DB, database.ExtractDBNameFromPath(b.cfg.Database.Path))
			if err != nil {
				return err
			}
			printf(cmd, "schema version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}
}

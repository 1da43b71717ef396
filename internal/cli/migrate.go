package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formwizard/internal/store"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the bundled sample migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := configFrom(ctx)

			dialect, err := store.ParseDialect(cfg.Database.Dialect)
			if err != nil {
				return err
			}
			db, err := store.Open(ctx, dialect, cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := store.Migrate(ctx, db, dialect); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			version, err := store.MigrationVersion(ctx, db, dialect)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "database at version %d\n", version)
			return nil
		},
	}
}

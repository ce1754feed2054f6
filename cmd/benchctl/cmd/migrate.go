package cmd

import (
	"hpcbench/internal/store/postgres"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup(cmd)
		if err != nil {
			return err
		}
		defer env.close(cmd.Context())

		db, err := env.database(cmd.Context())
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return nil
		}

		env.log.Info("running database migrations")
		version, err := postgres.Migrate(db.DB())
		if err != nil {
			cmd.Printf("Migration failed: %v\n", err)
			return nil
		}
		cmd.Printf("✓ Schema at version %d\n", version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

// Package commands provides CLI commands for the admin tool
package commands

import (
	"fmt"

	"osscprep/internal/database"
	contextutils "osscprep/internal/utils"

	"github.com/spf13/cobra"
)

// DatabaseCommands returns the database management commands
func DatabaseCommands(env *Env) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
		Long: `Database management commands for the sourcing event store.

Available commands:
  migrate   - Apply pending schema migrations
  version   - Show the applied schema version`,
	}

	dbCmd.AddCommand(migrateCmd(env))
	dbCmd.AddCommand(versionCmd(env))
	dbCmd.AddCommand(&cobra.Command{
		Use:   "migrations",
		Short: "List the embedded migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := database.MigrationNames()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	})

	return dbCmd
}

// migrateCmd returns the migrate command
func migrateCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long:  `Connect to the configured database and apply every embedded migration that has not run yet.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if env.Config.Database.URL == "" {
				return contextutils.WrapError(contextutils.ErrInvalidInput, "database.url is not configured")
			}

			dbManager := database.NewManager(env.Logger)
			db, err := dbManager.InitDB(ctx, env.Config.Database)
			if err != nil {
				return contextutils.WrapErrorf(err, "failed to migrate %s", maskDatabaseURL(env.Config.Database.URL))
			}
			defer func() { _ = db.Close() }()

			version, dirty, err := dbManager.MigrationVersion(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\nschema version %d (dirty=%t)\n", getDatabaseInfo(ctx, db), version, dirty)
			return nil
		},
	}
}

// versionCmd returns the version command
func versionCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the applied schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if env.Config.Database.URL == "" {
				return contextutils.WrapError(contextutils.ErrInvalidInput, "database.url is not configured")
			}

			dbManager := database.NewManager(env.Logger)
			db, err := dbManager.InitDBWithoutMigrations(ctx, env.Config.Database)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			version, dirty, err := dbManager.MigrationVersion(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}
}

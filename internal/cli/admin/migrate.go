package admin

import (
	"fmt"

	"github.com/cloo-solutions/unirank/internal/database"
	"github.com/cloo-solutions/unirank/internal/logging"
	"github.com/spf13/cobra"
)

func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}

	cmd.PersistentFlags().String("migrations", database.DefaultMigrationsSource, "Migration source URL")
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, 0)
		},
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			if steps <= 0 {
				return fmt.Errorf("--steps must be positive, got %d", steps)
			}
			return runMigrate(cmd, -steps)
		},
	}
	down.Flags().Int("steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(down)

	return cmd
}

func runMigrate(cmd *cobra.Command, steps int) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	source, _ := cmd.Flags().GetString("migrations")

	status, err := database.Migrate(cfg.DatabaseURL, source, steps, logging.New(cfg.LogLevel))
	if err != nil {
		return err
	}

	if status.Changed {
		fmt.Fprintf(cmd.OutOrStdout(), "Migrated to version %d\n", status.Version)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Database is up to date (version %d)\n", status.Version)
	}
	return nil
}

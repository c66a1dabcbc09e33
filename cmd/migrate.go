package cmd

import (
	"fmt"
	"os"

	"github.com/curaious/xm/internal/migrations"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run Migrations",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(cmd.Help())
	},
}

// runMigrator exits non-zero when the migrator cannot be created or fn fails
func runMigrator(action string, fn func(*migrations.Migrator) error) {
	migrator, err := migrations.NewMigrator()
	if err != nil {
		fmt.Println("Unable to initialize migrator", err)
		os.Exit(1)
	}

	if err := fn(migrator); err != nil {
		fmt.Printf("Unable to %s: %v\n", action, err)
		os.Exit(1)
	}
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display status of each migration",
	Run: func(cmd *cobra.Command, args []string) {
		runMigrator("fetch migration status", (*migrations.Migrator).MigrationStatus)
	},
}

var migrateCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new empty migration file",
	Run: func(cmd *cobra.Command, args []string) {
		name, _ := cmd.Flags().GetString("name")
		runMigrator("create new migration file", func(m *migrations.Migrator) error {
			return m.CreateMigration(name)
		})
	},
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Run up migrations",
	Long:  "Run all pending 'up' migrations.\nWith --step N only the next N pending migrations run.",
	Run: func(cmd *cobra.Command, args []string) {
		step, _ := cmd.Flags().GetInt("step")
		runMigrator("run `up` migrations", func(m *migrations.Migrator) error {
			return m.Up(step)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Run down migrations",
	Long:  "Revert every completed migration, newest first.\nWith --step N only the last N migrations are reverted.",
	Run: func(cmd *cobra.Command, args []string) {
		step, _ := cmd.Flags().GetInt("step")
		runMigrator("run `down` migrations", func(m *migrations.Migrator) error {
			return m.Down(step)
		})
	},
}

func init() {
	migrateCreateCmd.Flags().StringP("name", "n", "", "Name for the migration")
	migrateCmd.AddCommand(migrateCreateCmd)

	migrateUpCmd.Flags().IntP("step", "s", 0, "Number of migrations to execute")
	migrateCmd.AddCommand(migrateUpCmd)

	migrateDownCmd.Flags().IntP("step", "s", 0, "Number of migrations to revert")
	migrateCmd.AddCommand(migrateDownCmd)

	migrateCmd.AddCommand(migrateStatusCmd)

	rootCmd.AddCommand(migrateCmd)
}

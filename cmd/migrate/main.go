package main

import (
	"fmt"
	"os"

	"billsplit/internal/config"
	"billsplit/internal/migrations"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run billsplit database migrations",
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all up migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newMigrator()
		if err != nil {
			return err
		}
		defer closeMigrator(m)

		if err := migrations.Up(m); err != nil {
			return fmt.Errorf("migrate up failed: %w", err)
		}
		return printVersion(cmd, m)
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newMigrator()
		if err != nil {
			return err
		}
		defer closeMigrator(m)

		if err := m.Steps(-1); err != nil {
			return fmt.Errorf("migrate down failed: %w", err)
		}
		return printVersion(cmd, m)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newMigrator()
		if err != nil {
			return err
		}
		defer closeMigrator(m)
		return printVersion(cmd, m)
	},
}

func newMigrator() (*migrate.Migrate, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return migrations.New(cfg.MySQL.DSN())
}

func closeMigrator(m *migrate.Migrate) {
	_, _ = m.Close()
}

func printVersion(cmd *cobra.Command, m *migrate.Migrate) error {
	version, dirty, err := m.Version()
	if err != nil {
		if err == migrate.ErrNilVersion {
			cmd.Println("no migrations applied")
			return nil
		}
		return err
	}
	cmd.Printf("version=%d dirty=%t\n", version, dirty)
	return nil
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "config file path")
	rootCmd.AddCommand(upCmd, downCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

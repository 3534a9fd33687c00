// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/listkeep/listkeep/internal/store"
)

// Migrator is the part of store.Migrator the migrate command drives.
type Migrator interface {
	Up() error
	Down() error
	Force(version int) error
	Status() (store.MigrationStatus, error)
	Close() error
}

// MigratorFactory opens a Migrator for a database URL.
type MigratorFactory func(databaseURL string) (Migrator, error)

func defaultMigratorFactory(databaseURL string) (Migrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate command and its subcommands.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmd(defaultMigratorFactory)
}

func newMigrateCmd(factory MigratorFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Apply, roll back or inspect the PostgreSQL schema migrations.`,
	}
	cmd.PersistentFlags().String("database-url", "", "Postgres connection URL (default: $DATABASE_URL)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(factory, func(cmd *cobra.Command, m Migrator, _ []string) error {
			if err := m.Up(); err != nil {
				return err
			}
			cmd.Println("Migrations applied")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration (drops all data)",
		Args:  cobra.NoArgs,
		RunE: withMigrator(factory, func(cmd *cobra.Command, m Migrator, _ []string) error {
			if err := m.Down(); err != nil {
				return err
			}
			cmd.Println("Migrations rolled back")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(factory, func(cmd *cobra.Command, m Migrator, _ []string) error {
			status, err := m.Status()
			if err != nil {
				return err
			}
			cmd.Print(formatStatus(status))
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it",
		Long: `Record VERSION as the current schema version and clear the dirty
flag. Use only after repairing a failed migration by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: withMigrator(factory, func(cmd *cobra.Command, m Migrator, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			if err := m.Force(version); err != nil {
				return err
			}
			cmd.Printf("Forced version %d\n", version)
			return nil
		}),
	})

	return cmd
}

// withMigrator resolves the database URL, opens a migrator for the
// duration of fn and closes it afterwards.
func withMigrator(factory MigratorFactory, fn func(cmd *cobra.Command, m Migrator, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		databaseURL, err := getDatabaseURL(cmd)
		if err != nil {
			return err
		}

		m, err := factory(databaseURL)
		if err != nil {
			return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
		}
		defer func() {
			if closeErr := m.Close(); closeErr != nil {
				cmd.PrintErrln("warning: failed to close migrator:", closeErr)
			}
		}()

		return fn(cmd, m, args)
	}
}

// getDatabaseURL loads configuration for cmd and requires a database URL.
func getDatabaseURL(cmd *cobra.Command) (string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	if cfg.Database.URL == "" {
		return "", oops.Code("CONFIG_INVALID").Errorf("database url is required (--database-url, LISTKEEP_DATABASE_URL or DATABASE_URL)")
	}
	return cfg.Database.URL, nil
}

func parseForceVersion(raw string) (int, error) {
	version, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", raw).Errorf("version must be an integer")
	}
	if version < 0 {
		return 0, oops.Code("INVALID_VERSION").With("input", raw).Errorf("version must be non-negative")
	}
	return version, nil
}

func formatStatus(status store.MigrationStatus) string {
	var b strings.Builder
	current := "none"
	if status.Version > 0 {
		current = strconv.FormatUint(uint64(status.Version), 10)
		if name, err := store.MigrationName(status.Version); err == nil && name != "" {
			current = name
		}
	}
	fmt.Fprintf(&b, "Current version: %s\n", current)
	if status.Dirty {
		b.WriteString("Dirty: yes (repair the schema, then run `migrate force`)\n")
	}
	fmt.Fprintf(&b, "Applied: %d\n", len(status.Applied))
	fmt.Fprintf(&b, "Pending: %d\n", len(status.Pending))
	for _, v := range status.Pending {
		name, err := store.MigrationName(v)
		if err != nil || name == "" {
			name = strconv.FormatUint(uint64(v), 10)
		}
		fmt.Fprintf(&b, "  %s\n", name)
	}
	return b.String()
}

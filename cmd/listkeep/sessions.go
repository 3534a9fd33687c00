// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/listkeep/listkeep/internal/auth"
	"github.com/listkeep/listkeep/internal/config"
)

// NewSessionsCmd creates the sessions command.
func NewSessionsCmd() *cobra.Command {
	return newSessionsCmd(openBackend)
}

func newSessionsCmd(open BackendFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Maintain stored sessions",
	}
	cmd.PersistentFlags().String("database-url", "", "Postgres connection URL (default: $DATABASE_URL)")

	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete expired sessions",
		Long: `Delete every session whose expiry has passed. The server does this
periodically; this command runs one pass, for example from cron.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runSessionsPrune(cmd, cfg, open)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke USERNAME",
		Short: "Sign a user out everywhere",
		Long: `Delete every session of USERNAME, for example after the account's
password was exposed. The user has to log in again on every device.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runSessionsRevoke(cmd, cfg, open, args[0])
		},
	})

	return cmd
}

// openSessionStore checks cfg and opens the persistent backend.
func openSessionStore(cmd *cobra.Command, cfg *config.Config, open BackendFactory, command string) (context.Context, *Backend, *auth.SessionManager, error) {
	if cfg.Storage != config.StoragePostgres {
		return nil, nil, nil, oops.Code("CONFIG_INVALID").With("storage", cfg.Storage).
			Errorf("sessions %s needs persistent storage", command)
	}
	if cfg.Database.URL == "" {
		return nil, nil, nil, oops.Code("CONFIG_INVALID").Errorf("database url is required (--database-url, LISTKEEP_DATABASE_URL or DATABASE_URL)")
	}

	logger := slog.Default()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	backend, err := open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, oops.With("operation", "open storage").Wrap(err)
	}
	manager, err := auth.NewSessionManager(backend.Sessions, auth.WithSessionLogger(logger))
	if err != nil {
		backend.Close()
		return nil, nil, nil, err
	}
	return ctx, backend, manager, nil
}

func runSessionsPrune(cmd *cobra.Command, cfg *config.Config, open BackendFactory) error {
	ctx, backend, manager, err := openSessionStore(cmd, cfg, open, "prune")
	if err != nil {
		return err
	}
	defer backend.Close()

	n, err := manager.PruneExpired(ctx)
	if err != nil {
		return err
	}

	cmd.Printf("Pruned %d expired sessions\n", n)
	return nil
}

func runSessionsRevoke(cmd *cobra.Command, cfg *config.Config, open BackendFactory, username string) error {
	ctx, backend, manager, err := openSessionStore(cmd, cfg, open, "revoke")
	if err != nil {
		return err
	}
	defer backend.Close()

	user, err := backend.Users.GetByUsername(ctx, username)
	if err != nil {
		return oops.With("username", username).Wrap(err)
	}
	if err := manager.InvalidateUser(ctx, user.ID); err != nil {
		return err
	}

	cmd.Printf("Revoked all sessions of %s\n", user.Username)
	return nil
}

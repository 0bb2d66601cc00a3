package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"consignado-bot/internal/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the SQL schema in DATABASE_URL",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}
		s, err := repository.OpenSQL(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()
		if err := s.Migrate(cmd.Context()); err != nil {
			return err
		}
		slog.Info("schema applied", "driver", s.Driver())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

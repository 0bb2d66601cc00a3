package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"consignado-bot/internal/config"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "consignado-bot",
	Short: "WhatsApp assistant for payroll loan inquiries",
	Long: `consignado-bot answers WhatsApp messages delivered by a Z-API webhook,
greets the customer, collects and validates their CPF and keeps per-phone
conversation state.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadRootConfig,
}

func loadRootConfig(_ *cobra.Command, _ []string) error {
	loaded, err := config.Load()
	if err != nil {
		return err
	}
	cfg = loaded
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

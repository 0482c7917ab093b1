// Command nysa runs the Nysa community site and its maintenance tasks.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nysa-project/nysa/internal/app"
)

var rootCmd = &cobra.Command{
	Use:   "nysa",
	Short: "Nysa community site",
	Long: `Nysa serves the public site, member dashboard and article catalog.

Running nysa without a subcommand is the same as "nysa serve".`,
	SilenceUsage: true,
	RunE:         runServe,
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd.AddCommand(serveCmd, migrateCmd, healthcheckCmd, articlesCmd)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadRuntime reads configuration and builds the logger every subcommand uses.
func loadRuntime() (*app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return nil, nil, err
	}
	return cfg, app.NewLogger(cfg), nil
}

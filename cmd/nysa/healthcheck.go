package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nysa-project/nysa/internal/platform/cache"
	"github.com/nysa-project/nysa/internal/platform/db"
)

var healthcheckURL string

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that the site's dependencies are reachable",
	Long: `Without flags, healthcheck connects to PostgreSQL and Redis directly.
With --url it asks a running server for its /healthz status instead, which
suits container probes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if healthcheckURL != "" {
			return probeURL(ctx, healthcheckURL)
		}

		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			pool, err := db.New(gctx, cfg.PGDSN, db.Options{MaxConns: 1})
			if err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			pool.Close()
			return nil
		})
		g.Go(func() error {
			client, err := cache.New(gctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
			if err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			return client.Close()
		})
		if err := g.Wait(); err != nil {
			logger.Error("healthcheck failed", slog.Any("error", err))
			return err
		}
		logger.Info("healthcheck ok")
		return nil
	},
}

func probeURL(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck: %s returned %d", target, resp.StatusCode)
	}
	return nil
}

func init() {
	healthcheckCmd.Flags().StringVar(&healthcheckURL, "url", "", "probe a running server, e.g. http://localhost:8080/healthz")
}

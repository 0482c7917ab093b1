package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nysa-project/nysa/internal/app"
	"github.com/nysa-project/nysa/internal/articles"
	"github.com/nysa-project/nysa/internal/platform/cache"
	"github.com/nysa-project/nysa/internal/platform/db"
)

var articlesCmd = &cobra.Command{
	Use:   "articles",
	Short: "Article catalog maintenance",
}

var bumpCacheCmd = &cobra.Command{
	Use:   "bump-cache",
	Short: "Invalidate cached article listings after editing the articles table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		if cfg.ArticlesSource != app.ArticlesDatabase {
			logger.Info("articles are served from embedded content; nothing to invalidate")
			return nil
		}

		pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 1})
		if err != nil {
			return err
		}
		defer pool.Close()
		client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return err
		}
		defer client.Close()

		version, err := articles.NewCache(articles.NewPGSource(pool), client, cfg.ArticlesCacheTTL, logger).Bump(ctx)
		if err != nil {
			logger.Error("bump article cache", slog.Any("error", err))
			return err
		}
		logger.Info("article cache invalidated", slog.Int64("version", version))
		return nil
	},
}

func init() {
	articlesCmd.AddCommand(bumpCacheCmd)
}

package articles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "nysa:articles:version"

// Cache is a Redis read-through cache in front of a Source. Keys carry a
// version so Bump invalidates every entry at once.
type Cache struct {
	next   Source
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache wraps next. A nil client or non-positive ttl disables caching.
func NewCache(next Source, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{next: next, client: client, ttl: ttl, logger: logger}
}

func (c *Cache) enabled() bool {
	return c.client != nil && c.ttl > 0
}

// List implements Source.
func (c *Cache) List(ctx context.Context, topic Topic) ([]Article, error) {
	var out []Article
	err := c.fetch(ctx, &out, func(ctx context.Context) (any, error) {
		return c.next.List(ctx, topic)
	}, "list", topicToken(topic))
	return out, err
}

// BySlug implements Source. Misses are not cached.
func (c *Cache) BySlug(ctx context.Context, slug string) (Article, error) {
	var out Article
	err := c.fetch(ctx, &out, func(ctx context.Context) (any, error) {
		return c.next.BySlug(ctx, slug)
	}, "slug", slug)
	return out, err
}

// Topics implements Source.
func (c *Cache) Topics(ctx context.Context) ([]Topic, error) {
	var out []Topic
	err := c.fetch(ctx, &out, func(ctx context.Context) (any, error) {
		return c.next.Topics(ctx)
	}, "topics")
	return out, err
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Bump invalidates every cached entry.
func (c *Cache) Bump(ctx context.Context) (int64, error) {
	if c.client == nil {
		return 0, nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Result()
}

func (c *Cache) buildKey(ctx context.Context, parts ...string) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("nysa:articles:%s:%d", strings.Join(parts, ":"), ver), nil
}

// fetch loads dest from Redis or fills it from loader. Redis failures fall
// back to the loader so the catalog stays readable.
func (c *Cache) fetch(ctx context.Context, dest any, loader func(context.Context) (any, error), parts ...string) error {
	if !c.enabled() {
		return decodeInto(ctx, loader, dest)
	}
	key, err := c.buildKey(ctx, parts...)
	if err != nil {
		c.logger.Warn("article cache unavailable", slog.Any("error", err))
		return decodeInto(ctx, loader, dest)
	}

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		if jsonErr := json.Unmarshal(payload, dest); jsonErr == nil {
			return nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("article cache read failed", slog.String("key", key), slog.Any("error", err))
	}

	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("article cache write failed", slog.String("key", key), slog.Any("error", err))
	}
	return json.Unmarshal(raw, dest)
}

func decodeInto(ctx context.Context, loader func(context.Context) (any, error), dest any) error {
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func topicToken(t Topic) string {
	if t == "" {
		return "all"
	}
	return string(t)
}

var _ Source = (*Cache)(nil)

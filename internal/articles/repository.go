package articles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nysa-project/nysa/internal/shared"
)

// PGSource reads published articles from PostgreSQL.
type PGSource struct {
	pool *pgxpool.Pool
}

// NewPGSource constructs a repository wrapper.
func NewPGSource(pool *pgxpool.Pool) *PGSource {
	return &PGSource{pool: pool}
}

const articleColumns = `id::text, slug, title, COALESCE(excerpt,''), content, topic::text, COALESCE(featured_image_url,''),
author, published, COALESCE(published_at, created_at)`

// List returns published articles newest first, optionally of one topic.
func (s *PGSource) List(ctx context.Context, topic Topic) ([]Article, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("articles: repository not initialised")
	}
	const query = `SELECT ` + articleColumns + `
FROM articles
WHERE published AND ($1 = '' OR topic::text = $1)
ORDER BY COALESCE(published_at, created_at) DESC, slug`
	rows, err := s.pool.Query(ctx, query, string(topic))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// BySlug loads one published article or shared.ErrNotFound.
func (s *PGSource) BySlug(ctx context.Context, slug string) (Article, error) {
	if s == nil || s.pool == nil {
		return Article{}, fmt.Errorf("articles: repository not initialised")
	}
	const query = `SELECT ` + articleColumns + ` FROM articles WHERE slug = $1 AND published`
	a, err := scanArticle(s.pool.QueryRow(ctx, query, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Article{}, shared.ErrNotFound
		}
		return Article{}, err
	}
	return a, nil
}

// Topics returns the distinct topics of published articles, ascending.
func (s *PGSource) Topics(ctx context.Context) ([]Topic, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("articles: repository not initialised")
	}
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT topic::text FROM articles WHERE published ORDER BY 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var topics []Topic
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		topics = append(topics, Topic(raw))
	}
	return topics, rows.Err()
}

func scanArticle(row pgx.Row) (Article, error) {
	var a Article
	var topic string
	if err := row.Scan(&a.ID, &a.Slug, &a.Title, &a.Excerpt, &a.Content, &topic, &a.FeaturedImageURL,
		&a.Author, &a.Published, &a.PublishedAt); err != nil {
		return Article{}, err
	}
	a.Topic = Topic(topic)
	return a, nil
}

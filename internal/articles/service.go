package articles

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// DefaultRecent is how many articles the home page shows.
const DefaultRecent = 3

// Service answers catalog queries on top of a Source.
type Service struct {
	source   Source
	renderer *Renderer
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(source Source, renderer *Renderer, logger *slog.Logger) *Service {
	if renderer == nil {
		renderer = NewRenderer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, renderer: renderer, logger: logger}
}

// List returns published articles newest first. An empty topic lists every
// topic; an unknown one is a validation error.
func (s *Service) List(ctx context.Context, topic string) ([]Article, error) {
	var t Topic
	if strings.TrimSpace(topic) != "" {
		parsed, err := ParseTopic(topic)
		if err != nil {
			return nil, err
		}
		t = parsed
	}
	list, err := s.source.List(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	sortNewestFirst(list)
	return list, nil
}

// BySlug returns a published article with its rendered body.
func (s *Service) BySlug(ctx context.Context, slug string) (Rendered, error) {
	a, err := s.source.BySlug(ctx, strings.TrimSpace(slug))
	if err != nil {
		return Rendered{}, fmt.Errorf("article %q: %w", slug, err)
	}
	body, err := s.renderer.Render(a.Content)
	if err != nil {
		return Rendered{}, fmt.Errorf("render article %q: %w", slug, err)
	}
	return Rendered{Article: a, Body: body}, nil
}

// Topics returns the distinct topics among published articles, ascending.
func (s *Service) Topics(ctx context.Context) ([]Topic, error) {
	topics, err := s.source.Topics(ctx)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	return topics, nil
}

// Recent returns the newest limit published articles.
func (s *Service) Recent(ctx context.Context, limit int) ([]Article, error) {
	if limit <= 0 {
		limit = DefaultRecent
	}
	list, err := s.List(ctx, "")
	if err != nil {
		return nil, err
	}
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

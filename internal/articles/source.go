package articles

import (
	"context"
	"sort"
)

// Source supplies published articles. Implementations return articles
// newest first and shared.ErrNotFound for unknown slugs.
type Source interface {
	List(ctx context.Context, topic Topic) ([]Article, error)
	BySlug(ctx context.Context, slug string) (Article, error)
	Topics(ctx context.Context) ([]Topic, error)
}

// sortNewestFirst orders by publication time, then slug for stability.
func sortNewestFirst(list []Article) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].PublishedAt.Equal(list[j].PublishedAt) {
			return list[i].PublishedAt.After(list[j].PublishedAt)
		}
		return list[i].Slug < list[j].Slug
	})
}

func distinctTopics(list []Article) []Topic {
	seen := make(map[Topic]struct{})
	topics := make([]Topic, 0, len(AllTopics))
	for _, a := range list {
		if _, ok := seen[a.Topic]; ok {
			continue
		}
		seen[a.Topic] = struct{}{}
		topics = append(topics, a.Topic)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i] < topics[j] })
	return topics
}

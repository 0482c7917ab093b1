package articles

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nysa-project/nysa/internal/shared"
)

type sliceSource struct {
	articles []Article
	err      error
	calls    int
}

func (s *sliceSource) List(_ context.Context, topic Topic) ([]Article, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	var out []Article
	for _, a := range s.articles {
		if topic == "" || a.Topic == topic {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *sliceSource) BySlug(_ context.Context, slug string) (Article, error) {
	s.calls++
	for _, a := range s.articles {
		if a.Slug == slug {
			return a, nil
		}
	}
	return Article{}, shared.ErrNotFound
}

func (s *sliceSource) Topics(context.Context) ([]Topic, error) {
	s.calls++
	return distinctTopics(s.articles), nil
}

func day(d int) time.Time {
	return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC)
}

func fixtureSource() *sliceSource {
	return &sliceSource{articles: []Article{
		{Slug: "a", Title: "A", Topic: TopicViticulture, PublishedAt: day(1), Content: "alpha"},
		{Slug: "b", Title: "B", Topic: TopicCommunity, PublishedAt: day(9), Content: "bravo"},
		{Slug: "c", Title: "C", Topic: TopicViticulture, PublishedAt: day(5), Content: "charlie"},
		{Slug: "d", Title: "D", Topic: TopicEducation, PublishedAt: day(3), Content: "<script>alert(1)</script>\n\n**delta**"},
	}}
}

func slugs(list []Article) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Slug)
	}
	return out
}

func TestListNewestFirst(t *testing.T) {
	svc := NewService(fixtureSource(), nil, nil)

	all, err := svc.List(context.Background(), "")
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"b", "c", "d", "a"}, slugs(all)); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}

	vit, err := svc.List(context.Background(), "Viticulture")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, slugs(vit))
}

func TestListUnknownTopicIsValidationError(t *testing.T) {
	src := fixtureSource()
	svc := NewService(src, nil, nil)

	_, err := svc.List(context.Background(), "gardening")
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Zero(t, src.calls)
}

func TestListSourceFailure(t *testing.T) {
	svc := NewService(&sliceSource{err: errors.New("db down")}, nil, nil)
	_, err := svc.List(context.Background(), "")
	assert.ErrorContains(t, err, "db down")
}

func TestRecent(t *testing.T) {
	svc := NewService(fixtureSource(), nil, nil)

	recent, err := svc.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d"}, slugs(recent))

	one, err := svc.Recent(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, slugs(one))
}

func TestBySlugRendersSanitisedHTML(t *testing.T) {
	svc := NewService(fixtureSource(), nil, nil)

	got, err := svc.BySlug(context.Background(), "d")
	require.NoError(t, err)
	assert.Contains(t, string(got.Body), "<strong>delta</strong>")
	assert.NotContains(t, string(got.Body), "<script>")

	_, err = svc.BySlug(context.Background(), "zzz")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestTopicsSortedDistinct(t *testing.T) {
	svc := NewService(fixtureSource(), nil, nil)
	topics, err := svc.Topics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Topic{TopicCommunity, TopicEducation, TopicViticulture}, topics)
}

func TestParseTopicAndLabel(t *testing.T) {
	topic, err := ParseTopic("  SUSTAINABILITY ")
	require.NoError(t, err)
	assert.Equal(t, TopicSustainability, topic)
	assert.Equal(t, "Sustainability", topic.Label())

	_, err = ParseTopic("")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

// Package articles is the read-only catalog behind the Learn More pages.
package articles

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nysa-project/nysa/internal/shared"
)

// Topic classifies an article.
type Topic string

const (
	TopicViticulture    Topic = "viticulture"
	TopicRestoration    Topic = "restoration"
	TopicCommunity      Topic = "community"
	TopicSustainability Topic = "sustainability"
	TopicEducation      Topic = "education"
)

// AllTopics lists every known topic in ascending order.
var AllTopics = []Topic{TopicCommunity, TopicEducation, TopicRestoration, TopicSustainability, TopicViticulture}

var titleCase = cases.Title(language.English)

// ParseTopic validates raw against the topic set. Matching ignores case
// and surrounding space.
func ParseTopic(raw string) (Topic, error) {
	t := Topic(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range AllTopics {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown topic %q: %w", raw, shared.ErrValidation)
}

// Label is the human-readable topic name.
func (t Topic) Label() string {
	return titleCase.String(string(t))
}

// Article is a published piece in the catalog.
type Article struct {
	ID               string    `json:"id" yaml:"id"`
	Slug             string    `json:"slug" yaml:"slug"`
	Title            string    `json:"title" yaml:"title"`
	Excerpt          string    `json:"excerpt,omitempty" yaml:"excerpt"`
	Content          string    `json:"content" yaml:"-"`
	Topic            Topic     `json:"topic" yaml:"topic"`
	FeaturedImageURL string    `json:"featured_image_url,omitempty" yaml:"featured_image_url"`
	Author           string    `json:"author" yaml:"author"`
	Published        bool      `json:"published" yaml:"published"`
	PublishedAt      time.Time `json:"published_at" yaml:"published_at"`
}

// Rendered pairs an article with its sanitised HTML body.
type Rendered struct {
	Article
	Body template.HTML
}

package articles

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nysa-project/nysa/internal/shared"
)

//go:embed content/*.md
var content embed.FS

var frontMatterDelim = []byte("---")

// StaticSource serves the catalog compiled into the binary.
type StaticSource struct {
	articles []Article
	bySlug   map[string]Article
}

// NewStaticSource parses the embedded catalog.
func NewStaticSource() (*StaticSource, error) {
	return LoadStaticSource(content, "content")
}

// LoadStaticSource parses every *.md file under dir in fsys. Unpublished
// entries are skipped.
func LoadStaticSource(fsys fs.FS, dir string) (*StaticSource, error) {
	matches, err := fs.Glob(fsys, path.Join(dir, "*.md"))
	if err != nil {
		return nil, err
	}
	src := &StaticSource{bySlug: make(map[string]Article)}
	for _, name := range matches {
		raw, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		article, err := parseArticle(raw)
		if err != nil {
			return nil, fmt.Errorf("articles: %s: %w", name, err)
		}
		if !article.Published {
			continue
		}
		if _, dup := src.bySlug[article.Slug]; dup {
			return nil, fmt.Errorf("articles: duplicate slug %q in %s", article.Slug, name)
		}
		src.bySlug[article.Slug] = article
		src.articles = append(src.articles, article)
	}
	sortNewestFirst(src.articles)
	return src, nil
}

// List returns published articles, optionally of one topic.
func (s *StaticSource) List(_ context.Context, topic Topic) ([]Article, error) {
	out := make([]Article, 0, len(s.articles))
	for _, a := range s.articles {
		if topic == "" || a.Topic == topic {
			out = append(out, a)
		}
	}
	return out, nil
}

// BySlug returns one published article.
func (s *StaticSource) BySlug(_ context.Context, slug string) (Article, error) {
	a, ok := s.bySlug[slug]
	if !ok {
		return Article{}, shared.ErrNotFound
	}
	return a, nil
}

// Topics returns the distinct topics present, ascending.
func (s *StaticSource) Topics(context.Context) ([]Topic, error) {
	return distinctTopics(s.articles), nil
}

func parseArticle(raw []byte) (Article, error) {
	raw = bytes.TrimLeft(raw, "\ufeff\r\n ")
	if !bytes.HasPrefix(raw, frontMatterDelim) {
		return Article{}, fmt.Errorf("missing front matter")
	}
	rest := raw[len(frontMatterDelim):]
	end := bytes.Index(rest, append([]byte("\n"), frontMatterDelim...))
	if end < 0 {
		return Article{}, fmt.Errorf("unterminated front matter")
	}
	header := rest[:end]
	body := rest[end+1+len(frontMatterDelim):]

	var a Article
	if err := yaml.Unmarshal(header, &a); err != nil {
		return Article{}, fmt.Errorf("front matter: %w", err)
	}
	if a.Slug == "" || a.Title == "" {
		return Article{}, fmt.Errorf("slug and title are required")
	}
	topic, err := ParseTopic(string(a.Topic))
	if err != nil {
		return Article{}, err
	}
	a.Topic = topic
	if a.Author == "" {
		a.Author = "Nysa Team"
	}
	a.Content = strings.TrimSpace(string(body))
	return a, nil
}

package perf

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nysa-project/nysa/internal/articles"
	"github.com/nysa-project/nysa/internal/pages"
	"github.com/nysa-project/nysa/internal/view"
)

func newCatalogRouter(tb testing.TB) http.Handler {
	tb.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	templates, err := view.NewEngine()
	if err != nil {
		tb.Fatalf("templates: %v", err)
	}
	source, err := articles.NewStaticSource()
	if err != nil {
		tb.Fatalf("static source: %v", err)
	}
	service := articles.NewService(source, articles.NewRenderer(), logger)

	r := chi.NewRouter()
	pages.NewHandler(logger, service, templates, nil).MountRoutes(r)
	articles.NewHandler(logger, service, templates, nil).MountRoutes(r)
	return r
}

func TestPublicPageLatencyTargets(t *testing.T) {
	router := newCatalogRouter(t)
	paths := []string{"/", "/learn-more", "/articles/traditional-commandaria-viticulture"}

	for _, path := range paths {
		samples := make([]time.Duration, 0, 20)
		for i := 0; i < 20; i++ {
			start := time.Now()
			res := httptest.NewRecorder()
			router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, path, nil).WithContext(context.Background()))
			samples = append(samples, time.Since(start))
			if res.Code != http.StatusOK {
				t.Fatalf("%s: status %d", path, res.Code)
			}
		}
		if p95 := percentile95(samples); p95 > 250*time.Millisecond {
			t.Fatalf("%s latency regression: p95=%s threshold=250ms", path, p95)
		}
	}
}

func BenchmarkLearnMore(b *testing.B) {
	router := newCatalogRouter(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/learn-more", nil))
	}
}

func BenchmarkArticlePage(b *testing.B) {
	router := newCatalogRouter(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/articles/restoring-stone-terraces", nil))
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

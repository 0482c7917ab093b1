package pages

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nysa-project/nysa/internal/articles"
	"github.com/nysa-project/nysa/internal/shared"
	"github.com/nysa-project/nysa/internal/view"
)

// OpenCollectiveURL is where donations and volunteering events are listed.
const OpenCollectiveURL = "https://opencollective.com/nysa-earth"

// RecentLister returns the newest published articles.
type RecentLister interface {
	Recent(ctx context.Context, limit int) ([]articles.Article, error)
}

// Handler serves the public informational pages.
type Handler struct {
	logger    *slog.Logger
	articles  RecentLister
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, recent RecentLister, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, articles: recent, templates: templates, csrf: csrf}
}

// MountRoutes registers the informational pages.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showHome)
	r.Get("/our-story", h.showOurStory)
	r.Get("/projects", h.showProjects)
	r.Get("/privacy", h.static("pages/privacy.html", "Privacy Policy"))
	r.Get("/terms", h.static("pages/terms.html", "Terms of Use"))
}

type homePageData struct {
	Recent         []articles.Article
	OpenCollective string
}

func (h *Handler) showHome(w http.ResponseWriter, r *http.Request) {
	data := homePageData{OpenCollective: OpenCollectiveURL}
	if h.articles != nil {
		recent, err := h.articles.Recent(r.Context(), articles.DefaultRecent)
		if err != nil {
			// The home page still renders without the journal strip.
			h.logger.Warn("load recent articles", slog.Any("error", err))
		}
		data.Recent = recent
	}

	viewData := view.NewTemplateData(r, h.csrf, "Sustainable Restoration, Rooted in Earth", data)
	viewData.Description = "Nysa restores and preserves traditional Commandaria vineyards in Cyprus through community and sustainable agriculture."
	h.render(w, r, http.StatusOK, "pages/home.html", viewData)
}

func (h *Handler) showOurStory(w http.ResponseWriter, r *http.Request) {
	viewData := view.NewTemplateData(r, h.csrf, "Our Story", storyData())
	viewData.Description = "A community-oriented sustainable viticulture restoration and preservation effort."
	h.render(w, r, http.StatusOK, "pages/our_story.html", viewData)
}

type projectsPageData struct {
	Projects       []Project
	OpenCollective string
}

func (h *Handler) showProjects(w http.ResponseWriter, r *http.Request) {
	viewData := view.NewTemplateData(r, h.csrf, "Our Projects", projectsPageData{
		Projects:       Projects(),
		OpenCollective: OpenCollectiveURL,
	})
	viewData.Description = "The initiatives driving the Nysa community forward."
	h.render(w, r, http.StatusOK, "pages/projects.html", viewData)
}

func (h *Handler) static(name, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.render(w, r, http.StatusOK, name, view.NewTemplateData(r, h.csrf, title, nil))
	}
}

// NotFound renders the 404 page for unmatched routes.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusNotFound, "pages/not_found.html", view.NewTemplateData(r, h.csrf, "Page not found", nil))
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, data view.TemplateData) {
	if err := h.templates.RenderStatus(w, status, name, data); err != nil {
		h.logger.Error("render page", slog.String("template", name), slog.Any("error", err))
		shared.ReportFault(r.Context(), err)
	}
}

package articles

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nysa-project/nysa/internal/platform/httpx"
	"github.com/nysa-project/nysa/internal/shared"
	"github.com/nysa-project/nysa/internal/view"
)

// Handler serves the Learn More pages and the read-only article API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf}
}

// MountRoutes registers the HTML pages.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/learn-more", h.showList)
	r.Get("/articles/{slug}", h.showArticle)
}

// MountAPI registers the JSON endpoints.
func (h *Handler) MountAPI(r chi.Router) {
	r.Get("/articles", h.apiList)
	r.Get("/articles/{slug}", h.apiArticle)
	r.Get("/topics", h.apiTopics)
}

type listPageData struct {
	Articles []Article
	Topics   []Topic
	Selected Topic
	Failed   bool
}

type articlePageData struct {
	Article Rendered
}

func (h *Handler) showList(w http.ResponseWriter, r *http.Request) {
	data := listPageData{}
	if raw := r.URL.Query().Get("topic"); strings.TrimSpace(raw) != "" {
		if topic, err := ParseTopic(raw); err == nil {
			data.Selected = topic
		}
	}

	list, err := h.service.List(r.Context(), string(data.Selected))
	if err != nil {
		h.logger.Error("list articles", slog.Any("error", err))
		data.Failed = true
	}
	data.Articles = list

	topics, err := h.service.Topics(r.Context())
	if err != nil {
		h.logger.Warn("list topics", slog.Any("error", err))
	}
	data.Topics = topics

	viewData := view.NewTemplateData(r, h.csrf, "Read & Learn More", data)
	viewData.Description = "Articles on viticulture, terrace restoration, community and sustainable agriculture."
	if err := h.templates.Render(w, "pages/learn_more.html", viewData); err != nil {
		h.logger.Error("render learn more", slog.Any("error", err))
		shared.ReportFault(r.Context(), err)
	}
}

func (h *Handler) showArticle(w http.ResponseWriter, r *http.Request) {
	article, err := h.service.BySlug(r.Context(), chi.URLParam(r, "slug"))
	if errors.Is(err, shared.ErrNotFound) {
		viewData := view.NewTemplateData(r, h.csrf, "Article not found", nil)
		if err := h.templates.RenderStatus(w, http.StatusNotFound, "pages/not_found.html", viewData); err != nil {
			shared.ReportFault(r.Context(), err)
		}
		return
	}
	if err != nil {
		h.logger.Error("load article", slog.Any("error", err))
		shared.ReportFault(r.Context(), err)
		return
	}

	viewData := view.NewTemplateData(r, h.csrf, article.Title, articlePageData{Article: article})
	viewData.Description = article.Excerpt
	if err := h.templates.Render(w, "pages/article.html", viewData); err != nil {
		h.logger.Error("render article", slog.Any("error", err))
		shared.ReportFault(r.Context(), err)
	}
}

func (h *Handler) apiList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context(), r.URL.Query().Get("topic"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if list == nil {
		list = []Article{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"articles": list})
}

func (h *Handler) apiArticle(w http.ResponseWriter, r *http.Request) {
	article, err := h.service.BySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, struct {
		Article
		HTML string `json:"html"`
	}{Article: article.Article, HTML: string(article.Body)})
}

func (h *Handler) apiTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := h.service.Topics(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	type topicView struct {
		Topic Topic  `json:"topic"`
		Label string `json:"label"`
	}
	out := make([]topicView, 0, len(topics))
	for _, t := range topics {
		out = append(out, topicView{Topic: t, Label: t.Label()})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"topics": out})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrValidation) {
		h.logger.Error("article api", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

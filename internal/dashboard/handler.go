// Package dashboard serves the member area: email preferences, profile and
// account settings.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/nysa-project/nysa/internal/account"
	"github.com/nysa-project/nysa/internal/articles"
	"github.com/nysa-project/nysa/internal/identity"
	"github.com/nysa-project/nysa/internal/platform/httpx"
	"github.com/nysa-project/nysa/internal/profiles"
	"github.com/nysa-project/nysa/internal/shared"
	"github.com/nysa-project/nysa/internal/view"
)

// Dashboard tabs.
const (
	TabEmails  = "emails"
	TabProfile = "profile"
	TabAccount = "account"
)

// Handler wires the member area.
type Handler struct {
	logger    *slog.Logger
	identity  *identity.Manager
	profiles  *profiles.Service
	articles  *articles.Service
	accounts  *account.Service
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// Deps groups the services the dashboard composes.
type Deps struct {
	Logger    *slog.Logger
	Identity  *identity.Manager
	Profiles  *profiles.Service
	Articles  *articles.Service
	Accounts  *account.Service
	Templates *view.Engine
	CSRF      *shared.CSRFManager
}

// NewHandler constructs a Handler instance.
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		identity:  d.Identity,
		profiles:  d.Profiles,
		articles:  d.Articles,
		accounts:  d.Accounts,
		templates: d.Templates,
		csrf:      d.CSRF,
	}
}

// MountRoutes registers member routes. Every route requires a session.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(identity.RequireMember)
	r.Get("/", h.show)
	r.Post("/profile", h.handleProfile)
	r.Post("/preferences", h.handlePreference)
	r.Post("/password", h.handlePassword)
	r.Post("/account/delete", h.handleDelete)
}

type preferenceView struct {
	Field       profiles.PreferenceField
	Title       string
	Description string
	Enabled     bool
}

var preferenceCopy = map[profiles.PreferenceField][2]string{
	profiles.PrefCommunityEvents:    {"Community Events", "Get notified about upcoming community events and gatherings"},
	profiles.PrefVolunteeringEvents: {"Volunteering Events", "Get notified about volunteering opportunities and related events"},
	profiles.PrefNewsletter:         {"Newsletter", "Receive our occasional newsletter with updates, stories, and community news"},
}

type pageData struct {
	Tab            string
	Email          string
	Profile        profiles.Profile
	HasProfile     bool
	ProfileForm    profiles.Input
	ProfileErrors  map[string]string
	Preferences    []preferenceView
	PasswordErrors map[string]string
	Recent         []articles.Article
	LoadFailed     bool
	Today          string
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	data, err := h.load(r.Context(), parseTab(r.URL.Query().Get("tab")))
	if err != nil {
		h.logger.Error("load dashboard", slog.Any("error", err))
		data.LoadFailed = true
	}
	h.render(w, r, http.StatusOK, data)
}

// load reads the profile and the latest articles concurrently.
func (h *Handler) load(ctx context.Context, tab string) (pageData, error) {
	sess, _ := identity.FromContext(ctx)
	data := pageData{Tab: tab, Email: sess.Email, Today: h.identity.Now().Format(profiles.DateLayout)}

	var (
		profile profiles.Profile
		found   bool
		recent  []articles.Article
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profile, found, err = h.profiles.Fetch(gctx, sess.UserID)
		return err
	})
	g.Go(func() error {
		list, err := h.articles.Recent(gctx, articles.DefaultRecent)
		if err != nil {
			h.logger.Warn("dashboard articles unavailable", slog.Any("error", err))
			return nil
		}
		recent = list
		return nil
	})
	err := g.Wait()
	if err != nil {
		profile, found = profiles.Empty(sess.UserID), false
	}

	data.Profile = profile
	data.HasProfile = found
	data.ProfileForm = formFromProfile(profile)
	data.Preferences = preferenceViews(profile)
	data.Recent = recent
	return data, err
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess, _ := identity.FromContext(r.Context())
	in := profiles.Input{
		FirstName:   r.PostFormValue("first_name"),
		LastName:    r.PostFormValue("last_name"),
		DateOfBirth: r.PostFormValue("date_of_birth"),
		Bio:         r.PostFormValue("bio"),
	}

	_, err := h.profiles.UpdateProfile(r.Context(), sess.UserID, in)
	if err == nil {
		addFlash(r, "success", "Profile updated! Your profile has been successfully updated.")
		http.Redirect(w, r, "/dashboard?tab="+TabProfile, http.StatusSeeOther)
		return
	}

	data, loadErr := h.load(r.Context(), TabProfile)
	data.LoadFailed = loadErr != nil
	data.ProfileForm = in
	var verr *profiles.ValidationError
	if errors.As(err, &verr) {
		data.ProfileErrors = verr.FieldErrors()
		h.render(w, r, http.StatusBadRequest, data)
		return
	}
	h.logger.Error("update profile", slog.String("user_id", sess.UserID), slog.Any("error", err))
	data.ProfileErrors = map[string]string{"general": "Unable to update your profile. Please try again."}
	h.render(w, r, http.StatusInternalServerError, data)
}

type preferenceRequest struct {
	Field string `json:"field"`
	Value bool   `json:"value"`
}

func (h *Handler) handlePreference(w http.ResponseWriter, r *http.Request) {
	sess, _ := identity.FromContext(r.Context())
	asJSON := strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")

	var req preferenceRequest
	if asJSON {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "Malformed preference update")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		req.Field = r.PostFormValue("field")
		req.Value = formBool(r.PostFormValue("value"))
	}

	field, err := profiles.ParsePreferenceField(req.Field)
	if err == nil {
		err = h.profiles.UpdateEmailPreference(r.Context(), sess.UserID, field, req.Value)
	}

	if asJSON {
		if err != nil {
			if !errors.Is(err, shared.ErrValidation) {
				h.logger.Error("update preference", slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{
			"field":   field,
			"value":   req.Value,
			"message": "Your email preferences have been saved successfully.",
		})
		return
	}

	if err != nil {
		h.logger.Error("update preference", slog.Any("error", err))
		addFlash(r, "error", "Failed to update email preferences. Please try again.")
	} else {
		addFlash(r, "success", "Preferences updated. Your email preferences have been saved successfully.")
	}
	http.Redirect(w, r, "/dashboard?tab="+TabEmails, http.StatusSeeOther)
}

func (h *Handler) handlePassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	err := h.identity.ChangePassword(r.Context(), identity.StoreFrom(r.Context()),
		r.PostFormValue("current_password"), r.PostFormValue("password"), r.PostFormValue("confirm_password"))
	if err == nil {
		addFlash(r, "success", "Password updated. Your password has been successfully changed.")
		http.Redirect(w, r, "/dashboard?tab="+TabAccount, http.StatusSeeOther)
		return
	}

	data, loadErr := h.load(r.Context(), TabAccount)
	data.LoadFailed = loadErr != nil
	var authErr *identity.Error
	if errors.As(err, &authErr) && authErr.Field != "" {
		data.PasswordErrors = map[string]string{authErr.Field: authErr.Message}
		h.render(w, r, http.StatusBadRequest, data)
		return
	}
	data.PasswordErrors = map[string]string{"general": identity.Message(err)}
	h.render(w, r, http.StatusBadRequest, data)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess, _ := identity.FromContext(r.Context())

	err := h.accounts.Delete(r.Context(), sess.UserID, sess.AccessToken, r.PostFormValue("confirmation"))
	if errors.Is(err, account.ErrConfirmationMismatch) {
		addFlash(r, "error", "Invalid confirmation. Please type 'DELETE' to confirm account deletion.")
		http.Redirect(w, r, "/dashboard?tab="+TabAccount, http.StatusSeeOther)
		return
	}

	h.identity.ClearLocal(r.Context(), identity.StoreFrom(r.Context()))
	if err != nil {
		addFlash(r, "error", "Failed to delete account. Please try again.")
	} else {
		addFlash(r, "success", "Account deleted. Your account has been permanently deleted.")
	}
	http.Redirect(w, r, identity.Destination(identity.EventSignedOut), http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	viewData := view.NewTemplateData(r, h.csrf, "Your Nysa Community Account", data)
	if err := h.templates.RenderStatus(w, status, "pages/dashboard.html", viewData); err != nil {
		h.logger.Error("render dashboard", slog.Any("error", err))
		shared.ReportFault(r.Context(), err)
	}
}

func formFromProfile(p profiles.Profile) profiles.Input {
	in := profiles.Input{FirstName: p.FirstName, LastName: p.LastName, Bio: p.Bio}
	if p.DateOfBirth != nil {
		in.DateOfBirth = p.DateOfBirth.Format(profiles.DateLayout)
	}
	return in
}

func preferenceViews(p profiles.Profile) []preferenceView {
	out := make([]preferenceView, 0, len(profiles.PreferenceFields))
	for _, field := range profiles.PreferenceFields {
		text := preferenceCopy[field]
		out = append(out, preferenceView{Field: field, Title: text[0], Description: text[1], Enabled: field.Value(p)})
	}
	return out
}

func parseTab(raw string) string {
	switch raw {
	case TabProfile, TabAccount:
		return raw
	}
	return TabEmails
}

func formBool(raw string) bool {
	if raw == "on" {
		return true
	}
	v, _ := strconv.ParseBool(raw)
	return v
}

func addFlash(r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
}

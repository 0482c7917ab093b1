package identity

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nysa-project/nysa/internal/shared"
	"github.com/nysa-project/nysa/internal/view"
)

// Auth page modes.
const (
	ModeSignIn        = "signin"
	ModeSignUp        = "signup"
	ModeForgot        = "forgot"
	ModeResetPassword = "reset-password"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	manager   *Manager
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, manager *Manager, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, manager: manager, templates: templates, csrf: csrf}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showAuth)
	r.Get("/confirm", h.handleConfirm)
	r.Post("/signin", h.handleSignIn)
	r.Post("/signup", h.handleSignUp)
	r.Post("/reset", h.handleReset)
	r.Post("/update-password", h.handleUpdatePassword)
	r.Post("/signout", h.handleSignOut)
}

type authPageData struct {
	Mode   string
	Email  string
	Errors map[string]string
}

func (h *Handler) showAuth(w http.ResponseWriter, r *http.Request) {
	mode := parseMode(r.URL.Query().Get("mode"))
	if r.URL.Query().Get("type") == string(VerifyRecovery) {
		mode = ModeResetPassword
	}
	_, signedIn := FromContext(r.Context())
	if signedIn && mode != ModeResetPassword {
		http.Redirect(w, r, PathDashboard, http.StatusSeeOther)
		return
	}
	if !signedIn && mode == ModeResetPassword {
		mode = ModeForgot
	}
	h.render(w, r, http.StatusOK, authPageData{Mode: mode})
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	browser := shared.SessionFromContext(r.Context())
	email := r.PostFormValue("email")

	if _, err := h.manager.SignIn(r.Context(), StoreFrom(r.Context()), email, r.PostFormValue("password")); err != nil {
		h.renderError(w, r, authPageData{Mode: ModeSignIn, Email: email}, err)
		return
	}
	addFlash(browser, "success", "Welcome back! Successfully signed in to your account.")
	http.Redirect(w, r, Destination(EventSignedIn), http.StatusSeeOther)
}

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	browser := shared.SessionFromContext(r.Context())
	email := r.PostFormValue("email")

	if err := h.manager.SignUp(r.Context(), StoreFrom(r.Context()), email, r.PostFormValue("password")); err != nil {
		h.renderError(w, r, authPageData{Mode: ModeSignUp, Email: email}, err)
		return
	}
	addFlash(browser, "success", "Welcome to Nysa! Please check your email to confirm your account.")
	http.Redirect(w, r, PathAuth, http.StatusSeeOther)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	browser := shared.SessionFromContext(r.Context())
	email := r.PostFormValue("email")

	if err := h.manager.ResetPassword(r.Context(), StoreFrom(r.Context()), email); err != nil {
		h.renderError(w, r, authPageData{Mode: ModeForgot, Email: email}, err)
		return
	}
	addFlash(browser, "success", "Password reset email sent! Please check your email for password reset instructions.")
	http.Redirect(w, r, PathAuth, http.StatusSeeOther)
}

func (h *Handler) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	browser := shared.SessionFromContext(r.Context())

	err := h.manager.UpdatePassword(r.Context(), StoreFrom(r.Context()), r.PostFormValue("password"), r.PostFormValue("confirm_password"))
	if errors.Is(err, ErrNoSession) {
		addFlash(browser, "error", Message(err))
		http.Redirect(w, r, PathAuth, http.StatusSeeOther)
		return
	}
	if err != nil {
		h.renderError(w, r, authPageData{Mode: ModeResetPassword}, err)
		return
	}
	addFlash(browser, "success", "Password updated successfully! You can now access your dashboard.")
	http.Redirect(w, r, Destination(EventUserUpdated), http.StatusSeeOther)
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	browser := shared.SessionFromContext(r.Context())
	h.manager.SignOut(r.Context(), StoreFrom(r.Context()))
	addFlash(browser, "success", "Signed out successfully. Come back soon!")
	http.Redirect(w, r, Destination(EventSignedOut), http.StatusSeeOther)
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	browser := shared.SessionFromContext(r.Context())
	query := r.URL.Query()

	typ, ok := ParseVerifyType(query.Get("type"))
	if !ok {
		typ = VerifySignup
	}
	_, kind, err := h.manager.Verify(r.Context(), StoreFrom(r.Context()), query.Get("token_hash"), typ)
	if err != nil {
		addFlash(browser, "error", Message(err))
		http.Redirect(w, r, PathAuth, http.StatusSeeOther)
		return
	}
	if kind == EventPasswordRecovery {
		addFlash(browser, "info", "Choose a new password for your account.")
	} else {
		addFlash(browser, "success", "Your email is confirmed. Welcome to Nysa!")
	}
	http.Redirect(w, r, Destination(kind), http.StatusSeeOther)
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, data authPageData, err error) {
	data.Errors = make(map[string]string)
	var authErr *Error
	if errors.As(err, &authErr) && authErr.Field != "" {
		data.Errors[authErr.Field] = authErr.Message
	} else {
		data.Errors["general"] = Message(err)
	}
	h.render(w, r, statusFor(err), data)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, data authPageData) {
	title := "Sign in"
	switch data.Mode {
	case ModeSignUp:
		title = "Create an account"
	case ModeForgot:
		title = "Reset your password"
	case ModeResetPassword:
		title = "Set a new password"
	}
	viewData := view.NewTemplateData(r, h.csrf, title, data)
	if err := h.templates.RenderStatus(w, status, "pages/auth.html", viewData); err != nil {
		h.logger.Error("render auth", slog.Any("error", err))
		shared.ReportFault(r.Context(), err)
	}
}

func statusFor(err error) int {
	var authErr *Error
	if !errors.As(err, &authErr) {
		return http.StatusBadRequest
	}
	switch authErr.Kind {
	case KindInvalidCredentials, KindEmailUnconfirmed:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindNetwork:
		return http.StatusServiceUnavailable
	}
	return http.StatusBadRequest
}

func parseMode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ModeSignUp:
		return ModeSignUp
	case ModeForgot:
		return ModeForgot
	case ModeResetPassword:
		return ModeResetPassword
	}
	return ModeSignIn
}

func addFlash(sess *shared.Session, kind, message string) {
	if sess == nil {
		return
	}
	sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
}

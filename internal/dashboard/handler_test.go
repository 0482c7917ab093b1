package dashboard_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nysa-project/nysa/internal/account"
	"github.com/nysa-project/nysa/internal/articles"
	"github.com/nysa-project/nysa/internal/dashboard"
	"github.com/nysa-project/nysa/internal/identity"
	"github.com/nysa-project/nysa/internal/profiles"
	"github.com/nysa-project/nysa/internal/shared"
	"github.com/nysa-project/nysa/internal/view"
	_ "github.com/nysa-project/nysa/testing"
)

type profileRepo struct {
	mu   sync.Mutex
	rows map[string]profiles.Profile
}

func (r *profileRepo) Get(_ context.Context, userID string) (profiles.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[userID]
	if !ok {
		return profiles.Profile{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *profileRepo) Upsert(_ context.Context, userID string, c profiles.Changes, at time.Time) (profiles.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[userID]
	if !ok {
		p = profiles.Empty(userID)
		p.CreatedAt = at
	}
	if c.FirstName != nil {
		p.FirstName = *c.FirstName
	}
	if c.LastName != nil {
		p.LastName = *c.LastName
	}
	if c.DateOfBirth != nil {
		p.DateOfBirth = c.DateOfBirth
	}
	if c.Bio != nil {
		p.Bio = *c.Bio
	}
	p.UpdatedAt = at
	r.rows[userID] = p
	return p, nil
}

func (r *profileRepo) SetPreference(_ context.Context, userID string, field profiles.PreferenceField, value bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[userID]
	if !ok {
		p = profiles.Empty(userID)
	}
	switch field {
	case profiles.PrefCommunityEvents:
		p.ReceiveCommunityEventsEmails = value
	case profiles.PrefVolunteeringEvents:
		p.ReceiveVolunteeringEventsEmails = value
	case profiles.PrefNewsletter:
		p.ReceiveNewsletter = value
	}
	r.rows[userID] = p
	return nil
}

func (r *profileRepo) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, userID)
	return nil
}

type dashboardFixture struct {
	sessions *shared.SessionManager
	manager  *identity.Manager
	provider *identity.MemoryProvider
	repo     *profileRepo
	router   http.Handler
}

func newDashboardFixture(t *testing.T) *dashboardFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	templates, err := view.NewEngine()
	require.NoError(t, err)

	provider := identity.NewMemoryProvider(logger, identity.WithAutoConfirm())
	notifier := identity.NewNotifier(4)
	t.Cleanup(notifier.Close)
	manager := identity.NewManager(provider, notifier, logger, identity.Config{MinPasswordLength: 6})

	repo := &profileRepo{rows: make(map[string]profiles.Profile)}
	profileService := profiles.NewService(repo, logger)

	source, err := articles.NewStaticSource()
	require.NoError(t, err)

	handler := dashboard.NewHandler(dashboard.Deps{
		Logger:    logger,
		Identity:  manager,
		Profiles:  profileService,
		Articles:  articles.NewService(source, articles.NewRenderer(), logger),
		Accounts:  account.NewService(account.NewLocalInvoker(provider, profileService), "", logger),
		Templates: templates,
		CSRF:      shared.NewCSRFManager("csrfsecret"),
	})
	r := chi.NewRouter()
	r.Use(manager.Loader)
	r.Route("/dashboard", handler.MountRoutes)

	return &dashboardFixture{
		sessions: shared.NewSessionManager(client, "test_session", "secret", time.Hour, false),
		manager:  manager,
		provider: provider,
		repo:     repo,
		router:   r,
	}
}

// signIn returns a browser session holding a signed-in member.
func (f *dashboardFixture) signIn(t *testing.T) (*shared.Session, *identity.Session) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.provider.SignUp(ctx, "member@nysa.test", "secret123", ""))
	browser, err := f.sessions.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess, err := f.manager.SignIn(ctx, browser, "member@nysa.test", "secret123")
	require.NoError(t, err)
	return browser, sess
}

func (f *dashboardFixture) do(t *testing.T, req *http.Request, browser *shared.Session) *httptest.ResponseRecorder {
	t.Helper()
	ctx := shared.ContextWithSession(req.Context(), browser)
	req = req.WithContext(ctx)
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	require.NoError(t, f.sessions.Commit(ctx, res, req, browser))
	return res
}

func postForm(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestDashboardRequiresMember(t *testing.T) {
	f := newDashboardFixture(t)
	browser, err := f.sessions.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	res := f.do(t, httptest.NewRequest(http.MethodGet, "/dashboard", nil), browser)
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, identity.PathAuth, res.Header().Get("Location"))

	req := httptest.NewRequest(http.MethodPost, "/dashboard/preferences", strings.NewReader(`{"field":"receive_newsletter","value":true}`))
	req.Header.Set("Content-Type", "application/json")
	res = f.do(t, req, browser)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestDashboardShowsDefaultPreferences(t *testing.T) {
	f := newDashboardFixture(t)
	browser, _ := f.signIn(t)

	res := f.do(t, httptest.NewRequest(http.MethodGet, "/dashboard", nil), browser)
	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, "Email Communication Preferences")
	assert.Equal(t, len(profiles.PreferenceFields), strings.Count(body, `aria-checked="true"`))
	assert.Contains(t, body, "Latest from the Journal")
}

func TestProfileUpdateRedirectsAndPersists(t *testing.T) {
	f := newDashboardFixture(t)
	browser, sess := f.signIn(t)

	res := f.do(t, postForm("/dashboard/profile", url.Values{
		"first_name":    {"  Ada "},
		"last_name":     {"Lovelace"},
		"date_of_birth": {"1990-12-10"},
		"bio":           {""},
	}), browser)

	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/dashboard?tab=profile", res.Header().Get("Location"))
	stored := f.repo.rows[sess.UserID]
	assert.Equal(t, "Ada", stored.FirstName)
	assert.Equal(t, "Lovelace", stored.LastName)
	require.NotNil(t, stored.DateOfBirth)
	assert.Equal(t, "1990-12-10", stored.DateOfBirth.Format(profiles.DateLayout))
	assert.Empty(t, stored.Bio)
}

func TestProfileUpdateRejectsFutureBirthDate(t *testing.T) {
	f := newDashboardFixture(t)
	browser, sess := f.signIn(t)

	res := f.do(t, postForm("/dashboard/profile", url.Values{
		"first_name":    {"Ada"},
		"date_of_birth": {"2999-01-01"},
	}), browser)

	require.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Date of birth cannot be in the future")
	assert.Contains(t, res.Body.String(), `value="Ada"`)
	assert.NotContains(t, f.repo.rows, sess.UserID)
}

func TestPreferenceToggleJSON(t *testing.T) {
	f := newDashboardFixture(t)
	browser, sess := f.signIn(t)

	req := httptest.NewRequest(http.MethodPost, "/dashboard/preferences",
		strings.NewReader(`{"field":"receive_newsletter","value":false}`))
	req.Header.Set("Content-Type", "application/json")
	res := f.do(t, req, browser)

	require.Equal(t, http.StatusOK, res.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, "receive_newsletter", body["field"])
	assert.Equal(t, false, body["value"])
	assert.False(t, f.repo.rows[sess.UserID].ReceiveNewsletter)
	assert.True(t, f.repo.rows[sess.UserID].ReceiveCommunityEventsEmails)
}

func TestPreferenceToggleRejectsUnknownField(t *testing.T) {
	f := newDashboardFixture(t)
	browser, _ := f.signIn(t)

	req := httptest.NewRequest(http.MethodPost, "/dashboard/preferences",
		strings.NewReader(`{"field":"receive_spam","value":true}`))
	req.Header.Set("Content-Type", "application/json")
	res := f.do(t, req, browser)

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Empty(t, f.repo.rows)
}

func TestPreferenceToggleForm(t *testing.T) {
	f := newDashboardFixture(t)
	browser, sess := f.signIn(t)

	res := f.do(t, postForm("/dashboard/preferences", url.Values{
		"field": {"receive_community_events_emails"},
		"value": {"false"},
	}), browser)

	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/dashboard?tab=emails", res.Header().Get("Location"))
	assert.False(t, f.repo.rows[sess.UserID].ReceiveCommunityEventsEmails)
}

func TestPasswordChangeWrongCurrent(t *testing.T) {
	f := newDashboardFixture(t)
	browser, _ := f.signIn(t)

	res := f.do(t, postForm("/dashboard/password", url.Values{
		"current_password": {"notmine"},
		"password":         {"newsecret"},
		"confirm_password": {"newsecret"},
	}), browser)

	require.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Please enter your correct current password.")
}

func TestDeleteRequiresExactConfirmation(t *testing.T) {
	f := newDashboardFixture(t)
	browser, sess := f.signIn(t)

	res := f.do(t, postForm("/dashboard/account/delete", url.Values{"confirmation": {"delete"}}), browser)

	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/dashboard?tab=account", res.Header().Get("Location"))
	_, ok := f.manager.GetSession(browser)
	assert.True(t, ok, "member stays signed in after a mismatched confirmation")
	_, exists := f.provider.UserIDForToken(sess.AccessToken)
	assert.True(t, exists)
}

func TestDeleteRemovesAccountAndSignsOut(t *testing.T) {
	f := newDashboardFixture(t)
	browser, sess := f.signIn(t)
	f.repo.rows[sess.UserID] = profiles.Empty(sess.UserID)

	res := f.do(t, postForm("/dashboard/account/delete", url.Values{"confirmation": {account.ConfirmationPhrase}}), browser)

	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, identity.PathHome, res.Header().Get("Location"))
	_, ok := f.manager.GetSession(browser)
	assert.False(t, ok)
	assert.NotContains(t, f.repo.rows, sess.UserID)

	flash := browser.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "success", flash.Kind)
}

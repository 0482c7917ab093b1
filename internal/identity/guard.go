package identity

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/nysa-project/nysa/internal/platform/httpx"
	"github.com/nysa-project/nysa/internal/shared"
)

type sessionContextKey struct{}

// ContextWithSession stores the resolved identity session in ctx.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// FromContext returns the identity session resolved for the request.
func FromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(*Session)
	return sess, ok && sess != nil
}

// StoreFrom returns the request's browser session as a Store, or nil when
// the request has none.
func StoreFrom(ctx context.Context) Store {
	if sess := shared.SessionFromContext(ctx); sess != nil {
		return sess
	}
	return nil
}

// Loader resolves the browser's identity session for every request,
// refreshing it when the access token has expired.
func (m *Manager) Loader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		browser := shared.SessionFromContext(r.Context())
		if browser == nil {
			next.ServeHTTP(w, r)
			return
		}
		sess, ok := m.GetSession(browser)
		if ok && sess.Expired(m.Now()) {
			refreshed, err := m.Refresh(r.Context(), browser)
			if err != nil {
				m.logger.Debug("expired session cleared", slog.String("path", r.URL.Path))
				ok = false
			} else {
				sess = refreshed
			}
		}
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), sess)))
	})
}

// RequireMember sends anonymous visitors to the sign-in page. JSON clients
// receive 401 instead of a redirect.
func RequireMember(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		if httpx.WantsJSON(r) {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		http.Redirect(w, r, PathAuth, http.StatusSeeOther)
	})
}

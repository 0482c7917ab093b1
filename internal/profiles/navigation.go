package profiles

import (
	"log/slog"
	"net/http"

	"github.com/nysa-project/nysa/internal/identity"
	"github.com/nysa-project/nysa/internal/view"
)

// Navigation resolves the signed-in member shown in the navigation bar.
// A failed profile read degrades to the fallback name.
func (s *Service) Navigation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := identity.FromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		p, _, err := s.Fetch(r.Context(), sess.UserID)
		if err != nil {
			s.logger.Warn("navigation profile unavailable", slog.String("user_id", sess.UserID), slog.Any("error", err))
			p = Empty(sess.UserID)
		}
		member := &view.Member{
			UserID:      sess.UserID,
			Email:       sess.Email,
			DisplayName: DisplayName(&p),
			Initials:    Initials(&p),
		}
		next.ServeHTTP(w, r.WithContext(view.ContextWithMember(r.Context(), member)))
	})
}

// Package identity manages the signed-in member of a browser session on top
// of the platform's identity provider.
package identity

import "time"

// Session is the cached copy of the provider's session for one browser.
type Session struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// EventKind names an auth state change reported by the provider.
type EventKind string

const (
	EventSignedIn         EventKind = "SIGNED_IN"
	EventSignedOut        EventKind = "SIGNED_OUT"
	EventTokenRefreshed   EventKind = "TOKEN_REFRESHED"
	EventPasswordRecovery EventKind = "PASSWORD_RECOVERY"
	EventUserUpdated      EventKind = "USER_UPDATED"
)

// Event is delivered to listeners on every auth state change.
type Event struct {
	Kind    EventKind
	UserID  string
	Session *Session
	At      time.Time
}

// VerifyType tags the email link being exchanged for a session.
type VerifyType string

const (
	VerifySignup   VerifyType = "signup"
	VerifyEmail    VerifyType = "email"
	VerifyRecovery VerifyType = "recovery"
	VerifyInvite   VerifyType = "invite"
)

// ParseVerifyType validates the type query parameter of a confirmation link.
func ParseVerifyType(s string) (VerifyType, bool) {
	switch VerifyType(s) {
	case VerifySignup, VerifyEmail, VerifyRecovery, VerifyInvite:
		return VerifyType(s), true
	}
	return "", false
}

// Routes the application navigates to on state transitions.
const (
	PathHome          = "/"
	PathAuth          = "/auth"
	PathDashboard     = "/dashboard"
	PathResetPassword = "/auth?mode=reset-password"
)

// Destination returns where the browser goes after an event.
func Destination(kind EventKind) string {
	switch kind {
	case EventSignedIn:
		return PathDashboard
	case EventSignedOut:
		return PathHome
	case EventPasswordRecovery:
		return PathResetPassword
	case EventUserUpdated:
		return PathDashboard
	}
	return ""
}

package view

import (
	"context"
	"net/http"

	"github.com/nysa-project/nysa/internal/shared"
)

// Member is what the navigation bar knows about the signed-in member.
type Member struct {
	UserID      string
	Email       string
	DisplayName string
	Initials    string
}

type memberContextKey struct{}

// ContextWithMember stores the navigation member in ctx.
func ContextWithMember(ctx context.Context, m *Member) context.Context {
	return context.WithValue(ctx, memberContextKey{}, m)
}

// MemberFromContext returns the navigation member, or nil for visitors.
func MemberFromContext(ctx context.Context) *Member {
	m, _ := ctx.Value(memberContextKey{}).(*Member)
	return m
}

// NewTemplateData assembles the values every page needs: CSRF token, the
// pending flash message and the navigation member.
func NewTemplateData(r *http.Request, csrf *shared.CSRFManager, title string, data any) TemplateData {
	ctx := r.Context()
	sess := shared.SessionFromContext(ctx)

	var token string
	if csrf != nil && sess != nil {
		token, _ = csrf.EnsureToken(ctx, sess)
	}
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	return TemplateData{
		Title:       title,
		CSRFToken:   token,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Member:      MemberFromContext(ctx),
		Data:        data,
	}
}

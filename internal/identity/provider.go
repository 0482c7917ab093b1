package identity

import "context"

// Provider is the managed identity service that owns accounts and sessions.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password, redirectTo string) error
	SignOut(ctx context.Context, accessToken string) error
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	UpdatePassword(ctx context.Context, accessToken, password string) error
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	Verify(ctx context.Context, tokenHash string, typ VerifyType) (*Session, error)
}

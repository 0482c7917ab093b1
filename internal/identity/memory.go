package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// MemoryProvider is an in-process identity provider for local development
// and tests. Email links are logged instead of sent.
type MemoryProvider struct {
	mu          sync.Mutex
	logger      *slog.Logger
	now         func() time.Time
	ttl         time.Duration
	minPassword int
	autoConfirm bool

	users    map[string]*memoryUser
	access   map[string]string
	refresh  map[string]string
	pending  map[string]pendingToken
	lastLink string
}

type memoryUser struct {
	id        string
	email     string
	hash      []byte
	confirmed bool
}

type pendingToken struct {
	userID string
	typ    VerifyType
}

// MemoryOption customises a MemoryProvider.
type MemoryOption func(*MemoryProvider)

// WithAutoConfirm marks new accounts as confirmed immediately.
func WithAutoConfirm() MemoryOption {
	return func(p *MemoryProvider) { p.autoConfirm = true }
}

// WithClock replaces the provider's time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(p *MemoryProvider) { p.now = now }
}

// WithTokenTTL sets the lifetime of issued access tokens.
func WithTokenTTL(ttl time.Duration) MemoryOption {
	return func(p *MemoryProvider) { p.ttl = ttl }
}

// NewMemoryProvider constructs an empty provider.
func NewMemoryProvider(logger *slog.Logger, opts ...MemoryOption) *MemoryProvider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &MemoryProvider{
		logger:      logger,
		now:         time.Now,
		ttl:         time.Hour,
		minPassword: 6,
		users:       make(map[string]*memoryUser),
		access:      make(map[string]string),
		refresh:     make(map[string]string),
		pending:     make(map[string]pendingToken),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SignInWithPassword checks the bcrypt hash and issues a session.
func (p *MemoryProvider) SignInWithPassword(_ context.Context, email, password string) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	user, ok := p.users[normalizeEmail(email)]
	if !ok || bcrypt.CompareHashAndPassword(user.hash, []byte(password)) != nil {
		return nil, &ProviderError{Status: http.StatusBadRequest, Code: "invalid_credentials", Message: "Invalid login credentials"}
	}
	if !user.confirmed {
		return nil, &ProviderError{Status: http.StatusBadRequest, Code: "email_not_confirmed", Message: "Email not confirmed"}
	}
	return p.issue(user), nil
}

// SignUp registers an account and logs its confirmation link.
func (p *MemoryProvider) SignUp(_ context.Context, email, password, redirectTo string) error {
	if len(password) < p.minPassword {
		return &ProviderError{Status: http.StatusUnprocessableEntity, Code: "weak_password", Message: "Password should be at least 6 characters"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := normalizeEmail(email)
	if _, exists := p.users[key]; exists {
		return &ProviderError{Status: http.StatusUnprocessableEntity, Code: "user_already_exists", Message: "User already registered"}
	}
	user := &memoryUser{id: uuid.NewString(), email: key, hash: hash, confirmed: p.autoConfirm}
	p.users[key] = user
	if !user.confirmed {
		p.sendLink(user, VerifySignup, redirectTo)
	}
	return nil
}

// SignOut revokes the access token and every refresh token of its user.
func (p *MemoryProvider) SignOut(_ context.Context, accessToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	userID, ok := p.access[accessToken]
	if !ok {
		return &ProviderError{Status: http.StatusUnauthorized, Code: "bad_jwt", Message: "invalid JWT"}
	}
	delete(p.access, accessToken)
	for token, owner := range p.refresh {
		if owner == userID {
			delete(p.refresh, token)
		}
	}
	return nil
}

// ResetPasswordForEmail logs a recovery link. Unknown addresses succeed
// silently so the endpoint cannot be used to probe for accounts.
func (p *MemoryProvider) ResetPasswordForEmail(_ context.Context, email, redirectTo string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if user, ok := p.users[normalizeEmail(email)]; ok {
		p.sendLink(user, VerifyRecovery, redirectTo)
	}
	return nil
}

// UpdatePassword replaces the password of the token's user.
func (p *MemoryProvider) UpdatePassword(_ context.Context, accessToken, password string) error {
	if len(password) < p.minPassword {
		return &ProviderError{Status: http.StatusUnprocessableEntity, Code: "weak_password", Message: "Password should be at least 6 characters"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	user := p.userByID(p.access[accessToken])
	if user == nil {
		return &ProviderError{Status: http.StatusUnauthorized, Code: "bad_jwt", Message: "invalid JWT"}
	}
	user.hash = hash
	return nil
}

// Refresh rotates a refresh token.
func (p *MemoryProvider) Refresh(_ context.Context, refreshToken string) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	userID, ok := p.refresh[refreshToken]
	if !ok {
		return nil, &ProviderError{Status: http.StatusBadRequest, Code: "refresh_token_not_found", Message: "Invalid Refresh Token: Refresh Token Not Found"}
	}
	delete(p.refresh, refreshToken)
	user := p.userByID(userID)
	if user == nil {
		return nil, &ProviderError{Status: http.StatusBadRequest, Code: "user_not_found", Message: "User not found"}
	}
	return p.issue(user), nil
}

// Verify consumes a one-time link token.
func (p *MemoryProvider) Verify(_ context.Context, tokenHash string, typ VerifyType) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pending, ok := p.pending[tokenHash]
	if !ok || !sameFlow(pending.typ, typ) {
		return nil, &ProviderError{Status: http.StatusForbidden, Code: "otp_expired", Message: "Token has expired or is invalid"}
	}
	delete(p.pending, tokenHash)
	user := p.userByID(pending.userID)
	if user == nil {
		return nil, &ProviderError{Status: http.StatusForbidden, Code: "otp_expired", Message: "Token has expired or is invalid"}
	}
	user.confirmed = true
	return p.issue(user), nil
}

// DeleteUser removes an account and its tokens.
func (p *MemoryProvider) DeleteUser(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	user := p.userByID(userID)
	if user == nil {
		return false
	}
	delete(p.users, user.email)
	for token, owner := range p.access {
		if owner == userID {
			delete(p.access, token)
		}
	}
	for token, owner := range p.refresh {
		if owner == userID {
			delete(p.refresh, token)
		}
	}
	return true
}

// UserIDForToken resolves an access token to its user.
func (p *MemoryProvider) UserIDForToken(accessToken string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.access[accessToken]
	return id, ok
}

// LastLink returns the most recent email link.
func (p *MemoryProvider) LastLink() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastLink
}

func (p *MemoryProvider) issue(user *memoryUser) *Session {
	now := p.now().UTC()
	sess := &Session{
		UserID:       user.id,
		Email:        user.email,
		AccessToken:  randomToken(),
		RefreshToken: randomToken(),
		IssuedAt:     now,
		ExpiresAt:    now.Add(p.ttl),
	}
	p.access[sess.AccessToken] = user.id
	p.refresh[sess.RefreshToken] = user.id
	return sess
}

func (p *MemoryProvider) sendLink(user *memoryUser, typ VerifyType, redirectTo string) {
	token := randomToken()
	p.pending[token] = pendingToken{userID: user.id, typ: typ}

	link := redirectTo
	if u, err := url.Parse(redirectTo); err == nil {
		q := u.Query()
		q.Set("token_hash", token)
		q.Set("type", string(typ))
		u.RawQuery = q.Encode()
		link = u.String()
	}
	p.lastLink = link
	p.logger.Info("identity email link", slog.String("email", user.email), slog.String("type", string(typ)), slog.String("link", link))
}

func (p *MemoryProvider) userByID(id string) *memoryUser {
	if id == "" {
		return nil
	}
	for _, user := range p.users {
		if user.id == id {
			return user
		}
	}
	return nil
}

func sameFlow(issued, presented VerifyType) bool {
	if issued == presented {
		return true
	}
	confirm := func(t VerifyType) bool { return t == VerifySignup || t == VerifyEmail }
	return confirm(issued) && confirm(presented)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func randomToken() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return hex.EncodeToString(b)
}

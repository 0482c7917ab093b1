package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
)

// SessionKey is the browser-session key holding the cached identity session.
const SessionKey = "identity"

// Store is the per-browser session the manager caches identity state in.
type Store interface {
	Get(key string) string
	Set(key, value string)
	Delete(key string)
	SetUser(id string)
	SessionID() string
	Renew()
}

// Config tunes the manager.
type Config struct {
	MinPasswordLength int
	SiteURL           string
	Clock             func() time.Time
	// OnFailure, when set, observes every classified provider failure.
	OnFailure func(op string, kind ErrorKind)
	// OnTransition, when set, observes every auth state change.
	OnTransition func(op string, from, to State)
}

// Manager tracks the authenticated member of each browser session.
type Manager struct {
	provider Provider
	notifier *Notifier
	logger   *slog.Logger
	validate *validator.Validate
	group    singleflight.Group
	cfg      Config
}

// NewManager wires a manager around the provider.
func NewManager(provider Provider, notifier *Notifier, logger *slog.Logger, cfg Config) *Manager {
	if cfg.MinPasswordLength <= 0 {
		cfg.MinPasswordLength = 6
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")
	if notifier == nil {
		notifier = NewNotifier(8)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		provider: provider,
		notifier: notifier,
		logger:   logger,
		validate: validator.New(),
		cfg:      cfg,
	}
}

// Subscribe registers a listener for auth state changes.
func (m *Manager) Subscribe(listener Listener) (unsubscribe func()) {
	return m.notifier.Subscribe(listener)
}

// GetSession returns the cached session without contacting the provider.
func (m *Manager) GetSession(store Store) (*Session, bool) {
	if store == nil {
		return nil, false
	}
	raw := store.Get(SessionKey)
	if raw == "" {
		return nil, false
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		m.logger.Warn("discarding unreadable identity session", slog.Any("error", err))
		store.Delete(SessionKey)
		return nil, false
	}
	return &sess, true
}

// State reports the resting auth state of the browser session.
func (m *Manager) State(store Store) State {
	if _, ok := m.GetSession(store); ok {
		return StateAuthenticated
	}
	return StateUnauthenticated
}

// SignIn authenticates with email and password and caches the session.
func (m *Manager) SignIn(ctx context.Context, store Store, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if err := m.firstInvalid(
		m.check("email", email, "required", "Email is required"),
		m.check("password", password, "required", "Password is required"),
	); err != nil {
		return nil, err
	}

	sess, err := m.attempt(store, "signin", func() (*Session, error) {
		return m.collapse(store, "signin", func() (*Session, error) {
			sess, err := m.provider.SignInWithPassword(ctx, email, password)
			if err != nil {
				return nil, err
			}
			m.publish(ctx, EventSignedIn, sess)
			return sess, nil
		}, email, password)
	})
	if err != nil {
		return nil, m.fail("sign in", err)
	}
	m.cache(store, sess)
	return sess, nil
}

// SignUp registers an account. The member stays signed out until the
// emailed confirmation link is followed.
func (m *Manager) SignUp(ctx context.Context, store Store, email, password string) error {
	email = strings.TrimSpace(email)
	if err := m.firstInvalid(
		m.check("email", email, "required", "Email is required"),
		m.checkLength("password", password),
	); err != nil {
		return err
	}

	_, err := m.collapse(store, "signup", func() (*Session, error) {
		return nil, m.provider.SignUp(ctx, email, password, m.cfg.SiteURL+"/auth/confirm")
	}, email, password)
	if err != nil {
		return m.fail("sign up", err)
	}
	return nil
}

// SignOut ends the session. Provider failures are logged and the local
// session is cleared regardless.
func (m *Manager) SignOut(ctx context.Context, store Store) {
	sess, ok := m.GetSession(store)
	if ok && sess.AccessToken != "" {
		if err := m.provider.SignOut(ctx, sess.AccessToken); err != nil {
			m.logger.Warn("provider sign out failed", slog.String("user_id", sess.UserID), slog.Any("error", err))
		}
	}
	m.ClearLocal(ctx, store)
}

// ClearLocal drops the cached session without contacting the provider.
func (m *Manager) ClearLocal(ctx context.Context, store Store) {
	sess, ok := m.GetSession(store)
	if store != nil {
		store.Delete(SessionKey)
		store.SetUser("")
		store.Renew()
	}
	ev := &Session{}
	if ok {
		ev = sess
	}
	m.publish(ctx, EventSignedOut, ev)
}

// ResetPassword asks the provider to email a recovery link.
func (m *Manager) ResetPassword(ctx context.Context, store Store, email string) error {
	email = strings.TrimSpace(email)
	if err := m.check("email", email, "required", "Email is required"); err != nil {
		return err
	}

	_, err := m.collapse(store, "reset", func() (*Session, error) {
		return nil, m.provider.ResetPasswordForEmail(ctx, email, m.cfg.SiteURL+"/auth/confirm?type=recovery")
	}, email)
	if err != nil {
		return m.fail("reset password", err)
	}
	return nil
}

// UpdatePassword sets a new password for the signed-in member.
func (m *Manager) UpdatePassword(ctx context.Context, store Store, password, confirm string) error {
	if err := m.checkNewPassword(password, confirm); err != nil {
		return err
	}
	sess, ok := m.GetSession(store)
	if !ok {
		return ErrNoSession
	}
	return m.updatePassword(ctx, store, sess, password)
}

// ChangePassword re-authenticates with the current password before setting
// a new one.
func (m *Manager) ChangePassword(ctx context.Context, store Store, current, password, confirm string) error {
	if err := m.firstInvalid(
		m.check("current_password", current, "required", "Current password is required"),
		m.checkNewPassword(password, confirm),
	); err != nil {
		return err
	}
	sess, ok := m.GetSession(store)
	if !ok {
		return ErrNoSession
	}

	if _, err := m.provider.SignInWithPassword(ctx, sess.Email, current); err != nil {
		classified := Classify(err)
		if classified.Kind == KindInvalidCredentials {
			return &Error{Kind: KindValidation, Field: "current_password", Message: "Please enter your correct current password.", Err: err}
		}
		return m.fail("verify current password", err)
	}
	return m.updatePassword(ctx, store, sess, password)
}

// Verify exchanges an email link token for a session.
func (m *Manager) Verify(ctx context.Context, store Store, tokenHash string, typ VerifyType) (*Session, EventKind, error) {
	if strings.TrimSpace(tokenHash) == "" {
		return nil, "", validationError("token_hash", "This link is incomplete. Please request a new one.")
	}
	kind := EventSignedIn
	if typ == VerifyRecovery {
		kind = EventPasswordRecovery
	}

	sess, err := m.attempt(store, "verify", func() (*Session, error) {
		return m.collapse(store, "verify", func() (*Session, error) {
			sess, err := m.provider.Verify(ctx, tokenHash, typ)
			if err != nil {
				return nil, err
			}
			m.publish(ctx, kind, sess)
			return sess, nil
		}, tokenHash, string(typ))
	})
	if err != nil {
		return nil, "", m.fail("verify", err)
	}
	m.cache(store, sess)
	return sess, kind, nil
}

// Refresh renews an expired session with its refresh token. Failure clears
// the cached session.
func (m *Manager) Refresh(ctx context.Context, store Store) (*Session, error) {
	current, ok := m.GetSession(store)
	if !ok {
		return nil, ErrNoSession
	}

	sess, err := m.collapse(store, "refresh", func() (*Session, error) {
		sess, err := m.provider.Refresh(ctx, current.RefreshToken)
		if err != nil {
			return nil, err
		}
		m.publish(ctx, EventTokenRefreshed, sess)
		return sess, nil
	}, current.RefreshToken)
	if err != nil {
		m.logger.Info("session refresh failed", slog.String("user_id", current.UserID), slog.Any("error", err))
		m.ClearLocal(ctx, store)
		return nil, Classify(err)
	}
	m.cache(store, sess)
	return sess, nil
}

// Now returns the manager's current time.
func (m *Manager) Now() time.Time {
	return m.cfg.Clock()
}

func (m *Manager) updatePassword(ctx context.Context, store Store, sess *Session, password string) error {
	_, err := m.collapse(store, "update-password", func() (*Session, error) {
		if err := m.provider.UpdatePassword(ctx, sess.AccessToken, password); err != nil {
			return nil, err
		}
		m.publish(ctx, EventUserUpdated, sess)
		return sess, nil
	}, sess.UserID, password)
	if err != nil {
		return m.fail("update password", err)
	}
	return nil
}

// attempt drives one provider round trip through the auth state machine,
// starting from the resting state of the browser session.
func (m *Manager) attempt(store Store, op string, fn func() (*Session, error)) (*Session, error) {
	machine := NewMachine(m.State(store))
	m.step(op, machine, StepAttempt)
	sess, err := fn()
	if err != nil {
		m.step(op, machine, StepFailed)
		m.step(op, machine, StepSettle)
		return nil, err
	}
	m.step(op, machine, StepSucceeded)
	return sess, nil
}

func (m *Manager) step(op string, machine *Machine, step Step) {
	from := machine.Current()
	to := machine.Apply(step)
	if from == to {
		return
	}
	m.logger.Debug("auth state changed", slog.String("op", op), slog.String("from", string(from)), slog.String("to", string(to)))
	if m.cfg.OnTransition != nil {
		m.cfg.OnTransition(op, from, to)
	}
}

// collapse runs fn once for concurrent identical submissions from the same
// browser session; every caller receives the shared outcome. Submissions
// with different inputs never share a key.
func (m *Manager) collapse(store Store, op string, fn func() (*Session, error), inputs ...string) (*Session, error) {
	key := op + ":" + digest(inputs)
	if store != nil {
		key = store.SessionID() + ":" + key
	}
	v, err, _ := m.group.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	sess, _ := v.(*Session)
	return sess, nil
}

func digest(inputs []string) string {
	h := sha256.New()
	for _, in := range inputs {
		_, _ = h.Write([]byte(in))
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (m *Manager) cache(store Store, sess *Session) {
	if store == nil || sess == nil {
		return
	}
	store.Renew()
	m.overwrite(store, sess)
}

func (m *Manager) overwrite(store Store, sess *Session) {
	if store == nil || sess == nil {
		return
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		m.logger.Error("encode identity session", slog.Any("error", err))
		return
	}
	store.Set(SessionKey, string(payload))
	store.SetUser(sess.UserID)
}

func (m *Manager) publish(ctx context.Context, kind EventKind, sess *Session) {
	ev := Event{Kind: kind, Session: sess, At: m.cfg.Clock().UTC()}
	if sess != nil {
		ev.UserID = sess.UserID
	}
	if err := m.notifier.Publish(context.WithoutCancel(ctx), ev); err != nil {
		m.logger.Warn("auth event not delivered", slog.String("event", string(kind)), slog.Any("error", err))
	}
}

func (m *Manager) fail(op string, err error) error {
	classified := Classify(err)
	m.logger.Warn(op+" failed", slog.String("kind", string(classified.Kind)), slog.String("provider_message", classified.Raw))
	if m.cfg.OnFailure != nil {
		m.cfg.OnFailure(op, classified.Kind)
	}
	return classified
}

func (m *Manager) check(field, value, tag, message string) error {
	if err := m.validate.Var(value, tag); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return validationError(field, message)
		}
		return err
	}
	return nil
}

func (m *Manager) checkLength(field, value string) error {
	return m.check(field, value, fmt.Sprintf("min=%d", m.cfg.MinPasswordLength),
		fmt.Sprintf("Must be at least %d characters long", m.cfg.MinPasswordLength))
}

func (m *Manager) checkNewPassword(password, confirm string) error {
	if err := m.checkLength("password", password); err != nil {
		return err
	}
	if password != confirm {
		return validationError("confirm_password", "Passwords do not match")
	}
	return nil
}

func (m *Manager) firstInvalid(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

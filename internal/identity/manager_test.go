package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore struct {
	mu      sync.Mutex
	id      string
	values  map[string]string
	user    string
	renewed int
}

func newMapStore(id string) *mapStore {
	return &mapStore{id: id, values: make(map[string]string)}
}

func (s *mapStore) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

func (s *mapStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *mapStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

func (s *mapStore) SetUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = id
}

func (s *mapStore) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *mapStore) Renew() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renewed++
}

// countingProvider records calls and can fail or block on demand.
type countingProvider struct {
	Provider
	calls      atomic.Int32
	signOutErr error
	refreshErr error
	gate       chan struct{}

	mu     sync.Mutex
	signUp []string
}

func (p *countingProvider) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	p.calls.Add(1)
	if p.gate != nil {
		<-p.gate
	}
	return p.Provider.SignInWithPassword(ctx, email, password)
}

func (p *countingProvider) SignUp(ctx context.Context, email, password, redirectTo string) error {
	p.calls.Add(1)
	p.mu.Lock()
	p.signUp = append(p.signUp, email)
	p.mu.Unlock()
	if p.gate != nil {
		<-p.gate
	}
	return p.Provider.SignUp(ctx, email, password, redirectTo)
}

func (p *countingProvider) SignOut(ctx context.Context, accessToken string) error {
	p.calls.Add(1)
	if p.signOutErr != nil {
		return p.signOutErr
	}
	return p.Provider.SignOut(ctx, accessToken)
}

func (p *countingProvider) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	p.calls.Add(1)
	return p.Provider.ResetPasswordForEmail(ctx, email, redirectTo)
}

func (p *countingProvider) UpdatePassword(ctx context.Context, accessToken, password string) error {
	p.calls.Add(1)
	return p.Provider.UpdatePassword(ctx, accessToken, password)
}

func (p *countingProvider) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	p.calls.Add(1)
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	return p.Provider.Refresh(ctx, refreshToken)
}

type managerFixture struct {
	manager  *Manager
	memory   *MemoryProvider
	provider *countingProvider
	events   chan Event
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	memory := NewMemoryProvider(logger, WithAutoConfirm())
	provider := &countingProvider{Provider: memory}
	notifier := NewNotifier(16)
	t.Cleanup(notifier.Close)

	manager := NewManager(provider, notifier, logger, Config{SiteURL: "https://nysa.test/"})
	events := make(chan Event, 16)
	unsubscribe := manager.Subscribe(func(ev Event) { events <- ev })
	t.Cleanup(unsubscribe)

	require.NoError(t, memory.SignUp(context.Background(), "member@nysa.test", "vineyard", ""))
	return &managerFixture{manager: manager, memory: memory, provider: provider, events: events}
}

func (f *managerFixture) nextEvent(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-f.events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no auth event delivered")
		return Event{}
	}
}

func TestSignInCachesSessionAndEmits(t *testing.T) {
	f := newManagerFixture(t)
	store := newMapStore("browser-1")

	sess, err := f.manager.SignIn(context.Background(), store, "  member@nysa.test ", "vineyard")
	require.NoError(t, err)
	assert.Equal(t, "member@nysa.test", sess.Email)

	cached, ok := f.manager.GetSession(store)
	require.True(t, ok)
	assert.Equal(t, sess.AccessToken, cached.AccessToken)
	assert.Equal(t, sess.UserID, store.user)
	assert.Equal(t, 1, store.renewed)
	assert.Equal(t, StateAuthenticated, f.manager.State(store))

	ev := f.nextEvent(t)
	assert.Equal(t, EventSignedIn, ev.Kind)
	assert.Equal(t, sess.UserID, ev.UserID)
}

func TestSignInValidationNeverCallsProvider(t *testing.T) {
	f := newManagerFixture(t)
	store := newMapStore("browser-1")

	_, err := f.manager.SignIn(context.Background(), store, "   ", "vineyard")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "Email is required", Message(err))

	_, err = f.manager.SignIn(context.Background(), store, "member@nysa.test", "")
	assert.Equal(t, "Password is required", Message(err))

	assert.Zero(t, f.provider.calls.Load())
	_, ok := f.manager.GetSession(store)
	assert.False(t, ok)
}

func TestSignInInvalidCredentials(t *testing.T) {
	f := newManagerFixture(t)
	store := newMapStore("browser-1")

	_, err := f.manager.SignIn(context.Background(), store, "member@nysa.test", "wrong-password")
	var authErr *Error
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, KindInvalidCredentials, authErr.Kind)
	assert.Equal(t, "Invalid email or password. Please check your credentials and try again.", authErr.Message)
	assert.Equal(t, StateUnauthenticated, f.manager.State(store))
}

func TestSignInCollapsesDuplicateSubmissions(t *testing.T) {
	f := newManagerFixture(t)
	f.provider.gate = make(chan struct{})
	store := newMapStore("browser-1")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.manager.SignIn(context.Background(), store, "member@nysa.test", "vineyard")
		}(i)
	}
	require.Eventually(t, func() bool { return f.provider.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(f.provider.gate)
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, int32(1), f.provider.calls.Load())
}

func TestSignInDistinctCredentialsAreNotCollapsed(t *testing.T) {
	f := newManagerFixture(t)
	f.provider.gate = make(chan struct{})
	store := newMapStore("browser-1")

	var wg sync.WaitGroup
	passwords := []string{"vineyard", "not-the-password"}
	errs := make([]error, len(passwords))
	for i, password := range passwords {
		wg.Add(1)
		go func(i int, password string) {
			defer wg.Done()
			_, errs[i] = f.manager.SignIn(context.Background(), store, "member@nysa.test", password)
		}(i, password)
	}
	require.Eventually(t, func() bool { return f.provider.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(f.provider.gate)
	wg.Wait()

	assert.NoError(t, errs[0])
	var authErr *Error
	require.ErrorAs(t, errs[1], &authErr)
	assert.Equal(t, KindInvalidCredentials, authErr.Kind)
}

func TestSignUpDistinctEmailsBothReachProvider(t *testing.T) {
	f := newManagerFixture(t)
	f.provider.gate = make(chan struct{})
	store := newMapStore("browser-1")

	var wg sync.WaitGroup
	emails := []string{"a@nysa.test", "b@nysa.test"}
	errs := make([]error, len(emails))
	for i, email := range emails {
		wg.Add(1)
		go func(i int, email string) {
			defer wg.Done()
			errs[i] = f.manager.SignUp(context.Background(), store, email, "vineyard")
		}(i, email)
	}
	require.Eventually(t, func() bool { return f.provider.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(f.provider.gate)
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	f.provider.mu.Lock()
	defer f.provider.mu.Unlock()
	assert.ElementsMatch(t, emails, f.provider.signUp)
}

func TestSignInDrivesStateMachine(t *testing.T) {
	f := newManagerFixture(t)
	var (
		mu  sync.Mutex
		got []State
	)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := NewManager(f.provider, nil, logger, Config{
		OnTransition: func(op string, _, to State) {
			assert.Equal(t, "signin", op)
			mu.Lock()
			got = append(got, to)
			mu.Unlock()
		},
	})
	store := newMapStore("browser-1")

	_, err := manager.SignIn(context.Background(), store, "member@nysa.test", "wrong-password")
	require.Error(t, err)
	_, err = manager.SignIn(context.Background(), store, "member@nysa.test", "vineyard")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{
		StateAuthenticating, StateError, StateUnauthenticated,
		StateAuthenticating, StateAuthenticated,
	}, got)
}

func TestSignUpRequiresMinimumPassword(t *testing.T) {
	f := newManagerFixture(t)

	err := f.manager.SignUp(context.Background(), newMapStore("b"), "new@nysa.test", "12345")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "Must be at least 6 characters long", Message(err))
	assert.Zero(t, f.provider.calls.Load())

	require.NoError(t, f.manager.SignUp(context.Background(), newMapStore("b"), "new@nysa.test", "123456"))
	assert.Equal(t, int32(1), f.provider.calls.Load())
}

func TestSignUpDoesNotSignIn(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	memory := NewMemoryProvider(logger)
	manager := NewManager(memory, nil, logger, Config{SiteURL: "https://nysa.test"})
	store := newMapStore("b")

	require.NoError(t, manager.SignUp(context.Background(), store, "fresh@nysa.test", "secret1"))
	_, ok := manager.GetSession(store)
	assert.False(t, ok)
	assert.Contains(t, memory.LastLink(), "https://nysa.test/auth/confirm?")
	assert.Contains(t, memory.LastLink(), "type=signup")

	_, err := manager.SignIn(context.Background(), store, "fresh@nysa.test", "secret1")
	var authErr *Error
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, KindEmailUnconfirmed, authErr.Kind)
}

func TestSignOutClearsLocalSessionWhenProviderFails(t *testing.T) {
	f := newManagerFixture(t)
	store := newMapStore("browser-1")
	_, err := f.manager.SignIn(context.Background(), store, "member@nysa.test", "vineyard")
	require.NoError(t, err)
	f.nextEvent(t)

	f.provider.signOutErr = errors.New("provider down")
	f.manager.SignOut(context.Background(), store)

	_, ok := f.manager.GetSession(store)
	assert.False(t, ok)
	assert.Empty(t, store.user)
	assert.Equal(t, EventSignedOut, f.nextEvent(t).Kind)
}

func TestResetPasswordUsesRecoveryLink(t *testing.T) {
	f := newManagerFixture(t)

	err := f.manager.ResetPassword(context.Background(), newMapStore("b"), " ")
	assert.Equal(t, "Email is required", Message(err))

	require.NoError(t, f.manager.ResetPassword(context.Background(), newMapStore("b"), "member@nysa.test"))
	assert.Contains(t, f.memory.LastLink(), "type=recovery")
	assert.Contains(t, f.memory.LastLink(), "token_hash=")
}

func TestUpdatePasswordValidation(t *testing.T) {
	f := newManagerFixture(t)
	store := newMapStore("browser-1")
	_, err := f.manager.SignIn(context.Background(), store, "member@nysa.test", "vineyard")
	require.NoError(t, err)
	before := f.provider.calls.Load()

	err = f.manager.UpdatePassword(context.Background(), store, "abc", "abc")
	assert.Equal(t, "Must be at least 6 characters long", Message(err))

	err = f.manager.UpdatePassword(context.Background(), store, "grapevine", "grapevines")
	assert.Equal(t, "Passwords do not match", Message(err))
	assert.Equal(t, before, f.provider.calls.Load())

	require.NoError(t, f.manager.UpdatePassword(context.Background(), store, "grapevine", "grapevine"))
	_, err = f.manager.SignIn(context.Background(), newMapStore("other"), "member@nysa.test", "grapevine")
	assert.NoError(t, err)
}

func TestUpdatePasswordWithoutSession(t *testing.T) {
	f := newManagerFixture(t)
	err := f.manager.UpdatePassword(context.Background(), newMapStore("b"), "grapevine", "grapevine")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestChangePasswordVerifiesCurrent(t *testing.T) {
	f := newManagerFixture(t)
	store := newMapStore("browser-1")
	_, err := f.manager.SignIn(context.Background(), store, "member@nysa.test", "vineyard")
	require.NoError(t, err)

	err = f.manager.ChangePassword(context.Background(), store, "", "grapevine", "grapevine")
	assert.Equal(t, "Current password is required", Message(err))

	err = f.manager.ChangePassword(context.Background(), store, "not-it", "grapevine", "grapevine")
	var authErr *Error
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "current_password", authErr.Field)
	assert.Equal(t, "Please enter your correct current password.", authErr.Message)

	require.NoError(t, f.manager.ChangePassword(context.Background(), store, "vineyard", "grapevine", "grapevine"))
}

func TestVerifyRecoveryEmitsPasswordRecovery(t *testing.T) {
	f := newManagerFixture(t)
	require.NoError(t, f.manager.ResetPassword(context.Background(), newMapStore("b"), "member@nysa.test"))
	link := f.memory.LastLink()
	token := tokenFromLink(t, link)

	store := newMapStore("browser-2")
	sess, kind, err := f.manager.Verify(context.Background(), store, token, VerifyRecovery)
	require.NoError(t, err)
	assert.Equal(t, EventPasswordRecovery, kind)
	assert.Equal(t, "member@nysa.test", sess.Email)
	assert.Equal(t, EventPasswordRecovery, f.nextEvent(t).Kind)

	_, _, err = f.manager.Verify(context.Background(), newMapStore("browser-3"), token, VerifyRecovery)
	assert.Error(t, err, "tokens are single use")
}

func TestRefreshReplacesExpiredSession(t *testing.T) {
	f := newManagerFixture(t)
	store := newMapStore("browser-1")
	first, err := f.manager.SignIn(context.Background(), store, "member@nysa.test", "vineyard")
	require.NoError(t, err)
	f.nextEvent(t)

	refreshed, err := f.manager.Refresh(context.Background(), store)
	require.NoError(t, err)
	assert.NotEqual(t, first.AccessToken, refreshed.AccessToken)
	assert.Equal(t, 2, store.renewed, "refresh rotates the browser session id")
	assert.Equal(t, EventTokenRefreshed, f.nextEvent(t).Kind)

	cached, ok := f.manager.GetSession(store)
	require.True(t, ok)
	assert.Equal(t, refreshed.AccessToken, cached.AccessToken)
}

func TestRefreshFailureClearsSession(t *testing.T) {
	f := newManagerFixture(t)
	store := newMapStore("browser-1")
	_, err := f.manager.SignIn(context.Background(), store, "member@nysa.test", "vineyard")
	require.NoError(t, err)
	f.nextEvent(t)

	f.provider.refreshErr = &ProviderError{Status: 400, Message: "Invalid Refresh Token: Refresh Token Not Found"}
	_, err = f.manager.Refresh(context.Background(), store)
	assert.Error(t, err)

	_, ok := f.manager.GetSession(store)
	assert.False(t, ok)
	assert.Equal(t, EventSignedOut, f.nextEvent(t).Kind)
}

func TestGetSessionDiscardsCorruptPayload(t *testing.T) {
	f := newManagerFixture(t)
	store := newMapStore("browser-1")
	store.Set(SessionKey, "{not json")

	_, ok := f.manager.GetSession(store)
	assert.False(t, ok)
	assert.Empty(t, store.Get(SessionKey))
}

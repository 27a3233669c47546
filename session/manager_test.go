package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/as2-portal-session/authapi"
	"github.com/jrsteele09/as2-portal-session/internal/clock"
	"github.com/jrsteele09/as2-portal-session/session"
	"github.com/jrsteele09/as2-portal-session/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "pat@acme-edi.example"
	testPassword = "Sup3r-secret!"

	eventually = 2 * time.Second
	poll       = 5 * time.Millisecond
)

// recorder captures notifications and redirects.
type recorder struct {
	mu        sync.Mutex
	notes     []session.Reason
	redirects []session.Reason
}

func (r *recorder) notified() []session.Reason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.Reason(nil), r.notes...)
}

func (r *recorder) redirected() []session.Reason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.Reason(nil), r.redirects...)
}

type testFixture struct {
	api      *fakeAPI
	store    *store.MemoryStore
	clock    *clock.FakeClock
	registry *prometheus.Registry
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	clk := clock.Fake(time.Now().Truncate(time.Second))
	return &testFixture{
		api:      newFakeAPI(clk),
		store:    store.NewMemoryStore(),
		clock:    clk,
		registry: prometheus.NewRegistry(),
	}
}

// newManager builds a manager over the fixture's backend and store. Managers
// built by one fixture share storage, like tabs of one browser.
func (f *testFixture) newManager(t *testing.T, opts ...session.Option) (*session.Manager, *recorder) {
	t.Helper()

	rec := &recorder{}
	base := []session.Option{
		session.WithClock(f.clock),
		session.WithNotifier(session.NotifierFunc(func(reason session.Reason, message string) {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.notes = append(rec.notes, reason)
		})),
		session.WithNavigator(session.NavigatorFunc(func(reason session.Reason) {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.redirects = append(rec.redirects, reason)
		})),
		session.WithRequestTimeout(time.Second),
	}
	m, err := session.New(f.api, f.store, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, rec
}

func (f *testFixture) login(t *testing.T, m *session.Manager) session.Session {
	t.Helper()
	s, err := m.Login(context.Background(), session.Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	return s
}

func (f *testFixture) stored(t *testing.T) (store.Tokens, error) {
	t.Helper()
	return f.store.Load(context.Background())
}

func (f *testFixture) counter(t *testing.T, name, label string) float64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if pair.GetValue() == label {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func requireConsistent(t *testing.T, s session.Session) {
	t.Helper()
	require.Equal(t, s.AccessToken == "", s.RefreshToken == "", "token pair must be complete or empty")
	if s.State == session.StateUnauthenticated {
		require.Empty(t, s.AccessToken)
		require.Nil(t, s.User)
	}
}

func TestLoginPersistsSession(t *testing.T) {
	f := setupTestFixture(t)
	m, rec := f.newManager(t, session.WithMetrics(f.registry))

	s := f.login(t, m)
	requireConsistent(t, s)
	assert.Equal(t, session.StateAuthenticated, s.State)
	require.NotNil(t, s.User)
	assert.Equal(t, "user-1", s.User.ID)
	assert.WithinDuration(t, f.clock.Now().Add(15*time.Minute), s.ExpiresAt, time.Second)
	assert.Equal(t, f.clock.Now(), s.AuthenticatedAt)

	tokens, err := f.stored(t)
	require.NoError(t, err)
	assert.Equal(t, store.Tokens{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}, tokens)

	assert.Equal(t, 1.0, f.counter(t, "portal_session_logins_total", "success"))
	assert.Empty(t, rec.notified())
}

func TestLoginValidationMakesNoRequest(t *testing.T) {
	f := setupTestFixture(t)
	m, _ := f.newManager(t)

	_, err := m.Login(context.Background(), session.Credentials{})
	require.Error(t, err)
	assert.Equal(t, authapi.KindValidation, authapi.KindOf(err))
	fields := authapi.FieldsOf(err)
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
	assert.Zero(t, f.api.counts().login)
}

func TestLoginRejectedLeavesNoSession(t *testing.T) {
	f := setupTestFixture(t)
	m, rec := f.newManager(t, session.WithMetrics(f.registry))

	_, err := m.Login(context.Background(), session.Credentials{Email: testEmail, Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, authapi.KindInvalidCredentials, authapi.KindOf(err))
	assert.Equal(t, session.StateUnauthenticated, m.State())
	requireConsistent(t, m.Current())

	_, err = f.stored(t)
	assert.ErrorIs(t, err, store.ErrNoTokens)
	assert.Equal(t, 1.0, f.counter(t, "portal_session_logins_total", "invalid-credentials"))
	assert.Empty(t, rec.notified())
	assert.Empty(t, rec.redirected())
}

func TestFailedLoginKeepsExistingSession(t *testing.T) {
	tests := []struct {
		name     string
		password string
		loginErr error
		kind     authapi.Kind
	}{
		{name: "wrong password", password: "wrong", kind: authapi.KindInvalidCredentials},
		{name: "network failure", password: testPassword, loginErr: &authapi.Error{Kind: authapi.KindNetwork, Err: context.DeadlineExceeded}, kind: authapi.KindNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			m, rec := f.newManager(t)
			before := f.login(t, m)
			f.api.setLoginErr(tt.loginErr)

			_, err := m.Login(context.Background(), session.Credentials{Email: testEmail, Password: tt.password})
			require.Error(t, err)
			assert.Equal(t, tt.kind, authapi.KindOf(err))

			after := m.Current()
			assert.Equal(t, session.StateAuthenticated, after.State)
			assert.Equal(t, before.AccessToken, after.AccessToken)
			assert.Equal(t, before.RefreshToken, after.RefreshToken)
			assert.Equal(t, before.User, after.User)

			tokens, err := f.stored(t)
			require.NoError(t, err)
			assert.Equal(t, store.Tokens{AccessToken: before.AccessToken, RefreshToken: before.RefreshToken}, tokens)
			assert.Empty(t, rec.notified())
			assert.Empty(t, rec.redirected())
		})
	}
}

func TestLoginRejectsTokenFailingVerification(t *testing.T) {
	f := setupTestFixture(t)
	m, _ := f.newManager(t, session.WithVerifier(verifierFunc(func(context.Context, string) (time.Time, error) {
		return time.Time{}, errInvalidSignature
	})))

	_, err := m.Login(context.Background(), session.Credentials{Email: testEmail, Password: testPassword})
	require.Error(t, err)
	assert.Equal(t, authapi.KindTokenInvalid, authapi.KindOf(err))
	assert.Equal(t, session.StateUnauthenticated, m.State())

	_, err = f.stored(t)
	assert.ErrorIs(t, err, store.ErrNoTokens)
}

func TestStaleLoginIsDiscardedAfterLogout(t *testing.T) {
	f := setupTestFixture(t)
	m, rec := f.newManager(t)

	release := f.api.gateLogin()
	result := make(chan error, 1)
	go func() {
		_, err := m.Login(context.Background(), session.Credentials{Email: testEmail, Password: testPassword})
		result <- err
	}()

	<-f.api.loginStarted
	assert.Equal(t, session.StateAuthenticating, m.State())
	m.Logout(context.Background(), session.ReasonUserInitiated)
	release()

	err := <-result
	require.Error(t, err)
	assert.Equal(t, authapi.KindNotAuthenticated, authapi.KindOf(err))
	assert.Equal(t, session.StateUnauthenticated, m.State())
	requireConsistent(t, m.Current())

	_, err = f.stored(t)
	assert.ErrorIs(t, err, store.ErrNoTokens)
	assert.Empty(t, rec.redirected(), "no session existed to end")
}

func TestRegisterDoesNotLogIn(t *testing.T) {
	f := setupTestFixture(t)
	m, _ := f.newManager(t)

	profile, err := m.Register(context.Background(), session.Registration{
		Email:        "new@acme-edi.example",
		Password:     testPassword,
		Name:         "New User",
		Organization: "Acme EDI",
	})
	require.NoError(t, err)
	assert.Equal(t, "new@acme-edi.example", profile.Email)
	assert.Equal(t, session.StateUnauthenticated, m.State())

	_, err = m.Register(context.Background(), session.Registration{Email: testEmail, Password: testPassword, Name: "Dup"})
	require.Error(t, err)
	assert.Equal(t, authapi.KindValidation, authapi.KindOf(err))
	assert.Contains(t, authapi.FieldsOf(err), "email")

	_, err = m.Register(context.Background(), session.Registration{Email: "x@acme-edi.example"})
	require.Error(t, err)
	assert.Contains(t, authapi.FieldsOf(err), "name")
}

func TestLoginThenRestoreInNewManager(t *testing.T) {
	f := setupTestFixture(t)
	first, _ := f.newManager(t)
	original := f.login(t, first)

	second, rec := f.newManager(t)
	require.True(t, second.RestoreSession(context.Background()))

	restored := second.Current()
	requireConsistent(t, restored)
	assert.Equal(t, session.StateAuthenticated, restored.State)
	assert.Equal(t, original.AccessToken, restored.AccessToken)
	assert.Equal(t, original.RefreshToken, restored.RefreshToken)
	assert.WithinDuration(t, original.ExpiresAt, restored.ExpiresAt, 0)
	assert.Equal(t, original.User, restored.User)

	assert.Zero(t, f.api.counts().refresh)
	assert.Empty(t, rec.notified())
	assert.Empty(t, rec.redirected())

	// Already authenticated: nothing to do.
	before := f.api.counts()
	assert.True(t, second.RestoreSession(context.Background()))
	assert.Equal(t, before, f.api.counts())
}

func TestRestoreRefreshesExpiredAccessToken(t *testing.T) {
	f := setupTestFixture(t)
	first, _ := f.newManager(t)
	original := f.login(t, first)

	f.clock.Advance(20 * time.Minute)

	second, _ := f.newManager(t)
	require.True(t, second.RestoreSession(context.Background()))

	restored := second.Current()
	assert.NotEqual(t, original.AccessToken, restored.AccessToken)
	assert.Equal(t, 1, f.api.counts().refresh)

	tokens, err := f.stored(t)
	require.NoError(t, err)
	assert.Equal(t, store.Tokens{AccessToken: restored.AccessToken, RefreshToken: restored.RefreshToken}, tokens)
}

func TestRestoreRetriesOnceAfterRejectedAccessToken(t *testing.T) {
	f := setupTestFixture(t)
	first, _ := f.newManager(t)
	original := f.login(t, first)
	f.api.expireAccessTokens()

	second, _ := f.newManager(t)
	require.True(t, second.RestoreSession(context.Background()))
	assert.NotEqual(t, original.AccessToken, second.Current().AccessToken)
	assert.Equal(t, 1, f.api.counts().refresh)
	assert.Equal(t, 2, f.api.counts().me)
}

func TestRestoreFailureClearsStorageQuietly(t *testing.T) {
	f := setupTestFixture(t)
	first, _ := f.newManager(t)
	f.login(t, first)
	f.api.expireAccessTokens()
	f.api.revokeRefreshTokens()

	second, rec := f.newManager(t)
	assert.False(t, second.RestoreSession(context.Background()))
	assert.Equal(t, session.StateUnauthenticated, second.State())
	requireConsistent(t, second.Current())

	_, err := f.stored(t)
	assert.ErrorIs(t, err, store.ErrNoTokens)
	assert.Empty(t, rec.notified())
	assert.Empty(t, rec.redirected())
}

func TestRestoreWithNothingStored(t *testing.T) {
	f := setupTestFixture(t)
	m, _ := f.newManager(t, session.WithMetrics(f.registry))

	assert.False(t, m.RestoreSession(context.Background()))
	assert.Equal(t, callCounts{}, f.api.counts())
	assert.Equal(t, 1.0, f.counter(t, "portal_session_restores_total", "none"))
}

func TestLogoutClearsEverything(t *testing.T) {
	f := setupTestFixture(t)
	m, rec := f.newManager(t)
	f.login(t, m)

	m.Logout(context.Background(), session.ReasonUserInitiated)

	s := m.Current()
	requireConsistent(t, s)
	assert.Equal(t, session.StateUnauthenticated, s.State)
	assert.Equal(t, 1, f.api.counts().logout)

	_, err := f.stored(t)
	assert.ErrorIs(t, err, store.ErrNoTokens)
	assert.Empty(t, rec.notified(), "a user initiated logout shows no message")
	assert.Equal(t, []session.Reason{session.ReasonUserInitiated}, rec.redirected())

	// Logging out again has nothing to end.
	m.Logout(context.Background(), session.ReasonUserInitiated)
	assert.Equal(t, 1, f.api.counts().logout)
	assert.Len(t, rec.redirected(), 1)
}

package session_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/as2-portal-session/authapi"
	"github.com/jrsteele09/as2-portal-session/internal/clock"
	"github.com/jrsteele09/as2-portal-session/session"
	"github.com/jrsteele09/as2-portal-session/users"
)

var _ session.AuthAPI = (*fakeAPI)(nil)

// fakeAPI is an in-memory portal backend. Access tokens are JWTs whose exp
// follows the fake clock, refresh tokens rotate on every use.
type fakeAPI struct {
	mu    sync.Mutex
	clock *clock.FakeClock
	ttl   time.Duration
	seq   int

	password string
	profile  users.Profile

	access  map[string]time.Time // access token -> expiry
	refresh map[string]bool

	refreshCalls int
	meCalls      int
	loginCalls   int
	logoutCalls  int

	refreshErr   error
	loginErr     error
	rejectAccess bool

	refreshGate    chan struct{}
	refreshStarted chan struct{}
	loginGate      chan struct{}
	loginStarted   chan struct{}
}

func newFakeAPI(clk *clock.FakeClock) *fakeAPI {
	return &fakeAPI{
		clock:    clk,
		ttl:      15 * time.Minute,
		password: testPassword,
		profile: users.Profile{
			ID:           "user-1",
			Email:        testEmail,
			Name:         "Pat Operator",
			Role:         string(users.RoleOperator),
			Permissions:  []string{users.PermDashboardRead, users.PermMessagesRead},
			Organization: "Acme EDI",
		},
		access:  map[string]time.Time{},
		refresh: map[string]bool{},
	}
}

func (f *fakeAPI) issueLocked() *authapi.TokenResponse {
	f.seq++
	now := f.clock.Now()
	exp := now.Add(f.ttl)
	claims := jwtlib.RegisteredClaims{
		Subject:   f.profile.ID,
		ID:        fmt.Sprintf("jti-%d", f.seq),
		IssuedAt:  jwtlib.NewNumericDate(now),
		ExpiresAt: jwtlib.NewNumericDate(exp),
	}
	accessToken, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("test-signing-secret"))
	if err != nil {
		panic(err)
	}
	refreshToken := fmt.Sprintf("refresh-%d", f.seq)
	f.access[accessToken] = exp
	f.refresh[refreshToken] = true

	profile := f.profile
	return &authapi.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    authapi.TokenTypeBearer,
		ExpiresIn:    int(f.ttl / time.Second),
		User:         &profile,
	}
}

func (f *fakeAPI) Login(_ context.Context, credentials authapi.LoginRequest) (*authapi.TokenResponse, error) {
	f.mu.Lock()
	f.loginCalls++
	gate, started := f.loginGate, f.loginStarted
	f.mu.Unlock()

	if gate != nil {
		started <- struct{}{}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	if credentials.Email != f.profile.Email || credentials.Password != f.password {
		return nil, &authapi.Error{Kind: authapi.KindInvalidCredentials, Status: 401, Code: authapi.CodeInvalidCredentials}
	}
	return f.issueLocked(), nil
}

func (f *fakeAPI) Register(_ context.Context, registration authapi.RegisterRequest) (*users.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if registration.Email == f.profile.Email {
		return nil, &authapi.Error{Kind: authapi.KindValidation, Status: 409, Code: authapi.CodeConflict,
			Fields: map[string]string{"email": "email is already registered"}}
	}
	return &users.Profile{
		ID:           "user-2",
		Email:        registration.Email,
		Name:         registration.Name,
		Role:         string(users.RoleViewer),
		Permissions:  []string{users.PermDashboardRead},
		Organization: registration.Organization,
	}, nil
}

func (f *fakeAPI) Refresh(_ context.Context, refreshToken string) (*authapi.TokenResponse, error) {
	f.mu.Lock()
	f.refreshCalls++
	gate, started := f.refreshGate, f.refreshStarted
	f.mu.Unlock()

	if gate != nil {
		started <- struct{}{}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	if !f.refresh[refreshToken] {
		return nil, &authapi.Error{Kind: authapi.KindTokenInvalid, Status: 401, Code: authapi.CodeInvalidToken}
	}
	delete(f.refresh, refreshToken)
	return f.issueLocked(), nil
}

func (f *fakeAPI) CurrentUser(_ context.Context, accessToken string) (*users.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meCalls++
	exp, ok := f.access[accessToken]
	if f.rejectAccess || !ok || !f.clock.Now().Before(exp) {
		return nil, &authapi.Error{Kind: authapi.KindTokenInvalid, Status: 401, Code: authapi.CodeInvalidToken}
	}
	profile := f.profile
	return &profile, nil
}

func (f *fakeAPI) Logout(_ context.Context, accessToken, refreshToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	delete(f.access, accessToken)
	delete(f.refresh, refreshToken)
	return nil
}

// expireAccessTokens drops every issued access token, as a server restart with new keys would.
func (f *fakeAPI) expireAccessTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access = map[string]time.Time{}
}

func (f *fakeAPI) revokeRefreshTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh = map[string]bool{}
}

func (f *fakeAPI) setRefreshErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshErr = err
}

func (f *fakeAPI) setLoginErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginErr = err
}

func (f *fakeAPI) setRejectAccess(reject bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectAccess = reject
}

func (f *fakeAPI) gateRefresh() (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshGate = make(chan struct{})
	f.refreshStarted = make(chan struct{}, 16)
	gate := f.refreshGate
	return func() { close(gate) }
}

func (f *fakeAPI) gateLogin() (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginGate = make(chan struct{})
	f.loginStarted = make(chan struct{}, 16)
	gate := f.loginGate
	return func() { close(gate) }
}

type callCounts struct {
	login, refresh, me, logout int
}

func (f *fakeAPI) counts() callCounts {
	f.mu.Lock()
	defer f.mu.Unlock()
	return callCounts{login: f.loginCalls, refresh: f.refreshCalls, me: f.meCalls, logout: f.logoutCalls}
}

// Package session owns the portal's client-side session: the access and
// refresh token pair, the user's profile, and the background timer that
// keeps the pair fresh. All mutation goes through the Manager's methods.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/as2-portal-session/authapi"
	"github.com/jrsteele09/as2-portal-session/internal/clock"
	"github.com/jrsteele09/as2-portal-session/internal/errors"
	"github.com/jrsteele09/as2-portal-session/store"
	"github.com/jrsteele09/as2-portal-session/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// AuthAPI is the backend the manager talks to. *apiclient.Client implements it.
type AuthAPI interface {
	Login(ctx context.Context, credentials authapi.LoginRequest) (*authapi.TokenResponse, error)
	Register(ctx context.Context, registration authapi.RegisterRequest) (*users.Profile, error)
	Refresh(ctx context.Context, refreshToken string) (*authapi.TokenResponse, error)
	CurrentUser(ctx context.Context, accessToken string) (*users.Profile, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
}

type Manager struct {
	api       AuthAPI
	store     store.Store
	clock     clock.Clock
	logger    zerolog.Logger
	notifier  Notifier
	navigator Navigator
	verifier  Verifier

	registerer prometheus.Registerer
	metrics    *metrics

	refreshInterval time.Duration
	refreshWindow   time.Duration
	requestTimeout  time.Duration
	maxSessionAge   time.Duration

	// mu guards state, session and epoch. It is never held across I/O.
	mu      sync.RWMutex
	state   State
	session Session
	// epoch changes whenever a session starts or ends. Work started under an
	// older epoch discards its result.
	epoch uint64

	// storeMu orders storage writes with the epoch check that allows them.
	storeMu sync.Mutex

	flights singleflight.Group

	timerMu sync.Mutex
	timer   *autoRefresh

	watchMu sync.Mutex
	watches []*storageWatch
}

// New returns an unauthenticated manager. Call RestoreSession to pick up a
// persisted session.
func New(api AuthAPI, tokenStore store.Store, opts ...Option) (*Manager, error) {
	if api == nil {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "session: auth API is required")
	}
	if tokenStore == nil {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "session: token store is required")
	}

	m := &Manager{
		api:             api,
		store:           tokenStore,
		clock:           clock.Real(),
		logger:          zerolog.Nop(),
		notifier:        nopNotifier{},
		navigator:       nopNavigator{},
		refreshInterval: DefaultRefreshInterval,
		refreshWindow:   DefaultRefreshWindow,
		requestTimeout:  DefaultRequestTimeout,
		maxSessionAge:   DefaultMaxSessionAge,
		epoch:           1,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.refreshInterval <= 0 {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "session: refresh interval must be positive")
	}
	if m.requestTimeout <= 0 {
		m.requestTimeout = DefaultRequestTimeout
	}
	m.metrics = newMetrics(m.registerer)
	return m, nil
}

// Current returns a copy of the session.
func (m *Manager) Current() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentLocked()
}

// snapshot returns the session together with the epoch it belongs to.
func (m *Manager) snapshot() (Session, uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentLocked(), m.epoch
}

func (m *Manager) currentLocked() Session {
	s := m.session
	s.State = m.state
	return s.clone()
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) Authenticated() bool {
	return m.Current().Authenticated()
}

// Login authenticates with the backend. On failure any existing session is left as it was.
func (m *Manager) Login(ctx context.Context, credentials Credentials) (Session, error) {
	if err := credentials.Validate(); err != nil {
		m.metrics.logins.WithLabelValues(authapi.KindValidation.String()).Inc()
		return Session{}, err
	}

	m.mu.Lock()
	epoch := m.epoch
	if m.state == StateUnauthenticated {
		m.state = StateAuthenticating
	}
	m.mu.Unlock()

	fail := func(err error) (Session, error) {
		m.mu.Lock()
		if m.epoch == epoch && m.state == StateAuthenticating {
			m.state = StateUnauthenticated
		}
		m.mu.Unlock()
		m.metrics.logins.WithLabelValues(authapi.KindOf(err).String()).Inc()
		m.logger.Info().Err(err).Str("kind", authapi.KindOf(err).String()).Msg("login failed")
		return Session{}, err
	}

	resp, err := m.api.Login(ctx, authapi.LoginRequest{Email: credentials.Email, Password: credentials.Password})
	if err != nil {
		return fail(err)
	}
	if resp.User == nil {
		return fail(&authapi.Error{Kind: authapi.KindMalformedResponse, Message: "login response has no user"})
	}

	expiresAt, err := m.accessTokenExpiry(ctx, resp.AccessToken, resp.ExpiresAt(m.clock.Now()))
	if err != nil {
		return fail(err)
	}

	now := m.clock.Now()
	m.storeMu.Lock()
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		m.storeMu.Unlock()
		m.metrics.logins.WithLabelValues(outcomeStale).Inc()
		return Session{}, &authapi.Error{Kind: authapi.KindNotAuthenticated, Message: "session changed while logging in"}
	}
	m.epoch++
	m.state = StateAuthenticated
	m.session = Session{
		AccessToken:     resp.AccessToken,
		RefreshToken:    resp.RefreshToken,
		User:            resp.User,
		ExpiresAt:       expiresAt,
		LastRefreshedAt: now,
		AuthenticatedAt: now,
	}
	current := m.currentLocked()
	m.mu.Unlock()
	saveErr := m.store.Save(ctx, store.Tokens{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken})
	m.storeMu.Unlock()

	if saveErr != nil {
		m.logger.Error().Err(saveErr).Msg("persisting session failed, it will not survive a restart")
	}

	m.metrics.logins.WithLabelValues(outcomeSuccess).Inc()
	m.metrics.authenticated.Set(1)
	m.logger.Info().Str("user_id", resp.User.ID).Time("expires_at", expiresAt).Msg("logged in")
	return current, nil
}

// Register creates an account. It does not log the new user in.
func (m *Manager) Register(ctx context.Context, registration Registration) (users.Profile, error) {
	if err := registration.Validate(); err != nil {
		return users.Profile{}, err
	}
	profile, err := m.api.Register(ctx, authapi.RegisterRequest{
		Email:        registration.Email,
		Password:     registration.Password,
		Name:         registration.Name,
		Organization: registration.Organization,
	})
	if err != nil {
		m.logger.Info().Err(err).Msg("registration failed")
		return users.Profile{}, err
	}
	return *profile, nil
}

// Logout ends the session: best effort server-side invalidation, tokens
// cleared from memory and storage, auto refresh stopped, and a redirect to
// the login surface. The reason only selects the message shown.
func (m *Manager) Logout(ctx context.Context, reason Reason) {
	m.endSession(ctx, reason, endOptions{remote: true, clearStore: true})
}

type endOptions struct {
	remote     bool   // call POST /auth/logout
	clearStore bool   // remove the persisted pair
	epoch      uint64 // only end the session if it is still this epoch; 0 means any
}

func (m *Manager) endSession(ctx context.Context, reason Reason, opts endOptions) {
	m.mu.Lock()
	if opts.epoch != 0 && opts.epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	previous := m.session
	hadSession := previous.AccessToken != ""
	m.epoch++
	m.state = StateUnauthenticated
	m.session = Session{}
	m.mu.Unlock()

	if t := m.detachTimer(); t != nil {
		t.halt()
	}

	if opts.remote && hadSession {
		logoutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.requestTimeout)
		if err := m.api.Logout(logoutCtx, previous.AccessToken, previous.RefreshToken); err != nil {
			m.logger.Debug().Err(err).Msg("server side logout failed")
		}
		cancel()
	}

	if opts.clearStore {
		m.storeMu.Lock()
		if err := m.store.Clear(context.WithoutCancel(ctx)); err != nil {
			m.logger.Error().Err(err).Msg("clearing stored tokens failed")
		}
		m.storeMu.Unlock()
	}

	if !hadSession {
		return
	}

	m.metrics.logouts.WithLabelValues(string(reason)).Inc()
	m.metrics.authenticated.Set(0)
	m.logger.Info().Str("reason", string(reason)).Msg("logged out")

	if reason != ReasonUserInitiated {
		m.notifier.Notify(reason, reason.Message())
	}
	m.navigator.RedirectToLogin(reason)
}

// CurrentUser fetches the profile again. A rejected access token is refreshed
// once, and a rejection after that ends the session.
func (m *Manager) CurrentUser(ctx context.Context) (users.Profile, error) {
	current := m.Current()
	if !current.Authenticated() {
		return users.Profile{}, &authapi.Error{Kind: authapi.KindNotAuthenticated}
	}

	profile, err := m.api.CurrentUser(ctx, current.AccessToken)
	if authapi.KindOf(err) == authapi.KindTokenInvalid {
		refreshed, rerr := m.Refresh(ctx)
		if rerr != nil {
			return users.Profile{}, rerr
		}
		current = refreshed
		epoch := m.epochOf()
		profile, err = m.api.CurrentUser(ctx, current.AccessToken)
		if authapi.KindOf(err) == authapi.KindTokenInvalid {
			m.endSession(ctx, ReasonInvalidToken, endOptions{remote: true, clearStore: true, epoch: epoch})
		}
	}
	if err != nil {
		return users.Profile{}, err
	}

	m.setUser(current.AccessToken, profile)
	return *profile, nil
}

// setUser replaces the profile if the session still holds accessToken.
func (m *Manager) setUser(accessToken string, profile *users.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.AccessToken == accessToken && accessToken != "" {
		m.session.User = profile
	}
}

func (m *Manager) epochOf() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.epoch
}

// accessTokenExpiry returns when rawAccessToken expires. With a verifier the
// token must verify, an expired token is reported by its expiry. Without one
// the exp claim is read unverified, then fallback is used.
func (m *Manager) accessTokenExpiry(ctx context.Context, rawAccessToken string, fallback time.Time) (time.Time, error) {
	if m.verifier != nil {
		expiresAt, err := m.verifier.Verify(ctx, rawAccessToken)
		if err != nil && !errors.Is(err, errors.ErrTokenExpired) {
			return time.Time{}, &authapi.Error{Kind: authapi.KindTokenInvalid, Message: "access token failed verification", Err: err}
		}
		return expiresAt, nil
	}
	if exp, ok := unverifiedExpiry(rawAccessToken); ok {
		return exp, nil
	}
	return fallback, nil
}

// Close stops the auto refresh timer and any storage watchers. The session is kept.
func (m *Manager) Close() error {
	m.StopAutoRefresh()
	m.stopWatches()
	return nil
}

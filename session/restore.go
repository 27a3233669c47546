package session

import (
	"context"
	"time"

	"github.com/jrsteele09/as2-portal-session/authapi"
	"github.com/jrsteele09/as2-portal-session/internal/errors"
	"github.com/jrsteele09/as2-portal-session/store"
	"github.com/jrsteele09/as2-portal-session/users"
)

// RestoreSession picks up a persisted token pair at startup and validates it
// with the backend. It never notifies or redirects: any failure clears the
// stored pair and returns false.
func (m *Manager) RestoreSession(ctx context.Context) bool {
	m.mu.Lock()
	switch m.state {
	case StateAuthenticated, StateRefreshing:
		m.mu.Unlock()
		return true
	case StateAuthenticating:
		m.mu.Unlock()
		return false
	}
	epoch := m.epoch
	m.state = StateAuthenticating
	m.mu.Unlock()

	tokens, expiresAt, profile, rotated, err := m.restore(ctx)
	if err != nil {
		m.abandonRestore(ctx, epoch, err)
		return false
	}

	now := m.clock.Now()
	m.storeMu.Lock()
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		m.storeMu.Unlock()
		m.metrics.restores.WithLabelValues(outcomeStale).Inc()
		return false
	}
	m.epoch++
	m.state = StateAuthenticated
	m.session = Session{
		AccessToken:     tokens.AccessToken,
		RefreshToken:    tokens.RefreshToken,
		User:            profile,
		ExpiresAt:       expiresAt,
		LastRefreshedAt: now,
		// The original login time is not persisted, so the session lifetime restarts here.
		AuthenticatedAt: now,
	}
	m.mu.Unlock()
	var saveErr error
	if rotated {
		saveErr = m.store.Save(ctx, tokens)
	}
	m.storeMu.Unlock()

	if saveErr != nil {
		m.logger.Error().Err(saveErr).Msg("persisting restored session failed")
	}

	m.metrics.restores.WithLabelValues(outcomeSuccess).Inc()
	m.metrics.authenticated.Set(1)
	m.logger.Info().Str("user_id", profile.ID).Msg("session restored")
	return true
}

// restore loads and validates the stored pair. rotated reports whether a
// refresh replaced it on the way.
func (m *Manager) restore(ctx context.Context) (tokens store.Tokens, expiresAt time.Time, profile *users.Profile, rotated bool, err error) {
	tokens, err = m.store.Load(ctx)
	if err != nil {
		return store.Tokens{}, time.Time{}, nil, false, err
	}

	expiresAt, err = m.accessTokenExpiry(ctx, tokens.AccessToken, time.Time{})
	if err != nil {
		return store.Tokens{}, time.Time{}, nil, false, err
	}

	if !expiresAt.IsZero() && !m.clock.Now().Before(expiresAt) {
		tokens, expiresAt, err = m.refreshForRestore(ctx, tokens.RefreshToken)
		if err != nil {
			return store.Tokens{}, time.Time{}, nil, false, err
		}
		rotated = true
	}

	profile, err = m.api.CurrentUser(ctx, tokens.AccessToken)
	if authapi.KindOf(err) == authapi.KindTokenInvalid && !rotated {
		tokens, expiresAt, err = m.refreshForRestore(ctx, tokens.RefreshToken)
		if err != nil {
			return store.Tokens{}, time.Time{}, nil, false, err
		}
		rotated = true
		profile, err = m.api.CurrentUser(ctx, tokens.AccessToken)
	}
	if err != nil {
		return store.Tokens{}, time.Time{}, nil, false, err
	}
	return tokens, expiresAt, profile, rotated, nil
}

func (m *Manager) refreshForRestore(ctx context.Context, refreshToken string) (store.Tokens, time.Time, error) {
	resp, err := m.api.Refresh(ctx, refreshToken)
	if err != nil {
		return store.Tokens{}, time.Time{}, err
	}
	expiresAt, err := m.accessTokenExpiry(ctx, resp.AccessToken, resp.ExpiresAt(m.clock.Now()))
	if err != nil {
		return store.Tokens{}, time.Time{}, err
	}
	return store.Tokens{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}, expiresAt, nil
}

// abandonRestore reverts to unauthenticated and clears storage, unless another
// operation started a session meanwhile.
func (m *Manager) abandonRestore(ctx context.Context, epoch uint64, cause error) {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()

	m.mu.Lock()
	current := m.epoch == epoch
	if current && m.state == StateAuthenticating {
		m.state = StateUnauthenticated
	}
	m.mu.Unlock()

	if errors.Is(cause, store.ErrNoTokens) {
		m.metrics.restores.WithLabelValues("none").Inc()
		return
	}
	m.metrics.restores.WithLabelValues(outcomeFailure).Inc()
	m.logger.Debug().Err(cause).Msg("stored session could not be restored")

	if current {
		if err := m.store.Clear(context.WithoutCancel(ctx)); err != nil {
			m.logger.Error().Err(err).Msg("clearing stored tokens failed")
		}
	}
}

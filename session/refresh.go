package session

import (
	"context"
	"time"

	"github.com/jrsteele09/as2-portal-session/authapi"
	"github.com/jrsteele09/as2-portal-session/internal/errors"
	"github.com/jrsteele09/as2-portal-session/store"
)

const refreshFlightKey = "refresh"

// Refresh exchanges the refresh token for a new pair. Concurrent callers share
// one request and observe the same result. The shared request is not cancelled
// by any single caller; ctx only bounds how long this caller waits.
//
// A transient failure (network, rate limit, server error) leaves the session as
// it was and the next tick tries again. Any other failure ends the session with
// ReasonRefreshFailed.
func (m *Manager) Refresh(ctx context.Context) (Session, error) {
	ch := m.flights.DoChan(refreshFlightKey, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.requestTimeout)
		defer cancel()
		return m.refresh(flightCtx)
	})

	select {
	case <-ctx.Done():
		return Session{}, &authapi.Error{Kind: authapi.KindNetwork, Message: "gave up waiting for refresh", Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return Session{}, res.Err
		}
		return res.Val.(Session).clone(), nil
	}
}

func (m *Manager) refresh(ctx context.Context) (Session, error) {
	m.mu.Lock()
	if m.state != StateAuthenticated {
		m.mu.Unlock()
		m.metrics.refreshes.WithLabelValues(outcomeSkipped).Inc()
		return Session{}, &authapi.Error{Kind: authapi.KindNotAuthenticated, Message: "no session to refresh"}
	}
	epoch := m.epoch
	refreshToken := m.session.RefreshToken
	m.state = StateRefreshing
	m.mu.Unlock()

	restore := func() {
		m.mu.Lock()
		if m.epoch == epoch && m.state == StateRefreshing {
			m.state = StateAuthenticated
		}
		m.mu.Unlock()
	}

	// Another manager sharing the store may have rotated the pair already.
	stored, err := m.store.Load(ctx)
	switch {
	case errors.Is(err, store.ErrNoTokens):
		m.logger.Info().Msg("stored session was cleared elsewhere")
		m.endSession(ctx, ReasonSessionExpired, endOptions{remote: false, clearStore: false, epoch: epoch})
		return Session{}, &authapi.Error{Kind: authapi.KindNotAuthenticated, Message: "session ended elsewhere"}
	case err != nil:
		m.logger.Warn().Err(err).Msg("reading stored tokens failed, refreshing with the in-memory pair")
	case stored.RefreshToken != refreshToken:
		expiresAt, verr := m.accessTokenExpiry(ctx, stored.AccessToken, time.Time{})
		if verr == nil && !expiresAt.IsZero() && expiresAt.Sub(m.clock.Now()) > m.refreshWindow {
			if m.adopt(epoch, stored, expiresAt, StateRefreshing) {
				m.metrics.refreshes.WithLabelValues(outcomeAdopted).Inc()
				m.logger.Debug().Msg("adopted token pair rotated by another session")
				m.fetchProfile(ctx, stored.AccessToken)
				return m.Current(), nil
			}
		}
		refreshToken = stored.RefreshToken
	}

	start := time.Now()
	resp, err := m.api.Refresh(ctx, refreshToken)
	m.metrics.refreshDuration.Observe(time.Since(start).Seconds())

	var expiresAt time.Time
	reason := ReasonRefreshFailed
	if err == nil {
		expiresAt, err = m.accessTokenExpiry(ctx, resp.AccessToken, resp.ExpiresAt(m.clock.Now()))
		if err != nil {
			reason = ReasonInvalidToken
		}
	}

	if err != nil {
		if authapi.IsTransient(err) {
			restore()
			m.metrics.refreshes.WithLabelValues(outcomeTransient).Inc()
			m.logger.Warn().Err(err).Msg("token refresh failed, retrying at the next tick")
			return Session{}, err
		}
		m.metrics.refreshes.WithLabelValues(outcomeFailure).Inc()
		m.logger.Warn().Err(err).Msg("token refresh rejected")
		m.endSession(ctx, reason, endOptions{remote: true, clearStore: true, epoch: epoch})
		return Session{}, err
	}

	pair := store.Tokens{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}
	now := m.clock.Now()

	m.storeMu.Lock()
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		m.storeMu.Unlock()
		m.metrics.refreshes.WithLabelValues(outcomeStale).Inc()
		return Session{}, &authapi.Error{Kind: authapi.KindNotAuthenticated, Message: "session ended during refresh"}
	}
	m.session.AccessToken = resp.AccessToken
	m.session.RefreshToken = resp.RefreshToken
	m.session.ExpiresAt = expiresAt
	m.session.LastRefreshedAt = now
	if resp.User != nil {
		m.session.User = resp.User
	}
	m.state = StateAuthenticated
	m.mu.Unlock()
	saveErr := m.store.Save(ctx, pair)
	m.storeMu.Unlock()

	if saveErr != nil {
		m.logger.Error().Err(saveErr).Msg("persisting refreshed tokens failed")
	}

	if resp.User == nil {
		m.fetchProfile(ctx, resp.AccessToken)
	}

	m.metrics.refreshes.WithLabelValues(outcomeSuccess).Inc()
	m.logger.Debug().Time("expires_at", expiresAt).Msg("tokens refreshed")
	return m.Current(), nil
}

// adopt replaces the in-memory pair with one written by another session
// sharing the store. It returns false when the session moved on meanwhile.
func (m *Manager) adopt(epoch uint64, tokens store.Tokens, expiresAt time.Time, from State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch || m.state != from {
		return false
	}
	m.session.AccessToken = tokens.AccessToken
	m.session.RefreshToken = tokens.RefreshToken
	m.session.ExpiresAt = expiresAt
	m.session.LastRefreshedAt = m.clock.Now()
	m.state = StateAuthenticated
	return true
}

// fetchProfile replaces the profile snapshot. Failures keep the previous snapshot.
func (m *Manager) fetchProfile(ctx context.Context, accessToken string) {
	profile, err := m.api.CurrentUser(ctx, accessToken)
	if err != nil {
		m.logger.Warn().Err(err).Msg("fetching profile after refresh failed, keeping the previous one")
		return
	}
	m.setUser(accessToken, profile)
}

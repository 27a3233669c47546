package session

import (
	"context"

	"github.com/jrsteele09/as2-portal-session/internal/errors"
	"github.com/jrsteele09/as2-portal-session/store"
)

type storageWatch struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// WatchStorage follows changes other sessions make to a shared store. A pair
// rotated elsewhere is adopted. A pair cleared elsewhere ends this session with
// ReasonSessionExpired, without calling the backend again. Stores that cannot
// publish changes return errors.ErrUnsupported.
func (m *Manager) WatchStorage(ctx context.Context) error {
	watcher, ok := m.store.(store.Watcher)
	if !ok {
		return errors.Wrapf(errors.ErrUnsupported, "store %T cannot be watched", m.store)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	events, err := watcher.Watch(watchCtx)
	if err != nil {
		cancel()
		return err
	}

	w := &storageWatch{cancel: cancel, done: make(chan struct{})}
	m.watchMu.Lock()
	m.watches = append(m.watches, w)
	m.watchMu.Unlock()

	go func() {
		defer close(w.done)
		for ev := range events {
			m.logger.Debug().Str("event", string(ev.Type)).Msg("stored session changed")
			m.syncFromStore(watchCtx)
		}
	}()
	return nil
}

func (m *Manager) stopWatches() {
	m.watchMu.Lock()
	watches := m.watches
	m.watches = nil
	m.watchMu.Unlock()

	for _, w := range watches {
		w.cancel()
		<-w.done
	}
}

// syncFromStore compares the stored pair with the session. Only a resting
// authenticated session reacts; a refresh in flight checks the store itself.
func (m *Manager) syncFromStore(ctx context.Context) {
	m.mu.RLock()
	state := m.state
	epoch := m.epoch
	current := m.session
	m.mu.RUnlock()

	if state != StateAuthenticated {
		return
	}

	tokens, err := m.store.Load(ctx)
	switch {
	case errors.Is(err, store.ErrNoTokens):
		m.endSession(ctx, ReasonSessionExpired, endOptions{remote: false, clearStore: false, epoch: epoch})
	case err != nil:
		m.logger.Warn().Err(err).Msg("reading changed session failed")
	case tokens.AccessToken != current.AccessToken || tokens.RefreshToken != current.RefreshToken:
		expiresAt, err := m.accessTokenExpiry(ctx, tokens.AccessToken, current.ExpiresAt)
		if err != nil {
			m.logger.Warn().Err(err).Msg("ignoring stored token pair that failed verification")
			return
		}
		if m.adopt(epoch, tokens, expiresAt, StateAuthenticated) {
			m.metrics.refreshes.WithLabelValues(outcomeAdopted).Inc()
			m.fetchProfile(ctx, tokens.AccessToken)
		}
	}
}

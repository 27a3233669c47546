package session

import (
	"context"
	"sync"

	"github.com/jrsteele09/as2-portal-session/internal/clock"
)

// autoRefresh is the handle of one running timer goroutine.
type autoRefresh struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (t *autoRefresh) halt() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// StartAutoRefresh starts the recurring refresh check. Calling it while the
// timer runs does nothing. The timer stops on logout, StopAutoRefresh or Close.
func (m *Manager) StartAutoRefresh() {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	if m.timer != nil {
		return
	}

	t := &autoRefresh{stop: make(chan struct{}), done: make(chan struct{})}
	ticker := m.clock.NewTicker(m.refreshInterval)
	m.timer = t
	go m.runAutoRefresh(t, ticker)

	m.logger.Debug().Dur("interval", m.refreshInterval).Msg("auto refresh started")
}

// StopAutoRefresh stops the timer and waits for its goroutine to exit.
func (m *Manager) StopAutoRefresh() {
	t := m.detachTimer()
	if t == nil {
		return
	}
	t.halt()
	<-t.done
	m.logger.Debug().Msg("auto refresh stopped")
}

// AutoRefreshRunning reports whether the timer is active.
func (m *Manager) AutoRefreshRunning() bool {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	return m.timer != nil
}

func (m *Manager) detachTimer() *autoRefresh {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	t := m.timer
	m.timer = nil
	return t
}

func (m *Manager) runAutoRefresh(t *autoRefresh, ticker *clock.Ticker) {
	defer close(t.done)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			select {
			case <-t.stop:
				return
			default:
			}
			m.tick()
		}
	}
}

// tick refreshes the pair when the access token is inside the refresh window.
// A token with unknown expiry is refreshed on every tick.
func (m *Manager) tick() {
	current, epoch := m.snapshot()
	if current.State != StateAuthenticated {
		m.logger.Debug().Str("state", current.State.String()).Msg("refresh tick skipped")
		return
	}

	now := m.clock.Now()
	if m.maxSessionAge > 0 && now.Sub(current.AuthenticatedAt) >= m.maxSessionAge {
		m.logger.Info().Dur("max_age", m.maxSessionAge).Msg("session reached its maximum age")
		m.endSession(context.Background(), ReasonSessionExpired, endOptions{remote: true, clearStore: true, epoch: epoch})
		return
	}

	if !current.ExpiresAt.IsZero() && current.ExpiresAt.Sub(now) > m.refreshWindow {
		m.metrics.refreshes.WithLabelValues(outcomeSkipped).Inc()
		m.logger.Debug().Time("expires_at", current.ExpiresAt).Msg("access token still fresh")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.requestTimeout)
	defer cancel()
	if _, err := m.Refresh(ctx); err != nil {
		m.logger.Debug().Err(err).Msg("scheduled refresh failed")
	}
}

package session

import (
	"time"

	"github.com/jrsteele09/as2-portal-session/internal/clock"
	"github.com/jrsteele09/as2-portal-session/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	DefaultRefreshInterval = 10 * time.Minute
	DefaultRefreshWindow   = 11 * time.Minute
	DefaultRequestTimeout  = 15 * time.Second
	DefaultMaxSessionAge   = 12 * time.Hour
)

type Option func(*Manager)

func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		m.notifier = n
	}
}

func WithNavigator(n Navigator) Option {
	return func(m *Manager) {
		m.navigator = n
	}
}

// WithMetrics registers the manager's collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(m *Manager) {
		m.registerer = reg
	}
}

func WithRefreshInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.refreshInterval = d
	}
}

// WithRefreshWindow sets how close to expiry the access token must be before a tick refreshes it.
func WithRefreshWindow(d time.Duration) Option {
	return func(m *Manager) {
		m.refreshWindow = d
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.requestTimeout = d
	}
}

// WithMaxSessionAge bounds how long a session lives after login. Zero disables the limit.
func WithMaxSessionAge(d time.Duration) Option {
	return func(m *Manager) {
		m.maxSessionAge = d
	}
}

// WithVerifier checks every access token received before it reaches the session.
func WithVerifier(v Verifier) Option {
	return func(m *Manager) {
		m.verifier = v
	}
}

// WithConfig applies the session settings from cfg.
func WithConfig(cfg config.SessionConfig) Option {
	return func(m *Manager) {
		m.refreshInterval = cfg.GetRefreshInterval()
		m.refreshWindow = cfg.GetRefreshWindow()
		m.requestTimeout = cfg.GetRequestTimeout()
		m.maxSessionAge = cfg.GetMaxSessionAge()
	}
}

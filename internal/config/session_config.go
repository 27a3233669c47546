package config

import "time"

// SessionConfig controls the client side session manager.
type SessionConfig interface {
	GetRefreshInterval() time.Duration
	GetRefreshWindow() time.Duration
	GetRequestTimeout() time.Duration
	GetMaxSessionAge() time.Duration
	GetVerifyTokens() bool
}

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetRefreshInterval() time.Duration {
	return GetDurationEnv("REFRESH_INTERVAL", 10*time.Minute)
}

// GetRefreshWindow is how close to expiry an access token has to be before a tick refreshes it.
// It is longer than the interval so a token never lapses between two ticks.
func (Session) GetRefreshWindow() time.Duration {
	return GetDurationEnv("REFRESH_WINDOW", 11*time.Minute)
}

func (Session) GetRequestTimeout() time.Duration {
	return GetDurationEnv("REQUEST_TIMEOUT", 15*time.Second)
}

func (Session) GetMaxSessionAge() time.Duration {
	return GetDurationEnv("SESSION_MAX_AGE", 12*time.Hour)
}

func (Session) GetVerifyTokens() bool {
	return GetBoolEnv("VERIFY_TOKENS", false)
}

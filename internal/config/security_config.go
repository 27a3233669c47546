package config

import "time"

type SecurityConfig interface {
	GetMaxFailedLogins() int
	GetLockoutDuration() time.Duration
	GetEnableRateLimiting() bool
	GetLoginRateLimit() float64
	GetLoginRateBurst() int
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetMaxFailedLogins() int {
	return GetIntEnv("MAX_FAILED_LOGINS", 5)
}

func (Security) GetLockoutDuration() time.Duration {
	return GetDurationEnv("LOCKOUT_DURATION", 15*time.Minute)
}

func (s Security) GetEnableRateLimiting() bool {
	return s.GetLoginRateLimit() > 0
}

// GetLoginRateLimit is the sustained number of login attempts per second allowed per client address.
func (Security) GetLoginRateLimit() float64 {
	return GetFloatEnv("LOGIN_RATE_LIMIT", 1)
}

func (Security) GetLoginRateBurst() int {
	return GetIntEnv("LOGIN_RATE_BURST", 10)
}

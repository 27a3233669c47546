package config

import "time"

// TokenConfig controls the tokens issued by the portal auth backend.
type TokenConfig interface {
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetRefreshTokenLength() int
	GetAudience() string
	GetSigningKeyID() string
	GetSigningKeyPEM() string
	GetRevocationStore() string
}

type Token struct{}

var _ TokenConfig = Token{}

func (Token) GetAccessTokenExpiry() time.Duration {
	return GetDurationEnv("ACCESS_TOKEN_EXPIRY", 15*time.Minute)
}

func (Token) GetRefreshTokenExpiry() time.Duration {
	return GetDurationEnv("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour)
}

func (Token) GetRefreshTokenLength() int {
	return 32 // 32 bytes = 256 bits
}

func (Token) GetAudience() string {
	return GetEnv("TOKEN_AUDIENCE", "as2-portal")
}

func (Token) GetSigningKeyID() string {
	return GetEnv("SIGNING_KEY_ID", "portal-signing-key")
}

// GetSigningKeyPEM returns a PKCS1 RSA private key. Empty means a key is generated at startup.
func (Token) GetSigningKeyPEM() string {
	return GetEnv("SIGNING_KEY_PEM", "")
}

// GetRevocationStore is "memory" or "redis". Replicated backends need redis so
// a logout on one replica is seen by the others.
func (Token) GetRevocationStore() string {
	return GetEnv("REVOCATION_STORE", "memory")
}

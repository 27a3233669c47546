package token

import (
	"context"
	"time"

	"github.com/jrsteele09/as2-portal-session/internal/config"
	"github.com/jrsteele09/as2-portal-session/token/jwt"
	"github.com/jrsteele09/as2-portal-session/token/keys"
	"github.com/jrsteele09/as2-portal-session/token/refresh"
	"github.com/jrsteele09/as2-portal-session/users"
	"github.com/pkg/errors"
)

// Pair is what the backend hands the client after login or refresh.
type Pair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int // seconds
	ExpiresAt    time.Time
}

type Manager struct {
	signer       keys.Signer
	creator      *jwt.Creator
	inspector    *jwt.Inspector
	refresh      *refresh.Manager
	revokedCache RevokedTokenCache
}

type ManagerOption func(*Manager)

func WithRevokedTokenCache(cache RevokedTokenCache) ManagerOption {
	return func(m *Manager) {
		m.revokedCache = cache
	}
}

func New(refreshRepo refresh.Repo, signer keys.Signer, cfg config.TokenConfig, options ...ManagerOption) *Manager {
	m := &Manager{
		signer:       signer,
		creator:      jwt.NewCreator(cfg),
		refresh:      refresh.NewManager(refreshRepo, cfg),
		revokedCache: NewInMemoryRevokedTokenCache(),
	}

	for _, opt := range options {
		opt(m)
	}

	m.inspector = jwt.NewInspector(signer, m.revokedCache)
	return m
}

// IssuePair creates a new access token and rotates the user's refresh token.
func (c *Manager) IssuePair(user *users.User, issuer string) (*Pair, error) {
	accessToken, expiresAt, err := c.creator.CreateAccessToken(user, issuer, c.signer)
	if err != nil {
		return nil, errors.Wrap(err, "Manager.IssuePair CreateAccessToken")
	}

	refreshToken, err := c.refresh.Create(user.ID)
	if err != nil {
		return nil, errors.Wrap(err, "Manager.IssuePair CreateRefreshToken")
	}

	return &Pair{
		AccessToken:  *accessToken,
		RefreshToken: *refreshToken,
		ExpiresIn:    int(expiresAt.Sub(jwt.NowTimeFunc()).Round(time.Second).Seconds()),
		ExpiresAt:    expiresAt,
	}, nil
}

// ConsumeRefreshToken validates a refresh token and deletes it so it cannot be replayed.
func (c *Manager) ConsumeRefreshToken(refreshToken string) (*refresh.StoredRefreshToken, error) {
	return c.refresh.Consume(refreshToken)
}

func (c *Manager) InvalidateRefreshToken(refreshToken string) {
	_ = c.refresh.Delete(refreshToken)
}

func (c *Manager) Introspect(rawToken string) (*jwt.TokenIntrospection, error) {
	return c.inspector.Introspect(rawToken)
}

// RevokeAccessToken revokes an access token by its JTI until it would have expired anyway
func (c *Manager) RevokeAccessToken(rawToken string) error {
	jti, exp, err := c.inspector.ParseAndExtractJTI(rawToken)
	if err != nil {
		return errors.Wrap(err, "Manager.RevokeAccessToken")
	}
	return c.revokedCache.Add(jti, exp)
}

// JWKS returns the JSON Web Key Set for public key distribution
func (c *Manager) JWKS() (*keys.JWKS, error) {
	return c.signer.GetJWKS()
}

// CleanupRevokedTokens removes expired tokens from the revocation cache
func (c *Manager) CleanupRevokedTokens() {
	if c.revokedCache != nil {
		c.revokedCache.Cleanup()
	}
}

// RunRevocationCleanup calls CleanupRevokedTokens every interval until ctx is done.
func (c *Manager) RunRevocationCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CleanupRevokedTokens()
		}
	}
}

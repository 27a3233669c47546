package jwt

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/as2-portal-session/internal/config"
	"github.com/jrsteele09/as2-portal-session/token/keys"
	"github.com/jrsteele09/as2-portal-session/users"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Creator handles access token creation
type Creator struct {
	config config.TokenConfig
}

func NewCreator(cfg config.TokenConfig) *Creator {
	return &Creator{
		config: cfg,
	}
}

// CreateAccessToken creates a portal access token for user. Roles and permissions
// travel in the token so downstream portal APIs can authorize without a lookup.
func (c *Creator) CreateAccessToken(user *users.User, issuer string, signer keys.Signer) (*string, time.Time, error) {
	now := NowTimeFunc()
	expiresAt := now.Add(c.config.GetAccessTokenExpiry())
	profile := user.Profile()

	claims := jwtlib.MapClaims{
		"iss":         issuer,                   // The issuer of the token
		"sub":         user.ID,                  // The portal user
		"aud":         c.config.GetAudience(),   // The portal API audience
		"iat":         now.Unix(),               // Issued At
		"exp":         expiresAt.Unix(),         // Expiry
		"jti":         uuid.New().String(),      // Unique token ID for revocation
		"email":       user.Email,
		"role":        profile.Role,
		"permissions": profile.Permissions,
		"org":         profile.Organization,
	}

	signedToken, err := signer.Sign(claims)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return &signedToken, expiresAt, nil
}

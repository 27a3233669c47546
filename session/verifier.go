package session

import (
	"context"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/as2-portal-session/internal/clock"
	"github.com/jrsteele09/as2-portal-session/internal/errors"
)

// Verifier checks an access token and returns its expiry. An expired but
// otherwise valid token returns its expiry together with errors.ErrTokenExpired.
type Verifier interface {
	Verify(ctx context.Context, rawAccessToken string) (time.Time, error)
}

// OIDCVerifier verifies access tokens against the signing keys the portal
// publishes through OpenID discovery.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

var _ Verifier = (*OIDCVerifier)(nil)

// NewOIDCVerifier discovers issuerURL. The portal issues access tokens for its
// own API audience, so the client id check is skipped.
func NewOIDCVerifier(ctx context.Context, issuerURL string, clk clock.Clock) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, errors.Wrapf(err, "discovering %s", issuerURL)
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{
			SkipClientIDCheck: true,
			Now:               clk.Now,
		}),
	}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawAccessToken string) (time.Time, error) {
	token, err := v.verifier.Verify(ctx, rawAccessToken)
	if err != nil {
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) {
			return expired.Expiry, errors.ErrTokenExpired
		}
		return time.Time{}, errors.Wrapf(errors.ErrInvalidToken, "%v", err)
	}
	return token.Expiry, nil
}

// unverifiedExpiry reads the exp claim without checking the signature. The
// backend remains the authority on validity, this only schedules refreshes.
func unverifiedExpiry(rawAccessToken string) (time.Time, bool) {
	claims := jwtlib.MapClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(rawAccessToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

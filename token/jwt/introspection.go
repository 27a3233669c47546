package jwt

import (
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/as2-portal-session/internal/errors"
	"github.com/jrsteele09/as2-portal-session/internal/utils"
	"github.com/jrsteele09/as2-portal-session/token/keys"
)

// TokenIntrospection represents the metadata of a portal access token.
// When Active is false the other fields may not be populated.
type TokenIntrospection struct {
	Active      bool      `json:"active"`
	Sub         string    `json:"sub,omitempty"`
	Iss         string    `json:"iss,omitempty"`
	Aud         []string  `json:"aud,omitempty"`
	Jti         string    `json:"jti,omitempty"`
	Exp         time.Time `json:"exp,omitempty"`
	Iat         time.Time `json:"iat,omitempty"`
	Email       string    `json:"email,omitempty"`
	Role        string    `json:"role,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
	Org         string    `json:"org,omitempty"`
}

// RevokedChecker is an interface for checking if a token has been revoked
type RevokedChecker interface {
	IsRevoked(jti string) bool
}

// Inspector handles access token introspection and validation
type Inspector struct {
	signer         keys.Signer
	revokedChecker RevokedChecker
}

func NewInspector(signer keys.Signer, revokedChecker RevokedChecker) *Inspector {
	return &Inspector{
		signer:         signer,
		revokedChecker: revokedChecker,
	}
}

// Introspect verifies rawToken. Expired tokens yield ErrTokenExpired, revoked ones
// ErrTokenRevoked, anything else that fails verification ErrInvalidToken.
func (i *Inspector) Introspect(rawToken string) (*TokenIntrospection, error) {
	if strings.TrimSpace(rawToken) == "" {
		return &TokenIntrospection{Active: false}, errors.ErrInvalidToken
	}

	claims, err := i.parse(rawToken)
	if err != nil {
		return &TokenIntrospection{Active: false}, err
	}

	ti := &TokenIntrospection{Active: true}
	ti.Sub, _ = claims.GetSubject()
	ti.Iss, _ = claims.GetIssuer()
	ti.Aud, _ = claims.GetAudience()
	if exp, _ := claims.GetExpirationTime(); exp != nil {
		ti.Exp = exp.Time
	}
	if iat, _ := claims.GetIssuedAt(); iat != nil {
		ti.Iat = iat.Time
	}
	ti.Jti, _ = claims["jti"].(string)
	ti.Email, _ = claims["email"].(string)
	ti.Role, _ = claims["role"].(string)
	ti.Org, _ = claims["org"].(string)
	if perms, ok := claims["permissions"].([]any); ok {
		ti.Permissions = utils.ToStringSlice(perms)
	}

	if ti.Sub == "" {
		return &TokenIntrospection{Active: false}, errors.Wrapf(errors.ErrInvalidToken, "token missing sub claim")
	}

	if ti.Jti != "" && i.revokedChecker != nil && i.revokedChecker.IsRevoked(ti.Jti) {
		return &TokenIntrospection{Active: false}, errors.ErrTokenRevoked
	}

	return ti, nil
}

// ParseAndExtractJTI verifies rawToken and returns its jti and expiry for revocation.
func (i *Inspector) ParseAndExtractJTI(rawToken string) (jti string, exp time.Time, err error) {
	claims, err := i.parse(rawToken)
	if err != nil {
		return "", time.Time{}, err
	}

	jtiClaim, ok := claims["jti"].(string)
	if !ok || jtiClaim == "" {
		return "", time.Time{}, errors.Wrapf(errors.ErrInvalidToken, "token missing jti claim")
	}

	expClaim, err := claims.GetExpirationTime()
	if err != nil || expClaim == nil {
		return "", time.Time{}, errors.Wrapf(errors.ErrInvalidToken, "token missing exp claim")
	}

	return jtiClaim, expClaim.Time, nil
}

func (i *Inspector) parse(rawToken string) (jwtlib.MapClaims, error) {
	token, err := jwtlib.ParseWithClaims(rawToken, jwtlib.MapClaims{}, i.signer.GetVerificationKey,
		jwtlib.WithTimeFunc(NowTimeFunc),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithValidMethods([]string{i.signer.GetSigningMethod().Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return nil, errors.ErrTokenExpired
		}
		return nil, errors.Wrapf(errors.ErrInvalidToken, "%v", err)
	}
	if !token.Valid {
		return nil, errors.ErrInvalidToken
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.Wrapf(errors.ErrInvalidToken, "error extracting claims from token")
	}
	return claims, nil
}

package authapi

import (
	"errors"
	"time"

	"github.com/jrsteele09/as2-portal-session/users"
)

// Endpoint paths relative to the portal API base URL.
const (
	PathLogin    = "/auth/login"
	PathRegister = "/auth/register"
	PathRefresh  = "/auth/refresh"
	PathMe       = "/auth/me"
	PathLogout   = "/auth/logout"
)

const TokenTypeBearer = "Bearer"

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	Organization string `json:"organization,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// TokenResponse is returned by login (with User) and refresh (User optional).
type TokenResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	TokenType    string         `json:"token_type,omitempty"`
	ExpiresIn    int            `json:"expires_in,omitempty"` // seconds
	User         *users.Profile `json:"user,omitempty"`
}

// Validate enforces the token pair invariant: both tokens or nothing.
func (t *TokenResponse) Validate() error {
	if t.AccessToken == "" || t.RefreshToken == "" {
		return errors.New("response must carry both access_token and refresh_token")
	}
	if t.ExpiresIn < 0 {
		return errors.New("expires_in must not be negative")
	}
	if t.User != nil {
		return t.User.Validate()
	}
	return nil
}

// ExpiresAt converts expires_in into an absolute time, zero when unknown.
func (t *TokenResponse) ExpiresAt(now time.Time) time.Time {
	if t.ExpiresIn <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(t.ExpiresIn) * time.Second)
}

type UserResponse struct {
	User users.Profile `json:"user"`
}

func (u *UserResponse) Validate() error {
	return u.User.Validate()
}

// ErrorResponse is the OAuth style error body every endpoint uses.
type ErrorResponse struct {
	Error            string            `json:"error"`
	ErrorDescription string            `json:"error_description,omitempty"`
	Fields           map[string]string `json:"fields,omitempty"`
}

// Error codes carried in ErrorResponse.Error.
const (
	CodeInvalidRequest     = "invalid_request"
	CodeInvalidCredentials = "invalid_credentials"
	CodeAccountLocked      = "account_locked"
	CodeInvalidToken       = "invalid_token"
	CodeTokenExpired       = "token_expired"
	CodeValidationFailed   = "validation_failed"
	CodeConflict           = "conflict"
	CodeRateLimited        = "rate_limited"
	CodeNotFound           = "not_found"
	CodeServerError        = "server_error"
)

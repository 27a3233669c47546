package auth

import (
	"strings"

	"github.com/jrsteele09/as2-portal-session/internal/errors"
	"github.com/jrsteele09/as2-portal-session/users"
)

const (
	maxNameLength         = 120
	maxOrganizationLength = 200
	minRefreshTokenLength = 16
)

// Validator holds the request checks the portal applies before touching any repository.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// ValidateRegistration checks every field and reports all problems at once.
func (v *Validator) ValidateRegistration(input Registration) error {
	fields := map[string]string{}

	if err := users.ValidateEmail(strings.TrimSpace(input.Email)); err != nil {
		fields["email"] = err.Error()
	}
	if err := users.ValidatePasswordStrength(input.Password); err != nil {
		fields["password"] = err.Error()
	}

	name := strings.TrimSpace(input.Name)
	switch {
	case name == "":
		fields["name"] = "name is required"
	case len(name) > maxNameLength:
		fields["name"] = "name is too long"
	}

	if len(strings.TrimSpace(input.Organization)) > maxOrganizationLength {
		fields["organization"] = "organization is too long"
	}

	return newValidationError(fields)
}

// ValidateUserCredentials validates login credentials
func (v *Validator) ValidateUserCredentials(email, password string) error {
	fields := map[string]string{}
	if strings.TrimSpace(email) == "" {
		fields["email"] = "email is required"
	}
	if password == "" {
		fields["password"] = "password is required"
	}
	return newValidationError(fields)
}

// ValidateAccessToken validates access token format and presence
func (v *Validator) ValidateAccessToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return newValidationError(map[string]string{"access_token": "access token is required"})
	}

	// Basic format check - should be a JWT (3 parts separated by dots)
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return newValidationError(map[string]string{"access_token": "access token must be a JWT"})
	}
	for _, part := range parts {
		if len(part) == 0 {
			return newValidationError(map[string]string{"access_token": "access token must be a JWT"})
		}
	}
	return nil
}

// ValidateRefreshToken validates refresh token presence and format. A malformed
// token is reported as an invalid refresh token, not a validation failure.
func (v *Validator) ValidateRefreshToken(token string) error {
	if token == "" {
		return newValidationError(map[string]string{"refresh_token": "refresh_token is required"})
	}
	if len(token) < minRefreshTokenLength {
		return errors.Wrapf(errors.ErrInvalidRefreshToken, "refresh_token format")
	}
	return nil
}

// Package auth implements the portal's account operations behind /auth/*:
// password login with lockout, registration, refresh token rotation,
// profile lookup and logout.
package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/as2-portal-session/internal/config"
	internalerrors "github.com/jrsteele09/as2-portal-session/internal/errors"
	"github.com/jrsteele09/as2-portal-session/token"
	"github.com/jrsteele09/as2-portal-session/token/keys"
	"github.com/jrsteele09/as2-portal-session/users"
	"github.com/pkg/errors"
)

// Repos holds all repository dependencies for the Service
type Repos struct {
	Users users.UserRepo
}

// Registration is a self-service sign up. New accounts get the viewer role.
type Registration struct {
	Email        string
	Password     string
	Name         string
	Organization string
}

// Result is the outcome of a login or refresh.
type Result struct {
	Pair *token.Pair
	User users.Profile
}

// Service provides the portal's account and token operations.
type Service struct {
	repos     Repos
	tokens    *token.Manager
	security  config.SecurityConfig
	validator *Validator
	nowTime   func() time.Time

	// loginLock serialises the read-modify-write of failed login counters.
	loginLock sync.Mutex
}

type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

func NewService(repos Repos, tokens *token.Manager, security config.SecurityConfig, options ...ServiceOption) (*Service, error) {
	if repos.Users == nil {
		return nil, errors.New("[NewService] Users repo is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewService] token manager is required")
	}
	if security == nil {
		return nil, errors.New("[NewService] security config is required")
	}

	s := &Service{
		repos:     repos,
		tokens:    tokens,
		security:  security,
		validator: NewValidator(),
		nowTime:   time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Login checks the password and issues a token pair. After MaxFailedLogins
// consecutive failures the account is locked for LockoutDuration; the attempt
// that trips the lock already reports ErrAccountLocked.
func (s *Service) Login(ctx context.Context, email, password, issuer string) (*Result, error) {
	if err := s.validator.ValidateUserCredentials(email, password); err != nil {
		return nil, err
	}

	s.loginLock.Lock()
	defer s.loginLock.Unlock()

	user, err := s.repos.Users.GetByEmail(email)
	if err != nil {
		if internalerrors.Is(err, internalerrors.ErrUserNotFound) {
			return nil, internalerrors.ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "[Service.Login] GetByEmail")
	}

	now := s.nowTime()
	if user.IsLocked(now) {
		return nil, internalerrors.ErrAccountLocked
	}

	if !users.CheckPasswordHash(password, user.PasswordHash) {
		return nil, s.recordFailedLogin(user, now)
	}

	if user.Blocked {
		return nil, internalerrors.ErrUserBlocked
	}

	user.FailedLogins = 0
	user.LockedUntil = time.Time{}
	user.LastLogin = now
	if err := s.repos.Users.Upsert(user); err != nil {
		return nil, errors.Wrap(err, "[Service.Login] Upsert")
	}

	pair, err := s.tokens.IssuePair(user, issuer)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Login] IssuePair")
	}
	return &Result{Pair: pair, User: user.Profile()}, nil
}

func (s *Service) recordFailedLogin(user *users.User, now time.Time) error {
	user.FailedLogins++
	result := internalerrors.ErrInvalidCredentials
	if limit := s.security.GetMaxFailedLogins(); limit > 0 && user.FailedLogins >= limit {
		user.FailedLogins = 0
		user.LockedUntil = now.Add(s.security.GetLockoutDuration())
		result = internalerrors.ErrAccountLocked
	}
	if err := s.repos.Users.Upsert(user); err != nil {
		return errors.Wrap(err, "[Service.Login] recording failed login")
	}
	return result
}

// Register creates a viewer account. It does not log the user in.
func (s *Service) Register(ctx context.Context, input Registration) (*users.Profile, error) {
	if err := s.validator.ValidateRegistration(input); err != nil {
		return nil, err
	}

	hash, err := users.HashPassword(input.Password)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Register] HashPassword")
	}

	user := &users.User{
		Email:        strings.TrimSpace(input.Email),
		Name:         strings.TrimSpace(input.Name),
		Organization: strings.TrimSpace(input.Organization),
		PasswordHash: hash,
		Role:         users.RoleViewer,
		DateJoined:   s.nowTime(),
	}
	if err := s.repos.Users.Upsert(user); err != nil {
		if internalerrors.Is(err, internalerrors.ErrEmailTaken) {
			return nil, err
		}
		return nil, errors.Wrap(err, "[Service.Register] Upsert")
	}

	profile := user.Profile()
	return &profile, nil
}

// Refresh rotates a refresh token: the presented token is consumed and a new
// pair is issued for its owner.
func (s *Service) Refresh(ctx context.Context, refreshToken, issuer string) (*Result, error) {
	if err := s.validator.ValidateRefreshToken(refreshToken); err != nil {
		return nil, err
	}

	stored, err := s.tokens.ConsumeRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.repos.Users.GetByID(stored.UserID)
	if err != nil {
		return nil, errors.Wrap(internalerrors.ErrInvalidRefreshToken, "[Service.Refresh] owner no longer exists")
	}
	if user.Blocked {
		return nil, internalerrors.ErrUserBlocked
	}

	pair, err := s.tokens.IssuePair(user, issuer)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Refresh] IssuePair")
	}
	return &Result{Pair: pair, User: user.Profile()}, nil
}

// CurrentUser returns the profile of the access token's subject. Tokens of
// deleted or blocked users are invalid.
func (s *Service) CurrentUser(ctx context.Context, accessToken string) (*users.Profile, error) {
	user, err := s.tokenUser(accessToken)
	if err != nil {
		return nil, err
	}
	profile := user.Profile()
	return &profile, nil
}

// Logout deletes the refresh token, which its holder may always give up, and
// revokes the access token until it would have expired.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if refreshToken != "" {
		s.tokens.InvalidateRefreshToken(refreshToken)
	}

	if _, err := s.tokenUser(accessToken); err != nil {
		return err
	}
	if err := s.tokens.RevokeAccessToken(accessToken); err != nil {
		return errors.Wrap(err, "[Service.Logout] RevokeAccessToken")
	}
	return nil
}

func (s *Service) tokenUser(accessToken string) (*users.User, error) {
	if err := s.validator.ValidateAccessToken(accessToken); err != nil {
		return nil, errors.Wrap(internalerrors.ErrInvalidToken, err.Error())
	}

	ti, err := s.tokens.Introspect(accessToken)
	if err != nil {
		return nil, err
	}
	if !ti.Active || ti.Sub == "" {
		return nil, internalerrors.ErrInvalidToken
	}

	user, err := s.repos.Users.GetByID(ti.Sub)
	if err != nil {
		return nil, errors.Wrap(internalerrors.ErrInvalidToken, "[Service.tokenUser] subject not found")
	}
	if user.Blocked {
		return nil, errors.Wrap(internalerrors.ErrInvalidToken, internalerrors.ErrUserBlocked.Error())
	}
	return user, nil
}

// EnsureUser creates user with password unless an account with that email
// exists. Used to seed the administrator.
func (s *Service) EnsureUser(user *users.User, password string) (created bool, err error) {
	if _, err := s.repos.Users.GetByEmail(user.Email); err == nil {
		return false, nil
	} else if !internalerrors.Is(err, internalerrors.ErrUserNotFound) {
		return false, errors.Wrap(err, "[Service.EnsureUser] GetByEmail")
	}

	hash, err := users.HashPassword(password)
	if err != nil {
		return false, errors.Wrap(err, "[Service.EnsureUser] HashPassword")
	}
	user.PasswordHash = hash
	if user.DateJoined.IsZero() {
		user.DateJoined = s.nowTime()
	}
	if err := s.repos.Users.Upsert(user); err != nil {
		return false, errors.Wrap(err, "[Service.EnsureUser] Upsert")
	}
	return true, nil
}

// CleanupRevokedTokens removes expired tokens from the revocation cache
func (s *Service) CleanupRevokedTokens() {
	s.tokens.CleanupRevokedTokens()
}

// GetJWKS returns the JSON Web Key Set for public key distribution
func (s *Service) GetJWKS() (*keys.JWKS, error) {
	return s.tokens.JWKS()
}

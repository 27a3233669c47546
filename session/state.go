package session

import (
	"strings"
	"time"

	"github.com/jrsteele09/as2-portal-session/authapi"
	"github.com/jrsteele09/as2-portal-session/internal/utils"
	"github.com/jrsteele09/as2-portal-session/users"
)

// State of the session. Authenticating and Refreshing are transient.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// Session is a copy of the manager's session. Changing it has no effect on the manager.
type Session struct {
	State           State
	AccessToken     string
	RefreshToken    string
	User            *users.Profile
	ExpiresAt       time.Time // access token expiry, zero when unknown
	LastRefreshedAt time.Time
	AuthenticatedAt time.Time
}

// Authenticated reports whether the session holds a usable token pair. A
// session that is refreshing still holds its previous pair.
func (s Session) Authenticated() bool {
	return (s.State == StateAuthenticated || s.State == StateRefreshing) && s.AccessToken != ""
}

func (s Session) clone() Session {
	if s.User != nil {
		u := *s.User
		u.Permissions = utils.CloneSlice(s.User.Permissions)
		s.User = &u
	}
	return s
}

type Credentials struct {
	Email    string
	Password string
}

func (c Credentials) Validate() error {
	fields := map[string]string{}
	if strings.TrimSpace(c.Email) == "" {
		fields["email"] = "email is required"
	}
	if c.Password == "" {
		fields["password"] = "password is required"
	}
	if len(fields) > 0 {
		return &authapi.Error{Kind: authapi.KindValidation, Message: "credentials are incomplete", Fields: fields}
	}
	return nil
}

type Registration struct {
	Email        string
	Password     string
	Name         string
	Organization string
}

func (r Registration) Validate() error {
	fields := map[string]string{}
	if strings.TrimSpace(r.Email) == "" {
		fields["email"] = "email is required"
	}
	if r.Password == "" {
		fields["password"] = "password is required"
	}
	if strings.TrimSpace(r.Name) == "" {
		fields["name"] = "name is required"
	}
	if len(fields) > 0 {
		return &authapi.Error{Kind: authapi.KindValidation, Message: "registration is incomplete", Fields: fields}
	}
	return nil
}

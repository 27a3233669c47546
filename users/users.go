package users

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/jrsteele09/as2-portal-session/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

// RoleType is a portal role. Roles map to a default permission set.
type RoleType string

const (
	RoleAdmin    RoleType = "admin"    // Manages users, partners and certificates
	RoleOperator RoleType = "operator" // Runs AS2 partners, certificates and message resends
	RoleReviewer RoleType = "reviewer" // Pharmacovigilance case reviewer, reads message traffic
	RoleViewer   RoleType = "viewer"   // Read-only dashboard access
)

// Portal permissions carried in access tokens and the user profile.
const (
	PermDashboardRead     = "dashboard:read"
	PermPartnersRead      = "partners:read"
	PermPartnersWrite     = "partners:write"
	PermCertificatesRead  = "certificates:read"
	PermCertificatesWrite = "certificates:write"
	PermMessagesRead      = "messages:read"
	PermMessagesResend    = "messages:resend"
	PermUsersManage       = "users:manage"
)

var rolePermissions = map[RoleType][]string{
	RoleAdmin: {
		PermDashboardRead, PermPartnersRead, PermPartnersWrite, PermCertificatesRead,
		PermCertificatesWrite, PermMessagesRead, PermMessagesResend, PermUsersManage,
	},
	RoleOperator: {
		PermDashboardRead, PermPartnersRead, PermPartnersWrite, PermCertificatesRead,
		PermCertificatesWrite, PermMessagesRead, PermMessagesResend,
	},
	RoleReviewer: {PermDashboardRead, PermPartnersRead, PermMessagesRead},
	RoleViewer:   {PermDashboardRead},
}

// DefaultPermissions returns a copy of the permission set granted to a role.
func DefaultPermissions(role RoleType) []string {
	return utils.CloneSlice(rolePermissions[role])
}

func (r RoleType) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}

type User struct {
	ID           string    `json:"id,omitempty"`           // Unique identifier for the user
	Email        string    `json:"email,omitempty"`        // User's email address, unique
	Name         string    `json:"name,omitempty"`         // Display name
	Organization string    `json:"organization,omitempty"` // Sponsor, CRO or partner organisation
	PasswordHash string    `json:"-"`                      // Hashed version of the user's password - never serialize
	Role         RoleType  `json:"role,omitempty"`
	Permissions  []string  `json:"permissions,omitempty"`
	DateJoined   time.Time `json:"date_joined,omitempty"` // Date and time when the user registered
	LastLogin    time.Time `json:"last_login,omitempty"`  // Last time the user logged in

	Blocked      bool      `json:"blocked,omitempty"`       // Blocked by an administrator
	FailedLogins int       `json:"failed_logins,omitempty"` // Consecutive failed password attempts
	LockedUntil  time.Time `json:"locked_until,omitempty"`  // Temporary lockout after too many failures
}

// IsLocked reports whether a temporary lockout is active at now.
func (u *User) IsLocked(now time.Time) bool {
	return !u.LockedUntil.IsZero() && now.Before(u.LockedUntil)
}

// HasPermission checks the explicit permission list, falling back to the role defaults.
func (u *User) HasPermission(permission string) bool {
	perms := u.Permissions
	if len(perms) == 0 {
		perms = rolePermissions[u.Role]
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// Profile is the read-only snapshot of the user handed to clients.
func (u *User) Profile() Profile {
	perms := u.Permissions
	if len(perms) == 0 {
		perms = rolePermissions[u.Role]
	}
	return Profile{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		Role:         string(u.Role),
		Permissions:  utils.CloneSlice(perms),
		Organization: u.Organization,
	}
}

// Clone returns a deep copy so repositories never share mutable state with callers.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Permissions = utils.CloneSlice(u.Permissions)
	return &c
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

// ValidateEmail accepts a bare address only ("a@b.c"), not a display-name form.
func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return fmt.Errorf("email address is not valid")
	}
	return nil
}

// NormalizeEmail lower-cases and trims an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

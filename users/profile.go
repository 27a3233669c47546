package users

import "errors"

// Profile is the user snapshot exchanged with the portal: login, refresh and
// /auth/me all return it and the session replaces it wholesale.
type Profile struct {
	ID           string   `json:"id"`
	Email        string   `json:"email"`
	Name         string   `json:"name"`
	Role         string   `json:"role"`
	Permissions  []string `json:"permissions"`
	Organization string   `json:"organization"`
}

// Validate rejects profiles missing the identity fields the session depends on.
func (p Profile) Validate() error {
	if p.ID == "" {
		return errors.New("profile is missing id")
	}
	if p.Email == "" {
		return errors.New("profile is missing email")
	}
	return nil
}

func (p Profile) HasPermission(permission string) bool {
	for _, perm := range p.Permissions {
		if perm == permission {
			return true
		}
	}
	return false
}

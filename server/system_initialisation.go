package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/jrsteele09/as2-portal-session/users"
	"github.com/rs/zerolog/log"
)

const DefaultAdminName = "Portal Administrator"

// InitialiseSystem seeds the administrator account on first start. Without a
// configured password one is generated and logged once.
func (s *Server) InitialiseSystem(ctx context.Context) error {
	adminEmail := s.config.GetSystemAdminUser()

	password := s.config.GetSystemAdminPassword()
	generated := password == ""
	if generated {
		var err error
		if password, err = generatePassword(); err != nil {
			return fmt.Errorf("[Server InitialiseSystem] failed to generate admin password: %w", err)
		}
	}

	created, err := s.auth.EnsureUser(&users.User{
		Email: adminEmail,
		Name:  DefaultAdminName,
		Role:  users.RoleAdmin,
	}, password)
	if err != nil {
		return fmt.Errorf("[Server InitialiseSystem] failed to bootstrap admin: %w", err)
	}
	if !created {
		log.Debug().Str("email", adminEmail).Msg("admin account already exists")
		return nil
	}

	log.Info().Msg("📋 System Configuration:")
	if base := s.config.GetBaseURL(); base != "" {
		log.Info().Msgf("   Issuer:      %s", base)
	}
	log.Info().Msg("👤 Admin Credentials:")
	log.Info().Msgf("   Email:       %s", adminEmail)
	if generated {
		log.Info().Msgf("   Password:    %s", password)
	}
	log.Info().Msg("🌐 Discovery Endpoint:")
	log.Info().Msgf("       %s", RouteWellKnownOpenIDConfig)
	return nil
}

func generatePassword() (string, error) {
	passwordBytes := make([]byte, 24)
	if _, err := rand.Read(passwordBytes); err != nil {
		return "", err
	}
	// Generated passwords must still satisfy the strength rules.
	return base64.URLEncoding.EncodeToString(passwordBytes) + "aA1", nil
}

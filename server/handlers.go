package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/jrsteele09/as2-portal-session/auth"
	"github.com/jrsteele09/as2-portal-session/authapi"
	"github.com/jrsteele09/as2-portal-session/internal/errors"
	"github.com/jrsteele09/as2-portal-session/internal/utils"
	"github.com/jrsteele09/as2-portal-session/token"
	"github.com/jrsteele09/as2-portal-session/users"
	"github.com/rs/zerolog"
)

const (
	contentTypeJSON = "application/json"
	maxBodyBytes    = 64 << 10
)

// Login exchanges email and password for a token pair and the user's profile.
func (s *Server) Login() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authapi.LoginRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}

		result, err := s.auth.Login(r.Context(), req.Email, req.Password, s.issuer(r))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tokenResponse(result.Pair, &result.User))
	}
}

// Register creates an account. The caller logs in separately.
func (s *Server) Register() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authapi.RegisterRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}

		profile, err := s.auth.Register(r.Context(), auth.Registration{
			Email:        req.Email,
			Password:     req.Password,
			Name:         req.Name,
			Organization: req.Organization,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, authapi.UserResponse{User: *profile})
	}
}

// Refresh rotates the presented refresh token.
func (s *Server) Refresh() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authapi.RefreshRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}

		result, err := s.auth.Refresh(r.Context(), req.RefreshToken, s.issuer(r))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tokenResponse(result.Pair, &result.User))
	}
}

// CurrentUser returns the profile of the bearer token's subject.
func (s *Server) CurrentUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accessToken, ok := utils.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="portal"`)
			writeJSONError(w, authapi.CodeInvalidToken, "missing bearer token", http.StatusUnauthorized)
			return
		}

		profile, err := s.auth.CurrentUser(r.Context(), accessToken)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, authapi.UserResponse{User: *profile})
	}
}

// Logout revokes the bearer token and drops the refresh token in the body, if any.
func (s *Server) Logout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accessToken, ok := utils.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="portal"`)
			writeJSONError(w, authapi.CodeInvalidToken, "missing bearer token", http.StatusUnauthorized)
			return
		}

		var req authapi.LogoutRequest
		if !decodeJSON(w, r, &req, true) {
			return
		}

		if err := s.auth.Logout(r.Context(), accessToken, req.RefreshToken); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// WellKnownOpenIDConfig serves the discovery document OIDC verifiers use to find the JWKS.
func (s *Server) WellKnownOpenIDConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		issuer := s.issuer(r)
		resp := map[string]any{
			"issuer":                                issuer,
			"jwks_uri":                              issuer + RouteWellKnownJWKS,
			"token_endpoint":                        issuer + RouteAuthRefresh,
			"userinfo_endpoint":                     issuer + RouteAuthMe,
			"end_session_endpoint":                  issuer + RouteAuthLogout,
			"response_types_supported":              []string{"token"},
			"subject_types_supported":               []string{"public"},
			"id_token_signing_alg_values_supported": []string{"RS256"},
			"grant_types_supported":                 []string{"password", "refresh_token"},
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// JWKS serves the public signing keys.
func (s *Server) JWKS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks, err := s.auth.GetJWKS()
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=3600")
		writeJSON(w, http.StatusOK, jwks)
	}
}

func (s *Server) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func tokenResponse(pair *token.Pair, profile *users.Profile) authapi.TokenResponse {
	return authapi.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    authapi.TokenTypeBearer,
		ExpiresIn:    pair.ExpiresIn,
		User:         profile,
	}
}

// decodeJSON reads a JSON body into dst. An empty body is accepted when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if optional && err == io.EOF {
			return true
		}
		writeJSONError(w, authapi.CodeInvalidRequest, "malformed JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSONErrorFields(w, errorCode, description, nil, statusCode)
}

func writeJSONErrorFields(w http.ResponseWriter, errorCode, description string, fields map[string]string, statusCode int) {
	writeJSON(w, statusCode, authapi.ErrorResponse{
		Error:            errorCode,
		ErrorDescription: description,
		Fields:           fields,
	})
}

// writeServiceError maps auth service errors onto the error codes clients switch on.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *auth.ValidationError
	switch {
	case errors.As(err, &validation):
		writeJSONErrorFields(w, authapi.CodeValidationFailed, "request failed validation", validation.Fields, http.StatusUnprocessableEntity)
	case errors.Is(err, errors.ErrInvalidCredentials):
		writeJSONError(w, authapi.CodeInvalidCredentials, "invalid email or password", http.StatusUnauthorized)
	case errors.Is(err, errors.ErrAccountLocked), errors.Is(err, errors.ErrUserBlocked):
		writeJSONError(w, authapi.CodeAccountLocked, err.Error(), http.StatusLocked)
	case errors.Is(err, errors.ErrEmailTaken):
		writeJSONErrorFields(w, authapi.CodeConflict, err.Error(), map[string]string{"email": "already registered"}, http.StatusConflict)
	case errors.Is(err, errors.ErrTokenExpired), errors.Is(err, errors.ErrRefreshTokenExpired):
		writeJSONError(w, authapi.CodeTokenExpired, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, errors.ErrInvalidToken), errors.Is(err, errors.ErrTokenRevoked), errors.Is(err, errors.ErrInvalidRefreshToken):
		writeJSONError(w, authapi.CodeInvalidToken, "token is invalid or revoked", http.StatusUnauthorized)
	case errors.Is(err, errors.ErrInvalidRequest):
		writeJSONError(w, authapi.CodeInvalidRequest, err.Error(), http.StatusBadRequest)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		logError(r.Method, r.URL.Path, err.Error())
		writeJSONError(w, authapi.CodeServerError, "internal error", http.StatusInternalServerError)
	}
}

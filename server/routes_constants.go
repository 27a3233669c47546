package server

import "github.com/jrsteele09/as2-portal-session/authapi"

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes, shared with the session client
	RouteAuthLogin    = authapi.PathLogin
	RouteAuthRegister = authapi.PathRegister
	RouteAuthRefresh  = authapi.PathRefresh
	RouteAuthMe       = authapi.PathMe
	RouteAuthLogout   = authapi.PathLogout
	RouteAuthPrefix   = "/auth/"

	// OIDC discovery, used by clients that verify access tokens
	RouteWellKnownOpenIDConfig = "/.well-known/openid-configuration"
	RouteWellKnownJWKS         = "/.well-known/jwks.json"

	// Operations
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)

package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	// AUTH
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.Login(), s.APIMiddleware(RouteAuthLogin, s.RateLimitMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteAuthRegister, ChainMiddleware(s.Register(), s.APIMiddleware(RouteAuthRegister, s.RateLimitMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteAuthRefresh, ChainMiddleware(s.Refresh(), s.APIMiddleware(RouteAuthRefresh)...))
	s.RegisterRouteHandler("GET "+RouteAuthMe, ChainMiddleware(s.CurrentUser(), s.APIMiddleware(RouteAuthMe)...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.Logout(), s.APIMiddleware(RouteAuthLogout)...))

	// CORS preflight for every auth route; CorsMiddleware answers it
	s.RegisterRouteHandler("OPTIONS "+RouteAuthPrefix, ChainMiddleware(notFound, s.APIMiddleware(RouteAuthPrefix)...))

	// OIDC discovery
	s.RegisterRouteHandler("GET "+RouteWellKnownOpenIDConfig, ChainMiddleware(s.WellKnownOpenIDConfig(), s.APIMiddleware(RouteWellKnownOpenIDConfig)...))
	s.RegisterRouteHandler("GET "+RouteWellKnownJWKS, ChainMiddleware(s.JWKS(), s.APIMiddleware(RouteWellKnownJWKS)...))

	// Operations
	s.RegisterRouteFunc("GET "+RouteHealth, s.Health())
	s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}

func notFound(w http.ResponseWriter, r *http.Request) {
	http.NotFound(w, r)
}

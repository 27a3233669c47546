// Package server is the portal auth backend's HTTP surface: the /auth/*
// endpoints the session client talks to, OpenID discovery and JWKS for token
// verification, health and metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/as2-portal-session/auth"
	"github.com/jrsteele09/as2-portal-session/authapi"
	"github.com/jrsteele09/as2-portal-session/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	auth     *auth.Service
	contract *authapi.Contract
	limiter  *ipRateLimiter
	registry *prometheus.Registry
	metrics  *serverMetrics
}

type Option func(*Server)

// WithRegistry exposes the server's metrics through reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// WithContract validates requests against contract. Nil disables request validation.
func WithContract(contract *authapi.Contract) Option {
	return func(s *Server) {
		s.contract = contract
	}
}

func New(cfg config.Config, authService *auth.Service, options ...Option) (*Server, error) {
	if authService == nil {
		return nil, fmt.Errorf("[Server New] auth service is required")
	}

	contract, err := authapi.DefaultContract()
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to load the API contract: %w", err)
	}

	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		config:   cfg,
		auth:     authService,
		contract: contract,
	}
	for _, opt := range options {
		opt(s)
	}

	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	s.metrics = newServerMetrics(s.registry)

	if cfg.GetEnableRateLimiting() {
		s.limiter = newIPRateLimiter(cfg.GetLoginRateLimit(), cfg.GetLoginRateBurst())
	}

	if err := s.InitialiseSystem(context.Background()); err != nil {
		return nil, fmt.Errorf("[Server New] failed to initialise the system: %w", err)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// CleanupRevokedTokens drops expired entries from the access token revocation list.
func (s *Server) CleanupRevokedTokens() {
	s.auth.CleanupRevokedTokens()
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Info().Msgf("[%-19s] %s", displayMethod, path)
}

func logError(method, path, error string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Error().Msgf("[%-19s] %s %s", displayMethod, path, Red+error+ResetColor)
}

// issuer is the configured base URL, or the URL the request was addressed to.
func (s *Server) issuer(r *http.Request) string {
	if base := s.config.GetBaseURL(); base != "" {
		return base
	}
	return getScheme(r) + "://" + r.Host
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}

// Package server is the console's HTTP surface: the interactive login flow
// against the identity provider, the session endpoint the UI consumes, and
// the user-administration API proxied to the provider's admin REST API.
package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/opsdeck/console-auth/admin"
	"github.com/opsdeck/console-auth/auth"
	"github.com/opsdeck/console-auth/internal/config"
	"github.com/opsdeck/console-auth/provider"
	"github.com/opsdeck/console-auth/server/authflow"
	"github.com/opsdeck/console-auth/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// IdentityFlow is the slice of the provider client the interactive login
// handlers need.
type IdentityFlow interface {
	AuthCodeURL(state, nonce, codeChallenge string) string
	Exchange(ctx context.Context, code, codeVerifier string) (*provider.TokenSet, error)
	VerifyIDToken(ctx context.Context, rawIDToken string) (*provider.IDClaims, error)
}

// Deps holds all service dependencies for the Server.
type Deps struct {
	Flow     IdentityFlow
	Sessions *session.Manager
	Auth     *auth.Service
	Admin    admin.SDK
}

type Server struct {
	env        string
	mux        *http.ServeMux
	routes     []string
	config     config.Config
	flow       IdentityFlow
	sessions   *session.Manager
	auth       *auth.Service
	admin      admin.SDK
	authStates authflow.Repo

	loginLimiter *ipRateLimiter
}

// New wires the HTTP surface together. All dependencies are required except
// Admin, which may be nil when the console runs without user management.
func New(cfg config.Config, deps Deps) (*Server, error) {
	if deps.Flow == nil {
		return nil, errors.New("[server.New] identity flow is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("[server.New] session manager is required")
	}
	if deps.Auth == nil {
		return nil, errors.New("[server.New] auth service is required")
	}

	s := &Server{
		env:          cfg.GetEnv(),
		mux:          http.NewServeMux(),
		config:       cfg,
		flow:         deps.Flow,
		sessions:     deps.Sessions,
		auth:         deps.Auth,
		admin:        deps.Admin,
		authStates:   authflow.NewInMemoryRepo(),
		loginLimiter: newIPRateLimiter(rate.Every(loginRateWindow), loginRateBurst),
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		log.Debug().Str("method", parts[0]).Str("path", parts[len(parts)-1]).Msg("route registered")
	}
}

func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}

// ChainMiddleware applies middleware to a handler in reverse order, so the
// first listed middleware runs first.
func ChainMiddleware(routeFunction http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chainedHandler := routeFunction
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler)
	}
	return chainedHandler
}

package server

import "net/http"

func (s *Server) initRoutes() {
	// LOGIN
	s.RegisterRouteFunc("GET "+RouteLogin, ChainMiddleware(s.LoginHandler(), s.LoginRateLimit))
	s.RegisterRouteFunc("GET "+RouteCallback, s.CallbackHandler())
	s.RegisterRouteFunc("POST "+RouteCallback, s.CallbackHandler()) // For form_post response mode
	s.RegisterRouteFunc("GET "+RouteLogout, s.LogoutHandler())
	s.RegisterRouteFunc("POST "+RouteLogout, s.LogoutHandler())

	// Session object consumed by the console UI on every page load
	s.RegisterRouteFunc("GET "+RouteSession, ChainMiddleware(s.SessionHandler(), s.RequireSession()))

	// User administration, proxied to the provider admin REST API
	if s.admin != nil {
		adminChain := func(h http.HandlerFunc) http.HandlerFunc {
			return ChainMiddleware(h, s.RequireSession(), s.RequireRole(RoleAdmin))
		}
		s.RegisterRouteFunc("GET "+RouteAdminUsers, adminChain(s.AdminUsersListHandler()))
		s.RegisterRouteFunc("POST "+RouteAdminUsers, adminChain(s.AdminUserCreateHandler()))
		s.RegisterRouteFunc("GET "+RouteAdminUserByID, adminChain(s.AdminUserGetHandler()))
		s.RegisterRouteFunc("PUT "+RouteAdminUserByID, adminChain(s.AdminUserUpdateHandler()))
		s.RegisterRouteFunc("DELETE "+RouteAdminUserByID, adminChain(s.AdminUserDeleteHandler()))
	}

	s.RegisterRouteFunc("GET "+RouteHealthz, s.HealthzHandler())
}

package server

const (
	RouteLogin    = "/auth/login"
	RouteCallback = "/auth/callback"
	RouteLogout   = "/auth/logout"

	RouteSession       = "/api/session"
	RouteAdminUsers    = "/api/admin/users"
	RouteAdminUserByID = "/api/admin/users/{id}"

	RouteHealthz = "/healthz"
)

// RoleAdmin gates the user-administration API.
const RoleAdmin = "admin"

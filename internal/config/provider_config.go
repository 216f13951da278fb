package config

// ProviderConfig locates the external identity provider and the console's
// registered clients.
type ProviderConfig interface {
	// GetIssuerURL is the OIDC issuer, e.g.
	// "https://id.example.com/realms/ops".
	GetIssuerURL() string

	// GetProviderBaseURL is the provider root for admin REST calls, e.g.
	// "https://id.example.com".
	GetProviderBaseURL() string

	// GetRealm is the realm the console's users live in.
	GetRealm() string

	GetClientID() string
	GetClientSecret() string

	// GetAdminClientID / Secret identify the service account used for the
	// admin REST API.
	GetAdminClientID() string
	GetAdminClientSecret() string

	// GetRedirectURL is the console's OAuth callback.
	GetRedirectURL() string

	// GetLoginURL is the console login page, the target of forced
	// re-authentication redirects.
	GetLoginURL() string

	// GetPostLogoutURL is where a signed-out user lands.
	GetPostLogoutURL() string
}

type Provider struct{}

var _ ProviderConfig = Provider{}

func (Provider) GetIssuerURL() string {
	return GetEnv("OIDC_ISSUER_URL", "http://localhost:8180/realms/ops")
}

func (Provider) GetProviderBaseURL() string {
	return GetEnv("OIDC_BASE_URL", "http://localhost:8180")
}

func (Provider) GetRealm() string {
	return GetEnv("OIDC_REALM", "ops")
}

func (Provider) GetClientID() string {
	return GetEnv("OIDC_CLIENT_ID", "ops-console")
}

func (Provider) GetClientSecret() string {
	return GetEnv("OIDC_CLIENT_SECRET", "")
}

func (Provider) GetAdminClientID() string {
	return GetEnv("OIDC_ADMIN_CLIENT_ID", "ops-console-admin")
}

func (Provider) GetAdminClientSecret() string {
	return GetEnv("OIDC_ADMIN_CLIENT_SECRET", "")
}

func (Provider) GetRedirectURL() string {
	return GetEnv("OIDC_REDIRECT_URL", "http://localhost:8080/auth/callback")
}

func (Provider) GetLoginURL() string {
	return GetEnv("CONSOLE_LOGIN_URL", "/auth/login")
}

func (Provider) GetPostLogoutURL() string {
	return GetEnv("CONSOLE_POST_LOGOUT_URL", "/")
}

package provider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/opsdeck/console-auth/provider"
	"github.com/stretchr/testify/require"
)

// fakeIssuer is a minimal OIDC provider: a discovery document plus a
// programmable token endpoint.
type fakeIssuer struct {
	server *httptest.Server

	// tokenHandler serves POST {issuer}/token.
	tokenHandler func(w http.ResponseWriter, r *http.Request)
	// logoutHandler serves POST {issuer}/logout.
	logoutHandler func(w http.ResponseWriter, r *http.Request)
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()

	issuer := &fakeIssuer{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 issuer.server.URL,
			"authorization_endpoint": issuer.server.URL + "/authorize",
			"token_endpoint":         issuer.server.URL + "/token",
			"jwks_uri":               issuer.server.URL + "/jwks",
			"end_session_endpoint":   issuer.server.URL + "/logout",
		})
		require.NoError(t, err)
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		require.NotNil(t, issuer.tokenHandler, "token endpoint hit without a handler")
		issuer.tokenHandler(w, r)
	})
	mux.HandleFunc("POST /logout", func(w http.ResponseWriter, r *http.Request) {
		require.NotNil(t, issuer.logoutHandler, "logout endpoint hit without a handler")
		issuer.logoutHandler(w, r)
	})

	issuer.server = httptest.NewServer(mux)
	t.Cleanup(issuer.server.Close)
	return issuer
}

func (f *fakeIssuer) client(t *testing.T, cfg provider.Config) *provider.Client {
	t.Helper()

	cfg.IssuerURL = f.server.URL
	if cfg.ClientID == "" {
		cfg.ClientID = "ops-console"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = f.server.Client()
	}

	client, err := provider.New(context.Background(), cfg)
	require.NoError(t, err)
	return client
}

func writeTokenResponse(t *testing.T, w http.ResponseWriter, body map[string]any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func TestRefresh(t *testing.T) {
	issuer := newFakeIssuer(t)
	issuer.tokenHandler = func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		require.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))
		require.Equal(t, "ops-console", r.PostForm.Get("client_id"))
		require.Equal(t, "hush", r.PostForm.Get("client_secret"))

		writeTokenResponse(t, w, map[string]any{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"expires_in":    300,
		})
	}

	client := issuer.client(t, provider.Config{ClientSecret: "hush"})

	tokens, err := client.Refresh(context.Background(), "old-refresh")
	require.NoError(t, err)
	require.Equal(t, "new-access", tokens.AccessToken)
	require.Equal(t, "new-refresh", tokens.RefreshToken)
	require.WithinDuration(t, time.Now().Add(300*time.Second), tokens.ExpiresAt, 2*time.Second)
}

func TestRefreshWithoutRotation(t *testing.T) {
	issuer := newFakeIssuer(t)
	issuer.tokenHandler = func(w http.ResponseWriter, r *http.Request) {
		writeTokenResponse(t, w, map[string]any{
			"access_token": "new-access",
			"expires_in":   300,
		})
	}

	client := issuer.client(t, provider.Config{})

	tokens, err := client.Refresh(context.Background(), "old-refresh")
	require.NoError(t, err)
	require.Empty(t, tokens.RefreshToken)
}

func TestRefreshEmptyToken(t *testing.T) {
	issuer := newFakeIssuer(t)
	client := issuer.client(t, provider.Config{})

	_, err := client.Refresh(context.Background(), "   ")
	require.Error(t, err)
}

func TestRefreshRejected(t *testing.T) {
	issuer := newFakeIssuer(t)
	issuer.tokenHandler = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"error":             "invalid_grant",
			"error_description": "Token is not active",
		}))
	}

	client := issuer.client(t, provider.Config{})

	_, err := client.Refresh(context.Background(), "revoked")
	require.Error(t, err)

	var tokenErr *provider.TokenError
	require.ErrorAs(t, err, &tokenErr)
	require.Equal(t, http.StatusBadRequest, tokenErr.StatusCode)
	require.Equal(t, "invalid_grant", tokenErr.Code)
	require.Equal(t, "Token is not active", tokenErr.Description)
	require.Contains(t, tokenErr.Error(), "invalid_grant")
}

func TestRefreshMissingAccessToken(t *testing.T) {
	issuer := newFakeIssuer(t)
	issuer.tokenHandler = func(w http.ResponseWriter, r *http.Request) {
		writeTokenResponse(t, w, map[string]any{"expires_in": 300})
	}

	client := issuer.client(t, provider.Config{})

	_, err := client.Refresh(context.Background(), "old-refresh")
	require.Error(t, err)
}

func TestRefreshTimeout(t *testing.T) {
	issuer := newFakeIssuer(t)
	release := make(chan struct{})
	issuer.tokenHandler = func(w http.ResponseWriter, r *http.Request) {
		<-release
	}
	t.Cleanup(func() { close(release) })

	client := issuer.client(t, provider.Config{RequestTimeout: 50 * time.Millisecond})

	_, err := client.Refresh(context.Background(), "old-refresh")
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPasswordGrant(t *testing.T) {
	issuer := newFakeIssuer(t)
	issuer.tokenHandler = func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "password", r.PostForm.Get("grant_type"))
		require.Equal(t, "ops.admin", r.PostForm.Get("username"))
		require.Equal(t, "secret", r.PostForm.Get("password"))
		require.Contains(t, r.PostForm.Get("scope"), "offline_access")

		writeTokenResponse(t, w, map[string]any{
			"access_token":  "access",
			"refresh_token": "refresh",
			"expires_in":    300,
		})
	}

	client := issuer.client(t, provider.Config{})

	tokens, err := client.PasswordGrant(context.Background(), "ops.admin", "secret")
	require.NoError(t, err)
	require.Equal(t, "access", tokens.AccessToken)
	require.Equal(t, "refresh", tokens.RefreshToken)
}

func TestClientCredentials(t *testing.T) {
	issuer := newFakeIssuer(t)
	issuer.tokenHandler = func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		require.Equal(t, "admin-cli", r.PostForm.Get("client_id"))
		require.Equal(t, "admin-secret", r.PostForm.Get("client_secret"))

		writeTokenResponse(t, w, map[string]any{
			"access_token": "service-access",
			"expires_in":   60,
		})
	}

	client := issuer.client(t, provider.Config{})

	tokens, err := client.ClientCredentials(context.Background(), "admin-cli", "admin-secret")
	require.NoError(t, err)
	require.Equal(t, "service-access", tokens.AccessToken)
}

func TestLogout(t *testing.T) {
	issuer := newFakeIssuer(t)
	issuer.logoutHandler = func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "ops-console", r.PostForm.Get("client_id"))
		require.Equal(t, "refresh", r.PostForm.Get("refresh_token"))
		w.WriteHeader(http.StatusNoContent)
	}

	client := issuer.client(t, provider.Config{})
	require.NoError(t, client.Logout(context.Background(), "refresh"))
}

func TestLogoutRejected(t *testing.T) {
	issuer := newFakeIssuer(t)
	issuer.logoutHandler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}

	client := issuer.client(t, provider.Config{})
	require.Error(t, client.Logout(context.Background(), "refresh"))
}

func TestAuthCodeURL(t *testing.T) {
	issuer := newFakeIssuer(t)
	client := issuer.client(t, provider.Config{
		RedirectURL: "https://console.example.com/auth/callback",
	})

	rawURL := client.AuthCodeURL("state-1", "nonce-1", "challenge-1")
	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)

	query := parsed.Query()
	require.Equal(t, "state-1", query.Get("state"))
	require.Equal(t, "nonce-1", query.Get("nonce"))
	require.Equal(t, "challenge-1", query.Get("code_challenge"))
	require.Equal(t, "S256", query.Get("code_challenge_method"))
	require.Equal(t, "ops-console", query.Get("client_id"))
	require.Equal(t, "https://console.example.com/auth/callback", query.Get("redirect_uri"))
	require.Contains(t, query.Get("scope"), "openid")
}

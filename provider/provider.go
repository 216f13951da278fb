// Package provider is the client for the external OpenID-Connect identity
// provider: endpoint discovery, the interactive authorization-code flow, and
// the direct token-endpoint grants (refresh_token, password,
// client_credentials) used by the session lifecycle.
package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// DefaultRequestTimeout bounds every token-endpoint call. The interactive
// flow's own timeout is owned by the sign-in facade.
const DefaultRequestTimeout = 10 * time.Second

// Config carries everything needed to talk to one identity provider realm.
type Config struct {
	// IssuerURL is the OIDC issuer, e.g. "https://id.example.com/realms/ops".
	// Endpoints are discovered from its .well-known configuration.
	IssuerURL string

	// ClientID / ClientSecret identify the console to the provider.
	ClientID     string
	ClientSecret string

	// RedirectURL is where the provider sends the browser back after an
	// interactive sign-in.
	RedirectURL string

	// Scopes requested during the interactive flow. Defaults to
	// openid/profile/email plus offline_access so a refresh token is issued.
	Scopes []string

	// HTTPClient is used for discovery and all token-endpoint calls.
	// Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// RequestTimeout bounds each token-endpoint call. Defaults to
	// DefaultRequestTimeout.
	RequestTimeout time.Duration
}

// Client talks to a single identity provider realm. It is safe for
// concurrent use.
type Client struct {
	oauth2Config  *oauth2.Config
	oidcProvider  *oidc.Provider
	verifier      *oidc.IDTokenVerifier
	httpClient    *http.Client
	clientID      string
	clientSecret  string
	tokenURL      string
	endSessionURL string
	timeout       time.Duration
}

// New discovers the provider's endpoints from the issuer's well-known
// configuration and returns a ready client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.IssuerURL == "" {
		return nil, errors.New("[provider.New] issuer URL is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("[provider.New] client ID is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	oidcProvider, err := oidc.NewProvider(oidc.ClientContext(ctx, httpClient), cfg.IssuerURL)
	if err != nil {
		return nil, errors.Wrap(err, "[provider.New] OIDC discovery failed")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess}
	}

	// end_session_endpoint is not part of the discovery fields go-oidc
	// surfaces directly, pull it out of the raw document.
	var discoveryExtra struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := oidcProvider.Claims(&discoveryExtra); err != nil {
		return nil, errors.Wrap(err, "[provider.New] reading discovery document")
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return &Client{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oidcProvider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		oidcProvider:  oidcProvider,
		verifier:      oidcProvider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		httpClient:    httpClient,
		clientID:      cfg.ClientID,
		clientSecret:  cfg.ClientSecret,
		tokenURL:      oidcProvider.Endpoint().TokenURL,
		endSessionURL: discoveryExtra.EndSessionEndpoint,
		timeout:       timeout,
	}, nil
}

// AuthCodeURL builds the provider URL the browser is redirected to for an
// interactive sign-in. state and nonce must be fresh random values stored by
// the caller for validation on the way back; codeChallenge is the S256 PKCE
// challenge derived from the caller's verifier.
func (c *Client) AuthCodeURL(state, nonce, codeChallenge string) string {
	return c.oauth2Config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// Exchange trades an authorization code for tokens at the end of the
// interactive flow.
func (c *Client) Exchange(ctx context.Context, code, codeVerifier string) (*TokenSet, error) {
	ctx, cancel := context.WithTimeout(oidc.ClientContext(ctx, c.httpClient), c.timeout)
	defer cancel()

	oauth2Token, err := c.oauth2Config.Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Exchange] code exchange failed")
	}

	set := &TokenSet{
		AccessToken:  oauth2Token.AccessToken,
		RefreshToken: oauth2Token.RefreshToken,
		ExpiresAt:    oauth2Token.Expiry,
	}
	if rawIDToken, ok := oauth2Token.Extra("id_token").(string); ok {
		set.IDToken = rawIDToken
	}
	return set, nil
}

// IDClaims are the identity claims extracted from a verified ID token.
type IDClaims struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Nonce   string `json:"nonce"`
}

// VerifyIDToken verifies the ID token's signature and standard claims and
// returns its identity claims. Nonce comparison is left to the caller, which
// holds the value issued with the original redirect.
func (c *Client) VerifyIDToken(ctx context.Context, rawIDToken string) (*IDClaims, error) {
	idToken, err := c.verifier.Verify(oidc.ClientContext(ctx, c.httpClient), rawIDToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.VerifyIDToken] verification failed")
	}

	var claims IDClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrap(err, "[Client.VerifyIDToken] extracting claims")
	}
	return &claims, nil
}

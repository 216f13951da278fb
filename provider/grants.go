package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// TokenSet is one issued access/refresh token pair. RefreshToken may be
// empty: some providers rotate refresh tokens on every exchange, others only
// return one on the initial grant.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	ExpiresAt    time.Time
}

// TokenError is a non-success response from the provider's token endpoint,
// carrying the standard OAuth2 error fields when the provider supplied them.
type TokenError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *TokenError) Error() string {
	msg := "token endpoint returned " + e.Code
	if e.Code == "" {
		msg = "token endpoint request failed"
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	return msg
}

// tokenEndpointResponse is the provider's token endpoint JSON body, success
// and error fields combined (RFC 6749 §5).
type tokenEndpointResponse struct {
	AccessToken      string `json:"access_token,omitempty"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	IDToken          string `json:"id_token,omitempty"`
	TokenType        string `json:"token_type,omitempty"`
	ExpiresIn        int    `json:"expires_in,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Refresh exchanges a refresh token for a new token pair. A missing
// refresh_token in the response is not an error, the caller retains the
// previous one in that case.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, errors.New("[Client.Refresh] no refresh token")
	}
	return c.token(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
}

// PasswordGrant performs a resource-owner password credentials sign-in.
func (c *Client) PasswordGrant(ctx context.Context, username, password string) (*TokenSet, error) {
	return c.token(ctx, url.Values{
		"grant_type": {"password"},
		"username":   {username},
		"password":   {password},
		"scope":      {strings.Join(c.oauth2Config.Scopes, " ")},
	})
}

// ClientCredentials obtains a service-account token for the given client,
// used for admin API access.
func (c *Client) ClientCredentials(ctx context.Context, clientID, clientSecret string) (*TokenSet, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
	}
	return c.post(ctx, form)
}

// token performs a token-endpoint call authenticated with the console's own
// client credentials.
func (c *Client) token(ctx context.Context, form url.Values) (*TokenSet, error) {
	form.Set("client_id", c.clientID)
	if c.clientSecret != "" {
		form.Set("client_secret", c.clientSecret)
	}
	return c.post(ctx, form)
}

func (c *Client) post(ctx context.Context, form url.Values) (*TokenSet, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "[Client.post] building token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.post] token request failed")
	}
	defer resp.Body.Close()

	var body tokenEndpointResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil && resp.StatusCode < 300 {
		return nil, errors.Wrap(err, "[Client.post] decoding token response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().
			Str("grant_type", form.Get("grant_type")).
			Int("status", resp.StatusCode).
			Str("error", body.Error).
			Msg("token endpoint rejected request")
		return nil, &TokenError{
			StatusCode:  resp.StatusCode,
			Code:        body.Error,
			Description: body.ErrorDescription,
		}
	}

	if body.AccessToken == "" {
		return nil, errors.New("[Client.post] token response missing access_token")
	}

	log.Debug().
		Str("grant_type", form.Get("grant_type")).
		Dur("elapsed", time.Since(start)).
		Int("expires_in", body.ExpiresIn).
		Msg("token endpoint call succeeded")

	return &TokenSet{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		IDToken:      body.IDToken,
		ExpiresAt:    time.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}, nil
}

// Logout ends the provider-side session for the given refresh token. The
// local session record is removed separately by the caller.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	if c.endSessionURL == "" {
		return errors.New("[Client.Logout] provider does not advertise an end-session endpoint")
	}

	form := url.Values{
		"client_id":     {c.clientID},
		"refresh_token": {refreshToken},
	}
	if c.clientSecret != "" {
		form.Set("client_secret", c.clientSecret)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endSessionURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "[Client.Logout] building logout request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "[Client.Logout] logout request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errors.Errorf("[Client.Logout] provider returned status %d", resp.StatusCode)
	}
	return nil
}

package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// CreateUser creates a new user and returns the id the provider assigned,
// taken from the Location header of the 201 response.
func (sdk *usersSDK) CreateUser(ctx context.Context, user User) (string, error) {
	body, err := json.Marshal(user)
	if err != nil {
		return "", errors.Wrap(ErrFailedCreation, err.Error())
	}

	resp, err := sdk.do(ctx, http.MethodPost, sdk.usersURL(), bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(ErrFailedCreation, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", errors.Wrapf(ErrFailedCreation, "status %d", resp.StatusCode)
	}

	location := resp.Header.Get("Location")
	id := location[strings.LastIndex(location, "/")+1:]
	if id == "" {
		return "", errors.Wrap(ErrFailedCreation, "no user id in Location header")
	}
	return id, nil
}

// ListUsers returns a page of users matching the page metadata.
func (sdk *usersSDK) ListUsers(ctx context.Context, pm PageMetadata) ([]User, error) {
	q := url.Values{}
	if pm.First > 0 {
		q.Set("first", strconv.Itoa(pm.First))
	}
	if pm.Max > 0 {
		q.Set("max", strconv.Itoa(pm.Max))
	}
	if pm.Search != "" {
		q.Set("search", pm.Search)
	}

	listURL := sdk.usersURL()
	if len(q) > 0 {
		listURL += "?" + q.Encode()
	}

	resp, err := sdk.do(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, errors.Wrap(ErrFailedList, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(ErrFailedList, "status %d", resp.StatusCode)
	}

	var users []User
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil, errors.Wrap(ErrFailedList, err.Error())
	}
	return users, nil
}

// User returns a single user by id.
func (sdk *usersSDK) User(ctx context.Context, id string) (User, error) {
	resp, err := sdk.do(ctx, http.MethodGet, sdk.userURL(id), nil)
	if err != nil {
		return User{}, errors.Wrap(ErrFailedFetch, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return User{}, errors.Wrapf(ErrFailedFetch, "status %d", resp.StatusCode)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return User{}, errors.Wrap(ErrFailedFetch, err.Error())
	}
	return user, nil
}

// UpdateUser replaces the stored representation of user.ID.
func (sdk *usersSDK) UpdateUser(ctx context.Context, user User) error {
	if user.ID == "" {
		return errors.Wrap(ErrFailedUpdate, "user id is required")
	}

	body, err := json.Marshal(user)
	if err != nil {
		return errors.Wrap(ErrFailedUpdate, err.Error())
	}

	resp, err := sdk.do(ctx, http.MethodPut, sdk.userURL(user.ID), bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(ErrFailedUpdate, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return errors.Wrapf(ErrFailedUpdate, "status %d", resp.StatusCode)
	}
	return nil
}

// DeleteUser removes a user by id.
func (sdk *usersSDK) DeleteUser(ctx context.Context, id string) error {
	resp, err := sdk.do(ctx, http.MethodDelete, sdk.userURL(id), nil)
	if err != nil {
		return errors.Wrap(ErrFailedRemoval, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return errors.Wrapf(ErrFailedRemoval, "status %d", resp.StatusCode)
	}
	return nil
}

// do issues one authenticated request. A 401 invalidates the cached admin
// token so the next call starts from a fresh grant.
func (sdk *usersSDK) do(ctx context.Context, method, rawURL string, body *bytes.Reader) (*http.Response, error) {
	adminToken, err := sdk.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var req *http.Request
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, rawURL, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, rawURL, nil)
	}
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+adminToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := sdk.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		sdk.tokens.Invalidate()
	}
	return resp, nil
}

func (sdk *usersSDK) usersURL() string {
	return fmt.Sprintf("%s/admin/realms/%s/%s", sdk.baseURL, sdk.realm, usersEndpoint)
}

func (sdk *usersSDK) userURL(id string) string {
	return fmt.Sprintf("%s/%s", sdk.usersURL(), url.PathEscape(id))
}

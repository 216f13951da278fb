// Package admin wraps the identity provider's admin REST API, the backend
// for the console's user management screens. Calls authenticate with a
// service-account token held in an explicit, injected TokenCache rather than
// hidden module state.
package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const usersEndpoint = "users"

var (
	// ErrFailedCreation indicates that user creation failed.
	ErrFailedCreation = errors.New("failed to create user")

	// ErrFailedList indicates that listing users failed.
	ErrFailedList = errors.New("failed to list users")

	// ErrFailedFetch indicates that fetching user data failed.
	ErrFailedFetch = errors.New("failed to fetch user")

	// ErrFailedUpdate indicates that user update failed.
	ErrFailedUpdate = errors.New("failed to update user")

	// ErrFailedRemoval indicates that user removal failed.
	ErrFailedRemoval = errors.New("failed to remove user")
)

// User is the provider's admin representation of a console user.
type User struct {
	ID        string `json:"id,omitempty"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Enabled   *bool  `json:"enabled,omitempty"`
}

// PageMetadata selects a page of the user listing.
type PageMetadata struct {
	First  int
	Max    int
	Search string
}

// SDK is a wrapper around the provider admin REST API to provide a simple
// and easy integration with the service.
type SDK interface {
	// CreateUser creates a new user returning its id.
	CreateUser(ctx context.Context, user User) (string, error)

	// ListUsers returns a page of users.
	ListUsers(ctx context.Context, pm PageMetadata) ([]User, error)

	// User returns a user object by id.
	User(ctx context.Context, id string) (User, error)

	// UpdateUser updates an existing user.
	UpdateUser(ctx context.Context, user User) error

	// DeleteUser removes a user.
	DeleteUser(ctx context.Context, id string) error
}

// Config locates the admin API.
type Config struct {
	// BaseURL is the provider root, e.g. "https://id.example.com".
	BaseURL string
	// Realm the console's users live in.
	Realm string
	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client
}

var _ SDK = (*usersSDK)(nil)

type usersSDK struct {
	baseURL string
	realm   string
	tokens  *TokenCache
	client  *http.Client
}

// New creates an admin SDK backed by the given token cache.
func New(cfg Config, tokens *TokenCache) (SDK, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("[admin.New] base URL is required")
	}
	if cfg.Realm == "" {
		return nil, errors.New("[admin.New] realm is required")
	}
	if tokens == nil {
		return nil, errors.New("[admin.New] token cache is required")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &usersSDK{
		baseURL: cfg.BaseURL,
		realm:   cfg.Realm,
		tokens:  tokens,
		client:  client,
	}, nil
}

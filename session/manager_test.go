package session_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/opsdeck/console-auth/provider"
	"github.com/opsdeck/console-auth/session"
	"github.com/opsdeck/console-auth/token"
	"github.com/stretchr/testify/require"
)

const (
	testSubject      = "f3a81f0e-3f6c-4f1b-9c70-000000000001"
	testUsername     = "ops.admin"
	testSessionID    = "session-1"
	testRefreshToken = "refresh-token-1"
)

// accessToken assembles an unsigned JWT-shaped access token; the decoder
// does not verify signatures.
func accessToken(t *testing.T, exp time.Time, realmRoles []string) string {
	t.Helper()

	header, err := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT"})
	require.NoError(t, err)

	roles := make([]any, 0, len(realmRoles))
	for _, r := range realmRoles {
		roles = append(roles, r)
	}
	payload, err := json.Marshal(map[string]any{
		"sub":                testSubject,
		"preferred_username": testUsername,
		"exp":                exp.Unix(),
		"realm_access":       map[string]any{"roles": roles},
	})
	require.NoError(t, err)

	return base64.RawURLEncoding.EncodeToString(header) + "." +
		base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

// fakeExchanger counts refresh calls and serves a canned response.
type fakeExchanger struct {
	mu      sync.Mutex
	calls   int
	delay   time.Duration
	refresh func(refreshToken string) (*provider.TokenSet, error)
}

func (f *fakeExchanger) Refresh(_ context.Context, refreshToken string) (*provider.TokenSet, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.refresh(refreshToken)
}

func (f *fakeExchanger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testFixture struct {
	repo      *session.InMemoryRepo
	exchanger *fakeExchanger
	manager   *session.Manager
}

func setupTestFixture(t *testing.T, exchanger *fakeExchanger, options ...session.ManagerOption) *testFixture {
	t.Helper()

	repo := session.NewInMemoryRepo()
	manager, err := session.NewManager(repo, exchanger, options...)
	require.NoError(t, err)

	return &testFixture{repo: repo, exchanger: exchanger, manager: manager}
}

// seedSession stores a session whose access token expires at exp.
func (f *testFixture) seedSession(t *testing.T, exp time.Time, refreshToken string) session.Session {
	t.Helper()

	raw := accessToken(t, exp, []string{"viewer"})
	sess := session.Session{
		ID:                   testSessionID,
		UserID:               testSubject,
		Username:             testUsername,
		Roles:                []string{"viewer"},
		AccessToken:          raw,
		RefreshToken:         refreshToken,
		AccessTokenExpiresAt: exp,
		CreatedAt:            time.Now(),
	}
	require.NoError(t, f.repo.Upsert(sess.ID, sess))
	return sess
}

func TestEnsureValidFastPath(t *testing.T) {
	exchanger := &fakeExchanger{refresh: func(string) (*provider.TokenSet, error) {
		t.Fatal("refresh must not be called for a valid session")
		return nil, nil
	}}
	f := setupTestFixture(t, exchanger)
	seeded := f.seedSession(t, time.Now().Add(5*time.Minute), testRefreshToken)

	first, err := f.manager.EnsureValid(context.Background(), testSessionID)
	require.NoError(t, err)
	second, err := f.manager.EnsureValid(context.Background(), testSessionID)
	require.NoError(t, err)

	require.Equal(t, seeded, first)
	require.Equal(t, first, second)
	require.Zero(t, exchanger.callCount())
}

func TestEnsureValidRefreshSuccess(t *testing.T) {
	newExpiry := time.Now().Add(300 * time.Second)
	newToken := accessToken(t, newExpiry, []string{"viewer", "admin"})

	exchanger := &fakeExchanger{refresh: func(refreshToken string) (*provider.TokenSet, error) {
		require.Equal(t, testRefreshToken, refreshToken)
		return &provider.TokenSet{
			AccessToken:  newToken,
			RefreshToken: "refresh-token-2",
			ExpiresAt:    newExpiry,
		}, nil
	}}
	f := setupTestFixture(t, exchanger)
	f.seedSession(t, time.Now().Add(-time.Minute), testRefreshToken)

	sess, err := f.manager.EnsureValid(context.Background(), testSessionID)
	require.NoError(t, err)

	require.Equal(t, 1, exchanger.callCount())
	require.Equal(t, newToken, sess.AccessToken)
	require.Equal(t, "refresh-token-2", sess.RefreshToken)
	require.WithinDuration(t, newExpiry, sess.AccessTokenExpiresAt, time.Second)
	require.Equal(t, session.ErrorNone, sess.Error)
	require.ElementsMatch(t, []string{"viewer", "admin"}, sess.Roles)

	// The updated record is what the store now holds.
	stored, err := f.repo.Get(testSessionID)
	require.NoError(t, err)
	require.Equal(t, sess, stored)
}

func TestEnsureValidRetainsRefreshTokenWithoutRotation(t *testing.T) {
	newExpiry := time.Now().Add(300 * time.Second)
	exchanger := &fakeExchanger{refresh: func(string) (*provider.TokenSet, error) {
		// Provider chose not to rotate: no refresh_token in the response.
		return &provider.TokenSet{
			AccessToken: accessToken(t, newExpiry, []string{"viewer"}),
			ExpiresAt:   newExpiry,
		}, nil
	}}
	f := setupTestFixture(t, exchanger)
	f.seedSession(t, time.Now().Add(-time.Minute), testRefreshToken)

	sess, err := f.manager.EnsureValid(context.Background(), testSessionID)
	require.NoError(t, err)
	require.Equal(t, testRefreshToken, sess.RefreshToken)
}

func TestEnsureValidRefreshFailure(t *testing.T) {
	exchanger := &fakeExchanger{refresh: func(string) (*provider.TokenSet, error) {
		return nil, &provider.TokenError{StatusCode: 400, Code: "invalid_grant", Description: "Token is not active"}
	}}
	f := setupTestFixture(t, exchanger)
	f.seedSession(t, time.Now().Add(-time.Minute), testRefreshToken)

	sess, err := f.manager.EnsureValid(context.Background(), testSessionID)
	require.NoError(t, err)
	require.Equal(t, session.ErrorRefreshAccessToken, sess.Error)
	require.Equal(t, session.StateInvalid, sess.State(time.Now()))

	// Terminal: further accesses return the flagged session with no retry.
	again, err := f.manager.EnsureValid(context.Background(), testSessionID)
	require.NoError(t, err)
	require.Equal(t, session.ErrorRefreshAccessToken, again.Error)
	require.Equal(t, 1, exchanger.callCount())
}

func TestEnsureValidNoRefreshToken(t *testing.T) {
	exchanger := &fakeExchanger{refresh: func(string) (*provider.TokenSet, error) {
		t.Fatal("refresh must not be called without a refresh token")
		return nil, nil
	}}
	f := setupTestFixture(t, exchanger)
	f.seedSession(t, time.Now().Add(-time.Minute), "")

	sess, err := f.manager.EnsureValid(context.Background(), testSessionID)
	require.NoError(t, err)
	require.Equal(t, session.ErrorRefreshAccessToken, sess.Error)
	require.Zero(t, exchanger.callCount())
}

func TestEnsureValidDebounce(t *testing.T) {
	exchanger := &fakeExchanger{refresh: func(string) (*provider.TokenSet, error) {
		t.Fatal("refresh must not be called within the debounce window")
		return nil, nil
	}}
	f := setupTestFixture(t, exchanger)

	sess := f.seedSession(t, time.Now().Add(-time.Minute), testRefreshToken)
	sess.LastRefreshAttemptAt = time.Now().Add(-3 * time.Second)
	require.NoError(t, f.repo.Upsert(sess.ID, sess))

	got, err := f.manager.EnsureValid(context.Background(), testSessionID)
	require.NoError(t, err)
	require.Zero(t, exchanger.callCount())
	require.Equal(t, session.ErrorNone, got.Error)
}

func TestEnsureValidCoalescing(t *testing.T) {
	newExpiry := time.Now().Add(300 * time.Second)
	exchanger := &fakeExchanger{
		delay: 50 * time.Millisecond,
		refresh: func(string) (*provider.TokenSet, error) {
			return &provider.TokenSet{
				AccessToken: accessToken(t, newExpiry, []string{"viewer"}),
				ExpiresAt:   newExpiry,
			}, nil
		},
	}
	f := setupTestFixture(t, exchanger)
	f.seedSession(t, time.Now().Add(-time.Minute), testRefreshToken)

	var wg sync.WaitGroup
	results := make([]session.Session, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := f.manager.EnsureValid(context.Background(), testSessionID)
			require.NoError(t, err)
			results[i] = sess
		}(i)
	}
	wg.Wait()

	// Exactly one network refresh; both callers observe the outcome.
	require.Equal(t, 1, exchanger.callCount())
	for _, sess := range results {
		require.Equal(t, session.ErrorNone, sess.Error)
		require.True(t, sess.AccessTokenExpiresAt.After(time.Now()))
	}
}

func TestInitFromSignInRoundTrip(t *testing.T) {
	exp := time.Now().Add(10 * time.Minute).Truncate(time.Second)
	raw := accessToken(t, exp, []string{"viewer", "admin"})
	f := setupTestFixture(t, &fakeExchanger{refresh: func(string) (*provider.TokenSet, error) {
		return nil, nil
	}})

	sess, err := f.manager.InitFromSignIn(&provider.TokenSet{
		AccessToken:  raw,
		RefreshToken: testRefreshToken,
		ExpiresAt:    exp,
	})
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	require.Equal(t, session.ErrorNone, sess.Error)
	require.True(t, sess.AccessTokenExpiresAt.Equal(exp))

	// Decoding the stored access token reproduces the identity the session
	// was constructed from.
	claims, err := token.Decode(sess.AccessToken)
	require.NoError(t, err)
	require.Equal(t, sess.UserID, claims.Subject)
	require.Equal(t, sess.Username, claims.Username)
	require.ElementsMatch(t, sess.Roles, token.ExtractRoles(claims))

	stored, err := f.repo.Get(sess.ID)
	require.NoError(t, err)
	require.Equal(t, sess, stored)
}

func TestInitFromSignInMalformedToken(t *testing.T) {
	f := setupTestFixture(t, &fakeExchanger{refresh: func(string) (*provider.TokenSet, error) {
		return nil, nil
	}})

	_, err := f.manager.InitFromSignIn(&provider.TokenSet{AccessToken: "garbage"})
	require.ErrorIs(t, err, token.ErrMalformedToken)

	_, err = f.manager.InitFromSignIn(nil)
	require.Error(t, err)
}

func TestRefreshKeepsClaimsWhenNewTokenUndecodable(t *testing.T) {
	newExpiry := time.Now().Add(300 * time.Second)
	exchanger := &fakeExchanger{refresh: func(string) (*provider.TokenSet, error) {
		return &provider.TokenSet{AccessToken: "opaque-token", ExpiresAt: newExpiry}, nil
	}}
	f := setupTestFixture(t, exchanger)
	f.seedSession(t, time.Now().Add(-time.Minute), testRefreshToken)

	sess, err := f.manager.EnsureValid(context.Background(), testSessionID)
	require.NoError(t, err)

	// Refresh still succeeds; identity and roles carry over from before.
	require.Equal(t, session.ErrorNone, sess.Error)
	require.Equal(t, "opaque-token", sess.AccessToken)
	require.Equal(t, []string{"viewer"}, sess.Roles)
	require.Equal(t, testSubject, sess.UserID)
	require.WithinDuration(t, newExpiry, sess.AccessTokenExpiresAt, time.Second)
}

func TestCleanupExpiredSessions(t *testing.T) {
	exchanger := &fakeExchanger{refresh: func(string) (*provider.TokenSet, error) {
		return nil, &provider.TokenError{StatusCode: 400, Code: "invalid_grant", Description: "Token is not active"}
	}}
	f := setupTestFixture(t, exchanger, session.WithRetention(time.Hour))

	now := time.Now()
	upsert := func(id string, expiresAt time.Time) {
		require.NoError(t, f.repo.Upsert(id, session.Session{
			ID:                   id,
			UserID:               testSubject,
			AccessToken:          accessToken(t, expiresAt, []string{"viewer"}),
			RefreshToken:         testRefreshToken,
			AccessTokenExpiresAt: expiresAt,
			CreatedAt:            now,
		}))
	}

	upsert("active", now.Add(5*time.Minute))
	// Stale but within retention: still refreshable on the next access.
	upsert("stale", now.Add(-time.Minute))
	// Abandoned: expired long past the retention window, cookie long gone.
	upsert("abandoned", now.Add(-2*time.Hour))

	// Sessions whose refresh fails terminally pile up in the store until a
	// sweep runs; nothing else ever touches them again.
	for _, id := range []string{"dead-1", "dead-2", "dead-3"} {
		upsert(id, now.Add(-time.Minute))
		sess, err := f.manager.EnsureValid(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, session.ErrorRefreshAccessToken, sess.Error)
	}
	require.Equal(t, 6, f.repo.Len())

	require.NoError(t, f.manager.CleanupExpiredSessions())

	require.Equal(t, 2, f.repo.Len())
	_, err := f.repo.Get("active")
	require.NoError(t, err)
	_, err = f.repo.Get("stale")
	require.NoError(t, err)
	_, err = f.repo.Get("abandoned")
	require.ErrorIs(t, err, session.ErrNotFound)
	for _, id := range []string{"dead-1", "dead-2", "dead-3"} {
		_, err = f.repo.Get(id)
		require.ErrorIs(t, err, session.ErrNotFound)
	}
}

func TestDelete(t *testing.T) {
	f := setupTestFixture(t, &fakeExchanger{refresh: func(string) (*provider.TokenSet, error) {
		return nil, nil
	}})
	f.seedSession(t, time.Now().Add(time.Minute), testRefreshToken)

	require.NoError(t, f.manager.Delete(testSessionID))

	_, err := f.manager.EnsureValid(context.Background(), testSessionID)
	require.ErrorIs(t, err, session.ErrNotFound)
}

// Package auth manager tests document when credentials are refreshed.
//
// Test requirements (this file serves as documentation):
// - Tokens with no expiry, or more than RefreshSkew left, are used as is
// - Tokens inside the skew window are refreshed once
// - A failed refresh is tolerated until the token actually expires
// - Exchanges and refreshes are persisted; persistence failures are logged
package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gauthierbraillon/watchlog/pkg/oauth"
)

type fakeExchanger struct {
	token        *oauth.Token
	err          error
	refreshCalls int
	exchangeCode string
	lastRefresh  string
}

func (f *fakeExchanger) ExchangeCode(_ context.Context, code string) (*oauth.Token, error) {
	f.exchangeCode = code
	return f.token, f.err
}

func (f *fakeExchanger) RefreshAccessToken(_ context.Context, refreshToken string) (*oauth.Token, error) {
	f.refreshCalls++
	f.lastRefresh = refreshToken
	return f.token, f.err
}

type recordingPersister struct {
	saved []Credentials
	err   error
}

func (p *recordingPersister) PersistCredentials(c Credentials) error {
	p.saved = append(p.saved, c)
	return p.err
}

var testNow = time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, creds Credentials, ex *fakeExchanger, opts ...ManagerOption) *Manager {
	t.Helper()
	clock := func() time.Time { return testNow }
	store := NewStore()
	store.Restore(creds)
	return NewManager(store, ex, append([]ManagerOption{WithClock(clock)}, opts...)...)
}

// TestEnsureValid_NotAuthenticated verifies a missing token is reported.
func TestEnsureValid_NotAuthenticated(t *testing.T) {
	m := newTestManager(t, Credentials{}, &fakeExchanger{})
	assert.ErrorIs(t, m.EnsureValid(context.Background()), ErrNotAuthenticated)
}

// TestEnsureValid_NoExpiryNeverRefreshes documents non-expiring tokens
// (SIMKL): no refresh request is ever made.
func TestEnsureValid_NoExpiryNeverRefreshes(t *testing.T) {
	ex := &fakeExchanger{}
	m := newTestManager(t, Credentials{AccessToken: "a", RefreshToken: "r"}, ex)

	require.NoError(t, m.EnsureValid(context.Background()))
	assert.Zero(t, ex.refreshCalls)
}

// TestEnsureValid_FreshTokenMakesNoCall verifies no network call when more
// than RefreshSkew is left.
func TestEnsureValid_FreshTokenMakesNoCall(t *testing.T) {
	for _, left := range []time.Duration{RefreshSkew, RefreshSkew + time.Second, 24 * time.Hour} {
		ex := &fakeExchanger{}
		m := newTestManager(t, Credentials{AccessToken: "a", RefreshToken: "r", ExpiresAt: testNow.Add(left)}, ex)

		require.NoError(t, m.EnsureValid(context.Background()))
		assert.Zero(t, ex.refreshCalls, "expiry in %s", left)
	}
}

// TestEnsureValid_RefreshesInsideSkew documents proactive refresh:
// - The stored refresh token is sent
// - The new credentials replace the old ones
func TestEnsureValid_RefreshesInsideSkew(t *testing.T) {
	ex := &fakeExchanger{token: &oauth.Token{AccessToken: "new", ExpiresIn: 3600}}
	p := &recordingPersister{}
	m := newTestManager(t, Credentials{AccessToken: "old", RefreshToken: "r", ExpiresAt: testNow.Add(4 * time.Minute)}, ex, WithPersister(p))

	require.NoError(t, m.EnsureValid(context.Background()))

	creds := m.Credentials()
	assert.Equal(t, 1, ex.refreshCalls)
	assert.Equal(t, "r", ex.lastRefresh)
	assert.Equal(t, "new", creds.AccessToken)
	assert.Equal(t, "r", creds.RefreshToken, "refresh token retained when not rotated")
	assert.Equal(t, testNow.Add(time.Hour), creds.ExpiresAt)
	require.Len(t, p.saved, 1)
	assert.Equal(t, creds, p.saved[0])
}

// TestEnsureValid_SoftFailWhileStillValid verifies a failed refresh keeps
// the current token while it is still valid.
func TestEnsureValid_SoftFailWhileStillValid(t *testing.T) {
	ex := &fakeExchanger{err: errors.New("503 from token endpoint")}
	expires := testNow.Add(2 * time.Minute)
	m := newTestManager(t, Credentials{AccessToken: "old", RefreshToken: "r", ExpiresAt: expires}, ex)

	require.NoError(t, m.EnsureValid(context.Background()))
	assert.Equal(t, 1, ex.refreshCalls)
	assert.Equal(t, "old", m.Credentials().AccessToken)
}

// TestEnsureValid_ExpiredAndRefreshFails verifies the user must
// re-authenticate once the token is past its expiry.
func TestEnsureValid_ExpiredAndRefreshFails(t *testing.T) {
	cause := errors.New("invalid_grant")
	ex := &fakeExchanger{err: cause}
	m := newTestManager(t, Credentials{AccessToken: "old", RefreshToken: "r", ExpiresAt: testNow.Add(-time.Minute)}, ex)

	err := m.EnsureValid(context.Background())
	assert.ErrorIs(t, err, ErrAuthenticationExpired)
	assert.ErrorIs(t, err, cause)
}

// TestEnsureValid_ExpiredWithoutRefreshToken verifies an expired token with
// nothing to refresh with is reported as expired.
func TestEnsureValid_ExpiredWithoutRefreshToken(t *testing.T) {
	m := newTestManager(t, Credentials{AccessToken: "old", ExpiresAt: testNow.Add(-time.Minute)}, &fakeExchanger{})

	err := m.EnsureValid(context.Background())
	assert.ErrorIs(t, err, ErrAuthenticationExpired)
	assert.ErrorIs(t, err, ErrNoRefreshToken)
}

// TestEnsureValid_ExactlyAtExpiryIsSoftFail verifies expiry is strict:
// now == expiresAt still counts as valid.
func TestEnsureValid_ExactlyAtExpiryIsSoftFail(t *testing.T) {
	m := newTestManager(t, Credentials{AccessToken: "old", ExpiresAt: testNow}, &fakeExchanger{})
	assert.NoError(t, m.EnsureValid(context.Background()))
}

func TestRefresh_RequiresRefreshToken(t *testing.T) {
	ex := &fakeExchanger{}
	m := newTestManager(t, Credentials{AccessToken: "a"}, ex)

	assert.ErrorIs(t, m.Refresh(context.Background()), ErrNoRefreshToken)
	assert.Zero(t, ex.refreshCalls)
}

// TestRefresh_PropagatesExchangeFailure verifies a forced refresh surfaces
// the upstream status and keeps the old token.
func TestRefresh_PropagatesExchangeFailure(t *testing.T) {
	ex := &fakeExchanger{err: &oauth.ExchangeFailedError{Status: 401, Body: "nope"}}
	m := newTestManager(t, Credentials{AccessToken: "a", RefreshToken: "r"}, ex)

	var exchangeErr *oauth.ExchangeFailedError
	require.ErrorAs(t, m.Refresh(context.Background()), &exchangeErr)
	assert.Equal(t, 401, exchangeErr.Status)
	assert.Equal(t, "a", m.Credentials().AccessToken)
}

// TestExchangeCode_UsesCreatedAtBasis verifies expiry counts from the
// issue time the service reports.
func TestExchangeCode_UsesCreatedAtBasis(t *testing.T) {
	issued := testNow.Add(-10 * time.Second)
	ex := &fakeExchanger{token: &oauth.Token{
		AccessToken:  "a",
		RefreshToken: "r",
		ExpiresIn:    7776000,
		CreatedAt:    issued.Unix(),
	}}
	m := newTestManager(t, Credentials{}, ex)

	require.NoError(t, m.ExchangeCode(context.Background(), "the-code"))
	assert.Equal(t, "the-code", ex.exchangeCode)
	assert.Equal(t, issued.Add(7776000*time.Second), m.Credentials().ExpiresAt)
}

// TestExchangeCode_PersistFailureIsNotFatal verifies the user stays
// authenticated for this run even when saving fails.
func TestExchangeCode_PersistFailureIsNotFatal(t *testing.T) {
	ex := &fakeExchanger{token: &oauth.Token{AccessToken: "a"}}
	p := &recordingPersister{err: errors.New("disk full")}
	m := newTestManager(t, Credentials{}, ex, WithPersister(p))

	require.NoError(t, m.ExchangeCode(context.Background(), "code"))
	assert.True(t, m.Credentials().Authenticated())
}

func TestClear_ResetsAndPersists(t *testing.T) {
	p := &recordingPersister{}
	m := newTestManager(t, Credentials{AccessToken: "a", RefreshToken: "r", ExpiresAt: testNow}, &fakeExchanger{}, WithPersister(p))

	require.NoError(t, m.Clear())
	assert.Equal(t, Credentials{}, m.Credentials())
	require.Len(t, p.saved, 1)
	assert.Equal(t, Credentials{}, p.saved[0])
}

// TestExchangeCode_WithoutCreatedAtUsesManagerClock verifies a relative
// expiry counts from the manager's clock, whatever clock the store has.
func TestExchangeCode_WithoutCreatedAtUsesManagerClock(t *testing.T) {
	store := NewStore(WithStoreClock(func() time.Time { return testNow.Add(-48 * time.Hour) }))
	ex := &fakeExchanger{token: &oauth.Token{AccessToken: "a", RefreshToken: "r", ExpiresIn: 3600}}
	m := NewManager(store, ex, WithClock(func() time.Time { return testNow }))

	require.NoError(t, m.ExchangeCode(context.Background(), "code"))
	assert.Equal(t, testNow.Add(time.Hour), m.Credentials().ExpiresAt)
	require.NoError(t, m.EnsureValid(context.Background()))
	assert.Zero(t, ex.refreshCalls, "a token with an hour left is not refreshed")
}

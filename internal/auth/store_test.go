// Package auth tests document the expected behavior of credential storage
// and the token lifecycle.
//
// Test requirements (this file serves as documentation):
// - An empty access token is never stored
// - An omitted refresh token keeps the stored one
// - Expiry is relative to now, or to the issue time when known
// - Readers get immutable snapshots
package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStore_SetRejectsEmptyAccessToken verifies the store stays unchanged.
func TestStore_SetRejectsEmptyAccessToken(t *testing.T) {
	s := NewStore()
	assert.ErrorIs(t, s.Set("", "refresh", 3600), ErrInvalidCredentials)
	assert.False(t, s.Read().Authenticated())
}

// TestStore_SetThenRead verifies a full write is readable as one snapshot.
func TestStore_SetThenRead(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set("access", "refresh", 3600))

	creds := s.Read()
	assert.True(t, creds.Authenticated())
	assert.Equal(t, "refresh", creds.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), creds.ExpiresAt, 2*time.Second)
}

// TestStore_SetRetainsRefreshToken documents refresh responses that omit
// the refresh token: the previous one stays valid.
func TestStore_SetRetainsRefreshToken(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set("access", "refresh", 3600))
	require.NoError(t, s.Set("access2", "", 0))

	creds := s.Read()
	assert.Equal(t, "access2", creds.AccessToken)
	assert.Equal(t, "refresh", creds.RefreshToken)
}

// TestStore_NonPositiveExpiryRecordsNone verifies 0 and negative expires_in
// mean a token that never expires.
func TestStore_NonPositiveExpiryRecordsNone(t *testing.T) {
	for _, expiresIn := range []int64{0, -10} {
		s := NewStore()
		require.NoError(t, s.Set("access", "", expiresIn))
		assert.False(t, s.Read().HasExpiry(), "expiresIn=%d", expiresIn)
	}
}

// TestStore_SetIssuedUsesIssueTime verifies created_at is the expiry basis.
func TestStore_SetIssuedUsesIssueTime(t *testing.T) {
	now := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	s := NewStore(WithStoreClock(func() time.Time { return now }))

	issued := now.Add(-30 * time.Second)
	require.NoError(t, s.SetIssued("access", "refresh", 7200, issued))
	assert.Equal(t, issued.Add(2*time.Hour), s.Read().ExpiresAt)

	require.NoError(t, s.SetIssued("access", "refresh", 7200, time.Time{}))
	assert.Equal(t, now.Add(2*time.Hour), s.Read().ExpiresAt)
}

// TestStore_SnapshotsAreImmutable verifies a held snapshot never changes
// under a later write.
func TestStore_SnapshotsAreImmutable(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set("access", "refresh", 3600))

	before := s.Read()
	s.Clear()

	assert.Equal(t, "access", before.AccessToken)
	assert.Equal(t, Credentials{}, s.Read())
}

package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 30, 0, 123_456_789, time.UTC)
	m := NewManager("secret", "go-pos-sync", time.Hour).WithClock(func() time.Time { return now })

	token, claims, err := m.GenerateToken("user", "till-1")
	require.NoError(t, err)
	assert.Equal(t, now.UnixMilli(), claims.IssuedAtMs)

	parsed, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user", parsed.Role)
	assert.Equal(t, "till-1", parsed.DeviceID)
	assert.True(t, parsed.IssuedAtTime().Equal(now.Truncate(time.Millisecond)))
}

func TestValidateRejects(t *testing.T) {
	now := time.Now()
	m := NewManager("secret", "go-pos-sync", time.Hour).WithClock(func() time.Time { return now })
	token, _, err := m.GenerateToken("admin", "")
	require.NoError(t, err)

	_, err = m.ValidateToken("")
	assert.ErrorIs(t, err, ErrMissingToken)

	other := NewManager("other-secret", "go-pos-sync", time.Hour)
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer := NewManager("secret", "someone-else", time.Hour)
	_, err = wrongIssuer.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	later := NewManager("secret", "go-pos-sync", time.Hour).WithClock(func() time.Time { return now.Add(2 * time.Hour) })
	_, err = later.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssuedAtFallsBackToSeconds(t *testing.T) {
	claims := &Claims{}
	assert.True(t, claims.IssuedAtTime().IsZero())
}

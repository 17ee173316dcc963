package tokens

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSetValid(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	t.Run("valid when expiry is in the future", func(t *testing.T) {
		set := &TokenSet{AccessToken: "at", ExpiresAt: now.Unix() + 60}
		assert.True(t, set.Valid(now))
	})

	t.Run("invalid exactly at expiry", func(t *testing.T) {
		set := &TokenSet{AccessToken: "at", ExpiresAt: now.Unix()}
		assert.False(t, set.Valid(now))
	})

	t.Run("valid one second before expiry", func(t *testing.T) {
		set := &TokenSet{AccessToken: "at", ExpiresAt: now.Unix() + 1}
		assert.True(t, set.Valid(now))
	})

	t.Run("invalid one second after expiry", func(t *testing.T) {
		set := &TokenSet{AccessToken: "at", ExpiresAt: now.Unix() - 1}
		assert.False(t, set.Valid(now))
	})

	t.Run("invalid without access token", func(t *testing.T) {
		set := &TokenSet{ExpiresAt: now.Unix() + 3600}
		assert.False(t, set.Valid(now))
	})

	t.Run("nil set is invalid", func(t *testing.T) {
		var set *TokenSet
		assert.False(t, set.Valid(now))
	})
}

func TestExpiresIn(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	set := &TokenSet{AccessToken: "at", ExpiresAt: now.Unix() + 3600}
	assert.Equal(t, time.Hour, set.ExpiresIn(now))

	expired := &TokenSet{AccessToken: "at", ExpiresAt: now.Unix() - 60}
	assert.Equal(t, -time.Minute, expired.ExpiresIn(now))
}

func TestParseIDTokenClaims(t *testing.T) {
	t.Run("reads claims without verifying signature", func(t *testing.T) {
		exp := time.Now().Add(time.Hour).Truncate(time.Second)
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":   "claimant-123",
			"email": "claimant@example.gov",
			"exp":   exp.Unix(),
		})
		signed, err := tok.SignedString([]byte("test-secret"))
		require.NoError(t, err)

		claims, err := ParseIDTokenClaims(signed)
		require.NoError(t, err)
		assert.Equal(t, "claimant-123", claims.Subject)
		assert.Equal(t, "claimant@example.gov", claims.Email)
		assert.Equal(t, exp.Unix(), claims.ExpiresAt.Unix())
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := ParseIDTokenClaims("not-a-jwt")
		assert.Error(t, err)
	})
}

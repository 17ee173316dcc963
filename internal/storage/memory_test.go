package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SrujanaJ313/claimant-gateway/internal/pkce"
	"github.com/SrujanaJ313/claimant-gateway/internal/tokens"
)

func testTokenSet() *tokens.TokenSet {
	return &tokens.TokenSet{
		AccessToken:  "access-token",
		IDToken:      "id-token",
		RefreshToken: "refresh-token",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
	}
}

func TestMemoryStoreTokens(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	t.Run("load before save returns ErrNoTokens", func(t *testing.T) {
		_, err := store.LoadTokens(ctx, "nobody")
		assert.ErrorIs(t, err, ErrNoTokens)
	})

	t.Run("round trip", func(t *testing.T) {
		set := testTokenSet()
		require.NoError(t, store.SaveTokens(ctx, "s1", set))

		got, err := store.LoadTokens(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, set, got)
	})

	t.Run("save replaces the whole set", func(t *testing.T) {
		first := testTokenSet()
		require.NoError(t, store.SaveTokens(ctx, "s2", first))

		second := &tokens.TokenSet{AccessToken: "new-access", ExpiresAt: first.ExpiresAt + 100}
		require.NoError(t, store.SaveTokens(ctx, "s2", second))

		got, err := store.LoadTokens(ctx, "s2")
		require.NoError(t, err)
		assert.Equal(t, "new-access", got.AccessToken)
		assert.Empty(t, got.RefreshToken, "stale fields must not survive an overwrite")
	})

	t.Run("returned set is a copy", func(t *testing.T) {
		set := testTokenSet()
		require.NoError(t, store.SaveTokens(ctx, "s3", set))

		got, err := store.LoadTokens(ctx, "s3")
		require.NoError(t, err)
		got.AccessToken = "mutated"

		again, err := store.LoadTokens(ctx, "s3")
		require.NoError(t, err)
		assert.Equal(t, "access-token", again.AccessToken)
	})

	t.Run("clear removes tokens", func(t *testing.T) {
		require.NoError(t, store.SaveTokens(ctx, "s4", testTokenSet()))
		require.NoError(t, store.ClearTokens(ctx, "s4"))

		_, err := store.LoadTokens(ctx, "s4")
		assert.ErrorIs(t, err, ErrNoTokens)
	})

	t.Run("clearing an absent session is not an error", func(t *testing.T) {
		assert.NoError(t, store.ClearTokens(ctx, "never-existed"))
	})
}

func TestMemoryStorePKCE(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	material := &pkce.Material{
		CodeVerifier:  "verifier",
		CodeChallenge: "challenge",
		State:         "state",
	}

	t.Run("take before save returns ErrNoPKCEMaterial", func(t *testing.T) {
		_, err := store.TakePKCE(ctx, "nobody")
		assert.ErrorIs(t, err, ErrNoPKCEMaterial)
	})

	t.Run("take is single use", func(t *testing.T) {
		require.NoError(t, store.SavePKCE(ctx, "s1", material))

		got, err := store.TakePKCE(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, material, got)

		_, err = store.TakePKCE(ctx, "s1")
		assert.ErrorIs(t, err, ErrNoPKCEMaterial)
	})

	t.Run("concurrent takes yield exactly one winner", func(t *testing.T) {
		require.NoError(t, store.SavePKCE(ctx, "s2", material))

		const workers = 16
		var wg sync.WaitGroup
		wins := make(chan struct{}, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.TakePKCE(ctx, "s2"); err == nil {
					wins <- struct{}{}
				}
			}()
		}
		wg.Wait()
		close(wins)

		count := 0
		for range wins {
			count++
		}
		assert.Equal(t, 1, count)
	})

	t.Run("clear removes pending attempt", func(t *testing.T) {
		require.NoError(t, store.SavePKCE(ctx, "s3", material))
		require.NoError(t, store.ClearPKCE(ctx, "s3"))

		_, err := store.TakePKCE(ctx, "s3")
		assert.ErrorIs(t, err, ErrNoPKCEMaterial)
	})
}

func TestMemoryStoreCleanupAbandonedAttempts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	base := time.Now()
	store.now = func() time.Time { return base }

	material := &pkce.Material{CodeVerifier: "v", CodeChallenge: "c", State: "s"}
	require.NoError(t, store.SavePKCE(ctx, "abandoned", material))

	removed, err := store.CleanupAbandonedAttempts(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed, "attempts inside the window must survive")

	store.now = func() time.Time { return base.Add(pkceTTL + time.Minute) }
	require.NoError(t, store.SavePKCE(ctx, "fresh", material))

	removed, err = store.CleanupAbandonedAttempts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.TakePKCE(ctx, "abandoned")
	assert.ErrorIs(t, err, ErrNoPKCEMaterial)

	got, err := store.TakePKCE(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, material, got)
}

package auth_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planiversary/planiversary/internal/domain/uuid"
	"github.com/planiversary/planiversary/internal/infrastructure/auth"
	"github.com/planiversary/planiversary/tests/testutil"
)

func setupSessionStore(t *testing.T) *auth.SessionStore {
	t.Helper()

	client, prefix := testutil.SetupTestRedisWithPrefix(t)

	store := auth.NewSessionStore(auth.SessionStoreConfig{
		Client:    client,
		KeyPrefix: prefix,
	})

	return store
}

func TestNewSessionStore(t *testing.T) {
	t.Run("creates store with custom prefix", func(t *testing.T) {
		client := testutil.SetupTestRedis(t)

		store := auth.NewSessionStore(auth.SessionStoreConfig{
			Client:    client,
			KeyPrefix: "custom:prefix:",
		})

		require.NotNil(t, store)
	})

	t.Run("creates store with defaults", func(t *testing.T) {
		client := testutil.SetupTestRedis(t)

		store := auth.NewSessionStore(auth.SessionStoreConfig{
			Client: client,
		})

		require.NotNil(t, store)
	})
}

func TestSessionStore_AddSession(t *testing.T) {
	t.Run("successfully adds session", func(t *testing.T) {
		store := setupSessionStore(t)
		ctx := context.Background()
		userID := uuid.NewUUID()

		err := store.AddSession(ctx, userID, "refresh-token-1", time.Hour)
		require.NoError(t, err)

		valid, err := store.IsValidSession(ctx, userID, "refresh-token-1")
		require.NoError(t, err)
		assert.True(t, valid)
	})

	t.Run("evicts oldest session when over the limit", func(t *testing.T) {
		store := setupSessionStore(t)
		ctx := context.Background()
		userID := uuid.NewUUID()

		for i := 1; i <= auth.DefaultSessionLimit+1; i++ {
			token := fmt.Sprintf("refresh-token-%d", i)
			err := store.AddSession(ctx, userID, token, time.Hour)
			require.NoError(t, err)
			// Insertion scores are nanosecond timestamps; keep them distinct.
			time.Sleep(time.Millisecond)
		}

		count, err := store.SessionCount(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(auth.DefaultSessionLimit), count)

		// The first-inserted token is the one evicted.
		valid, err := store.IsValidSession(ctx, userID, "refresh-token-1")
		require.NoError(t, err)
		assert.False(t, valid)

		for i := 2; i <= auth.DefaultSessionLimit+1; i++ {
			token := fmt.Sprintf("refresh-token-%d", i)
			valid, err = store.IsValidSession(ctx, userID, token)
			require.NoError(t, err)
			assert.True(t, valid, "expected %s to survive eviction", token)
		}
	})

	t.Run("re-adding an existing token does not evict others", func(t *testing.T) {
		store := setupSessionStore(t)
		ctx := context.Background()
		userID := uuid.NewUUID()

		for i := 1; i <= auth.DefaultSessionLimit; i++ {
			err := store.AddSession(ctx, userID, fmt.Sprintf("refresh-token-%d", i), time.Hour)
			require.NoError(t, err)
			time.Sleep(time.Millisecond)
		}

		// Same member again: score updates, set size stays at the cap.
		err := store.AddSession(ctx, userID, "refresh-token-3", time.Hour)
		require.NoError(t, err)

		count, err := store.SessionCount(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(auth.DefaultSessionLimit), count)

		valid, err := store.IsValidSession(ctx, userID, "refresh-token-1")
		require.NoError(t, err)
		assert.True(t, valid)
	})

	t.Run("fails with zero userID", func(t *testing.T) {
		store := setupSessionStore(t)

		err := store.AddSession(context.Background(), uuid.UUID(""), "token", time.Hour)
		require.Error(t, err)
	})

	t.Run("fails with empty token", func(t *testing.T) {
		store := setupSessionStore(t)

		err := store.AddSession(context.Background(), uuid.NewUUID(), "", time.Hour)
		require.Error(t, err)
	})

	t.Run("respects custom session limit", func(t *testing.T) {
		client, prefix := testutil.SetupTestRedisWithPrefix(t)
		store := auth.NewSessionStore(auth.SessionStoreConfig{
			Client:       client,
			KeyPrefix:    prefix,
			SessionLimit: 2,
		})
		ctx := context.Background()
		userID := uuid.NewUUID()

		for i := 1; i <= 4; i++ {
			err := store.AddSession(ctx, userID, fmt.Sprintf("refresh-token-%d", i), time.Hour)
			require.NoError(t, err)
			time.Sleep(time.Millisecond)
		}

		count, err := store.SessionCount(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})
}

func TestSessionStore_IsValidSession(t *testing.T) {
	t.Run("returns false for unknown token", func(t *testing.T) {
		store := setupSessionStore(t)

		valid, err := store.IsValidSession(context.Background(), uuid.NewUUID(), "never-stored")
		require.NoError(t, err)
		assert.False(t, valid)
	})

	t.Run("returns false for empty token", func(t *testing.T) {
		store := setupSessionStore(t)

		valid, err := store.IsValidSession(context.Background(), uuid.NewUUID(), "")
		require.NoError(t, err)
		assert.False(t, valid)
	})

	t.Run("sessions are isolated per user", func(t *testing.T) {
		store := setupSessionStore(t)
		ctx := context.Background()
		alice := uuid.NewUUID()
		bob := uuid.NewUUID()

		err := store.AddSession(ctx, alice, "shared-token-value", time.Hour)
		require.NoError(t, err)

		valid, err := store.IsValidSession(ctx, bob, "shared-token-value")
		require.NoError(t, err)
		assert.False(t, valid)
	})
}

func TestSessionStore_RemoveSession(t *testing.T) {
	t.Run("removes only the given token", func(t *testing.T) {
		store := setupSessionStore(t)
		ctx := context.Background()
		userID := uuid.NewUUID()

		require.NoError(t, store.AddSession(ctx, userID, "token-a", time.Hour))
		require.NoError(t, store.AddSession(ctx, userID, "token-b", time.Hour))

		err := store.RemoveSession(ctx, userID, "token-a")
		require.NoError(t, err)

		valid, err := store.IsValidSession(ctx, userID, "token-a")
		require.NoError(t, err)
		assert.False(t, valid)

		valid, err = store.IsValidSession(ctx, userID, "token-b")
		require.NoError(t, err)
		assert.True(t, valid)
	})

	t.Run("removing an absent token is not an error", func(t *testing.T) {
		store := setupSessionStore(t)

		err := store.RemoveSession(context.Background(), uuid.NewUUID(), "never-stored")
		require.NoError(t, err)
	})
}

func TestSessionStore_RemoveAllSessions(t *testing.T) {
	t.Run("clears every session for the user", func(t *testing.T) {
		store := setupSessionStore(t)
		ctx := context.Background()
		userID := uuid.NewUUID()

		for i := 1; i <= 3; i++ {
			require.NoError(t, store.AddSession(ctx, userID, fmt.Sprintf("token-%d", i), time.Hour))
		}

		err := store.RemoveAllSessions(ctx, userID)
		require.NoError(t, err)

		count, err := store.SessionCount(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})

	t.Run("does not touch other users", func(t *testing.T) {
		store := setupSessionStore(t)
		ctx := context.Background()
		alice := uuid.NewUUID()
		bob := uuid.NewUUID()

		require.NoError(t, store.AddSession(ctx, alice, "alice-token", time.Hour))
		require.NoError(t, store.AddSession(ctx, bob, "bob-token", time.Hour))

		require.NoError(t, store.RemoveAllSessions(ctx, alice))

		valid, err := store.IsValidSession(ctx, bob, "bob-token")
		require.NoError(t, err)
		assert.True(t, valid)
	})
}

func TestSessionStore_Blacklist(t *testing.T) {
	t.Run("blacklisted token is reported", func(t *testing.T) {
		store := setupSessionStore(t)
		ctx := context.Background()

		err := store.BlacklistAccessToken(ctx, "access-token", time.Hour)
		require.NoError(t, err)

		revoked, err := store.IsBlacklisted(ctx, "access-token")
		require.NoError(t, err)
		assert.True(t, revoked)
	})

	t.Run("unknown token is not blacklisted", func(t *testing.T) {
		store := setupSessionStore(t)

		revoked, err := store.IsBlacklisted(context.Background(), "never-revoked")
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("empty token is not blacklisted", func(t *testing.T) {
		store := setupSessionStore(t)

		revoked, err := store.IsBlacklisted(context.Background(), "")
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("non-positive ttl is a no-op", func(t *testing.T) {
		store := setupSessionStore(t)
		ctx := context.Background()

		err := store.BlacklistAccessToken(ctx, "stale-token", 0)
		require.NoError(t, err)

		revoked, err := store.IsBlacklisted(ctx, "stale-token")
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("entry expires with its ttl", func(t *testing.T) {
		store := setupSessionStore(t)
		ctx := context.Background()

		err := store.BlacklistAccessToken(ctx, "short-lived", 100*time.Millisecond)
		require.NoError(t, err)

		time.Sleep(200 * time.Millisecond)

		revoked, err := store.IsBlacklisted(ctx, "short-lived")
		require.NoError(t, err)
		assert.False(t, revoked)
	})
}

func TestSessionStore_Increment(t *testing.T) {
	t.Run("counts consecutive increments", func(t *testing.T) {
		store := setupSessionStore(t)
		ctx := context.Background()
		key := "ratelimit:login:test"

		for want := int64(1); want <= 3; want++ {
			got, err := store.Increment(ctx, key, time.Minute)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})

	t.Run("sets window ttl on first increment only", func(t *testing.T) {
		store := setupSessionStore(t)
		ctx := context.Background()
		key := "ratelimit:refresh:test"

		_, err := store.Increment(ctx, key, time.Minute)
		require.NoError(t, err)

		ttl, err := store.GetTTL(ctx, key)
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
		assert.LessOrEqual(t, ttl, time.Minute)

		// A later increment with a longer window must not extend the ttl.
		_, err = store.Increment(ctx, key, time.Hour)
		require.NoError(t, err)

		ttl, err = store.GetTTL(ctx, key)
		require.NoError(t, err)
		assert.LessOrEqual(t, ttl, time.Minute)
	})
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/planiversary/planiversary/internal/domain/uuid"
)

// DefaultSessionLimit is the maximum number of concurrent refresh-token
// sessions a single user may hold.
const DefaultSessionLimit = 5

const (
	defaultSessionKeyPrefix = "auth:"
	sessionsKeyPart         = "sessions:"
	blacklistKeyPart        = "blacklist:"
)

// SessionStore tracks live refresh-token sessions and revoked access tokens
// in Redis.
//
// Sessions are kept in a per-user sorted set whose member is the refresh
// token and whose score is the insertion timestamp. The score makes
// "oldest session" well-defined, so eviction on overflow is deterministic;
// a plain unordered set cannot guarantee that.
//
// Every operation returns the underlying store error on failure: callers in
// the authentication path must treat such errors as a denial, never as a
// pass-through.
type SessionStore struct {
	client       *redis.Client
	keyPrefix    string
	sessionLimit int
}

// SessionStoreConfig contains configuration for SessionStore.
type SessionStoreConfig struct {
	Client    *redis.Client
	KeyPrefix string

	// SessionLimit caps concurrent sessions per user.
	// Zero means DefaultSessionLimit.
	SessionLimit int
}

// NewSessionStore creates a new Redis-based session store.
func NewSessionStore(cfg SessionStoreConfig) *SessionStore {
	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = defaultSessionKeyPrefix
	}

	limit := cfg.SessionLimit
	if limit <= 0 {
		limit = DefaultSessionLimit
	}

	return &SessionStore{
		client:       cfg.Client,
		keyPrefix:    keyPrefix,
		sessionLimit: limit,
	}
}

// sessionsKey is the Redis key of the user's session sorted set.
func (s *SessionStore) sessionsKey(userID uuid.UUID) string {
	return s.keyPrefix + sessionsKeyPart + userID.String()
}

// blacklistKey is the Redis key marking a revoked access token.
func (s *SessionStore) blacklistKey(token string) string {
	return s.keyPrefix + blacklistKeyPart + token
}

// AddSession registers a refresh token for the user and refreshes the TTL of
// the whole session set. If the user already holds the maximum number of
// sessions, the oldest-inserted ones are evicted so the cap holds after the
// insert. Add and trim run in a single MULTI/EXEC pipeline: concurrent
// logins for the same user cannot observe or produce an over-full set.
func (s *SessionStore) AddSession(
	ctx context.Context,
	userID uuid.UUID,
	refreshToken string,
	ttl time.Duration,
) error {
	if userID.IsZero() {
		return errors.New("userID is required")
	}
	if refreshToken == "" {
		return errors.New("refreshToken is required")
	}

	key := s.sessionsKey(userID)
	score := float64(time.Now().UnixNano())

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: refreshToken})
		// Keep only the newest sessionLimit members.
		pipe.ZRemRangeByRank(ctx, key, 0, int64(-(s.sessionLimit + 1)))
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add session: %w", err)
	}

	return nil
}

// IsValidSession reports whether the refresh token is a live session for the
// user.
func (s *SessionStore) IsValidSession(ctx context.Context, userID uuid.UUID, refreshToken string) (bool, error) {
	if userID.IsZero() || refreshToken == "" {
		return false, nil
	}

	err := s.client.ZScore(ctx, s.sessionsKey(userID), refreshToken).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check session: %w", err)
	}

	return true, nil
}

// RemoveSession removes a single refresh token from the user's sessions.
// Removing an absent token is not an error.
func (s *SessionStore) RemoveSession(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	if userID.IsZero() {
		return errors.New("userID is required")
	}

	if err := s.client.ZRem(ctx, s.sessionsKey(userID), refreshToken).Err(); err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

// RemoveAllSessions clears every live session for the user. Used on
// logout-all and on password reset, which must void all outstanding refresh
// tokens.
func (s *SessionStore) RemoveAllSessions(ctx context.Context, userID uuid.UUID) error {
	if userID.IsZero() {
		return errors.New("userID is required")
	}

	if err := s.client.Del(ctx, s.sessionsKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to remove sessions: %w", err)
	}
	return nil
}

// SessionCount returns the number of live sessions for the user.
func (s *SessionStore) SessionCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := s.client.ZCard(ctx, s.sessionsKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

// BlacklistAccessToken marks an access token as revoked for the given TTL.
// The entry expires on its own once the token itself would have expired;
// nothing ever sweeps the blacklist manually.
func (s *SessionStore) BlacklistAccessToken(ctx context.Context, token string, ttl time.Duration) error {
	if token == "" {
		return errors.New("token is required")
	}
	if ttl <= 0 {
		// Token already expired, nothing to revoke.
		return nil
	}

	if err := s.client.Set(ctx, s.blacklistKey(token), "revoked", ttl).Err(); err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	return nil
}

// IsBlacklisted reports whether an access token has been revoked. Consulted
// on every authenticated request before the decoded token is trusted.
func (s *SessionStore) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	exists, err := s.client.Exists(ctx, s.blacklistKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return exists > 0, nil
}

// Increment implements the rate-limit counter contract on top of the same
// Redis client. The key gets its window TTL only when first created.
func (s *SessionStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}
	return incr.Val(), nil
}

// GetTTL returns the remaining window for a rate-limit key.
func (s *SessionStore) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read counter ttl: %w", err)
	}
	return ttl, nil
}

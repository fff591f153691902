package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// Rate limit defaults.
const (
	DefaultRateLimit       = 100
	DefaultRateLimitWindow = time.Minute

	// Login attempts are limited much more aggressively than general traffic.
	DefaultLoginRateLimit       = 5
	DefaultLoginRateLimitWindow = 15 * time.Minute
)

// ErrRateLimitExceeded is returned when a client exceeds its request budget.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// RateLimitStore is the counter backend for rate limiting.
// Declared on the consumer side per project guidelines; satisfied by
// auth.SessionStore.
type RateLimitStore interface {
	// Increment increments the counter for the given key and returns the new
	// count. The window TTL is set when the key is first created.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)

	// GetTTL returns the remaining TTL for the given key.
	GetTTL(ctx context.Context, key string) (time.Duration, error)
}

// RateLimitConfig holds configuration for the rate limit middleware.
type RateLimitConfig struct {
	// Logger is the structured logger for rate limit events.
	Logger *slog.Logger

	// Store is the rate limit counter backend (Redis).
	Store RateLimitStore

	// Limit is the maximum number of requests allowed per window.
	Limit int

	// Window is the time window for rate limiting.
	Window time.Duration

	// KeyFunc generates a unique key for rate limiting.
	// If nil, defaults to user ID when authenticated, IP address otherwise.
	KeyFunc func(c echo.Context) string

	// SkipPaths are paths that don't require rate limiting.
	SkipPaths []string

	// Message is the error message returned when the limit is exceeded.
	Message string
}

// DefaultRateLimitConfig returns a RateLimitConfig with sensible defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Logger:    slog.Default(),
		Limit:     DefaultRateLimit,
		Window:    DefaultRateLimitWindow,
		SkipPaths: []string{"/health", "/ready"},
		Message:   "Too many requests. Please try again later.",
	}
}

// RateLimit returns a rate limiting middleware with the given configuration.
func RateLimit(config RateLimitConfig) echo.MiddlewareFunc {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Limit <= 0 {
		config.Limit = DefaultRateLimit
	}
	if config.Window <= 0 {
		config.Window = DefaultRateLimitWindow
	}
	if config.Message == "" {
		config.Message = "Too many requests. Please try again later."
	}

	skipPaths := make(map[string]struct{}, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipPaths[path] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path

			if _, ok := skipPaths[path]; ok {
				return next(c)
			}

			// A nil store disables rate limiting entirely.
			if config.Store == nil {
				return next(c)
			}

			key := generateRateLimitKey(c, config.KeyFunc)

			count, err := config.Store.Increment(c.Request().Context(), key, config.Window)
			if err != nil {
				config.Logger.Error("failed to increment rate limit counter",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				// A broken counter must not take the API down with it.
				return next(c)
			}

			limit := int64(config.Limit)
			remaining := max(limit-count, 0)

			c.Response().Header().Set("X-Ratelimit-Limit", strconv.FormatInt(limit, 10))
			c.Response().Header().Set("X-Ratelimit-Remaining", strconv.FormatInt(remaining, 10))

			ttl, err := config.Store.GetTTL(c.Request().Context(), key)
			if err == nil && ttl > 0 {
				resetTime := time.Now().Add(ttl).Unix()
				c.Response().Header().Set("X-Ratelimit-Reset", strconv.FormatInt(resetTime, 10))
			}

			if count > limit {
				config.Logger.Warn("rate limit exceeded",
					slog.String("key", key),
					slog.Int64("count", count),
					slog.Int64("limit", limit),
					slog.String("path", path),
					slog.String("remote_ip", c.RealIP()),
				)

				return respondRateLimitError(c, config.Message, ttl)
			}

			return next(c)
		}
	}
}

// generateRateLimitKey generates a unique key for rate limiting.
func generateRateLimitKey(c echo.Context, keyFunc func(c echo.Context) string) string {
	if keyFunc != nil {
		return keyFunc(c)
	}

	// Prefer the authenticated user so one user behind a shared NAT does not
	// exhaust the budget of everyone behind it.
	userID := GetUserID(c)
	if !userID.IsZero() {
		return fmt.Sprintf("ratelimit:user:%s", userID.String())
	}

	return fmt.Sprintf("ratelimit:ip:%s", c.RealIP())
}

// respondRateLimitError sends a rate limit exceeded error response.
func respondRateLimitError(c echo.Context, message string, retryAfter time.Duration) error {
	if retryAfter > 0 {
		c.Response().Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
	}

	return c.JSON(http.StatusTooManyRequests, map[string]any{
		"success": false,
		"error": map[string]any{
			"code":        "RATE_LIMIT_EXCEEDED",
			"message":     message,
			"retry_after": int64(retryAfter.Seconds()),
		},
	})
}

// RateLimitByEndpoint returns a rate limiting middleware whose keys include
// the request method and route, so a burst against one endpoint does not
// consume the budget of the others.
func RateLimitByEndpoint(config RateLimitConfig) echo.MiddlewareFunc {
	originalKeyFunc := config.KeyFunc

	config.KeyFunc = func(c echo.Context) string {
		var baseKey string
		if originalKeyFunc != nil {
			baseKey = originalKeyFunc(c)
		} else {
			userID := GetUserID(c)
			if !userID.IsZero() {
				baseKey = fmt.Sprintf("user:%s", userID.String())
			} else {
				baseKey = fmt.Sprintf("ip:%s", c.RealIP())
			}
		}

		return fmt.Sprintf("ratelimit:endpoint:%s:%s:%s", c.Request().Method, c.Path(), baseKey)
	}

	return RateLimit(config)
}

// RateLimitByIP returns a rate limiting middleware that limits by IP only.
// Used in front of unauthenticated endpoints such as login and registration.
func RateLimitByIP(config RateLimitConfig) echo.MiddlewareFunc {
	config.KeyFunc = func(c echo.Context) string {
		return fmt.Sprintf("ratelimit:ip:%s", c.RealIP())
	}

	return RateLimit(config)
}

// LoginRateLimit returns a rate limiter tuned for credential endpoints:
// a small number of attempts per IP over a long window.
func LoginRateLimit(store RateLimitStore, logger *slog.Logger) echo.MiddlewareFunc {
	return RateLimitByEndpoint(RateLimitConfig{
		Logger:  logger,
		Store:   store,
		Limit:   DefaultLoginRateLimit,
		Window:  DefaultLoginRateLimitWindow,
		Message: "Too many attempts. Please try again later.",
	})
}

// MemoryRateLimitStore is an in-memory rate limit store for testing.
type MemoryRateLimitStore struct {
	counts map[string]*rateLimitEntry
}

type rateLimitEntry struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryRateLimitStore creates a new in-memory rate limit store.
func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{
		counts: make(map[string]*rateLimitEntry),
	}
}

// Increment increments the counter for the given key.
func (s *MemoryRateLimitStore) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	entry, exists := s.counts[key]

	if exists && time.Now().Before(entry.expiresAt) {
		entry.count++
		return entry.count, nil
	}

	s.counts[key] = &rateLimitEntry{
		count:     1,
		expiresAt: time.Now().Add(window),
	}

	return 1, nil
}

// GetTTL returns the remaining TTL for the given key.
func (s *MemoryRateLimitStore) GetTTL(_ context.Context, key string) (time.Duration, error) {
	entry, exists := s.counts[key]
	if !exists {
		return 0, nil
	}

	ttl := time.Until(entry.expiresAt)
	if ttl < 0 {
		return 0, nil
	}

	return ttl, nil
}

// Reset clears all rate limit entries (for testing).
func (s *MemoryRateLimitStore) Reset() {
	s.counts = make(map[string]*rateLimitEntry)
}

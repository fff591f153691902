package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planiversary/planiversary/internal/middleware"
)

type failingRateLimitStore struct{}

func (failingRateLimitStore) Increment(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("redis unreachable")
}

func (failingRateLimitStore) GetTTL(context.Context, string) (time.Duration, error) {
	return 0, errors.New("redis unreachable")
}

func doRateLimitedRequest(mw echo.MiddlewareFunc, path, ip string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if ip != "" {
		req.Header.Set(echo.HeaderXRealIP, ip)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	_ = handler(c)

	return rec
}

func TestRateLimit(t *testing.T) {
	t.Run("allows requests under the limit", func(t *testing.T) {
		store := middleware.NewMemoryRateLimitStore()
		mw := middleware.RateLimit(middleware.RateLimitConfig{
			Store:  store,
			Limit:  3,
			Window: time.Minute,
		})

		for range 3 {
			rec := doRateLimitedRequest(mw, "/api/v1/things", "10.0.0.1")
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	})

	t.Run("rejects requests over the limit", func(t *testing.T) {
		store := middleware.NewMemoryRateLimitStore()
		mw := middleware.RateLimit(middleware.RateLimitConfig{
			Store:  store,
			Limit:  2,
			Window: time.Minute,
		})

		doRateLimitedRequest(mw, "/api/v1/things", "10.0.0.1")
		doRateLimitedRequest(mw, "/api/v1/things", "10.0.0.1")
		rec := doRateLimitedRequest(mw, "/api/v1/things", "10.0.0.1")

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "RATE_LIMIT_EXCEEDED", decodeErrorCode(t, rec)["code"])
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	})

	t.Run("separate clients have separate budgets", func(t *testing.T) {
		store := middleware.NewMemoryRateLimitStore()
		mw := middleware.RateLimit(middleware.RateLimitConfig{
			Store:  store,
			Limit:  1,
			Window: time.Minute,
		})

		first := doRateLimitedRequest(mw, "/api/v1/things", "10.0.0.1")
		second := doRateLimitedRequest(mw, "/api/v1/things", "10.0.0.2")

		assert.Equal(t, http.StatusOK, first.Code)
		assert.Equal(t, http.StatusOK, second.Code)
	})

	t.Run("sets rate limit headers", func(t *testing.T) {
		store := middleware.NewMemoryRateLimitStore()
		mw := middleware.RateLimit(middleware.RateLimitConfig{
			Store:  store,
			Limit:  5,
			Window: time.Minute,
		})

		rec := doRateLimitedRequest(mw, "/api/v1/things", "10.0.0.1")

		assert.Equal(t, "5", rec.Header().Get("X-Ratelimit-Limit"))
		assert.Equal(t, "4", rec.Header().Get("X-Ratelimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("X-Ratelimit-Reset"))
	})

	t.Run("skips configured paths", func(t *testing.T) {
		store := middleware.NewMemoryRateLimitStore()
		mw := middleware.RateLimit(middleware.RateLimitConfig{
			Store:     store,
			Limit:     1,
			Window:    time.Minute,
			SkipPaths: []string{"/health"},
		})

		for range 5 {
			rec := doRateLimitedRequest(mw, "/health", "10.0.0.1")
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	})

	t.Run("nil store disables limiting", func(t *testing.T) {
		mw := middleware.RateLimit(middleware.RateLimitConfig{
			Limit:  1,
			Window: time.Minute,
		})

		for range 5 {
			rec := doRateLimitedRequest(mw, "/api/v1/things", "10.0.0.1")
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	})

	t.Run("store failure lets requests through", func(t *testing.T) {
		mw := middleware.RateLimit(middleware.RateLimitConfig{
			Store:  failingRateLimitStore{},
			Limit:  1,
			Window: time.Minute,
		})

		for range 3 {
			rec := doRateLimitedRequest(mw, "/api/v1/things", "10.0.0.1")
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	})

	t.Run("window expiry resets the budget", func(t *testing.T) {
		store := middleware.NewMemoryRateLimitStore()
		mw := middleware.RateLimit(middleware.RateLimitConfig{
			Store:  store,
			Limit:  1,
			Window: 50 * time.Millisecond,
		})

		first := doRateLimitedRequest(mw, "/api/v1/things", "10.0.0.1")
		second := doRateLimitedRequest(mw, "/api/v1/things", "10.0.0.1")
		require.Equal(t, http.StatusOK, first.Code)
		require.Equal(t, http.StatusTooManyRequests, second.Code)

		time.Sleep(80 * time.Millisecond)

		third := doRateLimitedRequest(mw, "/api/v1/things", "10.0.0.1")
		assert.Equal(t, http.StatusOK, third.Code)
	})
}

func TestRateLimitByEndpoint(t *testing.T) {
	t.Run("budgets are tracked per endpoint", func(t *testing.T) {
		store := middleware.NewMemoryRateLimitStore()
		mw := middleware.RateLimitByEndpoint(middleware.RateLimitConfig{
			Store:  store,
			Limit:  1,
			Window: time.Minute,
		})

		login := doRateLimitedRequest(mw, "/api/v1/auth/login", "10.0.0.1")
		register := doRateLimitedRequest(mw, "/api/v1/auth/register", "10.0.0.1")
		loginAgain := doRateLimitedRequest(mw, "/api/v1/auth/login", "10.0.0.1")

		assert.Equal(t, http.StatusOK, login.Code)
		assert.Equal(t, http.StatusOK, register.Code)
		assert.Equal(t, http.StatusTooManyRequests, loginAgain.Code)
	})
}

func TestLoginRateLimit(t *testing.T) {
	t.Run("blocks after five attempts", func(t *testing.T) {
		store := middleware.NewMemoryRateLimitStore()
		mw := middleware.LoginRateLimit(store, nil)

		for range middleware.DefaultLoginRateLimit {
			rec := doRateLimitedRequest(mw, "/api/v1/auth/login", "10.0.0.1")
			assert.Equal(t, http.StatusOK, rec.Code)
		}

		rec := doRateLimitedRequest(mw, "/api/v1/auth/login", "10.0.0.1")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})
}

func TestMemoryRateLimitStore(t *testing.T) {
	ctx := context.Background()
	store := middleware.NewMemoryRateLimitStore()

	count, err := store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	ttl, err := store.GetTTL(ctx, "k")
	require.NoError(t, err)
	assert.Positive(t, ttl)

	store.Reset()

	count, err = store.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

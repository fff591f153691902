package httpserver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planiversary/planiversary/internal/infrastructure/httpserver"
)

func newTestRouter(config httpserver.RouterConfig) *httpserver.Router {
	e := echo.New()
	e.HideBanner = true
	return httpserver.NewRouter(e, config)
}

func TestDefaultRouterConfig(t *testing.T) {
	config := httpserver.DefaultRouterConfig()

	assert.NotNil(t, config.Logger)
	assert.Equal(t, "/api/v1", config.APIPrefix)
}

func TestNewRouter(t *testing.T) {
	router := newTestRouter(httpserver.DefaultRouterConfig())

	require.NotNil(t, router)
	assert.NotNil(t, router.Echo())
	assert.NotNil(t, router.Public())
	assert.NotNil(t, router.Auth())
	assert.NotNil(t, router.Verified())
}

func TestRouterPublicRoutes(t *testing.T) {
	router := newTestRouter(httpserver.DefaultRouterConfig())

	router.Public().POST("/auth/login", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"result": "ok"})
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	rec := httptest.NewRecorder()
	router.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterAuthRoutes(t *testing.T) {
	t.Run("auth middleware guards the group", func(t *testing.T) {
		config := httpserver.DefaultRouterConfig()
		config.AuthMiddleware = func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				if c.Request().Header.Get(echo.HeaderAuthorization) == "" {
					return c.NoContent(http.StatusUnauthorized)
				}
				return next(c)
			}
		}
		router := newTestRouter(config)

		router.Auth().GET("/auth/me", func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		rec := httptest.NewRecorder()
		router.Echo().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		req = httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer token")
		rec = httptest.NewRecorder()
		router.Echo().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("without auth middleware routes are public", func(t *testing.T) {
		router := newTestRouter(httpserver.DefaultRouterConfig())

		router.Auth().GET("/auth/me", func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		rec := httptest.NewRecorder()
		router.Echo().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRouterVerifiedRoutes(t *testing.T) {
	config := httpserver.DefaultRouterConfig()
	config.AuthMiddleware = func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(c)
		}
	}
	config.VerifiedEmailMiddleware = func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get("X-Verified") != "yes" {
				return c.NoContent(http.StatusForbidden)
			}
			return next(c)
		}
	}
	router := newTestRouter(config)

	router.Verified().POST("/parties", func(c echo.Context) error {
		return c.NoContent(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/parties", nil)
	rec := httptest.NewRecorder()
	router.Echo().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/parties", nil)
	req.Header.Set("X-Verified", "yes")
	rec = httptest.NewRecorder()
	router.Echo().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestRouterCustomAPIPrefix(t *testing.T) {
	config := httpserver.DefaultRouterConfig()
	config.APIPrefix = "/api/v2"
	router := newTestRouter(config)

	router.Public().GET("/ping", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v2/ping", nil)
	rec := httptest.NewRecorder()
	router.Echo().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type testRegistrar struct {
	registered bool
}

func (tr *testRegistrar) RegisterRoutes(r *httpserver.Router) {
	tr.registered = true
	r.Public().GET("/from-registrar", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
}

func TestRouterRegisterAll(t *testing.T) {
	router := newTestRouter(httpserver.DefaultRouterConfig())

	first := &testRegistrar{}
	second := &testRegistrar{}
	router.RegisterAll(first, second)

	assert.True(t, first.registered)
	assert.True(t, second.registered)
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := newTestRouter(httpserver.DefaultRouterConfig())
	router.RegisterMetricsEndpoint()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

type stubHealthChecker struct {
	ready      bool
	components []httpserver.ComponentStatus
}

func (s *stubHealthChecker) IsReady(_ context.Context) bool {
	return s.ready
}

func (s *stubHealthChecker) GetHealthStatus(_ context.Context) []httpserver.ComponentStatus {
	return s.components
}

func TestRouterHealthEndpoints(t *testing.T) {
	t.Run("liveness always healthy", func(t *testing.T) {
		router := newTestRouter(httpserver.DefaultRouterConfig())
		router.RegisterHealthEndpointsWithChecker(&stubHealthChecker{ready: true})

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		router.Echo().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), httpserver.StatusHealthy)
	})

	t.Run("readiness follows the checker", func(t *testing.T) {
		checker := &stubHealthChecker{ready: true}
		router := newTestRouter(httpserver.DefaultRouterConfig())
		router.RegisterHealthEndpointsWithChecker(checker)

		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		rec := httptest.NewRecorder()
		router.Echo().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)

		checker.ready = false
		req = httptest.NewRequest(http.MethodGet, "/ready", nil)
		rec = httptest.NewRecorder()
		router.Echo().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("details report unhealthy components", func(t *testing.T) {
		checker := &stubHealthChecker{
			ready: false,
			components: []httpserver.ComponentStatus{
				{Name: "mongodb", Status: httpserver.StatusHealthy},
				{Name: "redis", Status: httpserver.StatusUnhealthy, Message: "connection refused"},
			},
		}
		router := newTestRouter(httpserver.DefaultRouterConfig())
		router.RegisterHealthEndpointsWithChecker(checker)

		req := httptest.NewRequest(http.MethodGet, "/health/details", nil)
		rec := httptest.NewRecorder()
		router.Echo().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "redis")
		assert.Contains(t, rec.Body.String(), "connection refused")
	})
}

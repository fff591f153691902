package main

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planiversary/planiversary/internal/infrastructure/httpserver"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWithLogger(t *testing.T) {
	logger := discardLogger()
	c := &Container{Logger: slog.Default()}

	WithLogger(logger)(c)

	assert.Same(t, logger, c.Logger)
}

func TestContainerValidateWiring(t *testing.T) {
	t.Run("empty container reports every missing dependency", func(t *testing.T) {
		c := &Container{Logger: discardLogger()}

		err := c.validateWiring()

		require.Error(t, err)
		assert.ErrorContains(t, err, "mongodb client not initialized")
		assert.ErrorContains(t, err, "redis client not initialized")
		assert.ErrorContains(t, err, "session store not initialized")
		assert.ErrorContains(t, err, "auth service not initialized")
		assert.ErrorContains(t, err, "auth middleware not initialized")
		assert.ErrorContains(t, err, "auth handler not initialized")
	})
}

func TestContainerClose(t *testing.T) {
	t.Run("close with no resources succeeds", func(t *testing.T) {
		c := &Container{Logger: discardLogger()}

		require.NoError(t, c.Close())
	})
}

func TestContainerIsReady(t *testing.T) {
	t.Run("not ready without infrastructure", func(t *testing.T) {
		c := &Container{Logger: discardLogger()}

		assert.False(t, c.IsReady(t.Context()))
	})
}

func TestContainerGetHealthStatus(t *testing.T) {
	t.Run("reports uninitialized components as unhealthy", func(t *testing.T) {
		c := &Container{Logger: discardLogger()}

		statuses := c.GetHealthStatus(t.Context())

		require.Len(t, statuses, 2)

		byName := make(map[string]httpserver.ComponentStatus, len(statuses))
		for _, s := range statuses {
			byName[s.Name] = s
		}

		mongoStatus, ok := byName["mongodb"]
		require.True(t, ok)
		assert.Equal(t, httpserver.StatusUnhealthy, mongoStatus.Status)
		assert.Equal(t, "client not initialized", mongoStatus.Message)

		redisStatus, ok := byName["redis"]
		require.True(t, ok)
		assert.Equal(t, httpserver.StatusUnhealthy, redisStatus.Status)
		assert.Equal(t, "client not initialized", redisStatus.Message)
	})
}

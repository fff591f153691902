package main

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planiversary/planiversary/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"unknown", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestGetEnvironment(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		expected    string
	}{
		{"development", config.EnvDevelopment, "development"},
		{"production", config.EnvProduction, "production"},
		{"unknown", "staging", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.App.Environment = tt.environment

			assert.Equal(t, tt.expected, getEnvironment(cfg))
		})
	}
}

func TestSetupLogger(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Log.Format = "json"
		cfg.Log.Level = "debug"

		logger := setupLogger(cfg)

		require.NotNil(t, logger)
		assert.True(t, logger.Enabled(t.Context(), slog.LevelDebug))
	})

	t.Run("text format", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Log.Format = "text"
		cfg.Log.Level = "warn"

		logger := setupLogger(cfg)

		require.NotNil(t, logger)
		assert.False(t, logger.Enabled(t.Context(), slog.LevelInfo))
		assert.True(t, logger.Enabled(t.Context(), slog.LevelWarn))
	})
}

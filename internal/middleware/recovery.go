package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
)

// DefaultStackSize is the default stack trace capture size (4KB).
const DefaultStackSize = 4 << 10

// RecoveryConfig holds configuration for the recovery middleware.
type RecoveryConfig struct {
	// Logger is the structured logger to use for panic logging.
	Logger *slog.Logger

	// StackSize is the maximum size of the stack trace to capture.
	// Default is 4KB.
	StackSize int

	// DisableStackAll disables capturing all goroutines stack traces.
	// When false, only the current goroutine's stack is captured.
	DisableStackAll bool

	// DisablePrintStack disables printing the stack trace to the logger.
	DisablePrintStack bool
}

// DefaultRecoveryConfig returns a RecoveryConfig with sensible defaults.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		Logger:            slog.Default(),
		StackSize:         DefaultStackSize,
		DisableStackAll:   true,
		DisablePrintStack: false,
	}
}

// Recovery returns a middleware that recovers from panics, logs them and
// answers with the API error envelope.
func Recovery(logger *slog.Logger) echo.MiddlewareFunc {
	config := DefaultRecoveryConfig()
	config.Logger = logger
	return RecoveryWithConfig(config)
}

// RecoveryWithConfig returns a recovery middleware with custom configuration.
func RecoveryWithConfig(config RecoveryConfig) echo.MiddlewareFunc {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.StackSize == 0 {
		config.StackSize = DefaultStackSize
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			defer func() {
				r := recover()
				if r == nil {
					return
				}

				err, ok := r.(error)
				if !ok {
					err = fmt.Errorf("%v", r)
				}

				config.Logger.Error("panic recovered", panicLogAttrs(c, config, err)...)

				if !c.Response().Committed {
					respondInternalError(c)
				}
			}()

			return next(c)
		}
	}
}

// panicLogAttrs assembles the log attributes for a recovered panic: the
// request line, the caller identity when known, and the stack trace.
func panicLogAttrs(c echo.Context, config RecoveryConfig, err error) []any {
	req := c.Request()

	attrs := []any{
		slog.String("error", err.Error()),
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.String("remote_ip", c.RealIP()),
	}

	requestID := c.Response().Header().Get(echo.HeaderXRequestID)
	if requestID == "" {
		requestID = req.Header.Get(echo.HeaderXRequestID)
	}
	if requestID != "" {
		attrs = append(attrs, slog.String("request_id", requestID))
	}

	// The authenticated account, when the auth middleware ran before the
	// panic.
	if userID := GetUserID(c); !userID.IsZero() {
		attrs = append(attrs, slog.String("user_id", userID.String()))
	}

	if !config.DisablePrintStack {
		stack := make([]byte, config.StackSize)
		length := runtime.Stack(stack, !config.DisableStackAll)
		attrs = append(attrs, slog.String("stack", string(stack[:length])))
	}

	return attrs
}

// respondInternalError writes the generic 500 in the same envelope the rest
// of the API uses. The panic value never reaches the client.
func respondInternalError(c echo.Context) {
	_ = c.JSON(http.StatusInternalServerError, map[string]any{
		"success": false,
		"error": map[string]string{
			"code":    "INTERNAL_ERROR",
			"message": "An internal error occurred",
		},
	})
}

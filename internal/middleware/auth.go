package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/planiversary/planiversary/internal/domain/account"
	"github.com/planiversary/planiversary/internal/domain/errs"
	"github.com/planiversary/planiversary/internal/domain/uuid"
	"github.com/planiversary/planiversary/internal/infrastructure/auth"
	"github.com/planiversary/planiversary/internal/infrastructure/metrics"
)

// Context keys for authentication data.
type contextKey string

const (
	// ContextKeyAccount is the context key for the resolved account.
	ContextKeyAccount contextKey = "account"

	// ContextKeyAccessToken is the context key for the raw access token.
	ContextKeyAccessToken contextKey = "access_token"
)

// Auth errors.
var (
	ErrNoToken           = errors.New("no token provided")
	ErrInvalidAuthHeader = errors.New("invalid authorization header format")
	ErrTokenRevoked      = errors.New("token has been revoked")
	ErrTokenExpired      = errors.New("token expired")
	ErrInvalidToken      = errors.New("invalid token")
	ErrInvalidTokenType  = errors.New("unexpected token type")
	ErrUserNotFound      = errors.New("user not found")
	ErrAccountNotActive  = errors.New("account is not active")
	ErrEmailNotVerified  = errors.New("email not verified")

	// ErrAuthStoreUnavailable marks an infrastructure failure during token
	// validation. The request is still denied, but as a server error rather
	// than a verdict on the token.
	ErrAuthStoreUnavailable = errors.New("auth store unavailable")
)

// AuthTokenDecoder decodes access tokens. Declared on the consumer side per
// project guidelines.
type AuthTokenDecoder interface {
	Decode(token string) (*auth.Claims, error)
}

// AuthBlacklist answers whether an access token has been revoked.
type AuthBlacklist interface {
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}

// AuthAccountLoader loads the account behind a token's user id.
type AuthAccountLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*account.Account, error)
}

// AuthMiddleware authenticates requests with a bearer access token, with a
// cookie fallback for browser clients.
type AuthMiddleware struct {
	codec     AuthTokenDecoder
	blacklist AuthBlacklist
	accounts  AuthAccountLoader
	logger    *slog.Logger
	metrics   *metrics.AuthMetrics

	// cookieName is consulted only when the Authorization header carries no
	// token.
	cookieName string
}

// AuthMiddlewareConfig contains dependencies for AuthMiddleware.
type AuthMiddlewareConfig struct {
	Codec      AuthTokenDecoder
	Blacklist  AuthBlacklist
	Accounts   AuthAccountLoader
	Logger     *slog.Logger
	CookieName string

	// Metrics is optional; a nil value disables metric recording.
	Metrics *metrics.AuthMetrics
}

// NewAuthMiddleware creates a new AuthMiddleware.
func NewAuthMiddleware(cfg AuthMiddlewareConfig) *AuthMiddleware {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthMiddleware{
		codec:      cfg.Codec,
		blacklist:  cfg.Blacklist,
		accounts:   cfg.Accounts,
		logger:     logger,
		metrics:    cfg.Metrics,
		cookieName: cfg.CookieName,
	}
}

// RequireAuth rejects requests that do not carry a valid, unrevoked access
// token belonging to an active account. On success the resolved account and
// the raw token are attached to the request context.
func (m *AuthMiddleware) RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			acc, token, err := m.authenticate(c)
			if err != nil {
				m.recordRejection(err)
				return m.respondAuthError(c, err, acc)
			}

			setAuthContext(c, acc, token)
			return next(c)
		}
	}
}

// OptionalAuth performs the same resolution as RequireAuth but never
// rejects: absent or invalid tokens simply leave the request
// unauthenticated.
func (m *AuthMiddleware) OptionalAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			acc, token, err := m.authenticate(c)
			if err == nil {
				setAuthContext(c, acc, token)
			}
			return next(c)
		}
	}
}

// RequireVerifiedEmail rejects authenticated requests whose account has not
// confirmed its email address. It must run after RequireAuth.
func (m *AuthMiddleware) RequireVerifiedEmail() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			acc := GetAccount(c)
			if acc == nil {
				return m.respondAuthError(c, ErrNoToken, nil)
			}
			if !acc.EmailVerified() {
				return m.respondAuthError(c, ErrEmailNotVerified, acc)
			}
			return next(c)
		}
	}
}

// authenticate resolves the request's access token to an active account.
// The blacklist is consulted before the token is decoded: a revoked token
// must be rejected even if it is otherwise valid.
func (m *AuthMiddleware) authenticate(c echo.Context) (*account.Account, string, error) {
	token, err := m.extractToken(c)
	if err != nil {
		return nil, "", err
	}

	reqCtx := c.Request().Context()

	revoked, err := m.blacklist.IsBlacklisted(reqCtx, token)
	if err != nil {
		// Fail closed: an unreachable store denies access. The token itself
		// was never judged, so the failure surfaces as a server error.
		m.logger.ErrorContext(reqCtx, "blacklist check failed",
			slog.String("error", err.Error()),
			slog.String("path", c.Request().URL.Path),
		)
		return nil, "", ErrAuthStoreUnavailable
	}
	if revoked {
		return nil, "", ErrTokenRevoked
	}

	claims, err := m.codec.Decode(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			return nil, "", ErrTokenExpired
		}
		return nil, "", ErrInvalidToken
	}

	if claims.Type != auth.TokenTypeAccess {
		return nil, "", ErrInvalidTokenType
	}

	acc, err := m.accounts.FindByID(reqCtx, claims.AccountID())
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, "", ErrUserNotFound
		}
		m.logger.ErrorContext(reqCtx, "failed to load account",
			slog.String("user_id", claims.UserID),
			slog.String("error", err.Error()),
		)
		return nil, "", ErrAuthStoreUnavailable
	}

	if !acc.CanAuthenticate() {
		return acc, "", ErrAccountNotActive
	}

	return acc, token, nil
}

// extractToken reads the bearer token from the Authorization header, falling
// back to the access-token cookie when no header token is present.
func (m *AuthMiddleware) extractToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader != "" {
		return extractBearerToken(authHeader)
	}

	if m.cookieName != "" {
		cookie, err := c.Cookie(m.cookieName)
		if err == nil && cookie.Value != "" {
			return cookie.Value, nil
		}
	}

	return "", ErrNoToken
}

// extractBearerToken extracts the token from a Bearer authorization header.
func extractBearerToken(authHeader string) (string, error) {
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", ErrInvalidAuthHeader
	}

	token := strings.TrimPrefix(authHeader, bearerPrefix)
	if token == "" {
		return "", ErrInvalidAuthHeader
	}

	return token, nil
}

// recordRejection counts token-level rejections. Requests that simply carry
// no token are not rejections.
func (m *AuthMiddleware) recordRejection(err error) {
	switch {
	case errors.Is(err, ErrTokenExpired):
		m.metrics.RecordTokenRejection("expired")
	case errors.Is(err, ErrTokenRevoked):
		m.metrics.RecordTokenRejection("revoked")
	case errors.Is(err, ErrInvalidTokenType):
		m.metrics.RecordTokenRejection("wrong_type")
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrInvalidAuthHeader):
		m.metrics.RecordTokenRejection("invalid")
	}
}

// respondAuthError sends an authentication error response. Expired and
// invalid tokens get distinct codes so a client can attempt a silent
// refresh instead of forcing a re-login.
func (m *AuthMiddleware) respondAuthError(c echo.Context, err error, acc *account.Account) error {
	code := "UNAUTHORIZED"
	message := "Authentication required"
	status := http.StatusUnauthorized
	details := map[string]string(nil)

	switch {
	case errors.Is(err, ErrNoToken):
		code = "NO_TOKEN"
		message = "No token provided"
	case errors.Is(err, ErrInvalidAuthHeader):
		code = "INVALID_TOKEN"
		message = "Invalid authorization header format"
	case errors.Is(err, ErrTokenRevoked):
		code = "TOKEN_REVOKED"
		message = "Token has been revoked"
	case errors.Is(err, ErrTokenExpired):
		code = "TOKEN_EXPIRED"
		message = "Token has expired"
	case errors.Is(err, ErrInvalidTokenType):
		code = "INVALID_TOKEN_TYPE"
		message = "Unexpected token type"
	case errors.Is(err, ErrUserNotFound):
		code = "USER_NOT_FOUND"
		message = "User not found"
	case errors.Is(err, ErrAccountNotActive):
		code = "ACCOUNT_NOT_ACTIVE"
		message = "Account is not active"
		if acc != nil {
			details = map[string]string{"status": acc.Status().String()}
		}
	case errors.Is(err, ErrEmailNotVerified):
		code = "EMAIL_NOT_VERIFIED"
		message = "Email address is not verified"
		status = http.StatusForbidden
	case errors.Is(err, ErrAuthStoreUnavailable):
		code = "INTERNAL_ERROR"
		message = "An internal error occurred"
		status = http.StatusInternalServerError
	case errors.Is(err, ErrInvalidToken):
		code = "INVALID_TOKEN"
		message = "Invalid token"
	}

	errBody := map[string]any{
		"code":    code,
		"message": message,
	}
	for k, v := range details {
		errBody[k] = v
	}

	return c.JSON(status, map[string]any{
		"success": false,
		"error":   errBody,
	})
}

// setAuthContext attaches the resolved account and raw token to the echo
// context.
func setAuthContext(c echo.Context, acc *account.Account, token string) {
	c.Set(string(ContextKeyAccount), acc)
	c.Set(string(ContextKeyAccessToken), token)
}

// GetAccount extracts the authenticated account from the echo context.
// Returns nil for unauthenticated requests.
func GetAccount(c echo.Context) *account.Account {
	if acc, ok := c.Get(string(ContextKeyAccount)).(*account.Account); ok {
		return acc
	}
	return nil
}

// GetAccessToken extracts the raw access token from the echo context.
func GetAccessToken(c echo.Context) string {
	if token, ok := c.Get(string(ContextKeyAccessToken)).(string); ok {
		return token
	}
	return ""
}

// GetUserID extracts the authenticated account's ID from the echo context.
func GetUserID(c echo.Context) uuid.UUID {
	if acc := GetAccount(c); acc != nil {
		return acc.ID()
	}
	return uuid.UUID("")
}

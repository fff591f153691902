// Package httphandler contains the HTTP handlers for the public API.
package httphandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/planiversary/planiversary/internal/domain/account"
	"github.com/planiversary/planiversary/internal/domain/uuid"
	"github.com/planiversary/planiversary/internal/infrastructure/httpserver"
	"github.com/planiversary/planiversary/internal/infrastructure/metrics"
	"github.com/planiversary/planiversary/internal/middleware"
	"github.com/planiversary/planiversary/internal/service"
)

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest represents the token refresh request body.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest represents the logout request body. The refresh token is
// optional: without it only the presented access token is revoked.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// PasswordResetRequest represents the password reset request body.
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest represents the new password submission.
type ResetPasswordRequest struct {
	Password string `json:"password"`
}

// AccountDTO is the safe projection of an account for API responses.
// Password hashes and token columns never leave the server.
type AccountDTO struct {
	ID            uuid.UUID  `json:"id"`
	Email         string     `json:"email"`
	Username      string     `json:"username,omitempty"`
	FirstName     string     `json:"first_name,omitempty"`
	LastName      string     `json:"last_name,omitempty"`
	EmailVerified bool       `json:"email_verified"`
	Status        string     `json:"status"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ToAccountDTO converts a domain account to its API projection.
func ToAccountDTO(acc *account.Account) AccountDTO {
	return AccountDTO{
		ID:            acc.ID(),
		Email:         acc.Email(),
		Username:      acc.Username(),
		FirstName:     acc.FirstName(),
		LastName:      acc.LastName(),
		EmailVerified: acc.EmailVerified(),
		Status:        acc.Status().String(),
		LastLogin:     acc.LastLogin(),
		CreatedAt:     acc.CreatedAt(),
	}
}

// RegisterResponse represents the registration response.
type RegisterResponse struct {
	Account AccountDTO `json:"account"`
	Message string     `json:"message"`
}

// LoginResponse represents the login response.
type LoginResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresIn    int        `json:"expires_in"`
	Account      AccountDTO `json:"account"`
}

// RefreshResponse represents the token refresh response.
type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// AuthService defines the authentication operations the handler needs.
// Declared on the consumer side per project guidelines; satisfied by
// service.AuthService.
type AuthService interface {
	Register(ctx context.Context, input service.RegisterInput) (*account.Account, error)
	Login(ctx context.Context, email, password string) (*service.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*service.RefreshResult, error)
	Logout(ctx context.Context, userID uuid.UUID, refreshToken, accessToken string) error
	LogoutAll(ctx context.Context, userID uuid.UUID, accessToken string) error
	VerifyEmail(ctx context.Context, token string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	GetAccount(ctx context.Context, userID uuid.UUID) (*account.Account, error)
}

// AuthHandler handles authentication-related HTTP requests.
type AuthHandler struct {
	svc            AuthService
	logger         *slog.Logger
	accessTokenTTL time.Duration
	cookieName     string
	metrics        *metrics.AuthMetrics

	// loginLimiter guards the credential endpoints. Nil disables it.
	loginLimiter echo.MiddlewareFunc
}

// AuthHandlerConfig holds the dependencies for AuthHandler.
type AuthHandlerConfig struct {
	Service        AuthService
	Logger         *slog.Logger
	AccessTokenTTL time.Duration
	CookieName     string
	LoginLimiter   echo.MiddlewareFunc

	// Metrics is optional; a nil value disables metric recording.
	Metrics *metrics.AuthMetrics
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(cfg AuthHandlerConfig) *AuthHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = DefaultAccessTokenCookie
	}

	return &AuthHandler{
		svc:            cfg.Service,
		logger:         logger,
		accessTokenTTL: cfg.AccessTokenTTL,
		cookieName:     cookieName,
		metrics:        cfg.Metrics,
		loginLimiter:   cfg.LoginLimiter,
	}
}

// RegisterRoutes registers auth routes with the router.
func (h *AuthHandler) RegisterRoutes(r *httpserver.Router) {
	limited := []echo.MiddlewareFunc{}
	if h.loginLimiter != nil {
		limited = append(limited, h.loginLimiter)
	}

	// Public routes (no auth required)
	r.Public().POST("/auth/register", h.Register, limited...)
	r.Public().POST("/auth/login", h.Login, limited...)
	r.Public().POST("/auth/refresh-token", h.Refresh)
	r.Public().GET("/auth/verify-email/:token", h.VerifyEmail)
	r.Public().POST("/auth/request-password-reset", h.RequestPasswordReset, limited...)
	r.Public().POST("/auth/reset-password/:token", h.ResetPassword)

	// Authenticated routes
	r.Auth().POST("/auth/logout", h.Logout)
	r.Auth().POST("/auth/logout-all", h.LogoutAll)
	r.Auth().GET("/auth/me", h.Me)
}

// Register handles POST /api/v1/auth/register.
// Creates a pending account that must verify its email before logging in.
func (h *AuthHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
	}

	req.Email = strings.TrimSpace(req.Email)
	if err := validateEmail(req.Email); err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	}
	if err := validatePassword(req.Password); err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	}
	if err := validateUsername(req.Username); err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	}

	acc, err := h.svc.Register(c.Request().Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		Username:  req.Username,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDuplicateEmail):
			return httpserver.RespondErrorWithCode(
				c, http.StatusConflict, "DUPLICATE_EMAIL", "An account with this email already exists")
		case errors.Is(err, service.ErrDuplicateUsername):
			return httpserver.RespondErrorWithCode(
				c, http.StatusConflict, "DUPLICATE_USERNAME", "This username is already taken")
		default:
			h.logger.Error("registration failed", slog.String("error", err.Error()))
			return httpserver.RespondError(c, err)
		}
	}

	h.metrics.RecordRegistration()

	return httpserver.RespondCreated(c, RegisterResponse{
		Account: ToAccountDTO(acc),
		Message: "Registration successful. Please verify your email address.",
	})
}

// Login handles POST /api/v1/auth/login.
// On success it returns both tokens and sets the access token cookie for
// browser clients.
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
	}

	if req.Email == "" || req.Password == "" {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "VALIDATION_ERROR", "Email and password are required")
	}

	start := time.Now()
	result, err := h.svc.Login(c.Request().Context(), strings.TrimSpace(req.Email), req.Password)
	h.metrics.RecordLogin(loginResultLabel(err), time.Since(start).Seconds())
	if err != nil {
		return h.respondLoginError(c, err)
	}

	setAccessTokenCookie(c, h.cookieName, result.AccessToken, h.accessTokenTTL)

	return httpserver.RespondOK(c, LoginResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    int(h.accessTokenTTL.Seconds()),
		Account:      ToAccountDTO(result.Account),
	})
}

// Refresh handles POST /api/v1/auth/refresh-token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req RefreshRequest
	if err := c.Bind(&req); err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
	}

	if req.RefreshToken == "" {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "VALIDATION_ERROR", "Refresh token is required")
	}

	result, err := h.svc.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		h.metrics.RecordTokenRefresh(refreshResultLabel(err))
		switch {
		case errors.Is(err, service.ErrInvalidTokenType):
			return httpserver.RespondErrorWithCode(
				c, http.StatusUnauthorized, "INVALID_TOKEN_TYPE", "Unexpected token type")
		case errors.Is(err, service.ErrInvalidRefreshToken):
			return httpserver.RespondErrorWithCode(
				c, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "Refresh token is invalid or expired")
		case errors.Is(err, service.ErrUserNotFound):
			return httpserver.RespondErrorWithCode(
				c, http.StatusUnauthorized, "USER_NOT_FOUND", "User not found")
		case errors.Is(err, service.ErrAccountNotActive):
			return h.respondAccountNotActive(c, err)
		default:
			h.logger.Error("token refresh failed", slog.String("error", err.Error()))
			return httpserver.RespondError(c, err)
		}
	}

	h.metrics.RecordTokenRefresh("success")
	setAccessTokenCookie(c, h.cookieName, result.AccessToken, h.accessTokenTTL)

	return httpserver.RespondOK(c, RefreshResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    int(h.accessTokenTTL.Seconds()),
	})
}

// Logout handles POST /api/v1/auth/logout.
// Removes the presented refresh session, blacklists the current access token
// for its remaining lifetime and clears the cookie.
func (h *AuthHandler) Logout(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID.IsZero() {
		return httpserver.RespondErrorWithCode(
			c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
	}

	var req LogoutRequest
	// The body is optional: a logout without a refresh token still revokes
	// the access token.
	_ = c.Bind(&req)

	accessToken := middleware.GetAccessToken(c)
	if err := h.svc.Logout(c.Request().Context(), userID, req.RefreshToken, accessToken); err != nil {
		h.logger.Error("logout failed",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()),
		)
		return httpserver.RespondError(c, err)
	}

	h.metrics.RecordLogout("single")
	clearAccessTokenCookie(c, h.cookieName)

	return httpserver.RespondOK(c, map[string]string{
		"message": "Logged out successfully",
	})
}

// LogoutAll handles POST /api/v1/auth/logout-all.
// Removes every refresh session for the account.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID.IsZero() {
		return httpserver.RespondErrorWithCode(
			c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
	}

	accessToken := middleware.GetAccessToken(c)
	if err := h.svc.LogoutAll(c.Request().Context(), userID, accessToken); err != nil {
		h.logger.Error("logout all failed",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()),
		)
		return httpserver.RespondError(c, err)
	}

	h.metrics.RecordLogout("all")
	clearAccessTokenCookie(c, h.cookieName)

	return httpserver.RespondOK(c, map[string]string{
		"message": "Logged out from all devices",
	})
}

// VerifyEmail handles GET /api/v1/auth/verify-email/:token.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	token := c.Param("token")
	if token == "" {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "VALIDATION_ERROR", "Verification token is required")
	}

	if err := h.svc.VerifyEmail(c.Request().Context(), token); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidTokenType):
			return httpserver.RespondErrorWithCode(
				c, http.StatusBadRequest, "INVALID_TOKEN_TYPE", "Unexpected token type")
		case errors.Is(err, service.ErrInvalidOrExpiredToken):
			return httpserver.RespondErrorWithCode(
				c, http.StatusBadRequest, "INVALID_OR_EXPIRED_TOKEN",
				"Verification token is invalid or expired")
		default:
			h.logger.Error("email verification failed", slog.String("error", err.Error()))
			return httpserver.RespondError(c, err)
		}
	}

	return httpserver.RespondOK(c, map[string]string{
		"message": "Email verified successfully",
	})
}

// RequestPasswordReset handles POST /api/v1/auth/request-password-reset.
// The response never reveals whether an account exists for the address.
func (h *AuthHandler) RequestPasswordReset(c echo.Context) error {
	var req PasswordResetRequest
	if err := c.Bind(&req); err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
	}

	if err := validateEmail(strings.TrimSpace(req.Email)); err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	}

	if err := h.svc.RequestPasswordReset(c.Request().Context(), strings.TrimSpace(req.Email)); err != nil {
		// Logged but not surfaced: the response must not depend on whether
		// the account exists or the reset could be stored.
		h.logger.Error("password reset request failed", slog.String("error", err.Error()))
	}

	return httpserver.RespondOK(c, map[string]string{
		"message": "If an account exists for this address, a reset link has been sent",
	})
}

// ResetPassword handles POST /api/v1/auth/reset-password/:token.
// A successful reset revokes every session of the account.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	token := c.Param("token")
	if token == "" {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "VALIDATION_ERROR", "Reset token is required")
	}

	var req ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
	}

	if err := validatePassword(req.Password); err != nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	}

	if err := h.svc.ResetPassword(c.Request().Context(), token, req.Password); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidTokenType):
			return httpserver.RespondErrorWithCode(
				c, http.StatusBadRequest, "INVALID_TOKEN_TYPE", "Unexpected token type")
		case errors.Is(err, service.ErrInvalidOrExpiredToken):
			return httpserver.RespondErrorWithCode(
				c, http.StatusBadRequest, "INVALID_OR_EXPIRED_TOKEN",
				"Reset token is invalid or expired")
		default:
			h.logger.Error("password reset failed", slog.String("error", err.Error()))
			return httpserver.RespondError(c, err)
		}
	}

	return httpserver.RespondOK(c, map[string]string{
		"message": "Password has been reset. Please log in with your new password.",
	})
}

// Me handles GET /api/v1/auth/me.
// Returns the current authenticated account.
func (h *AuthHandler) Me(c echo.Context) error {
	acc := middleware.GetAccount(c)
	if acc == nil {
		return httpserver.RespondErrorWithCode(
			c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
	}

	return httpserver.RespondOK(c, ToAccountDTO(acc))
}

// loginResultLabel maps a login outcome to a metric label.
func loginResultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, service.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, service.ErrAccountNotActive):
		return "not_active"
	default:
		return "error"
	}
}

// refreshResultLabel maps a failed refresh to a metric label.
func refreshResultLabel(err error) string {
	switch {
	case errors.Is(err, service.ErrInvalidRefreshToken),
		errors.Is(err, service.ErrInvalidTokenType),
		errors.Is(err, service.ErrUserNotFound):
		return "invalid"
	default:
		return "error"
	}
}

// respondLoginError maps login failures to HTTP responses. Unknown email and
// wrong password produce the same response.
func (h *AuthHandler) respondLoginError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return httpserver.RespondErrorWithCode(
			c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
	case errors.Is(err, service.ErrAccountNotActive):
		return h.respondAccountNotActive(c, err)
	default:
		h.logger.Error("login failed", slog.String("error", err.Error()))
		return httpserver.RespondError(c, err)
	}
}

// respondAccountNotActive includes the account status so clients can tell a
// pending account from a suspended one.
func (h *AuthHandler) respondAccountNotActive(c echo.Context, err error) error {
	var details map[string]string
	var notActive *service.AccountNotActiveError
	if errors.As(err, &notActive) {
		details = map[string]string{"status": notActive.Status.String()}
	}

	return httpserver.RespondErrorWithDetails(
		c, http.StatusUnauthorized, "ACCOUNT_NOT_ACTIVE", "Account is not active", details)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/planiversary/planiversary/internal/domain/account"
	"github.com/planiversary/planiversary/internal/domain/errs"
	"github.com/planiversary/planiversary/internal/domain/uuid"
	"github.com/planiversary/planiversary/internal/infrastructure/auth"
)

// AuthService errors. These are the expected, recoverable conditions the
// HTTP layer maps to 4xx responses; anything else is a 500.
var (
	ErrDuplicateEmail        = errors.New("email is already registered")
	ErrDuplicateUsername     = errors.New("username is already taken")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrAccountNotActive      = errors.New("account is not active")
	ErrInvalidTokenType      = errors.New("unexpected token type")
	ErrInvalidRefreshToken   = errors.New("invalid refresh token")
	ErrInvalidOrExpiredToken = errors.New("token is invalid or has expired")
	ErrUserNotFound          = errors.New("user not found")
)

// AccountNotActiveError carries the account status so the HTTP layer can
// include it in the error payload. It matches ErrAccountNotActive under
// errors.Is.
type AccountNotActiveError struct {
	Status account.Status
}

func (e *AccountNotActiveError) Error() string {
	return fmt.Sprintf("account is not active: status is %s", e.Status)
}

// Is makes errors.Is(err, ErrAccountNotActive) succeed.
func (e *AccountNotActiveError) Is(target error) bool {
	return target == ErrAccountNotActive
}

// AuthAccountRepository defines the account storage operations the service
// needs. Declared on the consumer side per project guidelines.
type AuthAccountRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*account.Account, error)
	FindByEmail(ctx context.Context, email string) (*account.Account, error)
	FindByVerificationToken(ctx context.Context, token string) (*account.Account, error)
	FindByResetToken(ctx context.Context, token string) (*account.Account, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, acc *account.Account) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	SetEmailVerification(ctx context.Context, id uuid.UUID, verified bool) error
	SetResetToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateAccountStatus(ctx context.Context, id uuid.UUID, status account.Status) error
}

// AuthSessionStore defines the session tracking operations the service
// needs. Declared on the consumer side per project guidelines.
type AuthSessionStore interface {
	AddSession(ctx context.Context, userID uuid.UUID, refreshToken string, ttl time.Duration) error
	IsValidSession(ctx context.Context, userID uuid.UUID, refreshToken string) (bool, error)
	RemoveSession(ctx context.Context, userID uuid.UUID, refreshToken string) error
	RemoveAllSessions(ctx context.Context, userID uuid.UUID) error
	BlacklistAccessToken(ctx context.Context, token string, ttl time.Duration) error
}

// AuthTokenCodec defines the token operations the service needs.
type AuthTokenCodec interface {
	Issue(userID uuid.UUID, email string, tokenType auth.TokenType, ttl time.Duration) (string, error)
	Decode(token string) (*auth.Claims, error)
}

// AuthPasswordHasher defines the credential hashing operations the service
// needs.
type AuthPasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// AuthService orchestrates registration, login, token refresh, logout,
// email verification and password reset over the account repository, the
// session store and the token codec.
type AuthService struct {
	accounts AuthAccountRepository
	sessions AuthSessionStore
	codec    AuthTokenCodec
	hasher   AuthPasswordHasher
	logger   *slog.Logger

	accessTokenTTL       time.Duration
	refreshTokenTTL      time.Duration
	verificationTokenTTL time.Duration
	resetTokenTTL        time.Duration
	rotateRefreshTokens  bool
}

// AuthServiceConfig contains dependencies and settings for AuthService.
type AuthServiceConfig struct {
	Accounts AuthAccountRepository
	Sessions AuthSessionStore
	Codec    AuthTokenCodec
	Hasher   AuthPasswordHasher
	Logger   *slog.Logger

	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	VerificationTokenTTL time.Duration
	ResetTokenTTL        time.Duration

	// RotateRefreshTokens replaces the presented refresh token with a fresh
	// one on every refresh call.
	RotateRefreshTokens bool
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg AuthServiceConfig) *AuthService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthService{
		accounts:             cfg.Accounts,
		sessions:             cfg.Sessions,
		codec:                cfg.Codec,
		hasher:               cfg.Hasher,
		logger:               logger,
		accessTokenTTL:       cfg.AccessTokenTTL,
		refreshTokenTTL:      cfg.RefreshTokenTTL,
		verificationTokenTTL: cfg.VerificationTokenTTL,
		resetTokenTTL:        cfg.ResetTokenTTL,
		rotateRefreshTokens:  cfg.RotateRefreshTokens,
	}
}

// RegisterInput carries the registration request data.
type RegisterInput struct {
	Email     string
	Password  string
	Username  string
	FirstName string
	LastName  string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Account      *account.Account
	AccessToken  string
	RefreshToken string
}

// RefreshResult is returned by a successful token refresh. RefreshToken
// equals the presented token unless rotation is enabled.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
}

// Register creates a new account in pending status with a fresh email
// verification token stored on the record. It does not create a session:
// the account cannot authenticate until the email is verified.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*account.Account, error) {
	if input.Username != "" {
		taken, err := s.accounts.ExistsByUsername(ctx, input.Username)
		if err != nil {
			return nil, fmt.Errorf("failed to check username: %w", err)
		}
		if taken {
			return nil, ErrDuplicateUsername
		}
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	acc, err := account.NewAccount(input.Email, hash, input.Username, input.FirstName, input.LastName)
	if err != nil {
		return nil, err
	}

	verificationToken, err := s.codec.Issue(acc.ID(), acc.Email(), auth.TokenTypeVerification, s.verificationTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue verification token: %w", err)
	}
	acc.SetVerificationToken(verificationToken, time.Now().Add(s.verificationTokenTTL))

	if createErr := s.accounts.Create(ctx, acc); createErr != nil {
		if errors.Is(createErr, errs.ErrAlreadyExists) {
			return nil, s.classifyDuplicate(ctx, input.Username)
		}
		return nil, fmt.Errorf("failed to create account: %w", createErr)
	}

	s.logger.InfoContext(ctx, "account registered",
		slog.String("account_id", acc.ID().String()),
	)

	return acc, nil
}

// classifyDuplicate attributes a unique-index violation on create. The
// username pre-check can lose a race with a concurrent registration, so the
// username index is re-checked before blaming the email.
func (s *AuthService) classifyDuplicate(ctx context.Context, username string) error {
	if username != "" {
		taken, err := s.accounts.ExistsByUsername(ctx, username)
		if err == nil && taken {
			return ErrDuplicateUsername
		}
	}
	return ErrDuplicateEmail
}

// Login authenticates the credentials and opens a new session. The same
// ErrInvalidCredentials is returned for an unknown email and for a password
// mismatch so callers cannot tell which it was.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	acc, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	if !s.hasher.Verify(password, acc.PasswordHash()) {
		return nil, ErrInvalidCredentials
	}

	if !acc.CanAuthenticate() {
		return nil, &AccountNotActiveError{Status: acc.Status()}
	}

	accessToken, err := s.codec.Issue(acc.ID(), acc.Email(), auth.TokenTypeAccess, s.accessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	refreshToken, err := s.codec.Issue(acc.ID(), acc.Email(), auth.TokenTypeRefresh, s.refreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}

	// The session must be resolvable before the client holds the token.
	if addErr := s.sessions.AddSession(ctx, acc.ID(), refreshToken, s.refreshTokenTTL); addErr != nil {
		return nil, fmt.Errorf("failed to register session: %w", addErr)
	}

	now := time.Now()
	if loginErr := s.accounts.UpdateLastLogin(ctx, acc.ID(), now); loginErr != nil {
		// The session is already live; losing the timestamp is acceptable.
		s.logger.WarnContext(ctx, "failed to update last login",
			slog.String("account_id", acc.ID().String()),
			slog.String("error", loginErr.Error()),
		)
	}
	acc.RecordLogin(now)

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("account_id", acc.ID().String()),
	)

	return &LoginResult{
		Account:      acc,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Refresh exchanges a live refresh token for a new access token. The
// refresh token itself is only replaced when rotation is enabled.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	claims, err := s.codec.Decode(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err)
	}

	if claims.Type != auth.TokenTypeRefresh {
		return nil, ErrInvalidTokenType
	}

	userID := claims.AccountID()

	valid, err := s.sessions.IsValidSession(ctx, userID, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to check session: %w", err)
	}
	if !valid {
		return nil, ErrInvalidRefreshToken
	}

	acc, err := s.accounts.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	if !acc.CanAuthenticate() {
		return nil, &AccountNotActiveError{Status: acc.Status()}
	}

	accessToken, err := s.codec.Issue(acc.ID(), acc.Email(), auth.TokenTypeAccess, s.accessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	result := &RefreshResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}

	if s.rotateRefreshTokens {
		rotated, rotateErr := s.rotateSession(ctx, acc, refreshToken)
		if rotateErr != nil {
			return nil, rotateErr
		}
		result.RefreshToken = rotated
	}

	return result, nil
}

// rotateSession replaces the presented refresh token with a fresh one. The
// new session is registered before the old one is removed, so a failure in
// between never leaves the user without a live session.
func (s *AuthService) rotateSession(ctx context.Context, acc *account.Account, oldToken string) (string, error) {
	newToken, err := s.codec.Issue(acc.ID(), acc.Email(), auth.TokenTypeRefresh, s.refreshTokenTTL)
	if err != nil {
		return "", fmt.Errorf("failed to issue refresh token: %w", err)
	}

	if addErr := s.sessions.AddSession(ctx, acc.ID(), newToken, s.refreshTokenTTL); addErr != nil {
		return "", fmt.Errorf("failed to register session: %w", addErr)
	}

	if removeErr := s.sessions.RemoveSession(ctx, acc.ID(), oldToken); removeErr != nil {
		s.logger.WarnContext(ctx, "failed to remove rotated session",
			slog.String("account_id", acc.ID().String()),
			slog.String("error", removeErr.Error()),
		)
	}

	return newToken, nil
}

// Logout closes a single session. If the current access token is supplied
// it is blacklisted for its remaining lifetime so revocation takes effect
// immediately. Removing an absent session is not an error.
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID, refreshToken, accessToken string) error {
	if refreshToken != "" {
		if err := s.sessions.RemoveSession(ctx, userID, refreshToken); err != nil {
			return fmt.Errorf("failed to remove session: %w", err)
		}
	}

	if accessToken != "" {
		s.blacklistAccessToken(ctx, userID, accessToken)
	}

	s.logger.InfoContext(ctx, "user logged out",
		slog.String("account_id", userID.String()),
	)

	return nil
}

// LogoutAll closes every session of the user.
func (s *AuthService) LogoutAll(ctx context.Context, userID uuid.UUID, accessToken string) error {
	if err := s.sessions.RemoveAllSessions(ctx, userID); err != nil {
		return fmt.Errorf("failed to remove sessions: %w", err)
	}

	if accessToken != "" {
		s.blacklistAccessToken(ctx, userID, accessToken)
	}

	s.logger.InfoContext(ctx, "user logged out everywhere",
		slog.String("account_id", userID.String()),
	)

	return nil
}

// blacklistAccessToken revokes the access token for its remaining lifetime.
// Failure is logged but does not fail the logout: the session is already
// gone and the token expires on its own.
func (s *AuthService) blacklistAccessToken(ctx context.Context, userID uuid.UUID, accessToken string) {
	claims, err := s.codec.Decode(accessToken)
	if err != nil || claims.Type != auth.TokenTypeAccess {
		return
	}

	ttl := claims.RemainingLifetime(time.Now())
	if blacklistErr := s.sessions.BlacklistAccessToken(ctx, accessToken, ttl); blacklistErr != nil {
		s.logger.WarnContext(ctx, "failed to blacklist access token",
			slog.String("account_id", userID.String()),
			slog.String("error", blacklistErr.Error()),
		)
	}
}

// VerifyEmail confirms an email address. The stored verification token
// column is the source of truth: the presented token must decode as a
// verification token and match the column, and the column's expiry must not
// have passed.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	claims, err := s.codec.Decode(token)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOrExpiredToken, err)
	}

	if claims.Type != auth.TokenTypeVerification {
		return ErrInvalidTokenType
	}

	acc, err := s.accounts.FindByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("failed to look up account: %w", err)
	}

	if !acc.HasValidVerificationToken(time.Now()) {
		return ErrInvalidOrExpiredToken
	}

	if verifyErr := acc.VerifyEmail(); verifyErr != nil {
		return verifyErr
	}

	if err = s.accounts.SetEmailVerification(ctx, acc.ID(), true); err != nil {
		return fmt.Errorf("failed to persist verification: %w", err)
	}
	if err = s.accounts.UpdateAccountStatus(ctx, acc.ID(), acc.Status()); err != nil {
		return fmt.Errorf("failed to persist status: %w", err)
	}

	s.logger.InfoContext(ctx, "email verified",
		slog.String("account_id", acc.ID().String()),
	)

	return nil
}

// RequestPasswordReset stores a fresh reset token on the account if the
// email is registered. It never reveals whether the email exists: the
// caller must respond identically either way.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	acc, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to look up account: %w", err)
	}

	resetToken, err := s.codec.Issue(acc.ID(), acc.Email(), auth.TokenTypeReset, s.resetTokenTTL)
	if err != nil {
		return fmt.Errorf("failed to issue reset token: %w", err)
	}

	expiresAt := time.Now().Add(s.resetTokenTTL)
	if setErr := s.accounts.SetResetToken(ctx, acc.ID(), resetToken, expiresAt); setErr != nil {
		return fmt.Errorf("failed to store reset token: %w", setErr)
	}

	s.logger.InfoContext(ctx, "password reset requested",
		slog.String("account_id", acc.ID().String()),
	)

	return nil
}

// ResetPassword sets a new password and voids every outstanding session: a
// changed password must immediately invalidate prior refresh tokens.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	claims, err := s.codec.Decode(token)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOrExpiredToken, err)
	}

	if claims.Type != auth.TokenTypeReset {
		return ErrInvalidTokenType
	}

	acc, err := s.accounts.FindByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("failed to look up account: %w", err)
	}

	if !acc.HasValidResetToken(time.Now()) {
		return ErrInvalidOrExpiredToken
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	// UpdatePassword also clears the reset token column.
	if updateErr := s.accounts.UpdatePassword(ctx, acc.ID(), hash); updateErr != nil {
		return fmt.Errorf("failed to update password: %w", updateErr)
	}

	if removeErr := s.sessions.RemoveAllSessions(ctx, acc.ID()); removeErr != nil {
		return fmt.Errorf("failed to revoke sessions: %w", removeErr)
	}

	s.logger.InfoContext(ctx, "password reset completed",
		slog.String("account_id", acc.ID().String()),
	)

	return nil
}

// GetAccount loads an account by ID for authenticated request handling.
func (s *AuthService) GetAccount(ctx context.Context, userID uuid.UUID) (*account.Account, error) {
	acc, err := s.accounts.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	return acc, nil
}

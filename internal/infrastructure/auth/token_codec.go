package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/planiversary/planiversary/internal/domain/uuid"
)

// Token codec errors. ErrExpiredToken and ErrInvalidToken are distinct so
// callers can tell "log in again" apart from possible tampering.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// TokenType identifies the purpose a token was issued for. A token of one
// type must never be accepted where another type is expected.
type TokenType string

// Token types.
const (
	TokenTypeAccess       TokenType = "access"
	TokenTypeRefresh      TokenType = "refresh"
	TokenTypeVerification TokenType = "verification"
	TokenTypeReset        TokenType = "reset"
)

// IsValid reports whether t is a known token type.
func (t TokenType) IsValid() bool {
	switch t {
	case TokenTypeAccess, TokenTypeRefresh, TokenTypeVerification, TokenTypeReset:
		return true
	}
	return false
}

// Claims is the minimal claim set carried by every token.
type Claims struct {
	UserID string    `json:"user_id,omitempty"`
	Email  string    `json:"email,omitempty"`
	Type   TokenType `json:"type"`
	jwt.RegisteredClaims
}

// AccountID returns the user_id claim as a domain UUID.
func (c *Claims) AccountID() uuid.UUID {
	return uuid.UUID(c.UserID)
}

// TokenCodecConfig contains configuration for TokenCodec.
type TokenCodecConfig struct {
	// Secret is the shared HMAC signing secret. It comes from process
	// configuration so it can be rotated without code changes.
	Secret string

	// Issuer is the iss claim on issued tokens.
	Issuer string
}

// TokenCodec signs and verifies compact, expiring, typed tokens using
// HS256 with a single shared secret.
type TokenCodec struct {
	secret []byte
	issuer string
}

const defaultIssuer = "planiversary"

// NewTokenCodec creates a new TokenCodec.
func NewTokenCodec(cfg TokenCodecConfig) *TokenCodec {
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = defaultIssuer
	}

	return &TokenCodec{
		secret: []byte(cfg.Secret),
		issuer: issuer,
	}
}

// Issue signs a token of the given type with the given TTL.
func (c *TokenCodec) Issue(userID uuid.UUID, email string, tokenType TokenType, ttl time.Duration) (string, error) {
	if !tokenType.IsValid() {
		return "", fmt.Errorf("%w: unknown token type %q", ErrInvalidToken, tokenType)
	}

	now := time.Now()
	claims := Claims{
		UserID: userID.String(),
		Email:  email,
		Type:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and expiry of a token and returns its claims.
// An elapsed exp yields ErrExpiredToken; any other failure yields
// ErrInvalidToken.
func (c *TokenCodec) Decode(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.Type.IsValid() {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// RemainingLifetime returns how long a decoded token is still valid for.
// Used when blacklisting an access token: the blacklist entry only needs to
// outlive the token itself.
func (c *Claims) RemainingLifetime(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	remaining := c.ExpiresAt.Time.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

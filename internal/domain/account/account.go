// Package account contains the account aggregate and its lifecycle rules.
package account

import (
	"strings"
	"time"

	"github.com/planiversary/planiversary/internal/domain/errs"
	"github.com/planiversary/planiversary/internal/domain/uuid"
)

// Status represents the lifecycle state of an account.
type Status string

// Account lifecycle states.
const (
	// StatusPending is the initial state: registered but email not verified.
	StatusPending Status = "pending"

	// StatusActive is the only state that allows authentication.
	StatusActive Status = "active"

	// StatusSuspended blocks authentication; set by an administrator.
	StatusSuspended Status = "suspended"

	// StatusDeleted is a terminal state.
	StatusDeleted Status = "deleted"
)

// IsValid reports whether s is a known account status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusSuspended, StatusDeleted:
		return true
	}
	return false
}

// String returns the status as a string.
func (s Status) String() string {
	return string(s)
}

// Account is the aggregate root for a registered user.
// The password hash and the verification/reset token columns are internal
// state and must never be serialized to clients.
type Account struct {
	id           uuid.UUID
	email        string
	username     string
	passwordHash string
	firstName    string
	lastName     string

	emailVerified               bool
	verificationToken           string
	verificationTokenExpiresAt  *time.Time
	resetToken                  string
	resetTokenExpiresAt         *time.Time

	status    Status
	lastLogin *time.Time
	createdAt time.Time
	updatedAt time.Time
}

// NewAccount creates a freshly registered account in pending status.
// The email is normalized to lower case for case-insensitive lookup.
func NewAccount(email, passwordHash, username, firstName, lastName string) (*Account, error) {
	if email == "" {
		return nil, errs.ErrInvalidInput
	}
	if passwordHash == "" {
		return nil, errs.ErrInvalidInput
	}

	now := time.Now().UTC()
	return &Account{
		id:           uuid.NewUUID(),
		email:        strings.ToLower(email),
		username:     username,
		passwordHash: passwordHash,
		firstName:    firstName,
		lastName:     lastName,
		status:       StatusPending,
		createdAt:    now,
		updatedAt:    now,
	}, nil
}

// Reconstruct rebuilds an account from storage.
func Reconstruct(
	id uuid.UUID,
	email, username, passwordHash, firstName, lastName string,
	emailVerified bool,
	verificationToken string, verificationTokenExpiresAt *time.Time,
	resetToken string, resetTokenExpiresAt *time.Time,
	status Status,
	lastLogin *time.Time,
	createdAt, updatedAt time.Time,
) *Account {
	return &Account{
		id:                         id,
		email:                      email,
		username:                   username,
		passwordHash:               passwordHash,
		firstName:                  firstName,
		lastName:                   lastName,
		emailVerified:              emailVerified,
		verificationToken:          verificationToken,
		verificationTokenExpiresAt: verificationTokenExpiresAt,
		resetToken:                 resetToken,
		resetTokenExpiresAt:        resetTokenExpiresAt,
		status:                     status,
		lastLogin:                  lastLogin,
		createdAt:                  createdAt,
		updatedAt:                  updatedAt,
	}
}

// ID returns the account identifier.
func (a *Account) ID() uuid.UUID { return a.id }

// Email returns the normalized email address.
func (a *Account) Email() string { return a.email }

// Username returns the optional unique username.
func (a *Account) Username() string { return a.username }

// PasswordHash returns the stored credential hash.
func (a *Account) PasswordHash() string { return a.passwordHash }

// FirstName returns the first name.
func (a *Account) FirstName() string { return a.firstName }

// LastName returns the last name.
func (a *Account) LastName() string { return a.lastName }

// EmailVerified reports whether the email has been confirmed.
func (a *Account) EmailVerified() bool { return a.emailVerified }

// Status returns the current lifecycle state.
func (a *Account) Status() Status { return a.status }

// LastLogin returns the time of the last successful login, or nil.
func (a *Account) LastLogin() *time.Time { return a.lastLogin }

// CreatedAt returns the creation time.
func (a *Account) CreatedAt() time.Time { return a.createdAt }

// UpdatedAt returns the time of the last modification.
func (a *Account) UpdatedAt() time.Time { return a.updatedAt }

// VerificationToken returns the pending verification token, or "".
func (a *Account) VerificationToken() string { return a.verificationToken }

// VerificationTokenExpiresAt returns the verification token expiry, or nil.
func (a *Account) VerificationTokenExpiresAt() *time.Time { return a.verificationTokenExpiresAt }

// ResetToken returns the pending reset token, or "".
func (a *Account) ResetToken() string { return a.resetToken }

// ResetTokenExpiresAt returns the reset token expiry, or nil.
func (a *Account) ResetTokenExpiresAt() *time.Time { return a.resetTokenExpiresAt }

// CanAuthenticate reports whether the account may log in.
// Any non-active status blocks authentication.
func (a *Account) CanAuthenticate() bool {
	return a.status == StatusActive
}

// HasValidVerificationToken reports whether the stored verification token is
// present and not expired at the given instant. An expired token is treated
// as absent even though the column is still set.
func (a *Account) HasValidVerificationToken(now time.Time) bool {
	if a.verificationToken == "" {
		return false
	}
	if a.verificationTokenExpiresAt != nil && a.verificationTokenExpiresAt.Before(now) {
		return false
	}
	return true
}

// HasValidResetToken reports whether the stored reset token is present and
// not expired at the given instant.
func (a *Account) HasValidResetToken(now time.Time) bool {
	if a.resetToken == "" {
		return false
	}
	if a.resetTokenExpiresAt != nil && a.resetTokenExpiresAt.Before(now) {
		return false
	}
	return true
}

// SetVerificationToken stores a new verification token with its expiry.
func (a *Account) SetVerificationToken(token string, expiresAt time.Time) {
	a.verificationToken = token
	a.verificationTokenExpiresAt = &expiresAt
	a.touch()
}

// SetResetToken stores a new password reset token with its expiry.
func (a *Account) SetResetToken(token string, expiresAt time.Time) {
	a.resetToken = token
	a.resetTokenExpiresAt = &expiresAt
	a.touch()
}

// VerifyEmail marks the email as confirmed, clears the verification token
// and activates a pending account. Verifying a suspended or deleted account
// is an invalid transition.
func (a *Account) VerifyEmail() error {
	if a.status == StatusSuspended || a.status == StatusDeleted {
		return errs.ErrInvalidTransition
	}

	a.emailVerified = true
	a.verificationToken = ""
	a.verificationTokenExpiresAt = nil
	if a.status == StatusPending {
		a.status = StatusActive
	}
	a.touch()
	return nil
}

// ChangePassword replaces the credential hash and clears any pending reset
// token.
func (a *Account) ChangePassword(newHash string) error {
	if newHash == "" {
		return errs.ErrInvalidInput
	}
	a.passwordHash = newHash
	a.resetToken = ""
	a.resetTokenExpiresAt = nil
	a.touch()
	return nil
}

// RecordLogin stores the time of a successful authentication.
func (a *Account) RecordLogin(at time.Time) {
	t := at.UTC()
	a.lastLogin = &t
	a.touch()
}

func (a *Account) touch() {
	a.updatedAt = time.Now().UTC()
}

package account_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planiversary/planiversary/internal/domain/account"
	"github.com/planiversary/planiversary/internal/domain/errs"
)

func newTestAccount(t *testing.T) *account.Account {
	t.Helper()
	a, err := account.NewAccount("Alice@Example.com", "$2a$12$hash", "alice", "Alice", "Smith")
	require.NoError(t, err)
	return a
}

func TestNewAccount(t *testing.T) {
	t.Run("starts pending and unverified", func(t *testing.T) {
		a := newTestAccount(t)

		assert.Equal(t, account.StatusPending, a.Status())
		assert.False(t, a.EmailVerified())
		assert.False(t, a.CanAuthenticate())
		assert.False(t, a.ID().IsZero())
		assert.Nil(t, a.LastLogin())
	})

	t.Run("normalizes email to lower case", func(t *testing.T) {
		a := newTestAccount(t)
		assert.Equal(t, "alice@example.com", a.Email())
	})

	t.Run("rejects empty email", func(t *testing.T) {
		_, err := account.NewAccount("", "hash", "", "", "")
		require.ErrorIs(t, err, errs.ErrInvalidInput)
	})

	t.Run("rejects empty password hash", func(t *testing.T) {
		_, err := account.NewAccount("a@b.c", "", "", "", "")
		require.ErrorIs(t, err, errs.ErrInvalidInput)
	})
}

func TestAccount_VerifyEmail(t *testing.T) {
	t.Run("activates a pending account and clears the token", func(t *testing.T) {
		a := newTestAccount(t)
		a.SetVerificationToken("tok", time.Now().Add(24*time.Hour))

		require.NoError(t, a.VerifyEmail())

		assert.True(t, a.EmailVerified())
		assert.Equal(t, account.StatusActive, a.Status())
		assert.True(t, a.CanAuthenticate())
		assert.Empty(t, a.VerificationToken())
		assert.Nil(t, a.VerificationTokenExpiresAt())
	})

	t.Run("rejects verification of a suspended account", func(t *testing.T) {
		a := account.Reconstruct(
			newTestAccount(t).ID(),
			"alice@example.com", "alice", "hash", "Alice", "Smith",
			false, "tok", nil, "", nil,
			account.StatusSuspended, nil,
			time.Now(), time.Now(),
		)

		require.ErrorIs(t, a.VerifyEmail(), errs.ErrInvalidTransition)
		assert.False(t, a.CanAuthenticate())
	})
}

func TestAccount_TokenValidity(t *testing.T) {
	now := time.Now()

	t.Run("expired verification token is treated as absent", func(t *testing.T) {
		a := newTestAccount(t)
		a.SetVerificationToken("tok", now.Add(-time.Minute))

		assert.False(t, a.HasValidVerificationToken(now))
	})

	t.Run("live verification token is valid", func(t *testing.T) {
		a := newTestAccount(t)
		a.SetVerificationToken("tok", now.Add(time.Hour))

		assert.True(t, a.HasValidVerificationToken(now))
	})

	t.Run("missing reset token is invalid", func(t *testing.T) {
		a := newTestAccount(t)
		assert.False(t, a.HasValidResetToken(now))
	})

	t.Run("expired reset token is treated as absent", func(t *testing.T) {
		a := newTestAccount(t)
		a.SetResetToken("tok", now.Add(-time.Second))

		assert.False(t, a.HasValidResetToken(now))
	})
}

func TestAccount_ChangePassword(t *testing.T) {
	a := newTestAccount(t)
	a.SetResetToken("tok", time.Now().Add(time.Hour))

	require.NoError(t, a.ChangePassword("$2a$12$newhash"))

	assert.Equal(t, "$2a$12$newhash", a.PasswordHash())
	assert.Empty(t, a.ResetToken())
	assert.Nil(t, a.ResetTokenExpiresAt())

	require.ErrorIs(t, a.ChangePassword(""), errs.ErrInvalidInput)
}

func TestAccount_RecordLogin(t *testing.T) {
	a := newTestAccount(t)
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	a.RecordLogin(at)

	require.NotNil(t, a.LastLogin())
	assert.Equal(t, at, *a.LastLogin())
}

func TestStatus_IsValid(t *testing.T) {
	for _, s := range []account.Status{
		account.StatusPending, account.StatusActive,
		account.StatusSuspended, account.StatusDeleted,
	} {
		assert.True(t, s.IsValid(), s)
	}
	assert.False(t, account.Status("banned").IsValid())
}

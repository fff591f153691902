package httphandler

import (
	"errors"
	"net/mail"
	"strings"
	"unicode"
)

// Password policy constraints.
const (
	minPasswordLength = 8
	maxPasswordLength = 128

	minUsernameLength = 3
	maxUsernameLength = 30
)

// Validation errors.
var (
	ErrEmailRequired    = errors.New("email is required")
	ErrEmailInvalid     = errors.New("email address is not valid")
	ErrPasswordRequired = errors.New("password is required")
	ErrPasswordWeak     = errors.New(
		"password must be at least 8 characters and contain an upper case letter, " +
			"a lower case letter, a digit and a special character")
	ErrPasswordTooLong = errors.New("password must be at most 128 characters")
	ErrUsernameInvalid = errors.New(
		"username must be 3-30 characters of letters, digits, underscores or hyphens")
)

// validateEmail checks that the address parses as a bare RFC 5322 address.
func validateEmail(email string) error {
	if email == "" {
		return ErrEmailRequired
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrEmailInvalid
	}

	return nil
}

// validatePassword enforces the password policy: at least 8 characters with
// an upper case letter, a lower case letter, a digit and a special character.
func validatePassword(password string) error {
	if password == "" {
		return ErrPasswordRequired
	}
	if len(password) > maxPasswordLength {
		return ErrPasswordTooLong
	}
	if len(password) < minPasswordLength {
		return ErrPasswordWeak
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}

	if !hasUpper || !hasLower || !hasDigit || !hasSpecial {
		return ErrPasswordWeak
	}

	return nil
}

// validateUsername checks the optional username. An empty username is valid:
// accounts are addressed by email.
func validateUsername(username string) error {
	if username == "" {
		return nil
	}
	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return ErrUsernameInvalid
	}

	for _, r := range username {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !strings.ContainsRune("_-", r) {
			return ErrUsernameInvalid
		}
	}

	return nil
}

package auth

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// Password policy failures, checked in this order.
var (
	ErrPasswordTooShort  = errors.New("Password must be at least 8 characters.")
	ErrPasswordNoUpper   = errors.New("Password must include an uppercase letter.")
	ErrPasswordNoLower   = errors.New("Password must include a lowercase letter.")
	ErrPasswordNoDigit   = errors.New("Password must include a number.")
	ErrPasswordNoSpecial = errors.New("Password must include a special character.")
)

// ValidatePassword returns the first policy rule pw breaks, or nil.
func ValidatePassword(pw string) error {
	if len(pw) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if !strings.ContainsFunc(pw, func(r rune) bool { return r >= 'A' && r <= 'Z' }) {
		return ErrPasswordNoUpper
	}
	if !strings.ContainsFunc(pw, func(r rune) bool { return r >= 'a' && r <= 'z' }) {
		return ErrPasswordNoLower
	}
	if !strings.ContainsFunc(pw, unicode.IsDigit) {
		return ErrPasswordNoDigit
	}
	if !strings.ContainsFunc(pw, isSpecial) {
		return ErrPasswordNoSpecial
	}
	return nil
}

func isSpecial(r rune) bool {
	return !(r >= 'A' && r <= 'Z') && !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
}

// HashPassword returns a bcrypt hash of pw.
func HashPassword(pw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether pw matches hash.
func CheckPassword(hash, pw string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

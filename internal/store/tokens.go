package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrExpired is returned for reset tokens older than their TTL.
var ErrExpired = errors.New("token expired")

// ResetToken ties a password reset link to an account.
type ResetToken struct {
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// ResetTokens maps token strings to pending resets.
type ResetTokens struct {
	file *JSONFile[map[string]ResetToken]
}

// NewResetTokens creates a token store backed by path.
func NewResetTokens(path string) *ResetTokens {
	return &ResetTokens{
		file: NewJSONFile(path, func() map[string]ResetToken { return map[string]ResetToken{} }),
	}
}

// Issue stores a fresh 32-hex-character token for username.
func (r *ResetTokens) Issue(username, email string, now time.Time) (string, error) {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	err := r.file.Update(func(tokens *map[string]ResetToken) error {
		(*tokens)[token] = ResetToken{Username: username, Email: email, CreatedAt: now}
		return nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// Lookup returns the pending reset for token. ttl <= 0 disables expiry.
func (r *ResetTokens) Lookup(token string, ttl time.Duration, now time.Time) (ResetToken, error) {
	tokens, err := r.file.Load()
	if err != nil {
		return ResetToken{}, err
	}
	info, ok := tokens[token]
	if !ok {
		return ResetToken{}, fmt.Errorf("reset token: %w", ErrNotFound)
	}
	if ttl > 0 && now.Sub(info.CreatedAt) > ttl {
		return ResetToken{}, fmt.Errorf("reset token issued %s: %w", info.CreatedAt.Format(time.RFC3339), ErrExpired)
	}
	return info, nil
}

// Consume deletes token. Deleting an unknown token is not an error.
func (r *ResetTokens) Consume(token string) error {
	return r.file.Update(func(tokens *map[string]ResetToken) error {
		delete(*tokens, token)
		return nil
	})
}

// Prune removes expired tokens and returns how many were dropped.
func (r *ResetTokens) Prune(ttl time.Duration, now time.Time) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}
	removed := 0
	err := r.file.Update(func(tokens *map[string]ResetToken) error {
		for token, info := range *tokens {
			if now.Sub(info.CreatedAt) > ttl {
				delete(*tokens, token)
				removed++
			}
		}
		return nil
	})
	return removed, err
}

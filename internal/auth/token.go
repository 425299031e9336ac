// Package auth resolves bearer tokens to stable user ids. Sync logic trusts
// only the id resolved here, never one supplied in a request body.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/parlohq/syncd/internal/store"
)

// ErrInvalidToken covers unknown and expired tokens alike, so callers can't
// distinguish the two.
var ErrInvalidToken = errors.New("invalid token")

// TokenSource looks up a stored token by its sha256 hash. *store.DB
// implements it.
type TokenSource interface {
	LookupToken(tokenHash string) (*store.Token, error)
}

// Verifier resolves a raw bearer token to a user id.
type Verifier interface {
	Verify(token string) (userID string, err error)
}

// HashToken returns the hex sha256 of a raw token. Only hashes are stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// StoreVerifier verifies tokens against the api_tokens table.
type StoreVerifier struct {
	tokens TokenSource
	now    func() time.Time
}

// NewVerifier creates a store-backed verifier.
func NewVerifier(tokens TokenSource) *StoreVerifier {
	return &StoreVerifier{tokens: tokens, now: time.Now}
}

// Verify implements Verifier.
func (v *StoreVerifier) Verify(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	rec, err := v.tokens.LookupToken(HashToken(token))
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", ErrInvalidToken
	}
	if rec.ExpiresAt != 0 && rec.ExpiresAt <= v.now().UnixMilli() {
		return "", ErrInvalidToken
	}
	return rec.UserID, nil
}

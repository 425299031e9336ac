package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateToken stores an API token record. Callers hash the raw token first;
// the plaintext never reaches the database.
func (db *DB) CreateToken(t *Token) error {
	if t.CreatedAt == 0 {
		t.CreatedAt = time.Now().UnixMilli()
	}
	_, err := db.Exec(`
		INSERT INTO api_tokens (token_hash, user_id, created_at, expires_at)
		VALUES (?, ?, ?, NULLIF(?, 0))`,
		t.TokenHash, t.UserID, t.CreatedAt, t.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create token: %w", err)
	}
	return nil
}

// LookupToken resolves a token hash to its record, nil if unknown.
func (db *DB) LookupToken(tokenHash string) (*Token, error) {
	var t Token
	err := db.QueryRow(`
		SELECT token_hash, user_id, created_at, COALESCE(expires_at, 0)
		FROM api_tokens WHERE token_hash = ?`, tokenHash).
		Scan(&t.TokenHash, &t.UserID, &t.CreatedAt, &t.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

package store

import (
	"database/sql"
	"fmt"
	"time"
)

// IncrementUsage bumps the user's counter for the given day (YYYY-MM-DD)
// and returns the new count.
func (db *DB) IncrementUsage(userID, day string) (int, error) {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO usage (user_id, day, count, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(user_id, day) DO UPDATE SET
			count = count + 1,
			updated_at = excluded.updated_at`,
		userID, day, now)
	if err != nil {
		return 0, fmt.Errorf("increment usage: %w", err)
	}
	return db.GetUsage(userID, day)
}

// GetUsage returns the user's counter for the given day, zero if absent.
func (db *DB) GetUsage(userID, day string) (int, error) {
	var count int
	err := db.QueryRow(`SELECT count FROM usage WHERE user_id = ? AND day = ?`,
		userID, day).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// UpsertSubscription writes the user's billing state, last writer wins.
func (db *DB) UpsertSubscription(s *Subscription) error {
	s.UpdatedAt = time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO subscriptions (user_id, plan, status, current_period_end, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			plan = excluded.plan,
			status = excluded.status,
			current_period_end = excluded.current_period_end,
			updated_at = excluded.updated_at`,
		s.UserID, s.Plan, s.Status, s.CurrentPeriodEnd, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// GetSubscription returns the user's billing state, nil if never written.
func (db *DB) GetSubscription(userID string) (*Subscription, error) {
	var s Subscription
	err := db.QueryRow(`
		SELECT user_id, plan, status, current_period_end, updated_at
		FROM subscriptions WHERE user_id = ?`, userID).
		Scan(&s.UserID, &s.Plan, &s.Status, &s.CurrentPeriodEnd, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListVoices returns the voice reference data seeded by migrations.
func (db *DB) ListVoices() ([]Voice, error) {
	rows, err := db.Query(`SELECT id, name, provider, sample_url FROM voices ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var voices []Voice
	for rows.Next() {
		var v Voice
		if err := rows.Scan(&v.ID, &v.Name, &v.Provider, &v.SampleURL); err != nil {
			return nil, err
		}
		voices = append(voices, v)
	}
	return voices, rows.Err()
}

package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ListMessages returns a chat's full sequence ordered by creation time,
// insertion order breaking ties.
func (db *DB) ListMessages(chatID string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT seq, id, chat_id, role, content, COALESCE(audio_url, ''), created_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY created_at ASC, seq ASC`, chatID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Seq, &m.ID, &m.ChatID, &m.Role, &m.Content, &m.AudioURL, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// AppendMessage inserts a message and, in the same transaction, advances the
// parent chat's last_message/last_message_at. The two must never drift: a
// message append without the preview update is a defect. The preview only
// moves forward, so replaying old history never rolls it back.
func (db *DB) AppendMessage(userID string, m *Message) error {
	now := time.Now().UnixMilli()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var owner string
	err = tx.QueryRow(`SELECT user_id FROM chats WHERE id = ?`, m.ChatID).Scan(&owner)
	if err == sql.ErrNoRows || (err == nil && owner != userID) {
		return ErrChatNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`
		INSERT INTO messages (id, chat_id, role, content, audio_url, created_at)
		VALUES (?, ?, ?, ?, NULLIF(?, ''), ?)
		ON CONFLICT(id) DO NOTHING`,
		m.ID, m.ChatID, m.Role, m.Content, m.AudioURL, m.CreatedAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.Exec(`
		UPDATE chats SET
			last_message = CASE WHEN ? >= last_message_at THEN ? ELSE last_message END,
			last_message_at = MAX(last_message_at, ?),
			updated_at = ?
		WHERE id = ?`,
		m.CreatedAt, m.Content, m.CreatedAt, now, m.ChatID); err != nil {
		return fmt.Errorf("update chat preview: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// SetMessageAudioURL backfills the audio URL on an existing message. This is
// the only post-creation mutation a message ever receives.
func (db *DB) SetMessageAudioURL(userID, chatID, messageID, audioURL string) error {
	res, err := db.Exec(`
		UPDATE messages SET audio_url = NULLIF(?, '')
		WHERE id = ? AND chat_id = ?
		  AND EXISTS (SELECT 1 FROM chats WHERE chats.id = messages.chat_id AND chats.user_id = ?)`,
		audioURL, messageID, chatID, userID)
	if err != nil {
		return fmt.Errorf("set audio url: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// DeleteMessage removes a message and recomputes the parent chat's preview
// from whatever remains, keeping the denormalization intact.
func (db *DB) DeleteMessage(userID, chatID, messageID string) error {
	now := time.Now().UnixMilli()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var owner string
	err = tx.QueryRow(`SELECT user_id FROM chats WHERE id = ?`, chatID).Scan(&owner)
	if err == sql.ErrNoRows || (err == nil && owner != userID) {
		return ErrChatNotFound
	}
	if err != nil {
		return err
	}

	res, err := tx.Exec(`DELETE FROM messages WHERE id = ? AND chat_id = ?`, messageID, chatID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrMessageNotFound
	}

	var content string
	var createdAt int64
	err = tx.QueryRow(`
		SELECT content, created_at FROM messages
		WHERE chat_id = ?
		ORDER BY created_at DESC, seq DESC
		LIMIT 1`, chatID).Scan(&content, &createdAt)
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	if _, err := tx.Exec(`
		UPDATE chats SET last_message = ?, last_message_at = ?, updated_at = ?
		WHERE id = ?`, content, createdAt, now, chatID); err != nil {
		return fmt.Errorf("recompute chat preview: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

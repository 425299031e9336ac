package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const chatColumns = `id, user_id, contact_id, contact_name, contact_emoji,
	COALESCE(contact_image, ''), contact_purpose, last_message,
	last_message_at, created_at, updated_at, is_deleted,
	COALESCE(deleted_at, 0)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChat(r rowScanner) (*Chat, error) {
	var c Chat
	err := r.Scan(&c.ID, &c.UserID, &c.ContactID, &c.ContactName,
		&c.ContactEmoji, &c.ContactImage, &c.ContactPurpose, &c.LastMessage,
		&c.LastMessageAt, &c.CreatedAt, &c.UpdatedAt, &c.IsDeleted,
		&c.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateChat inserts a chat if the user has no row for that contact yet.
// Under concurrent syncs from two devices the losing insert is a no-op, so
// a contact can never end up with two chats.
func (db *DB) CreateChat(c *Chat) error {
	now := time.Now().UnixMilli()
	if c.CreatedAt == 0 {
		c.CreatedAt = now
	}
	if c.UpdatedAt == 0 {
		c.UpdatedAt = now
	}
	_, err := db.Exec(`
		INSERT INTO chats (id, user_id, contact_id, contact_name, contact_emoji,
			contact_image, contact_purpose, last_message, last_message_at,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, contact_id) DO NOTHING`,
		c.ID, c.UserID, c.ContactID, c.ContactName, c.ContactEmoji,
		c.ContactImage, c.ContactPurpose, c.LastMessage, c.LastMessageAt,
		c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create chat: %w", err)
	}
	return nil
}

// ListActiveChats returns the user's non-tombstoned chats, most recently
// active first.
func (db *DB) ListActiveChats(userID string) ([]Chat, error) {
	rows, err := db.Query(`
		SELECT `+chatColumns+`
		FROM chats
		WHERE user_id = ? AND is_deleted = 0
		ORDER BY last_message_at DESC, seq DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *c)
	}
	return chats, rows.Err()
}

// ListChatsUpdatedSince returns every chat (tombstones included, so deletes
// propagate) touched strictly after the given unix-millis timestamp.
func (db *DB) ListChatsUpdatedSince(userID string, since int64) ([]Chat, error) {
	rows, err := db.Query(`
		SELECT `+chatColumns+`
		FROM chats
		WHERE user_id = ? AND updated_at > ?
		ORDER BY updated_at ASC`, userID, since)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *c)
	}
	return chats, rows.Err()
}

// GetChat returns a single chat by id, tombstoned or not.
func (db *DB) GetChat(userID, chatID string) (*Chat, error) {
	c, err := scanChat(db.QueryRow(`
		SELECT `+chatColumns+`
		FROM chats
		WHERE user_id = ? AND id = ?`, userID, chatID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// GetChatByContact returns the user's chat for a contact. Tombstoned rows
// are returned too: the sync engine needs them for idempotent re-deletes
// and to keep a delete from being undone by a stale replica.
func (db *DB) GetChatByContact(userID, contactID string) (*Chat, error) {
	c, err := scanChat(db.QueryRow(`
		SELECT `+chatColumns+`
		FROM chats
		WHERE user_id = ? AND contact_id = ?`, userID, contactID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// UpdateChat applies a partial metadata update. Unset fields keep their
// stored value.
func (db *DB) UpdateChat(userID, chatID string, upd ChatUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UnixMilli()}

	if upd.ContactName != nil {
		sets = append(sets, "contact_name = ?")
		args = append(args, *upd.ContactName)
	}
	if upd.ContactEmoji != nil {
		sets = append(sets, "contact_emoji = ?")
		args = append(args, *upd.ContactEmoji)
	}
	if upd.ContactImage != nil {
		sets = append(sets, "contact_image = NULLIF(?, '')")
		args = append(args, *upd.ContactImage)
	}
	if upd.ContactPurpose != nil {
		sets = append(sets, "contact_purpose = ?")
		args = append(args, *upd.ContactPurpose)
	}
	if upd.LastMessage != nil {
		sets = append(sets, "last_message = ?")
		args = append(args, *upd.LastMessage)
	}
	if upd.LastMessageAt != nil {
		sets = append(sets, "last_message_at = ?")
		args = append(args, *upd.LastMessageAt)
	}

	args = append(args, userID, chatID)
	res, err := db.Exec(`UPDATE chats SET `+strings.Join(sets, ", ")+`
		WHERE user_id = ? AND id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update chat: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrChatNotFound
	}
	return nil
}

// SoftDeleteChat tombstones a chat. Repeating the delete is a no-op, which
// is what lets the same deletion replay from several devices.
func (db *DB) SoftDeleteChat(userID, chatID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE chats SET is_deleted = 1, deleted_at = ?, updated_at = ?
		WHERE user_id = ? AND id = ? AND is_deleted = 0`,
		now, now, userID, chatID)
	if err != nil {
		return fmt.Errorf("soft delete chat: %w", err)
	}
	return nil
}

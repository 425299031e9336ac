package api

import (
	"time"

	"github.com/parlohq/syncd/internal/store"
	"github.com/parlohq/syncd/internal/sync"
)

// Wire types for the JSON API. All dates are ISO-8601 (RFC 3339).

type messagePayload struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	AudioURL  *string   `json:"audioUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type localChatPayload struct {
	ID             string           `json:"id"`
	ContactID      string           `json:"contactId"`
	ContactName    string           `json:"contactName"`
	ContactEmoji   string           `json:"contactEmoji"`
	ContactImage   *string          `json:"contactImage,omitempty"`
	ContactPurpose string           `json:"contactPurpose"`
	LastMessage    string           `json:"lastMessage"`
	LastMessageAt  time.Time        `json:"lastMessageAt"`
	Messages       []messagePayload `json:"messages"`
	IsDeleted      bool             `json:"isDeleted,omitempty"`
}

type syncRequestPayload struct {
	LastSyncAt *time.Time         `json:"lastSyncAt,omitempty"`
	LocalChats []localChatPayload `json:"localChats,omitempty"`
}

type chatPayload struct {
	ID             string           `json:"id"`
	ContactID      string           `json:"contactId"`
	ContactName    string           `json:"contactName"`
	ContactEmoji   string           `json:"contactEmoji"`
	ContactImage   *string          `json:"contactImage,omitempty"`
	ContactPurpose string           `json:"contactPurpose"`
	LastMessage    string           `json:"lastMessage"`
	LastMessageAt  time.Time        `json:"lastMessageAt"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
	IsDeleted      bool             `json:"isDeleted,omitempty"`
	Messages       []messagePayload `json:"messages,omitempty"`
}

type syncResponsePayload struct {
	Chats    []chatPayload `json:"chats"`
	SyncedAt time.Time     `json:"syncedAt"`
	Errors   []string      `json:"errors,omitempty"`
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toSyncRequest(p syncRequestPayload) sync.Request {
	req := sync.Request{LastSyncAt: p.LastSyncAt}
	for _, lc := range p.LocalChats {
		chat := sync.LocalChat{
			ID:             lc.ID,
			ContactID:      lc.ContactID,
			ContactName:    lc.ContactName,
			ContactEmoji:   lc.ContactEmoji,
			ContactImage:   deref(lc.ContactImage),
			ContactPurpose: lc.ContactPurpose,
			LastMessage:    lc.LastMessage,
			LastMessageAt:  lc.LastMessageAt,
			IsDeleted:      lc.IsDeleted,
		}
		for _, m := range lc.Messages {
			chat.Messages = append(chat.Messages, sync.LocalMessage{
				ID:        m.ID,
				Role:      m.Role,
				Content:   m.Content,
				AudioURL:  deref(m.AudioURL),
				CreatedAt: m.CreatedAt,
			})
		}
		req.LocalChats = append(req.LocalChats, chat)
	}
	return req
}

func toMessagePayload(m store.Message) messagePayload {
	return messagePayload{
		ID:        m.ID,
		Role:      m.Role,
		Content:   m.Content,
		AudioURL:  optional(m.AudioURL),
		CreatedAt: fromMillis(m.CreatedAt),
	}
}

func toChatPayload(c store.Chat, msgs []store.Message) chatPayload {
	p := chatPayload{
		ID:             c.ID,
		ContactID:      c.ContactID,
		ContactName:    c.ContactName,
		ContactEmoji:   c.ContactEmoji,
		ContactImage:   optional(c.ContactImage),
		ContactPurpose: c.ContactPurpose,
		LastMessage:    c.LastMessage,
		LastMessageAt:  fromMillis(c.LastMessageAt),
		CreatedAt:      fromMillis(c.CreatedAt),
		UpdatedAt:      fromMillis(c.UpdatedAt),
		IsDeleted:      c.IsDeleted,
	}
	for _, m := range msgs {
		p.Messages = append(p.Messages, toMessagePayload(m))
	}
	return p
}

func toSyncResponse(snap *sync.Snapshot) syncResponsePayload {
	resp := syncResponsePayload{
		Chats:    make([]chatPayload, 0, len(snap.Chats)),
		SyncedAt: snap.SyncedAt,
		Errors:   snap.Errors,
	}
	for _, cs := range snap.Chats {
		resp.Chats = append(resp.Chats, toChatPayload(cs.Chat, cs.Messages))
	}
	return resp
}

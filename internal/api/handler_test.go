package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/parlohq/syncd/internal/auth"
	"github.com/parlohq/syncd/internal/bus"
	"github.com/parlohq/syncd/internal/cache"
	"github.com/parlohq/syncd/internal/ratelimit"
	"github.com/parlohq/syncd/internal/store"
	"github.com/parlohq/syncd/internal/sync"
	"go.uber.org/zap"
)

const testToken = "tok-u1"

func testServer(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.CreateToken(&store.Token{TokenHash: auth.HashToken(testToken), UserID: "u1"}); err != nil {
		t.Fatal(err)
	}

	logger := zap.NewNop()
	b := bus.New()
	cached := cache.NewStore(db, cache.New(cache.DefaultConfig()), logger)
	engine := sync.NewEngine(cached, b, logger)

	mux := NewMux(Handlers{
		Sync:     NewSyncHandler(engine, logger),
		Chats:    NewChatHandler(cached, b, logger),
		Messages: NewMessageHandler(cached, b, logger),
		Account:  NewAccountHandler(cached, logger),
		Events:   NewEventHandler(b, logger),
	}, auth.NewVerifier(db), ratelimit.New(6000, 1000), logger)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, method, url, token, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	return resp, raw
}

func TestSyncRequiresAuth(t *testing.T) {
	srv := testServer(t)

	resp, _ := doRequest(t, http.MethodGet, srv.URL+"/v1/sync", "", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", resp.StatusCode)
	}

	resp, _ = doRequest(t, http.MethodGet, srv.URL+"/v1/sync", "wrong", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", resp.StatusCode)
	}
}

func TestSyncRoundTrip(t *testing.T) {
	srv := testServer(t)

	body := `{
		"localChats": [
			{
				"id": "chat-c1", "contactId": "c1", "contactName": "Maria",
				"contactEmoji": "🦜", "contactPurpose": "tutor",
				"lastMessage": "tudo bem?", "lastMessageAt": "2026-08-23T10:00:02Z",
				"messages": [
					{"id": "m1", "role": "user", "content": "oi", "createdAt": "2026-08-23T10:00:00Z"},
					{"id": "m2", "role": "assistant", "content": "tudo bem?", "createdAt": "2026-08-23T10:00:02Z"}
				]
			},
			{
				"id": "chat-c2", "contactId": "c2", "contactName": "", "contactEmoji": "",
				"contactPurpose": "", "lastMessage": "", "lastMessageAt": "2026-08-23T10:00:00Z",
				"messages": [], "isDeleted": true
			}
		]
	}`

	resp, raw := doRequest(t, http.MethodPost, srv.URL+"/v1/sync", testToken, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, raw)
	}

	var out syncResponsePayload
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Errors) != 0 {
		t.Fatalf("errors = %v", out.Errors)
	}
	if len(out.Chats) != 1 || out.Chats[0].ContactID != "c1" {
		t.Fatalf("chats = %+v, want only c1", out.Chats)
	}
	if len(out.Chats[0].Messages) != 2 {
		t.Errorf("got %d messages, want 2", len(out.Chats[0].Messages))
	}
	if out.SyncedAt.IsZero() {
		t.Error("syncedAt missing")
	}

	// Replay: still exactly one chat with two messages.
	resp, raw = doRequest(t, http.MethodPost, srv.URL+"/v1/sync", testToken, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("replay status = %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Chats) != 1 || len(out.Chats[0].Messages) != 2 {
		t.Errorf("replay added data: %+v", out.Chats)
	}
}

func TestDeleteChatConvergesAcrossReads(t *testing.T) {
	srv := testServer(t)

	resp, raw := doRequest(t, http.MethodPost, srv.URL+"/v1/sync", testToken,
		`{"localChats":[{"id":"","contactId":"c1","contactName":"Maria","contactEmoji":"",
		"contactPurpose":"","lastMessage":"","lastMessageAt":"2026-08-23T10:00:00Z",
		"messages":[{"id":"","role":"user","content":"oi","createdAt":"2026-08-23T10:00:00Z"}]}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("seed sync failed: %s", raw)
	}
	var out syncResponsePayload
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	chatID := out.Chats[0].ID

	resp, _ = doRequest(t, http.MethodDelete, srv.URL+"/v1/chats/"+chatID, testToken, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	// Read-only sync, as a second device would issue.
	resp, raw = doRequest(t, http.MethodGet, srv.URL+"/v1/sync", testToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("snapshot status = %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Chats) != 0 {
		t.Errorf("deleted chat still visible: %+v", out.Chats)
	}

	// The chat list agrees.
	resp, raw = doRequest(t, http.MethodGet, srv.URL+"/v1/chats", testToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var chats []chatPayload
	if err := json.Unmarshal(raw, &chats); err != nil {
		t.Fatal(err)
	}
	if len(chats) != 0 {
		t.Errorf("chat list = %+v, want empty", chats)
	}
}

func TestAppendMessageCountsUsage(t *testing.T) {
	srv := testServer(t)

	resp, raw := doRequest(t, http.MethodPost, srv.URL+"/v1/sync", testToken,
		`{"localChats":[{"id":"chat-c1","contactId":"c1","contactName":"Maria","contactEmoji":"",
		"contactPurpose":"","lastMessage":"","lastMessageAt":"2026-08-23T10:00:00Z","messages":[]}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("seed sync failed: %s", raw)
	}

	resp, raw = doRequest(t, http.MethodPost, srv.URL+"/v1/chats/chat-c1/messages", testToken,
		`{"role":"user","content":"como se diz?"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("append status = %d: %s", resp.StatusCode, raw)
	}
	var msg messagePayload
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.ID == "" || msg.Content != "como se diz?" {
		t.Errorf("message = %+v", msg)
	}

	// Assistant replies do not count toward usage.
	resp, _ = doRequest(t, http.MethodPost, srv.URL+"/v1/chats/chat-c1/messages", testToken,
		`{"role":"assistant","content":"diz-se assim"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("assistant append status = %d", resp.StatusCode)
	}

	resp, raw = doRequest(t, http.MethodGet, srv.URL+"/v1/usage/today", testToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("usage status = %d", resp.StatusCode)
	}
	var usage usagePayload
	if err := json.Unmarshal(raw, &usage); err != nil {
		t.Fatal(err)
	}
	if usage.Count != 1 {
		t.Errorf("usage count = %d, want 1", usage.Count)
	}

	// A back-dated createdAt still meters on the day the server received it.
	resp, _ = doRequest(t, http.MethodPost, srv.URL+"/v1/chats/chat-c1/messages", testToken,
		`{"role":"user","content":"ontem","createdAt":"2020-01-01T00:00:00Z"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("back-dated append status = %d", resp.StatusCode)
	}
	resp, raw = doRequest(t, http.MethodGet, srv.URL+"/v1/usage/today", testToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("usage status = %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, &usage); err != nil {
		t.Fatal(err)
	}
	if usage.Count != 2 {
		t.Errorf("usage count after back-dated append = %d, want 2", usage.Count)
	}

	// Audio backfill on the appended message.
	resp, _ = doRequest(t, http.MethodPatch,
		fmt.Sprintf("%s/v1/chats/chat-c1/messages/%s/audio", srv.URL, msg.ID), testToken,
		`{"audioUrl":"https://cdn/a.mp3"}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("audio backfill status = %d", resp.StatusCode)
	}
}

func TestChatListDeltaIncludesTombstones(t *testing.T) {
	srv := testServer(t)

	resp, raw := doRequest(t, http.MethodPost, srv.URL+"/v1/sync", testToken,
		`{"localChats":[{"id":"","contactId":"c1","contactName":"Maria","contactEmoji":"",
		"contactPurpose":"","lastMessage":"","lastMessageAt":"2026-08-23T10:00:00Z","messages":[]}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("seed sync failed: %s", raw)
	}
	var out syncResponsePayload
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	chatID := out.Chats[0].ID

	resp, _ = doRequest(t, http.MethodDelete, srv.URL+"/v1/chats/"+chatID, testToken, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	// A delta poll from before the delete sees the tombstone, while the
	// plain active list does not.
	resp, raw = doRequest(t, http.MethodGet,
		srv.URL+"/v1/chats?updatedSince=2000-01-01T00:00:00Z", testToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delta status = %d", resp.StatusCode)
	}
	var chats []chatPayload
	if err := json.Unmarshal(raw, &chats); err != nil {
		t.Fatal(err)
	}
	if len(chats) != 1 || chats[0].ID != chatID || !chats[0].IsDeleted {
		t.Fatalf("delta = %+v, want the tombstoned chat", chats)
	}

	resp, _ = doRequest(t, http.MethodGet,
		srv.URL+"/v1/chats?updatedSince=not-a-date", testToken, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad updatedSince status = %d, want 400", resp.StatusCode)
	}
}

func TestEventStreamDeliversChatDeleted(t *testing.T) {
	srv := testServer(t)

	resp, raw := doRequest(t, http.MethodPost, srv.URL+"/v1/sync", testToken,
		`{"localChats":[{"id":"","contactId":"c1","contactName":"Maria","contactEmoji":"",
		"contactPurpose":"","lastMessage":"","lastMessageAt":"2026-08-23T10:00:00Z","messages":[]}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("seed sync failed: %s", raw)
	}
	var out syncResponsePayload
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	chatID := out.Chats[0].ID

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events?namespace=chat.", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	stream, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = stream.Body.Close() }()
	if stream.StatusCode != http.StatusOK {
		t.Fatalf("stream status = %d", stream.StatusCode)
	}
	if ct := stream.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	// Do returns once the handler has flushed headers, so the subscription
	// is live before the delete publishes.
	resp, _ = doRequest(t, http.MethodDelete, srv.URL+"/v1/chats/"+chatID, testToken, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(stream.Body)
	var sawKind, sawChatID bool
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event: chat.deleted" {
			sawKind = true
		}
		if strings.HasPrefix(line, "data: ") && strings.Contains(line, chatID) {
			sawChatID = true
		}
		if sawKind && sawChatID {
			break
		}
	}
	if !sawKind || !sawChatID {
		t.Fatalf("stream missing chat.deleted for %s (kind=%v id=%v)", chatID, sawKind, sawChatID)
	}
}

func TestSubscriptionAndVoices(t *testing.T) {
	srv := testServer(t)

	resp, raw := doRequest(t, http.MethodGet, srv.URL+"/v1/subscription", testToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var sub subscriptionPayload
	if err := json.Unmarshal(raw, &sub); err != nil {
		t.Fatal(err)
	}
	if sub.Plan != "free" {
		t.Errorf("default plan = %q, want free", sub.Plan)
	}

	resp, _ = doRequest(t, http.MethodPut, srv.URL+"/v1/subscription", testToken,
		`{"plan":"pro","status":"active"}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("put status = %d", resp.StatusCode)
	}

	resp, raw = doRequest(t, http.MethodGet, srv.URL+"/v1/subscription", testToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, &sub); err != nil {
		t.Fatal(err)
	}
	if sub.Plan != "pro" || sub.Status != "active" {
		t.Errorf("subscription = %+v", sub)
	}

	resp, raw = doRequest(t, http.MethodGet, srv.URL+"/v1/voices", testToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("voices status = %d", resp.StatusCode)
	}
	var voices []voicePayload
	if err := json.Unmarshal(raw, &voices); err != nil {
		t.Fatal(err)
	}
	if len(voices) == 0 {
		t.Error("expected seeded voices")
	}
}

func TestMalformedSyncBody(t *testing.T) {
	srv := testServer(t)

	resp, _ := doRequest(t, http.MethodPost, srv.URL+"/v1/sync", testToken, `{"localChats": "nope"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}

	// An empty body is a pure fetch, not an error.
	resp, _ = doRequest(t, http.MethodPost, srv.URL+"/v1/sync", testToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("empty body status = %d, want 200", resp.StatusCode)
	}
}

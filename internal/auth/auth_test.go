package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/parlohq/syncd/internal/store"
)

type fakeTokens struct {
	records map[string]*store.Token
}

func (f *fakeTokens) LookupToken(hash string) (*store.Token, error) {
	return f.records[hash], nil
}

func TestVerify(t *testing.T) {
	now := time.Now().UnixMilli()
	v := NewVerifier(&fakeTokens{records: map[string]*store.Token{
		HashToken("good"):    {TokenHash: HashToken("good"), UserID: "u1"},
		HashToken("expired"): {TokenHash: HashToken("expired"), UserID: "u2", ExpiresAt: now - 1000},
		HashToken("future"):  {TokenHash: HashToken("future"), UserID: "u3", ExpiresAt: now + 60_000},
	}})

	userID, err := v.Verify("good")
	if err != nil || userID != "u1" {
		t.Errorf("Verify(good) = %q, %v", userID, err)
	}
	if userID, err := v.Verify("future"); err != nil || userID != "u3" {
		t.Errorf("Verify(future) = %q, %v", userID, err)
	}
	if _, err := v.Verify("expired"); err != ErrInvalidToken {
		t.Errorf("Verify(expired) = %v, want ErrInvalidToken", err)
	}
	if _, err := v.Verify("unknown"); err != ErrInvalidToken {
		t.Errorf("Verify(unknown) = %v, want ErrInvalidToken", err)
	}
	if _, err := v.Verify(""); err != ErrInvalidToken {
		t.Errorf("Verify(empty) = %v, want ErrInvalidToken", err)
	}
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier(&fakeTokens{records: map[string]*store.Token{
		HashToken("good"): {TokenHash: HashToken("good"), UserID: "u1"},
	}})

	var seenUser string
	handler := Middleware(v, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser = RequestUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	// No token.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sync", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	// Bad token.
	req := httptest.NewRequest(http.MethodGet, "/v1/sync", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", rec.Code)
	}

	// Valid token resolves the user id into context.
	req = httptest.NewRequest(http.MethodGet, "/v1/sync", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("good token: status = %d, want 200", rec.Code)
	}
	if seenUser != "u1" {
		t.Errorf("resolved user = %q, want u1", seenUser)
	}
}

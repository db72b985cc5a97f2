package app

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testSessionManager(t *testing.T) (*SessionManager, *MemoryStore) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Sessions.Secret = "test-signing-secret"
	store := NewMemoryStore(cfg.Sessions.StateTTL, cfg.Sessions.TTL)
	return NewSessionManager(cfg, store, discardLogger()), store
}

func TestSessionCredentialRoundtrip(t *testing.T) {
	sm, _ := testSessionManager(t)
	ctx := context.Background()

	user := Identity{Subject: "u1", Email: "a@b.com", Name: "a@b.com"}
	ts := TokenSet{AccessToken: "at", IDToken: "idt"}

	sessionID, err := sm.CreateSession(ctx, ts, user)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	credential, err := sm.IssueCredential(sessionID, user)
	if err != nil {
		t.Fatalf("IssueCredential returned error: %v", err)
	}

	got, err := sm.Verify(ctx, credential)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if got != user {
		t.Fatalf("identity mismatch: got %+v want %+v", got, user)
	}
}

func TestVerifyNoCredential(t *testing.T) {
	sm, _ := testSessionManager(t)
	if _, err := sm.Verify(context.Background(), ""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestVerifyTamperedCredential(t *testing.T) {
	sm, _ := testSessionManager(t)
	ctx := context.Background()

	user := Identity{Subject: "u1"}
	sessionID, err := sm.CreateSession(ctx, TokenSet{AccessToken: "at"}, user)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	credential, err := sm.IssueCredential(sessionID, user)
	if err != nil {
		t.Fatalf("IssueCredential returned error: %v", err)
	}

	tampered := credential[:len(credential)-2] + "xx"
	if _, err := sm.Verify(ctx, tampered); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestVerifyExpiredCredential(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sessions.Secret = "test-signing-secret"
	cfg.Sessions.TTL = -time.Minute
	store := NewMemoryStore(cfg.Sessions.StateTTL, time.Hour)
	sm := NewSessionManager(cfg, store, discardLogger())

	user := Identity{Subject: "u1"}
	sessionID, err := sm.CreateSession(context.Background(), TokenSet{}, user)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	credential, err := sm.IssueCredential(sessionID, user)
	if err != nil {
		t.Fatalf("IssueCredential returned error: %v", err)
	}

	if _, err := sm.Verify(context.Background(), credential); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for expired credential, got %v", err)
	}
}

func TestVerifyDeletedSession(t *testing.T) {
	sm, store := testSessionManager(t)
	ctx := context.Background()

	user := Identity{Subject: "u1"}
	sessionID, err := sm.CreateSession(ctx, TokenSet{AccessToken: "at"}, user)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	credential, err := sm.IssueCredential(sessionID, user)
	if err != nil {
		t.Fatalf("IssueCredential returned error: %v", err)
	}

	if err := store.DeleteSession(ctx, sessionID); err != nil {
		t.Fatalf("DeleteSession returned error: %v", err)
	}

	// Signature and expiry are still valid, but the session is gone.
	if _, err := sm.Verify(ctx, credential); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestVerifyIdentityComesFromCredential(t *testing.T) {
	sm, store := testSessionManager(t)
	ctx := context.Background()

	user := Identity{Subject: "u1", Email: "a@b.com", Name: "a@b.com"}
	sessionID, err := sm.CreateSession(ctx, TokenSet{}, user)
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	credential, err := sm.IssueCredential(sessionID, user)
	if err != nil {
		t.Fatalf("IssueCredential returned error: %v", err)
	}

	// Mutating the stored session must not change what Verify reports.
	sess, _, _ := store.GetSession(ctx, sessionID)
	sess.User.Email = "rotated@b.com"
	_ = store.SaveSession(ctx, sess)

	got, err := sm.Verify(ctx, credential)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if got.Email != "a@b.com" {
		t.Fatalf("identity should come from the credential, got %q", got.Email)
	}
}

func TestRevokeInvalidCredentialIsNoop(t *testing.T) {
	sm, store := testSessionManager(t)
	ctx := context.Background()

	sessionID, err := sm.CreateSession(ctx, TokenSet{}, Identity{Subject: "u1"})
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	sm.Revoke(ctx, "garbage")
	if _, ok, _ := store.GetSession(ctx, sessionID); !ok {
		t.Fatalf("unverified revoke must not delete sessions")
	}
}

func TestSetCookieContract(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sessions.Secret = "test-signing-secret"
	cfg.Server.DevMode = false
	cfg.Server.TLS.Domains = []string{"auth.example.com"}
	store := NewMemoryStore(cfg.Sessions.StateTTL, cfg.Sessions.TTL)
	sm := NewSessionManager(cfg, store, discardLogger())

	w := httptest.NewRecorder()
	sm.SetCookie(w, "credential-value")

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != "session" {
		t.Fatalf("cookie name mismatch: %q", c.Name)
	}
	if !c.HttpOnly {
		t.Fatalf("cookie must be HTTP-only")
	}
	if !c.Secure {
		t.Fatalf("cookie must be Secure outside dev mode")
	}
	if c.SameSite != 2 { // http.SameSiteLaxMode
		t.Fatalf("cookie must be SameSite=Lax, got %v", c.SameSite)
	}
	if c.MaxAge != int((7 * 24 * time.Hour).Seconds()) {
		t.Fatalf("cookie max-age mismatch: %d", c.MaxAge)
	}
}

func TestClearCookie(t *testing.T) {
	sm, _ := testSessionManager(t)

	w := httptest.NewRecorder()
	sm.ClearCookie(w)

	header := w.Header().Get("Set-Cookie")
	if !strings.HasPrefix(header, "session=;") {
		t.Fatalf("expected cleared session cookie, got %q", header)
	}
	if !strings.Contains(header, "Max-Age=0") {
		t.Fatalf("expected expired max-age, got %q", header)
	}
}

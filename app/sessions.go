package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionCookieName = "session"

// SessionClaims is the signed session credential payload. It references a
// server-side session by ID and carries the identity snapshot taken at login;
// claims are never re-read from the session, so they cannot rotate without
// re-authentication.
type SessionClaims struct {
	SessionID string `json:"sid"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// SessionManager mints server-side sessions, signs the cookie-bound credential
// referencing them, and gates requests on both.
type SessionManager struct {
	store        Store
	secret       []byte
	logger       *slog.Logger
	ttl          time.Duration
	secure       bool
	cookieDomain string
}

// NewSessionManager constructs a session manager honouring config. Cookies are
// Secure outside dev mode.
func NewSessionManager(cfg Config, store Store, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		store:        store,
		secret:       cfg.SessionSecret(),
		logger:       logger,
		ttl:          cfg.Sessions.TTL,
		secure:       !cfg.Server.DevMode,
		cookieDomain: cfg.Server.CookieDomain,
	}
}

// CreateSession stores a new session owning the upstream tokens and returns
// its ID.
func (sm *SessionManager) CreateSession(ctx context.Context, ts TokenSet, user Identity) (string, error) {
	sess := Session{
		ID:           NewToken(),
		AccessToken:  ts.AccessToken,
		IDToken:      ts.IDToken,
		RefreshToken: ts.RefreshToken,
		User:         user,
		CreatedAt:    time.Now(),
	}
	if err := sm.store.SaveSession(ctx, sess); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	return sess.ID, nil
}

// IssueCredential signs a session credential referencing the session, expiring
// after the configured lifetime.
func (sm *SessionManager) IssueCredential(sessionID string, user Identity) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		SessionID: sessionID,
		Email:     user.Email,
		Name:      user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sm.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(sm.secret)
	if err != nil {
		return "", fmt.Errorf("sign credential: %w", err)
	}
	return signed, nil
}

// Verify validates a presented credential and resolves it to a live session.
// A verifying signature is not sufficient on its own: the referenced session
// must still exist, so logout and eviction invalidate outstanding credentials
// immediately.
func (sm *SessionManager) Verify(ctx context.Context, credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, ErrUnauthenticated
	}

	claims := &SessionClaims{}
	tok, err := jwt.ParseWithClaims(credential, claims, func(*jwt.Token) (any, error) {
		return sm.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return Identity{}, ErrInvalidCredential
	}

	_, ok, err := sm.store.GetSession(ctx, claims.SessionID)
	if err != nil {
		return Identity{}, fmt.Errorf("session lookup: %w", err)
	}
	if !ok {
		return Identity{}, ErrSessionExpired
	}

	return Identity{Subject: claims.Subject, Email: claims.Email, Name: claims.Name}, nil
}

// Revoke deletes the session referenced by a verifying credential. Invalid
// credentials are ignored; deleting an already-gone session is a no-op.
func (sm *SessionManager) Revoke(ctx context.Context, credential string) {
	if credential == "" {
		return
	}
	claims := &SessionClaims{}
	tok, err := jwt.ParseWithClaims(credential, claims, func(*jwt.Token) (any, error) {
		return sm.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return
	}
	if err := sm.store.DeleteSession(ctx, claims.SessionID); err != nil {
		sm.logger.Warn("delete session", "error", err)
	}
}

// CredentialFromRequest extracts the session cookie value, if any.
func (sm *SessionManager) CredentialFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SetCookie attaches the credential as the HTTP-only session cookie.
func (sm *SessionManager) SetCookie(w http.ResponseWriter, credential string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    credential,
		Path:     "/",
		Domain:   sm.cookieDomain,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sm.ttl.Seconds()),
	})
}

// ClearCookie removes the session cookie for logout.
func (sm *SessionManager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   sm.cookieDomain,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

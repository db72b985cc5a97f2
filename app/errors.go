package app

import (
	"errors"
	"fmt"
)

// Protocol and authz gate failures surfaced by the login flow. Handlers map
// these onto HTTP statuses; messages stay short because responses must never
// leak provider internals or tokens.
var (
	// ErrMissingCode means the callback arrived without an authorization code.
	ErrMissingCode = errors.New("authorization code missing")

	// ErrInvalidState covers both unknown and already-consumed state values.
	// Callers cannot distinguish the two cases.
	ErrInvalidState = errors.New("invalid state parameter")

	// ErrMissingIDToken means the provider's token response carried no id_token.
	ErrMissingIDToken = errors.New("id_token missing from token response")

	// ErrClaimExtraction means the ID token payload could not be decoded or
	// carried no usable subject.
	ErrClaimExtraction = errors.New("cannot extract claims from id_token")

	// ErrUnauthenticated means no session credential was presented.
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrInvalidCredential means the session credential failed signature or
	// expiry checks.
	ErrInvalidCredential = errors.New("invalid session credential")

	// ErrSessionExpired means the credential verified but its session is gone
	// (logged out or evicted). Signature validity alone is not sufficient.
	ErrSessionExpired = errors.New("session expired")
)

// DiscoveryError wraps a failed or malformed provider metadata fetch. It is
// fatal for the request; no partial configuration is ever returned.
type DiscoveryError struct {
	Issuer string
	Err    error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover provider %s: %v", e.Issuer, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// TokenExchangeError records a rejected or unreachable token endpoint,
// carrying the provider's status and body for server-side diagnostics only.
type TokenExchangeError struct {
	Status int
	Body   string
	Err    error
}

func (e *TokenExchangeError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("token exchange failed: status %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("token exchange failed: %v", e.Err)
}

func (e *TokenExchangeError) Unwrap() error { return e.Err }

package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// TokenSet is the provider's token endpoint response. id_token is required by
// this system even where OIDC marks it optional.
type TokenSet struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
}

// RelyingParty drives the authorization_code grant against the upstream
// provider: it builds authorization URLs and exchanges callback codes for
// tokens. Endpoints come from Discovery on each call, which after the first
// request is a cache read.
type RelyingParty struct {
	creds     ProviderCreds
	discovery *Discovery
	client    *http.Client
	logger    *slog.Logger
}

// NewRelyingParty constructs the relying party. A nil client uses
// http.DefaultClient for the exchange.
func NewRelyingParty(creds ProviderCreds, discovery *Discovery, client *http.Client, logger *slog.Logger) *RelyingParty {
	return &RelyingParty{creds: creds, discovery: discovery, client: client, logger: logger}
}

// AuthCodeURL constructs the provider authorization URL carrying the state
// token. No prompt parameter is set, so returning users may skip explicit
// consent per provider policy.
func (rp *RelyingParty) AuthCodeURL(ctx context.Context, state string) (string, error) {
	pc, err := rp.discovery.Config(ctx)
	if err != nil {
		return "", err
	}
	return rp.oauthConfig(pc).AuthCodeURL(state), nil
}

// Exchange trades the authorization code for tokens via a form-encoded POST to
// the token endpoint. Provider rejections surface as TokenExchangeError with
// the upstream status and body for diagnostics.
func (rp *RelyingParty) Exchange(ctx context.Context, code string) (TokenSet, error) {
	pc, err := rp.discovery.Config(ctx)
	if err != nil {
		return TokenSet{}, err
	}

	if rp.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, rp.client)
	}

	tok, err := rp.oauthConfig(pc).Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return TokenSet{}, &TokenExchangeError{
				Status: retrieveErr.Response.StatusCode,
				Body:   string(retrieveErr.Body),
				Err:    err,
			}
		}
		return TokenSet{}, &TokenExchangeError{Err: err}
	}

	ts := TokenSet{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		ts.IDToken = idToken
	}
	if !tok.Expiry.IsZero() {
		ts.ExpiresIn = int64(time.Until(tok.Expiry).Seconds())
	}
	return ts, nil
}

func (rp *RelyingParty) oauthConfig(pc ProviderConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     rp.creds.ClientID,
		ClientSecret: rp.creds.ClientSecret,
		RedirectURL:  rp.creds.RedirectURI,
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  pc.AuthorizationEndpoint,
			TokenURL: pc.TokenEndpoint,
			// Client credentials travel in the form body, matching what the
			// provider expects from confidential web clients.
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

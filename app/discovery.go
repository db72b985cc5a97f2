package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
)

// ProviderConfig is the endpoint set resolved from the provider's well-known
// metadata document. Immutable once discovered.
type ProviderConfig struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	EndSessionEndpoint    string `json:"end_session_endpoint,omitempty"`
}

// Discovery resolves and memoizes provider metadata for the process lifetime.
// Only a successful fetch is cached; a failure surfaces as DiscoveryError and
// the next caller retries.
type Discovery struct {
	issuer string
	client *http.Client
	logger *slog.Logger

	mu  sync.Mutex
	cfg *ProviderConfig
}

var errMissingEndpoints = errors.New("metadata missing authorization or token endpoint")

// NewDiscovery constructs a Discovery for the issuer. A nil client uses
// http.DefaultClient.
func NewDiscovery(issuer string, client *http.Client, logger *slog.Logger) *Discovery {
	return &Discovery{issuer: issuer, client: client, logger: logger}
}

// Config returns the provider endpoint set, fetching the well-known document on
// first use. The mutex is held across the fetch so concurrent first callers do
// not race to discover twice.
func (d *Discovery) Config(ctx context.Context) (ProviderConfig, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cfg != nil {
		return *d.cfg, nil
	}

	if d.client != nil {
		ctx = oidc.ClientContext(ctx, d.client)
	}

	provider, err := oidc.NewProvider(ctx, d.issuer)
	if err != nil {
		return ProviderConfig{}, &DiscoveryError{Issuer: d.issuer, Err: err}
	}

	var cfg ProviderConfig
	if err := provider.Claims(&cfg); err != nil {
		return ProviderConfig{}, &DiscoveryError{Issuer: d.issuer, Err: err}
	}
	if cfg.AuthorizationEndpoint == "" || cfg.TokenEndpoint == "" {
		return ProviderConfig{}, &DiscoveryError{Issuer: d.issuer, Err: errMissingEndpoints}
	}

	d.cfg = &cfg
	d.logger.Info("discovered provider endpoints",
		"issuer", cfg.Issuer,
		"authorization_endpoint", cfg.AuthorizationEndpoint,
		"token_endpoint", cfg.TokenEndpoint,
	)
	return cfg, nil
}

// Reset drops the cached metadata. Test use only.
func (d *Discovery) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = nil
}

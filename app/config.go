package app

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Hardcoded session and state defaults
const (
	DefaultSessionTTL = 7 * 24 * time.Hour
	DefaultStateTTL   = 10 * time.Minute
	DefaultSweepEvery = time.Minute
)

// Config captures the full application configuration loaded from YAML and environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Provider ProviderCreds  `yaml:"provider"`
	Sessions SessionsConfig `yaml:"sessions"`
	Store    StoreConfig    `yaml:"store"`
}

// ServerConfig controls listener, TLS, and HTTP concerns.
type ServerConfig struct {
	ListenAddr      string    `yaml:"listen_addr"`
	HTTPListenAddr  string    `yaml:"http_listen_addr"`
	HTTPSListenAddr string    `yaml:"https_listen_addr"`
	DevMode         bool      `yaml:"dev_mode"`
	FrontendOrigin  string    `yaml:"frontend_origin"`
	CookieDomain    string    `yaml:"cookie_domain"`
	TLS             TLSConfig `yaml:"tls"`
}

// TLSConfig defines autocert behaviour for production listeners.
type TLSConfig struct {
	Domains  []string `yaml:"domains"`
	Email    string   `yaml:"email"`
	CacheDir string   `yaml:"cache_dir"`
}

// ProviderCreds holds the upstream OIDC issuer and client registration.
type ProviderCreds struct {
	Issuer       string `yaml:"issuer"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
}

// SessionsConfig controls the signed session credential and its cookie. The
// TTLs default to the hardcoded values and are tunable via environment only.
type SessionsConfig struct {
	Secret   string        `yaml:"secret"`
	TTL      time.Duration `yaml:"-"`
	StateTTL time.Duration `yaml:"-"`
}

// StoreConfig selects the session store backend.
type StoreConfig struct {
	Backend       string `yaml:"backend"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// LoadConfig reads the YAML config file and merges environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader(b))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:      "127.0.0.1:3000",
			HTTPListenAddr:  ":80",
			HTTPSListenAddr: ":443",
			DevMode:         true,
			FrontendOrigin:  "http://localhost:5173",
		},
		Provider: ProviderCreds{
			RedirectURI: "http://localhost:5173/auth/callback",
		},
		Sessions: SessionsConfig{
			TTL:      DefaultSessionTTL,
			StateTTL: DefaultStateTTL,
		},
		Store: StoreConfig{
			Backend: "memory",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	overrides := map[string]func(string){
		"AUTHBFF_LISTEN_ADDR":     func(v string) { cfg.Server.ListenAddr = v },
		"AUTHBFF_DEV_MODE":        func(v string) { cfg.Server.DevMode = parseBool(v, cfg.Server.DevMode) },
		"AUTHBFF_FRONTEND_ORIGIN": func(v string) { cfg.Server.FrontendOrigin = v },
		"AUTHBFF_COOKIE_DOMAIN":   func(v string) { cfg.Server.CookieDomain = v },
		"AUTHBFF_TLS_DOMAINS":     func(v string) { cfg.Server.TLS.Domains = splitAndTrim(v) },
		"AUTHBFF_TLS_EMAIL":       func(v string) { cfg.Server.TLS.Email = v },
		"AUTHBFF_ISSUER":          func(v string) { cfg.Provider.Issuer = v },
		"AUTHBFF_CLIENT_ID":       func(v string) { cfg.Provider.ClientID = v },
		"AUTHBFF_CLIENT_SECRET":   func(v string) { cfg.Provider.ClientSecret = v },
		"AUTHBFF_REDIRECT_URI":    func(v string) { cfg.Provider.RedirectURI = v },
		"AUTHBFF_SESSION_SECRET":  func(v string) { cfg.Sessions.Secret = v },
		"AUTHBFF_SESSION_TTL":     func(v string) { cfg.Sessions.TTL = parseDuration(v, cfg.Sessions.TTL) },
		"AUTHBFF_STATE_TTL":       func(v string) { cfg.Sessions.StateTTL = parseDuration(v, cfg.Sessions.StateTTL) },
		"AUTHBFF_STORE_BACKEND":   func(v string) { cfg.Store.Backend = v },
		"AUTHBFF_REDIS_ADDR":      func(v string) { cfg.Store.RedisAddr = v },
		"AUTHBFF_REDIS_PASSWORD":  func(v string) { cfg.Store.RedisPassword = v },
	}

	for key, fn := range overrides {
		if val, ok := os.LookupEnv(key); ok {
			fn(val)
		}
	}
}

func parseDuration(val string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}

func parseBool(val string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isHTTPURL(v string) bool {
	return strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://")
}

// Validate performs sanity checks on the config.
func (c Config) Validate() error {
	if c.Provider.Issuer == "" {
		return errors.New("provider.issuer is required")
	}
	if !isHTTPURL(c.Provider.Issuer) {
		return fmt.Errorf("provider.issuer must start with http:// or https://, got: %s", c.Provider.Issuer)
	}
	if c.Provider.ClientID == "" {
		return errors.New("provider.client_id is required")
	}
	if c.Provider.RedirectURI == "" {
		return errors.New("provider.redirect_uri is required")
	}
	if !isHTTPURL(c.Provider.RedirectURI) {
		return fmt.Errorf("provider.redirect_uri must start with http:// or https://, got: %s", c.Provider.RedirectURI)
	}

	if c.Sessions.Secret == "" && !c.Server.DevMode {
		return errors.New("sessions.secret is required in production mode")
	}
	if c.Sessions.TTL <= 0 {
		return errors.New("sessions.ttl must be positive")
	}
	if c.Sessions.StateTTL <= 0 {
		return errors.New("sessions.state_ttl must be positive")
	}

	if c.Server.FrontendOrigin != "" && !isHTTPURL(c.Server.FrontendOrigin) {
		return fmt.Errorf("server.frontend_origin must start with http:// or https://, got: %s", c.Server.FrontendOrigin)
	}

	switch c.Store.Backend {
	case "", "memory":
	case "redis":
		if c.Store.RedisAddr == "" {
			return errors.New("store.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("store.backend must be 'memory' or 'redis', got: %s", c.Store.Backend)
	}

	if !c.Server.DevMode && len(c.Server.TLS.Domains) == 0 {
		return errors.New("server.tls.domains must be provided in production")
	}

	return nil
}

// SessionSecret returns the configured signing secret, with a fixed dev fallback.
func (c Config) SessionSecret() []byte {
	if c.Sessions.Secret != "" {
		return []byte(c.Sessions.Secret)
	}
	return []byte("dev-session-secret")
}

package app

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// App bundles runtime dependencies for the HTTP service.
type App struct {
	Config    Config
	Logger    *slog.Logger
	Store     Store
	Discovery *Discovery
	RP        *RelyingParty
	Sessions  *SessionManager

	redisClient *redis.Client
	janitorStop chan struct{}
}

// NewApp wires together the application state from configuration.
func NewApp(cfg Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	switch cfg.Store.Backend {
	case "redis":
		a.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		a.Store = NewRedisStore(a.redisClient, cfg.Sessions.StateTTL, cfg.Sessions.TTL)
	default:
		mem := NewMemoryStore(cfg.Sessions.StateTTL, cfg.Sessions.TTL)
		a.janitorStop = make(chan struct{})
		mem.StartJanitor(DefaultSweepEvery, a.janitorStop)
		a.Store = mem
	}

	a.Discovery = NewDiscovery(cfg.Provider.Issuer, nil, logger)
	a.RP = NewRelyingParty(cfg.Provider, a.Discovery, nil, logger)
	a.Sessions = NewSessionManager(cfg, a.Store, logger)

	return a, nil
}

// Close releases background resources.
func (a *App) Close() error {
	if a.janitorStop != nil {
		close(a.janitorStop)
		a.janitorStop = nil
	}
	if a.redisClient != nil {
		return a.redisClient.Close()
	}
	return nil
}

// handleLogin initiates the authorization code flow: it records a pending
// state and returns the provider authorization URL for the frontend to open.
func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	state := NewToken()
	if err := a.Store.SavePendingState(ctx, PendingState{State: state, CreatedAt: time.Now()}); err != nil {
		a.Logger.Error("save pending state", "error", err)
		writeError(w, http.StatusInternalServerError, "Error initiating login")
		return
	}

	authURL, err := a.RP.AuthCodeURL(ctx, state)
	if err != nil {
		a.Logger.Error("build authorization url", "error", err)
		writeError(w, http.StatusInternalServerError, "Error initiating login")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"redirectUrl": authURL,
		"message":     "Redirect to this URL to login",
	})
}

type callbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// handleCallback completes the flow: the frontend posts back the code and
// state it received from the provider redirect. The pending state is consumed
// atomically before the exchange starts, so a replayed state fails even when
// the first attempt died mid-exchange. No session exists until every
// validation step has passed.
func (a *App) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req callbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Code == "" {
		a.Logger.Warn("callback rejected", "error", ErrMissingCode)
		writeError(w, http.StatusBadRequest, "Authorization code missing")
		return
	}

	if req.State == "" {
		a.Logger.Warn("callback rejected", "error", ErrInvalidState)
		writeError(w, http.StatusBadRequest, "Invalid state parameter")
		return
	}
	_, ok, err := a.Store.ConsumeState(ctx, req.State)
	if err != nil {
		a.Logger.Error("consume state", "error", err)
		writeError(w, http.StatusInternalServerError, "Authentication failed")
		return
	}
	if !ok {
		// Unknown and already-consumed states are indistinguishable here.
		a.Logger.Warn("callback rejected", "error", ErrInvalidState)
		writeError(w, http.StatusBadRequest, "Invalid state parameter")
		return
	}

	tokens, err := a.RP.Exchange(ctx, req.Code)
	if err != nil {
		a.Logger.Error("token exchange", "error", err)
		writeError(w, http.StatusInternalServerError, "Authentication failed")
		return
	}

	if tokens.IDToken == "" {
		a.Logger.Error("callback failed", "error", ErrMissingIDToken)
		writeError(w, http.StatusInternalServerError, "Authentication failed")
		return
	}

	user, err := ExtractClaims(tokens.IDToken)
	if err != nil {
		a.Logger.Error("claim extraction", "error", err)
		writeError(w, http.StatusInternalServerError, "Authentication failed")
		return
	}

	sessionID, err := a.Sessions.CreateSession(ctx, tokens, user)
	if err != nil {
		a.Logger.Error("create session", "error", err)
		writeError(w, http.StatusInternalServerError, "Authentication failed")
		return
	}

	credential, err := a.Sessions.IssueCredential(sessionID, user)
	if err != nil {
		a.Logger.Error("issue credential", "error", err)
		writeError(w, http.StatusInternalServerError, "Authentication failed")
		return
	}

	a.Sessions.SetCookie(w, credential)
	a.Logger.Info("session created", "sub", user.Subject)

	// Only identity leaves the server; the token set stays in the store.
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// handleLogout deletes the referenced session when the credential verifies and
// always clears the cookie. The provider's end-session endpoint is deliberately
// not called: keeping the upstream session alive gives instant re-login
// without a consent re-prompt.
func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	a.Sessions.Revoke(r.Context(), a.Sessions.CredentialFromRequest(r))
	a.Sessions.ClearCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// handleMe returns the current user. The session gate runs before this
// handler, so the identity is already on the context.
func (a *App) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":          user,
		"authenticated": true,
	})
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   "authbff",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

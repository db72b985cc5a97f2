package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

// fakeIDP is an in-process identity provider serving the well-known document
// and the token endpoint.
type fakeIDP struct {
	srv           *httptest.Server
	discoveryHits int32

	mu            sync.Mutex
	lastTokenForm url.Values
	idTokenClaims jwt.MapClaims // nil omits id_token from the response
	tokenStatus   int           // non-zero forces an error response
	tokenBody     string
}

func newFakeIDP(t *testing.T) *fakeIDP {
	t.Helper()
	f := &fakeIDP{
		idTokenClaims: jwt.MapClaims{"sub": "u1", "email": "a@b.com"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.discoveryHits, 1)
		writeJSON(w, http.StatusOK, map[string]any{
			"issuer":                 f.srv.URL,
			"authorization_endpoint": f.srv.URL + "/authorize",
			"token_endpoint":         f.srv.URL + "/token",
			"userinfo_endpoint":      f.srv.URL + "/userinfo",
			"end_session_endpoint":   f.srv.URL + "/logout",
			"jwks_uri":               f.srv.URL + "/jwks",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.lastTokenForm = r.PostForm
		status := f.tokenStatus
		body := f.tokenBody
		claims := f.idTokenClaims
		f.mu.Unlock()

		if status != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
			return
		}

		resp := map[string]any{
			"access_token":  "upstream-access",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "upstream-refresh",
		}
		if claims != nil {
			idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("provider-key"))
			if err != nil {
				http.Error(w, "sign id_token", http.StatusInternalServerError)
				return
			}
			resp["id_token"] = idToken
		}
		writeJSON(w, http.StatusOK, resp)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeIDP) issuer() string { return f.srv.URL }

func (f *fakeIDP) setIDTokenClaims(claims jwt.MapClaims) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idTokenClaims = claims
}

func (f *fakeIDP) failTokenExchange(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenStatus = status
	f.tokenBody = body
}

func (f *fakeIDP) tokenForm() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTokenForm
}

func decodeJSONBody(t *testing.T, r *http.Response, v any) {
	t.Helper()
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
}

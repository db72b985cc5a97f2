package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes constructs the HTTP router for the auth surface.
func (a *App) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(a.Logger))
	r.Use(RecoveryMiddleware(a.Logger))
	r.Use(CORSMiddleware(a.Config.Server.FrontendOrigin))

	r.Get("/health", a.handleHealth)

	r.Get("/login", a.handleLogin)
	r.Post("/callback", a.handleCallback)
	r.Post("/logout", a.handleLogout)
	r.With(a.RequireSession).Get("/me", a.handleMe)

	return r
}

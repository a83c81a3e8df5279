package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/wanderauth/go-user-accounts/internal/api/account"
)

// Config contains dependencies needed for the router setup.
type Config struct {
	AccountHandler         account.Handler
	AuthenticateMiddleware func(http.Handler) http.Handler
}

// SetupRouter wires the account routes. Server-wide middleware (logger,
// requestID, recoverer) are applied before mounting this router in main.go.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	// Public routes
	r.Group(func(r chi.Router) {
		r.Post("/signup", cfg.AccountHandler.Signup)
		r.Post("/login", cfg.AccountHandler.Login)
		r.Post("/password/reset", cfg.AccountHandler.RequestPasswordReset)
		r.Post("/password/reset/{token}", cfg.AccountHandler.ResetPassword)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(cfg.AuthenticateMiddleware)

		r.Put("/profile/edit", cfg.AccountHandler.EditProfile)
		r.Post("/password/change", cfg.AccountHandler.ChangePassword)
		r.Post("/logout", cfg.AccountHandler.Logout)
		r.Post("/logout/all", cfg.AccountHandler.LogoutAll)
	})

	return r
}

/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and routes. This is the
  wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for external dashboards

ROUTES:
  GET  /balance-and-history  JSON state + ledger
  POST /transactions         Record a mutation
  GET  /accrue-interest      Cron accrual trigger (shared-secret gated)
  GET  /                     Statement page
  GET  /pay                  Payment form (Basic-Auth gated)
  POST /pay                  Payment form submit (Basic-Auth gated)

SECURITY:
  /pay uses a single shared Basic-Auth credential. With no credential
  configured the route rejects everything - locked by default, the
  same behavior as the deployment this replaces.
*/
package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// BasicAuthCredentials is the single shared credential for /pay.
type BasicAuthCredentials struct {
	User     string
	Password string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, auth BasicAuthCredentials) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Cron-Secret"},
		AllowCredentials: false,
	}))

	// JSON API
	r.Get("/balance-and-history", h.GetBalanceAndHistory)
	r.Post("/transactions", h.CreateTransaction)
	r.Get("/accrue-interest", h.AccrueInterest)

	// HTML pages
	r.Get("/", h.StatementPage)
	r.Group(func(r chi.Router) {
		r.Use(basicAuth(auth))
		r.Get("/pay", h.PayPage)
		r.Post("/pay", h.SubmitPayment)
	})

	return r
}

// basicAuth gates a route group behind one shared credential with
// constant-time comparison. Unset credentials reject everything.
func basicAuth(auth BasicAuthCredentials) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth.User == "" || auth.Password == "" {
				unauthorized(w)
				return
			}

			user, password, ok := r.BasicAuth()
			if !ok {
				unauthorized(w)
				return
			}

			userOK := subtle.ConstantTimeCompare([]byte(user), []byte(auth.User)) == 1
			passOK := subtle.ConstantTimeCompare([]byte(password), []byte(auth.Password)) == 1
			if !userOK || !passOK {
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="Payments"`)
	http.Error(w, "Authentication required", http.StatusUnauthorized)
}

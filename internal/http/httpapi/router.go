// Package httpapi assembles the service router.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/whale-professor/Solvan/internal/http/handlers"
	"github.com/whale-professor/Solvan/internal/middleware"
)

// NewRouter wires middleware and routes. rateLimitPerMin <= 0 disables rate
// limiting.
func NewRouter(app *handlers.App, log zerolog.Logger, rateLimitPerMin int) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RealIP,
		middleware.RequestID,
		middleware.Logger(log),
		chimw.Recoverer,
	)
	if rateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(rateLimitPerMin, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/queue/depth", app.QueueDepth)
	r.Post("/v1/admin/flush", app.AdminFlush)
	r.Post("/webhook/{token}", app.Webhook)

	return r
}

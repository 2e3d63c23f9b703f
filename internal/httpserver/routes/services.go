package routes

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/vigil/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vigil/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/vigil/internal/httpserver/mw"
)

func init() { Register(registerServices) }

func registerServices(r chi.Router, d deps.Deps) {
	r.Route("/api/v1/services", func(r chi.Router) {
		// Point reads and writes get a hard deadline. The event stream
		// below must not: it stays open as long as the client does.
		timed := r.With(middleware.Timeout(5 * time.Second))

		timed.Get("/", handlers.ListServices(d))
		timed.Get("/{id}", handlers.GetService(d))

		mutating := timed
		if d.RateBurst > 0 {
			mutating = timed.With(mw.RateLimit(mw.RateLimitConfig{
				Burst:             d.RateBurst,
				RefillPerIPPerMin: d.RateRefillMin,
				MaxEntries:        10000,
				TrustProxy:        d.TrustProxy,
			}))
		}
		mutating.Put("/", handlers.RegisterService(d))
		mutating.Delete("/{id}", handlers.DeleteService(d))
		mutating.Post("/{id}/down", handlers.DownService(d))

		r.Get("/{id}/events", handlers.ServiceEvents(d))
	})
}

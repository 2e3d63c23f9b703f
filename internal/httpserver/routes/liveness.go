package routes

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/vigil/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vigil/internal/httpserver/handlers"
)

func init() { Register(registerLiveness, middleware.Timeout(5*time.Second)) }

func registerLiveness(r chi.Router, d deps.Deps) {
	r.Get("/api/v1/liveness", handlers.Liveness(d))
}

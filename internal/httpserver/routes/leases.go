package routes

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/vigil/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vigil/internal/httpserver/handlers"
)

func init() { Register(registerLeases, middleware.Timeout(5*time.Second)) }

// Renewals are deliberately not rate limited: every live worker sends one
// each heartbeat interval, and throttling them would expire healthy records.
func registerLeases(r chi.Router, d deps.Deps) {
	r.Post("/api/v1/leases/{lease}/renew", handlers.RenewLease(d))
}

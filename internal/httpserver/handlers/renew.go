package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/vigil/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vigil/internal/registry"
)

// RenewLease extends the TTL of a lease returned by service registration.
// Workers call this between state changes instead of re-sending the whole
// record; a 404 means the lease (and the record with it) is already gone
// and the worker must register again.
func RenewLease(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "lease")
		lease, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || lease <= 0 {
			writeError(w, fmt.Errorf("lease %q: %w", raw, registry.ErrInvalidArgument))
			return
		}

		if err := d.Registry.Renew(r.Context(), registry.LeaseID(lease)); err != nil {
			writeError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/vigil/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vigil/internal/registry"
)

type livenessResponse struct {
	Up bool `json:"up"`
}

// Liveness answers the one question most callers have: is this service up
// right now. Lookup is by ?id= or by ?kind=&host=; an unregistered service
// reads as down, not as an error.
func Liveness(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := r.URL.Query()
		by := registry.Lookup{
			ID:   params.Get("id"),
			Kind: params.Get("kind"),
			Host: params.Get("host"),
		}

		up, err := d.Registry.IsUp(r.Context(), by)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, livenessResponse{Up: up})
	}
}

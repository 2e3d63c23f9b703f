package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/vigil/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vigil/internal/logger"
	"github.com/MrSnakeDoc/vigil/internal/registry"
)

// GetService returns the full record of one service by id.
func GetService(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		rec, err := d.Registry.GetOne(r.Context(), registry.Lookup{ID: id})
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, rec)
	}
}

// DeleteService removes a record and all its index entries immediately,
// without waiting for its lease to run out.
func DeleteService(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := d.Registry.Delete(r.Context(), registry.Lookup{ID: id}); err != nil {
			writeError(w, err)
			return
		}

		d.Logger.Info("service deregistered", logger.String("id", id))
		w.WriteHeader(http.StatusNoContent)
	}
}

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/vigil/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vigil/internal/logger"
	"github.com/MrSnakeDoc/vigil/internal/registry"
)

// downRequest is the optional maintenance annotation for marking a service
// down. Start and end are UTC epoch seconds; zero means unset.
type downRequest struct {
	Note  string `json:"note"`
	Start int64  `json:"start"`
	End   int64  `json:"end"`
}

// DownService marks a record as deliberately unavailable. The record stays
// registered and keeps its lease; only its status partition moves, so
// consumers distinguish "in maintenance" from "vanished".
func DownService(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req downRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, fmt.Errorf("decode body: %w", registry.ErrInvalidArgument))
			return
		}

		m := registry.Maintenance{Note: req.Note}
		if req.Start != 0 {
			m.Start = time.Unix(req.Start, 0)
		}
		if req.End != 0 {
			m.End = time.Unix(req.End, 0)
		}

		if err := d.Registry.Down(r.Context(), registry.Lookup{ID: id}, m); err != nil {
			writeError(w, err)
			return
		}

		d.Logger.Info("service marked down",
			logger.String("id", id),
			logger.String("note", req.Note))
		w.WriteHeader(http.StatusNoContent)
	}
}

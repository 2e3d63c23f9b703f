package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/vigil/internal/domain"
	"github.com/MrSnakeDoc/vigil/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vigil/internal/logger"
	"github.com/MrSnakeDoc/vigil/internal/registry"
)

// streamEvent is one line of the event stream. Record is present on
// updates and absent on deletions (expiry included, the two are
// indistinguishable on the wire).
type streamEvent struct {
	Type   string                `json:"type"`
	Record *domain.ServiceRecord `json:"record,omitempty"`
}

// ServiceEvents streams every change to one record as newline-delimited
// JSON until the client disconnects. Subscribing to an id that does not
// exist yet is allowed; the first event will be its creation.
func ServiceEvents(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
			return
		}

		id := chi.URLParam(r, "id")
		sub, err := d.Registry.Notify(r.Context(), registry.Lookup{ID: id})
		if err != nil {
			writeError(w, err)
			return
		}
		defer sub.Cancel()

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		// Push the headers out so the client knows the watch is live
		// before the first event arrives.
		flusher.Flush()

		d.Logger.Debug("event stream opened", logger.String("id", id))

		enc := json.NewEncoder(w)
		for ev := range sub.Events() {
			out := streamEvent{Type: "delete"}
			if ev.Type == registry.EventPut {
				rec, err := d.Codec.Decode(ev.Value)
				if err != nil {
					d.Logger.Warn("skipping undecodable event payload",
						logger.String("id", id),
						logger.Error(err))
					continue
				}
				out = streamEvent{Type: "update", Record: rec}
			}
			if err := enc.Encode(out); err != nil {
				// Client went away; the deferred Cancel tears down the watch.
				return
			}
			flusher.Flush()
		}
	}
}

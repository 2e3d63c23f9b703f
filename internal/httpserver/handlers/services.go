package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/MrSnakeDoc/vigil/internal/domain"
	"github.com/MrSnakeDoc/vigil/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vigil/internal/logger"
	"github.com/MrSnakeDoc/vigil/internal/registry"
)

type listResponse struct {
	Count    int                     `json:"count"`
	Services []*domain.ServiceRecord `json:"services"`
}

type registerResponse struct {
	ID    string           `json:"id"`
	Lease registry.LeaseID `json:"lease"`
}

// ListServices returns all registered services matching the query
// parameters. Values of the same parameter are ORed, different parameters
// are ANDed; no parameters at all returns the whole fleet.
func ListServices(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := queryFromParams(r.URL.Query())
		if err != nil {
			writeError(w, err)
			return
		}

		records, err := d.Registry.GetMany(r.Context(), q)
		if err != nil {
			d.Logger.Error("list services failed", logger.Error(err))
			writeError(w, err)
			return
		}
		if records == nil {
			records = []*domain.ServiceRecord{}
		}

		writeJSON(w, http.StatusOK, listResponse{
			Count:    len(records),
			Services: records,
		})
	}
}

// RegisterService creates or updates a service record from the request body
// and returns the lease now backing it. Callers are expected to renew that
// lease; a record that stops being renewed disappears on its own.
func RegisterService(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rec domain.ServiceRecord
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			writeError(w, fmt.Errorf("decode body: %w", registry.ErrInvalidArgument))
			return
		}

		lease, err := d.Registry.Update(r.Context(), &rec)
		if err != nil {
			writeError(w, err)
			return
		}

		d.Logger.Info("service registered",
			logger.String("id", rec.ID),
			logger.String("kind", rec.Kind),
			logger.String("host", rec.Host),
			logger.Int64("lease", int64(lease)))
		writeJSON(w, http.StatusOK, registerResponse{ID: rec.ID, Lease: lease})
	}
}

// queryFromParams builds a registry query from repeatable URL parameters.
// Each value may also carry comma-separated entries, so ?region=a,b and
// ?region=a&region=b are equivalent.
func queryFromParams(values url.Values) (registry.Query, error) {
	q := registry.Query{
		IDs:     gatherParam(values, "id"),
		Kinds:   gatherParam(values, "kind"),
		Hosts:   gatherParam(values, "host"),
		Regions: gatherParam(values, "region"),
	}
	for _, name := range gatherParam(values, "status") {
		s, ok := domain.StatusValue(name)
		if !ok {
			return registry.Query{}, fmt.Errorf("unknown status %q: %w", name, registry.ErrInvalidArgument)
		}
		q.Statuses = append(q.Statuses, s)
	}
	return q, nil
}

func gatherParam(values url.Values, name string) []string {
	var out []string
	for _, raw := range values[name] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/vigil/internal/domain"
	"github.com/MrSnakeDoc/vigil/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vigil/internal/registry"
)

type componentStatus struct {
	OK      bool   `json:"ok"`
	Records *int   `json:"records,omitempty"`
	Up      *int   `json:"up,omitempty"`
	ID      string `json:"id,omitempty"`
	Mode    string `json:"mode,omitempty"`
	Impact  string `json:"impact,omitempty"`
	Error   string `json:"error,omitempty"`
}

type infraResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components"`
}

func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		components := map[string]componentStatus{
			"store":    checkStore(d),
			"registry": checkRegistry(d),
			"agent":    checkAgent(d),
		}

		response := infraResponse{
			Status:     determineOverallStatus(components),
			Components: components,
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

func determineOverallStatus(components map[string]componentStatus) string {
	// Without the store nothing works at all
	if store, exists := components["store"]; exists && !store.OK {
		return "critical"
	}

	// Store reachable but listings failing points at a half-broken namespace
	if reg, exists := components["registry"]; exists && !reg.OK {
		return "degraded"
	}

	return "nominal"
}

func checkStore(d deps.Deps) componentStatus {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := d.Store.Get(ctx, d.Keyspace.Root()); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "unreachable",
			Impact: "all-operations-failing",
			Error:  err.Error(),
		}
	}

	return componentStatus{
		OK:   true,
		Mode: "connected",
	}
}

func checkRegistry(d deps.Deps) componentStatus {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	records, err := d.Registry.GetMany(ctx, registry.Query{})
	if err != nil {
		return componentStatus{
			OK:     false,
			Impact: "listings-unavailable",
			Error:  err.Error(),
		}
	}

	total := len(records)
	up := 0
	for _, rec := range records {
		if rec.Status == domain.StatusUp {
			up++
		}
	}

	return componentStatus{
		OK:      true,
		Records: &total,
		Up:      &up,
	}
}

func checkAgent(d deps.Deps) componentStatus {
	if d.AgentID == "" {
		return componentStatus{
			OK:   true,
			Mode: "disabled",
		}
	}

	return componentStatus{
		OK:   true,
		ID:   d.AgentID,
		Mode: "self-registering",
	}
}

// internal/handlers/api.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/typebattle/typebattle/internal/room"
)

// HealthzHandler answers liveness probes.
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// DebugRoomsHandler returns an in-memory snapshot of active rooms for
// debugging and dashboards.
func DebugRoomsHandler(svc *room.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(svc.Summaries())
	}
}

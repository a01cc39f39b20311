package backend

import (
	"context"
	"net/http"
	"time"
)

const healthTimeout = 3 * time.Second

// Pinger checks connectivity to a data store.
type Pinger func(ctx context.Context) error

// HealthHandler reports the service and data store status: 200 when the store
// answers a ping, 503 otherwise.
func HealthHandler(service string, ping Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		now := time.Now().UTC().Format(time.RFC3339)
		if err := ping(ctx); err != nil {
			WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":    "unhealthy",
				"service":   service,
				"database":  "disconnected",
				"error":     err.Error(),
				"timestamp": now,
			})
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":    "healthy",
			"service":   service,
			"database":  "connected",
			"timestamp": now,
		})
	}
}

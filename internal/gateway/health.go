package gateway

import (
	"net/http"
	"time"
)

// handleHealth reports liveness, uptime in seconds, and the active
// session count.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":             true,
		"uptime":         int64(time.Since(g.startedAt).Seconds()),
		"activeSessions": g.sessions.Size(),
	})
}

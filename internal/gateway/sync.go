package gateway

import "net/http"

// handleSync re-measures the session's clock offset with a heartbeat round
// trip and stores the estimate on the session.
func (g *Gateway) handleSync(w http.ResponseWriter, r *http.Request) {
	claims, _ := sessionClaims(r.Context())
	sess := g.sessions.Get(claims.SessionID)
	if sess == nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	snd, ok := sess.Sender.(Sender)
	if !ok {
		writeError(w, http.StatusInternalServerError, "session has no usable sender")
		return
	}

	outcome, err := g.syncSender(r.Context(), snd)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":      "sync failed: upstream did not respond",
			"statusCode": http.StatusBadGateway,
		})
		return
	}

	g.sessions.SetSyncOffset(sess.ID, outcome.SyncOffset)
	g.sessions.Touch(sess.ID)

	writeJSON(w, http.StatusOK, map[string]any{
		"syncOffset":      outcome.SyncOffset,
		"roundTripTime":   outcome.RoundTripTime,
		"serverTimestamp": outcome.ServerTimestamp,
		"statusCode":      outcome.StatusCode,
	})
}

package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/livecap/livecap/internal/session"
	"github.com/livecap/livecap/internal/token"
)

type registerRequest struct {
	APIKey    string `json:"apiKey"`
	StreamKey string `json:"streamKey"`
	Domain    string `json:"domain"`
	Sequence  int64  `json:"sequence"`
}

type registerResponse struct {
	Token      string `json:"token"`
	SessionID  string `json:"sessionId"`
	Sequence   int64  `json:"sequence"`
	SyncOffset int64  `json:"syncOffset"`
	StartedAt  int64  `json:"startedAt"`
}

// handleRegister registers a session for an (apiKey, streamKey, domain)
// triple. Registration is idempotent: repeating it while the session is
// alive returns the existing session and refreshes its activity.
func (g *Gateway) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.APIKey == "" || req.StreamKey == "" || req.Domain == "" {
		writeError(w, http.StatusBadRequest, "apiKey, streamKey, and domain are required")
		return
	}

	validation, err := g.keys.Validate(r.Context(), req.APIKey)
	if err != nil {
		g.logger.Error("api key validation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "key validation failed")
		return
	}
	if !validation.Valid {
		writeError(w, http.StatusUnauthorized, "API key "+validation.Reason)
		return
	}

	id := session.DeriveKey(req.APIKey, req.StreamKey, req.Domain)

	if existing := g.sessions.Get(id); existing != nil {
		g.sessions.Touch(id)
		writeJSON(w, http.StatusOK, registerResponse{
			Token:      existing.Token,
			SessionID:  existing.ID,
			Sequence:   existing.Sequence,
			SyncOffset: existing.SyncOffset,
			StartedAt:  existing.StartedAt,
		})
		return
	}

	snd := g.senderFor(req.StreamKey, req.Sequence)
	if err := snd.Start(); err != nil {
		g.logger.Error("sender start failed", "session", id, "error", err)
		writeError(w, http.StatusBadGateway, "failed to start caption sender")
		return
	}

	// Initial clock sync is best-effort; an unreachable upstream should
	// not block registration.
	var offset int64
	if sync, err := g.syncSender(r.Context(), snd); err == nil {
		offset = sync.SyncOffset
	} else {
		g.logger.Debug("initial sync failed", "session", id, "error", err)
	}

	signed, err := g.signer.Sign(token.Claims{
		SessionID: id,
		APIKey:    req.APIKey,
		StreamKey: req.StreamKey,
		Domain:    req.Domain,
	})
	if err != nil {
		g.logger.Error("token signing failed", "session", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to issue session token")
		return
	}

	sess := g.sessions.Create(session.CreateParams{
		APIKey:     req.APIKey,
		StreamKey:  req.StreamKey,
		Domain:     req.Domain,
		Token:      signed,
		Sender:     snd,
		Sequence:   snd.Sequence(),
		SyncOffset: offset,
	})
	g.metrics.sessionsRegistered.Inc()

	writeJSON(w, http.StatusOK, registerResponse{
		Token:      signed,
		SessionID:  sess.ID,
		Sequence:   sess.Sequence,
		SyncOffset: sess.SyncOffset,
		StartedAt:  sess.StartedAt,
	})
}

// handleSessionStatus reports the live sequence and sync offset.
func (g *Gateway) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	claims, _ := sessionClaims(r.Context())
	sess := g.sessions.Get(claims.SessionID)
	if sess == nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	g.sessions.Touch(claims.SessionID)
	writeJSON(w, http.StatusOK, map[string]int64{
		"sequence":   sess.Sequence,
		"syncOffset": sess.SyncOffset,
	})
}

// handleRemoveSession tears the session down, ending the upstream sender
// before the record is dropped.
func (g *Gateway) handleRemoveSession(w http.ResponseWriter, r *http.Request) {
	claims, _ := sessionClaims(r.Context())
	sess := g.sessions.Get(claims.SessionID)
	if sess == nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	if err := sess.Sender.End(); err != nil {
		g.logger.Warn("sender teardown failed", "session", sess.ID, "error", err)
	}
	g.sessions.Remove(sess.ID)

	writeJSON(w, http.StatusOK, map[string]any{
		"removed":   true,
		"sessionId": sess.ID,
	})
}

type syncOutcome struct {
	SyncOffset      int64
	RoundTripTime   int64
	ServerTimestamp string
	StatusCode      int
}

// syncSender measures a heartbeat round trip and estimates the one-way
// latency as half the RTT.
func (g *Gateway) syncSender(ctx context.Context, snd Sender) (syncOutcome, error) {
	t0 := time.Now()
	res, err := snd.Heartbeat(ctx)
	if err != nil {
		return syncOutcome{}, err
	}
	rtt := time.Since(t0).Milliseconds()

	return syncOutcome{
		SyncOffset:      rtt / 2,
		RoundTripTime:   rtt,
		ServerTimestamp: res.ServerTimestamp,
		StatusCode:      res.StatusCode,
	}, nil
}

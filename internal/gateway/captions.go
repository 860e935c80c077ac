package gateway

import (
	"fmt"
	"net/http"
	"time"

	"github.com/livecap/livecap/pkg/caption"
)

type captionInput struct {
	Text string `json:"text"`
	// Timestamp is an absolute wall-clock time string.
	Timestamp *string `json:"timestamp"`
	// Time is milliseconds since session start, resolved against the
	// session's start time and sync offset.
	Time *int64 `json:"time"`
}

type captionsRequest struct {
	Captions []captionInput `json:"captions"`
}

// handleCaptions forwards one or more captions through the session's
// upstream sender.
func (g *Gateway) handleCaptions(w http.ResponseWriter, r *http.Request) {
	var req captionsRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Captions) == 0 {
		writeError(w, http.StatusBadRequest, "captions must be a non-empty array")
		return
	}

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

	batch := make([]caption.Caption, 0, len(req.Captions))
	for _, in := range req.Captions {
		c := caption.Caption{Text: in.Text}

		switch {
		case in.Timestamp != nil:
			at, err := caption.ParseTimestamp(*in.Timestamp)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid timestamp: "+*in.Timestamp)
				return
			}
			c.At = at
		case in.Time != nil:
			absMs := sess.StartedAt + *in.Time + sess.SyncOffset
			c.At = time.UnixMilli(absMs).UTC()
		}

		batch = append(batch, c)
	}

	result, err := snd.SendBatch(r.Context(), batch)
	if err != nil {
		g.metrics.captionsFailed.Add(float64(len(batch)))
		g.sessions.RecordSend(sess.ID, true)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":      err.Error(),
			"statusCode": http.StatusBadGateway,
		})
		return
	}

	g.sessions.SetSequence(sess.ID, snd.Sequence())
	g.sessions.Touch(sess.ID)

	if !result.OK() {
		g.metrics.captionsFailed.Add(float64(len(batch)))
		g.sessions.RecordSend(sess.ID, true)
		writeJSON(w, result.StatusCode, map[string]any{
			"error":      fmt.Sprintf("upstream returned status %d", result.StatusCode),
			"statusCode": result.StatusCode,
			"sequence":   result.Sequence,
		})
		return
	}

	g.metrics.captionsSent.Add(float64(len(batch)))
	for range batch {
		g.sessions.RecordSend(sess.ID, false)
	}

	resp := map[string]any{
		"sequence":        result.Sequence,
		"statusCode":      result.StatusCode,
		"serverTimestamp": result.ServerTimestamp,
	}
	if len(batch) == 1 {
		if batch[0].At.IsZero() {
			resp["timestamp"] = nil
		} else {
			resp["timestamp"] = caption.FormatTimestamp(batch[0].At)
		}
	} else {
		resp["count"] = result.Count
	}
	writeJSON(w, http.StatusOK, resp)
}

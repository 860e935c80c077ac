package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/livecap/livecap/pkg/caption"
)

// wsFrame is one client message on the caption socket.
type wsFrame struct {
	Type string `json:"type"` // "caption" or "ping"
	Text string `json:"text,omitempty"`
	// Time is milliseconds since session start; absent means "now".
	Time *int64 `json:"time,omitempty"`
}

// wsAck answers each frame.
type wsAck struct {
	Type     string `json:"type"` // "ack", "pong", or "error"
	Sequence int64  `json:"sequence,omitempty"`
	Error    string `json:"error,omitempty"`
}

// handleCaptionSocket streams captions over a websocket so live transcribers
// avoid one HTTP round trip per line. Each caption frame is acknowledged
// with the sequence it was sent at.
func (g *Gateway) handleCaptionSocket(w http.ResponseWriter, r *http.Request) {
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

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.logger.Debug("websocket accept failed", "session", sess.ID, "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected close")

	g.logger.Info("caption socket opened", "session", sess.ID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The session may be evicted or removed while the socket is open, and
	// the handler is usually parked in conn.Read when that happens. The
	// watcher closes the socket so the pending Read unblocks immediately.
	go func() {
		select {
		case <-sess.Done():
			conn.Close(websocket.StatusGoingAway, "session ended")
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		frame, err := readFrame(ctx, conn)
		if err != nil {
			select {
			case <-sess.Done():
				// The watcher already closed the socket.
				return
			default:
			}

			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				conn.Close(websocket.StatusNormalClosure, "")
			} else if !errors.Is(err, context.Canceled) {
				g.logger.Debug("caption socket read failed", "session", sess.ID, "error", err)
			}
			return
		}

		switch frame.Type {
		case "ping":
			g.writeAck(ctx, conn, wsAck{Type: "pong", Sequence: snd.Sequence()})

		case "caption":
			if frame.Text == "" {
				g.writeAck(ctx, conn, wsAck{Type: "error", Error: "caption text must not be empty"})
				continue
			}

			c := caption.Caption{Text: frame.Text}
			if frame.Time != nil {
				absMs := sess.StartedAt + *frame.Time + sess.SyncOffset
				c.At = time.UnixMilli(absMs).UTC()
			}

			result, err := snd.SendBatch(ctx, []caption.Caption{c})
			if err != nil {
				g.metrics.captionsFailed.Inc()
				g.sessions.RecordSend(sess.ID, true)
				g.writeAck(ctx, conn, wsAck{Type: "error", Error: err.Error()})
				continue
			}

			g.sessions.SetSequence(sess.ID, snd.Sequence())
			g.sessions.Touch(sess.ID)

			if !result.OK() {
				g.metrics.captionsFailed.Inc()
				g.sessions.RecordSend(sess.ID, true)
				g.writeAck(ctx, conn, wsAck{Type: "error", Error: "upstream rejected caption", Sequence: result.Sequence})
				continue
			}

			g.metrics.captionsSent.Inc()
			g.sessions.RecordSend(sess.ID, false)
			g.writeAck(ctx, conn, wsAck{Type: "ack", Sequence: result.Sequence})

		default:
			g.writeAck(ctx, conn, wsAck{Type: "error", Error: "unknown frame type: " + frame.Type})
		}
	}
}

func readFrame(ctx context.Context, conn *websocket.Conn) (wsFrame, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return wsFrame{}, err
	}
	var frame wsFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return wsFrame{Type: "malformed"}, nil
	}
	return frame, nil
}

func (g *Gateway) writeAck(ctx context.Context, conn *websocket.Conn, ack wsAck) {
	data, err := json.Marshal(ack)
	if err != nil {
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		g.logger.Debug("caption socket write failed", "error", err)
	}
}

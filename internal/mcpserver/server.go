// Package mcpserver exposes caption sending as MCP tools over stdio, so
// an LLM agent can drive a live stream's captions directly without the
// HTTP gateway.
package mcpserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/livecap/livecap/pkg/caption"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Sender is the upstream client a tool session drives. *caption.Sender is
// the production implementation.
type Sender interface {
	Start() error
	End() error
	SendBatch(ctx context.Context, captions []caption.Caption) (caption.SendResult, error)
	Sync(ctx context.Context) (caption.SyncResult, error)
	Sequence() int64
	SyncOffset() int64
}

// SenderFactory builds a sender for a stream key.
type SenderFactory func(streamKey string) Sender

// Server holds tool sessions and the MCP plumbing.
type Server struct {
	mu        sync.Mutex
	senders   map[string]Sender
	startedAt map[string]time.Time

	senderFor SenderFactory
	logger    *slog.Logger
	mcp       *server.MCPServer
}

// NewServer creates the MCP server. A nil factory builds real senders.
func NewServer(factory SenderFactory, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if factory == nil {
		factory = func(streamKey string) Sender {
			return caption.New(caption.Config{StreamKey: streamKey, Logger: logger})
		}
	}

	s := &Server{
		senders:   make(map[string]Sender),
		startedAt: make(map[string]time.Time),
		senderFor: factory,
		logger:    logger,
		mcp:       server.NewMCPServer("livecap-mcp", version),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio blocks serving MCP over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("start",
		mcp.WithDescription("Create a caption sender and start a session. Returns a session_id."),
		mcp.WithString("stream_key", mcp.Required(),
			mcp.Description("YouTube Live stream key (cid value).")),
	), s.handleStart)

	s.mcp.AddTool(mcp.NewTool("send_caption",
		mcp.WithDescription("Send a single caption to the live stream."),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("text", mcp.Required(), mcp.Description("Caption text to send.")),
		mcp.WithString("timestamp",
			mcp.Description("ISO-8601 timestamp. Omit to use the current time.")),
	), s.handleSendCaption)

	s.mcp.AddTool(mcp.NewTool("send_batch",
		mcp.WithDescription("Send multiple captions atomically."),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithArray("captions", mcp.Required(),
			mcp.Description("Array of {text, timestamp?} objects.")),
	), s.handleSendBatch)

	s.mcp.AddTool(mcp.NewTool("sync_clock",
		mcp.WithDescription("NTP-style round-trip to YouTube to compute clock sync offset. "+
			"Returns syncOffset in ms."),
		mcp.WithString("session_id", mcp.Required()),
	), s.handleSyncClock)

	s.mcp.AddTool(mcp.NewTool("get_status",
		mcp.WithDescription("Return current sequence number and sync offset for the session."),
		mcp.WithString("session_id", mcp.Required()),
	), s.handleGetStatus)

	s.mcp.AddTool(mcp.NewTool("stop",
		mcp.WithDescription("End the session and clean up the sender."),
		mcp.WithString("session_id", mcp.Required()),
	), s.handleStop)
}

func (s *Server) registerResources() {
	s.mcp.AddResourceTemplate(mcp.NewResourceTemplate(
		"session://{id}",
		"Live caption session status",
		mcp.WithTemplateDescription("Current sequence number, sync offset and start time of a session."),
		mcp.WithTemplateMIMEType("application/json"),
	), s.readSession)
}

func (s *Server) readSession(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id := strings.TrimPrefix(request.Params.URI, "session://")

	s.mu.Lock()
	snd, ok := s.senders[id]
	started := s.startedAt[id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown session: %s", id)
	}

	data, err := json.Marshal(map[string]any{
		"sequence":   snd.Sequence(),
		"syncOffset": snd.SyncOffset(),
		"startedAt":  started.Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) session(id string) (Sender, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snd, ok := s.senders[id]
	return snd, ok
}

func textResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleStart(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	streamKey, err := request.RequireString("stream_key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	snd := s.senderFor(streamKey)
	if err := snd.Start(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("start failed: %v", err)), nil
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session id generation failed: %v", err)), nil
	}
	id := hex.EncodeToString(buf[:])

	s.mu.Lock()
	s.senders[id] = snd
	s.startedAt[id] = time.Now().UTC()
	s.mu.Unlock()

	s.logger.Info("mcp session started", "session", id)
	return textResult(map[string]string{"session_id": id})
}

func (s *Server) handleSendCaption(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	snd, ok := s.session(id)
	if !ok {
		return mcp.NewToolResultError("unknown session_id: " + id), nil
	}

	c := caption.Caption{Text: text}
	if ts := request.GetString("timestamp", ""); ts != "" {
		at, err := caption.ParseTimestamp(ts)
		if err != nil {
			return mcp.NewToolResultError("invalid timestamp: " + ts), nil
		}
		c.At = at
	}

	result, err := snd.SendBatch(ctx, []caption.Caption{c})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("send failed: %v", err)), nil
	}
	return textResult(map[string]any{"ok": result.OK(), "sequence": result.Sequence})
}

func (s *Server) handleSendBatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snd, ok := s.session(id)
	if !ok {
		return mcp.NewToolResultError("unknown session_id: " + id), nil
	}

	raw, ok := request.GetArguments()["captions"].([]any)
	if !ok || len(raw) == 0 {
		return mcp.NewToolResultError("captions must be a non-empty array"), nil
	}

	batch := make([]caption.Caption, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			return mcp.NewToolResultError("captions entries must be objects"), nil
		}
		text, _ := entry["text"].(string)
		if text == "" {
			return mcp.NewToolResultError("caption text must not be empty"), nil
		}

		c := caption.Caption{Text: text}
		if ts, _ := entry["timestamp"].(string); ts != "" {
			at, err := caption.ParseTimestamp(ts)
			if err != nil {
				return mcp.NewToolResultError("invalid timestamp: " + ts), nil
			}
			c.At = at
		}
		batch = append(batch, c)
	}

	result, err := snd.SendBatch(ctx, batch)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("send failed: %v", err)), nil
	}
	return textResult(map[string]any{
		"ok":       result.OK(),
		"sequence": result.Sequence,
		"count":    result.Count,
	})
}

func (s *Server) handleSyncClock(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snd, ok := s.session(id)
	if !ok {
		return mcp.NewToolResultError("unknown session_id: " + id), nil
	}

	result, err := snd.Sync(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("sync failed: %v", err)), nil
	}
	return textResult(map[string]int64{"syncOffset": result.SyncOffset})
}

func (s *Server) handleGetStatus(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snd, ok := s.session(id)
	if !ok {
		return mcp.NewToolResultError("unknown session_id: " + id), nil
	}

	return textResult(map[string]int64{
		"sequence":   snd.Sequence(),
		"syncOffset": snd.SyncOffset(),
	})
}

func (s *Server) handleStop(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.mu.Lock()
	snd, ok := s.senders[id]
	delete(s.senders, id)
	delete(s.startedAt, id)
	s.mu.Unlock()

	if !ok {
		return mcp.NewToolResultError("unknown session_id: " + id), nil
	}
	if err := snd.End(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("end failed: %v", err)), nil
	}

	s.logger.Info("mcp session stopped", "session", id)
	return textResult(map[string]bool{"ok": true})
}

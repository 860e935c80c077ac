// Package gateway exposes the relay's HTTP surface: session registration,
// caption forwarding, clock sync, API key administration, health, and
// Prometheus metrics. It is a leaf module resolving its dependencies from
// the service registry at start.
package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/livecap/livecap/internal/core"
	"github.com/livecap/livecap/internal/keys"
	"github.com/livecap/livecap/internal/session"
	"github.com/livecap/livecap/internal/token"
	"github.com/livecap/livecap/pkg/caption"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
)

// Sender is the upstream caption client a session drives. *caption.Sender
// is the production implementation; tests substitute fakes through the
// factory.
type Sender interface {
	Start() error
	End() error
	SendBatch(ctx context.Context, captions []caption.Caption) (caption.SendResult, error)
	Heartbeat(ctx context.Context) (caption.SendResult, error)
	Sequence() int64
}

// SenderFactory builds the upstream client for a newly registered stream.
type SenderFactory func(streamKey string, sequence int64) Sender

// Gateway is the HTTP gateway module.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	metrics   *metrics
	signer    *token.Signer
	senderFor SenderFactory
	startedAt time.Time

	// Resolved at Start() via the service registry.
	sessions *session.Store
	keys     keys.Store
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return fmt.Errorf("gateway: decode config: %w", err)
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	if err := g.config.resolveTimeouts(); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	g.appCtx = ctx
	g.logger = ctx.Logger

	if g.config.JWTSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return err
		}
		g.config.JWTSecret = secret
		g.logger.Warn("jwt secret not configured, using a random secret; " +
			"session tokens will not survive restarts")
	}
	if g.config.AdminKey == "" {
		g.logger.Info("admin key not configured, key management endpoints disabled")
	}

	g.signer = token.NewSigner(g.config.JWTSecret)
	g.metrics = newMetrics()

	if g.senderFor == nil {
		cfg := g.config
		logger := g.logger
		g.senderFor = func(streamKey string, sequence int64) Sender {
			return caption.New(caption.Config{
				StreamKey: streamKey,
				BaseURL:   cfg.IngestionBaseURL,
				Sequence:  sequence,
				Logger:    logger,
			})
		}
	}

	ctx.RegisterService("gateway.metrics", g.metrics)
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return fmt.Errorf("gateway: invalid bind address %q: %w", g.config.Bind, err)
	}
	return nil
}

// Start implements core.Starter. Dependencies are resolved here so module
// load order does not matter.
func (g *Gateway) Start() error {
	svc, ok := g.appCtx.Service("relay.sessions")
	if !ok {
		return errors.New("gateway: relay.sessions service not available")
	}
	store, ok := svc.(*session.Store)
	if !ok {
		return errors.New("gateway: relay.sessions service has unexpected type")
	}
	g.sessions = store
	g.metrics.trackSessions(store)

	if svc, ok := g.appCtx.Service("keys.store"); ok {
		if registry, ok := svc.(keys.Store); ok {
			g.keys = registry
		}
	}
	if g.keys == nil {
		return errors.New("gateway: keys.store service not available")
	}

	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.readTimeout,
		WriteTimeout: g.config.writeTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen on %s: %w", g.config.Bind, err)
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.config.Bind)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.shutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}

func randomSecret() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("gateway: generate secret: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}

package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/livecap/livecap/internal/core"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module owns the session store and exposes it to other modules as the
// "relay.sessions" service.
type Module struct {
	config ModuleConfig
	store  *Store
	logger *slog.Logger
}

// ModuleConfig holds the YAML configuration for the session store. Durations
// are Go duration strings ("2h", "90s"). Unset values fall back to the
// SESSION_TTL / CLEANUP_INTERVAL environment variables (whole seconds), then
// to the package defaults. An explicit negative cleanup_interval ("-1s")
// disables the background sweep.
type ModuleConfig struct {
	TTL             string `yaml:"ttl"`
	CleanupInterval string `yaml:"cleanup_interval"`
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "relay.sessions",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	return node.Decode(&m.config)
}

// Provision implements core.Provisioner. It builds the store and registers
// it for discovery by the gateway, keepalive, and cron modules.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger

	ttl, err := configDuration(m.config.TTL, "SESSION_TTL", DefaultTTL)
	if err != nil {
		return fmt.Errorf("sessions: ttl: %w", err)
	}
	interval, err := configDuration(m.config.CleanupInterval, "CLEANUP_INTERVAL", DefaultCleanupInterval)
	if err != nil {
		return fmt.Errorf("sessions: cleanup_interval: %w", err)
	}

	m.store = NewStore(Config{
		TTL:             ttl,
		CleanupInterval: interval,
		Logger:          m.logger,
		OnSessionEnd: func(sess *Session, reason EndReason) {
			m.logger.Info("session ended",
				"session_id", sess.ID,
				"domain", sess.Domain,
				"reason", string(reason),
				"captions_sent", sess.CaptionsSent,
			)
		},
	})

	ctx.RegisterService("relay.sessions", m.store)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	// Negative TTLs would evict everything on the first pass; the store
	// substitutes the default, so there is nothing to reject here.
	return nil
}

// Stop implements core.Stopper: it cancels the sweep and tears down every
// remaining session's sender (best-effort), so upstream connections are
// released on graceful shutdown.
func (m *Module) Stop(_ context.Context) error {
	m.store.StopCleanup()
	for _, sess := range m.store.All() {
		if removed := m.store.Remove(sess.ID); removed != nil {
			m.store.bestEffortEnd(removed)
		}
	}
	return nil
}

// Store returns the module's session store (nil before Provision).
func (m *Module) Store() *Store {
	return m.store
}

// configDuration resolves a configured duration string, falling back to an
// environment variable and then to def when raw is empty.
func configDuration(raw, envName string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return envSeconds(envName, def), nil
	}
	return time.ParseDuration(raw)
}

// envSeconds reads an environment variable holding whole seconds.
// Missing, unparsable, or negative values fall back to def. Zero is kept
// as-is: CLEANUP_INTERVAL=0 turns the background sweep off entirely, and
// a zero TTL means the store default.
func envSeconds(name string, def time.Duration) time.Duration {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}

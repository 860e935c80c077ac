package keepalive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/livecap/livecap/internal/core"
	"github.com/livecap/livecap/internal/session"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// ModuleConfig configures the keepalive loop. Durations are Go duration
// strings ("4m", "90s"); empty values take the package defaults.
type ModuleConfig struct {
	Interval   string `yaml:"interval"`
	MaxIdleAge string `yaml:"max_idle_age"`
	Disabled   bool   `yaml:"disabled"`
}

// Module wires the keepalive loop into the application lifecycle.
type Module struct {
	config    ModuleConfig
	appCtx    *core.AppContext
	keepalive *Keepalive
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "keepalive",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("keepalive: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.appCtx = ctx
	return nil
}

// Start implements core.Starter.
func (m *Module) Start() error {
	if m.config.Disabled {
		m.appCtx.Logger.Info("keepalive disabled")
		return nil
	}

	svc, ok := m.appCtx.Service("relay.sessions")
	if !ok {
		return errors.New("keepalive: relay.sessions service not available")
	}
	store, ok := svc.(*session.Store)
	if !ok {
		return errors.New("keepalive: relay.sessions service has unexpected type")
	}

	interval, err := parseOptionalDuration(m.config.Interval)
	if err != nil {
		return fmt.Errorf("keepalive: interval: %w", err)
	}
	maxIdleAge, err := parseOptionalDuration(m.config.MaxIdleAge)
	if err != nil {
		return fmt.Errorf("keepalive: max_idle_age: %w", err)
	}

	ka, err := New(Config{
		Interval:   interval,
		MaxIdleAge: maxIdleAge,
		Logger:     m.appCtx.Logger,
	}, store)
	if err != nil {
		return err
	}
	m.keepalive = ka

	return m.keepalive.Start(context.Background())
}

func parseOptionalDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	if m.keepalive == nil {
		return nil
	}
	if err := m.keepalive.Stop(ctx); err != nil && !errors.Is(err, ErrNotStarted) {
		return err
	}
	return nil
}

package cron

import (
	"context"
	"errors"
	"fmt"

	"github.com/livecap/livecap/internal/core"
	"github.com/livecap/livecap/internal/keys"
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

// ModuleConfig selects which jobs run and on what schedules.
type ModuleConfig struct {
	KeyExpirySchedule     string `yaml:"key_expiry_schedule"`
	SessionReportSchedule string `yaml:"session_report_schedule"`
	DisableKeyExpiry      bool   `yaml:"disable_key_expiry"`
	DisableSessionReport  bool   `yaml:"disable_session_report"`
}

// Module wires the scheduler into the application lifecycle.
type Module struct {
	config    ModuleConfig
	appCtx    *core.AppContext
	scheduler *Scheduler
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "cron",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("cron: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.appCtx = ctx
	m.scheduler = NewScheduler(ctx.Logger)
	ctx.RegisterService("cron.scheduler", m.scheduler)
	return nil
}

// Start implements core.Starter. Jobs bind to their services here so the
// stores are already provisioned.
func (m *Module) Start() error {
	if !m.config.DisableKeyExpiry {
		svc, ok := m.appCtx.Service("keys.store")
		if !ok {
			return errors.New("cron: keys.store service not available")
		}
		registry, ok := svc.(keys.Store)
		if !ok {
			return errors.New("cron: keys.store service has unexpected type")
		}
		if err := m.scheduler.RegisterJob(&KeyExpiryJob{
			Keys:         registry,
			Logger:       m.appCtx.Logger,
			ScheduleExpr: m.config.KeyExpirySchedule,
		}); err != nil {
			return err
		}
	}

	if !m.config.DisableSessionReport {
		svc, ok := m.appCtx.Service("relay.sessions")
		if !ok {
			return errors.New("cron: relay.sessions service not available")
		}
		store, ok := svc.(*session.Store)
		if !ok {
			return errors.New("cron: relay.sessions service has unexpected type")
		}
		if err := m.scheduler.RegisterJob(&SessionReportJob{
			Sessions:     store,
			Logger:       m.appCtx.Logger,
			ScheduleExpr: m.config.SessionReportSchedule,
		}); err != nil {
			return err
		}
	}

	return m.scheduler.Start()
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	if m.scheduler == nil {
		return nil
	}
	return m.scheduler.Stop(ctx)
}

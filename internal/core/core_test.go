package core

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"gopkg.in/yaml.v3"
)

// testModule is a configurable module recording lifecycle calls.
type testModule struct {
	id string

	configured  bool
	provisioned bool
	validated   bool
	started     bool
	stopped     bool

	startErr    error
	validateErr error

	config struct {
		Name string `yaml:"name"`
	}
}

func (m *testModule) ModuleInfo() ModuleInfo {
	return ModuleInfo{
		ID:  ModuleID(m.id),
		New: func() Module { return m },
	}
}

func (m *testModule) Configure(node *yaml.Node) error {
	m.configured = true
	return node.Decode(&m.config)
}

func (m *testModule) Provision(_ *AppContext) error {
	m.provisioned = true
	return nil
}

func (m *testModule) Validate() error {
	m.validated = true
	return m.validateErr
}

func (m *testModule) Start() error {
	if m.startErr != nil {
		return m.startErr
	}
	m.started = true
	return nil
}

func (m *testModule) Stop(_ context.Context) error {
	m.stopped = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func yamlNode(t *testing.T, raw string) yaml.Node {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &node); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	return node
}

func TestRegisterModule_Duplicate(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	RegisterModule(&testModule{id: "test.a"})

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	RegisterModule(&testModule{id: "test.a"})
}

func TestLoadModule_Lifecycle(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	mod := &testModule{id: "test.lifecycle"}
	RegisterModule(mod)

	ctx := NewAppContext(testLogger(), t.TempDir())
	ctx = ctx.WithModuleConfigs(map[string]yaml.Node{
		"test.lifecycle": yamlNode(t, "name: hello"),
	})

	loaded, err := ctx.LoadModule("test.lifecycle")
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	if loaded == nil {
		t.Fatal("LoadModule returned nil module")
	}

	if !mod.configured || !mod.provisioned || !mod.validated {
		t.Errorf("lifecycle = configure:%v provision:%v validate:%v, want all true",
			mod.configured, mod.provisioned, mod.validated)
	}
	if mod.config.Name != "hello" {
		t.Errorf("config name = %q, want %q", mod.config.Name, "hello")
	}
}

func TestLoadModule_Unknown(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	ctx := NewAppContext(testLogger(), t.TempDir())
	if _, err := ctx.LoadModule("no.such.module"); err == nil {
		t.Fatal("expected error for unknown module")
	}
}

func TestLoadModule_ValidateError(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	mod := &testModule{id: "test.invalid", validateErr: errors.New("bad config")}
	RegisterModule(mod)

	ctx := NewAppContext(testLogger(), t.TempDir())
	if _, err := ctx.LoadModule("test.invalid"); err == nil {
		t.Fatal("expected validation error to propagate")
	}
}

func TestServiceRegistry_SharedAcrossModuleContexts(t *testing.T) {
	t.Parallel()

	ctx := NewAppContext(testLogger(), t.TempDir())
	child := ctx.ForModule("test.a")
	child.RegisterService("relay.sessions", 42)

	other := ctx.ForModule("test.b")
	svc, ok := other.Service("relay.sessions")
	if !ok {
		t.Fatal("service registered by one module not visible to another")
	}
	if svc.(int) != 42 {
		t.Errorf("service = %v, want 42", svc)
	}

	if _, ok := other.Service("missing"); ok {
		t.Error("Service returned ok for unregistered name")
	}
}

func TestApp_StartFailureStopsStartedModules(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	good := &testModule{id: "test.good"}
	bad := &testModule{id: "test.bad", startErr: errors.New("boom")}
	RegisterModule(good)
	RegisterModule(bad)

	ctx := NewAppContext(testLogger(), t.TempDir())
	app := NewApp(ctx)
	if err := app.LoadModules([]string{"test.good", "test.bad"}); err != nil {
		t.Fatalf("LoadModules: %v", err)
	}

	if err := app.Start(); err == nil {
		t.Fatal("expected Start to fail")
	}
	if !good.stopped {
		t.Error("previously started module was not stopped after failure")
	}
}

func TestGetModulesByNamespace(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	RegisterModule(&testModule{id: "keys.sqlite"})
	RegisterModule(&testModule{id: "gateway.http"})

	mods := GetModulesByNamespace("keys")
	if len(mods) != 1 || mods[0].ID != "keys.sqlite" {
		t.Errorf("namespace match = %v, want [keys.sqlite]", mods)
	}
}

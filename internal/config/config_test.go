package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, raw string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "livecap.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Basic(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
version: "1"
modules:
  gateway.http:
    bind: "127.0.0.1:9090"
  relay.sessions: {}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Version != "1" {
		t.Errorf("version = %q, want %q", cfg.Version, "1")
	}
	if len(cfg.Modules) != 2 {
		t.Errorf("modules = %d, want 2", len(cfg.Modules))
	}

	var gw struct {
		Bind string `yaml:"bind"`
	}
	node := cfg.Modules["gateway.http"]
	if err := node.Decode(&gw); err != nil {
		t.Fatalf("decode gateway node: %v", err)
	}
	if gw.Bind != "127.0.0.1:9090" {
		t.Errorf("bind = %q, want %q", gw.Bind, "127.0.0.1:9090")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("LIVECAP_TEST_SECRET", "s3cret")

	path := writeConfig(t, `
version: "1"
modules:
  gateway.http:
    jwt_secret: ${LIVECAP_TEST_SECRET}
    admin_key: ${LIVECAP_TEST_MISSING:-fallback}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	var gw struct {
		JWTSecret string `yaml:"jwt_secret"`
		AdminKey  string `yaml:"admin_key"`
	}
	node := cfg.Modules["gateway.http"]
	if err := node.Decode(&gw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if gw.JWTSecret != "s3cret" {
		t.Errorf("jwt_secret = %q, want %q", gw.JWTSecret, "s3cret")
	}
	if gw.AdminKey != "fallback" {
		t.Errorf("admin_key = %q, want %q", gw.AdminKey, "fallback")
	}
}

func TestLoad_UnresolvedVariable(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
version: "1"
modules:
  gateway.http:
    jwt_secret: ${LIVECAP_DEFINITELY_UNSET_VAR}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unresolved variable")
	}
	if !strings.Contains(err.Error(), "LIVECAP_DEFINITELY_UNSET_VAR") {
		t.Errorf("error %q does not name the unresolved variable", err)
	}
}

func TestValidate_VersionAndModules(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for empty config")
	}

	cfg = &Config{Version: "2", Modules: map[string]yaml.Node{"unknown.module": {}}}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for bad version and unknown module")
	}
	if !strings.Contains(err.Error(), "unsupported version") {
		t.Errorf("error %q missing version complaint", err)
	}
	if !strings.Contains(err.Error(), "unknown.module") {
		t.Errorf("error %q missing unknown module complaint", err)
	}
}

func TestResolve_LoadOrder(t *testing.T) {
	t.Parallel()

	cfg := &Config{Modules: map[string]yaml.Node{
		"cron":                  {},
		"keepalive":             {},
		"gateway.http":          {},
		"relay.sessions":        {},
		"keys.sqlite":           {},
		"observability.tracing": {},
	}}

	ids := Resolve(cfg)
	want := []string{
		"observability.tracing",
		"keys.sqlite",
		"relay.sessions",
		"gateway.http",
		"cron",
		"keepalive",
	}
	if !slices.Equal(ids, want) {
		t.Errorf("Resolve = %v, want %v", ids, want)
	}
}

func TestResolve_UnknownModulesLast(t *testing.T) {
	t.Parallel()

	cfg := &Config{Modules: map[string]yaml.Node{
		"custom.thing": {},
		"gateway.http": {},
	}}

	ids := Resolve(cfg)
	want := []string{"gateway.http", "custom.thing"}
	if !slices.Equal(ids, want) {
		t.Errorf("Resolve = %v, want %v", ids, want)
	}
}

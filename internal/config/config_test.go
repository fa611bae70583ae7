package config

import (
	"os"
	"path/filepath"
	"testing"
)

const testSchema = `
agent: {
	tick_interval_ms:            int
	watchdog_interval_ms:        int
	default_command_timeout_ms:  int
	fault_injection_enabled:     bool
}
server: {
	listen_addr: string
}
archive: {
	enabled:  bool
	endpoint: string
	database: string
	table:    string
}
log_level: string
`

const testYAML = `
agent:
  tick_interval_ms: 1000
  watchdog_interval_ms: 5000
  default_command_timeout_ms: 10000
  fault_injection_enabled: true
server:
  listen_addr: ":7777"
archive:
  enabled: false
  endpoint: ""
  database: "public"
  table: "satellite_telemetry"
log_level: "info"
`

func writeTemp(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadValidatesAndParsesConfig(t *testing.T) {
	yamlPath := writeTemp(t, "agent.yaml", testYAML)
	cuePath := writeTemp(t, "agent.cue", testSchema)

	cfg, err := Load(yamlPath, cuePath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Agent.TickIntervalMS != 1000 {
		t.Fatalf("expected tick interval 1000, got %d", cfg.Agent.TickIntervalMS)
	}
	if cfg.Server.ListenAddr != ":7777" {
		t.Fatalf("expected listen addr :7777, got %q", cfg.Server.ListenAddr)
	}
	if !cfg.Agent.FaultInjectionEnabled {
		t.Fatalf("expected fault injection enabled")
	}
}

func TestLoadRejectsSchemaViolation(t *testing.T) {
	badYAML := `
agent:
  tick_interval_ms: "not-a-number"
  watchdog_interval_ms: 5000
  default_command_timeout_ms: 10000
  fault_injection_enabled: true
server:
  listen_addr: ":7777"
archive:
  enabled: false
  endpoint: ""
  database: "public"
  table: "satellite_telemetry"
log_level: "info"
`
	yamlPath := writeTemp(t, "agent.yaml", badYAML)
	cuePath := writeTemp(t, "agent.cue", testSchema)

	if _, err := Load(yamlPath, cuePath); err == nil {
		t.Fatalf("expected schema validation error for non-numeric tick interval")
	}
}

func TestLoadRejectsMissingSchemaFile(t *testing.T) {
	yamlPath := writeTemp(t, "agent.yaml", testYAML)
	if _, err := Load(yamlPath, filepath.Join(t.TempDir(), "missing.cue")); err == nil {
		t.Fatalf("expected error for missing CUE schema file")
	}
}

func TestDefaultListenAddrAppliedWhenUnset(t *testing.T) {
	yamlNoServer := `
agent:
  tick_interval_ms: 1000
  watchdog_interval_ms: 5000
  default_command_timeout_ms: 10000
  fault_injection_enabled: false
archive:
  enabled: false
  endpoint: ""
  database: "public"
  table: "satellite_telemetry"
log_level: "info"
`
	schemaNoServer := `
agent: {
	tick_interval_ms:            int
	watchdog_interval_ms:        int
	default_command_timeout_ms:  int
	fault_injection_enabled:     bool
}
archive: {
	enabled:  bool
	endpoint: string
	database: string
	table:    string
}
log_level: string
`
	yamlPath := writeTemp(t, "agent.yaml", yamlNoServer)
	cuePath := writeTemp(t, "agent.cue", schemaNoServer)

	cfg, err := Load(yamlPath, cuePath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":7777" {
		t.Fatalf("expected default listen addr :7777, got %q", cfg.Server.ListenAddr)
	}
}

func TestToBusConfigCarriesFieldsThrough(t *testing.T) {
	a := AgentSettings{TickIntervalMS: 250, WatchdogIntervalMS: 3000, DefaultCommandTimeoutMS: 8000, FaultInjectionEnabled: true}
	bc := a.ToBusConfig()
	if bc.TickIntervalMS != 250 || bc.WatchdogIntervalMS != 3000 || bc.DefaultCommandTimeoutMS != 8000 || !bc.FaultInjectionEnabled {
		t.Fatalf("unexpected conversion: %+v", bc)
	}
}

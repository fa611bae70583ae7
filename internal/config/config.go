// YAML config loader with CUE validation integration
package config

import (
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"satbus/internal/bus"
)

// AgentSettings mirrors bus.AgentConfig with YAML tags so it can be
// loaded from the on-disk configuration file.
type AgentSettings struct {
	TickIntervalMS          uint64 `yaml:"tick_interval_ms"`
	WatchdogIntervalMS      uint64 `yaml:"watchdog_interval_ms"`
	DefaultCommandTimeoutMS uint64 `yaml:"default_command_timeout_ms"`
	FaultInjectionEnabled   bool   `yaml:"fault_injection_enabled"`
}

// ToBusConfig converts the on-disk settings into bus.AgentConfig.
func (a AgentSettings) ToBusConfig() bus.AgentConfig {
	return bus.AgentConfig{
		TickIntervalMS:          a.TickIntervalMS,
		WatchdogIntervalMS:      a.WatchdogIntervalMS,
		DefaultCommandTimeoutMS: a.DefaultCommandTimeoutMS,
		FaultInjectionEnabled:   a.FaultInjectionEnabled,
	}
}

// ServerSettings configures the NDJSON command/telemetry listener.
type ServerSettings struct {
	ListenAddr string `yaml:"listen_addr"`
}

// ArchiveSettings configures telemetry persistence to GreptimeDB.
type ArchiveSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Database string `yaml:"database"`
	Table    string `yaml:"table"`
}

// Config is the root configuration for a satbus agent deployment.
type Config struct {
	Agent    AgentSettings   `yaml:"agent"`
	Server   ServerSettings  `yaml:"server"`
	Archive  ArchiveSettings `yaml:"archive"`
	LogLevel string          `yaml:"log_level"`
}

// SlogLevel parses LogLevel, defaulting to Info for an empty or
// unrecognized value.
func (c Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Load loads YAML config and validates it against a CUE schema.
func Load(configPath, cueSchemaPath string) (*Config, error) {
	if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":7777"
	}
	return &cfg, nil
}

// Package config is the layered configuration loader of spec.md §6.3,
// grounded on the teacher's pkg/config/layered package: defaults, then
// <workspace>/.forgeref/config.json, then environment variables, each
// layer overriding the previous by priority.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// LanguageServerConfig is one entry of the persisted `servers` list
// (spec.md §6.3): the command used to launch a language server for a set
// of extensions.
type LanguageServerConfig struct {
	Extensions      []string          `json:"extensions" yaml:"extensions"`
	Command         string            `json:"command" yaml:"command"`
	Args            []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env             map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	RootDir         string            `json:"rootDir,omitempty" yaml:"rootDir,omitempty"`
	RestartInterval time.Duration     `json:"restartInterval,omitempty" yaml:"restartInterval,omitempty"`
}

// LoggingConfig is the persisted `logging` block of spec.md §6.3.
type LoggingConfig struct {
	Level       string `json:"level" yaml:"level"`
	Destination string `json:"destination" yaml:"destination"`
	JSON        bool   `json:"json,omitempty" yaml:"json,omitempty"`
}

// SecurityConfig toggles the secret-scan pre-apply guard of SPEC_FULL.md §4.
type SecurityConfig struct {
	ScanSecrets bool `json:"scanSecrets" yaml:"scanSecrets"`
}

// PerformanceConfig bounds worker-pool sizes for concurrent planning and
// LSP dispatch.
type PerformanceConfig struct {
	MaxConcurrentPlanners int `json:"maxConcurrentPlanners" yaml:"maxConcurrentPlanners"`
	MaxConcurrentLSPCalls int `json:"maxConcurrentLspCalls" yaml:"maxConcurrentLspCalls"`
}

// Config is the resolved, merged configuration.
type Config struct {
	WorkspaceRoot string                 `json:"-" yaml:"-"`
	Servers       []LanguageServerConfig `json:"servers" yaml:"servers"`
	Logging       LoggingConfig          `json:"logging" yaml:"logging"`
	DefaultScope  string                 `json:"defaultScope" yaml:"defaultScope"`
	Security      SecurityConfig         `json:"security" yaml:"security"`
	Performance   PerformanceConfig      `json:"performance" yaml:"performance"`
}

// Default returns the built-in defaults layer.
func Default() *Config {
	return &Config{
		Logging:      LoggingConfig{Level: "info", Destination: "file"},
		DefaultScope: "standard",
		Security:     SecurityConfig{ScanSecrets: true},
		Performance:  PerformanceConfig{MaxConcurrentPlanners: 4, MaxConcurrentLSPCalls: 8},
	}
}

// ConfigPath returns <workspaceRoot>/.forgeref/config.json.
func ConfigPath(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, ".forgeref", "config.json")
}

// Load resolves Config for workspaceRoot: defaults, then config.json if
// present, then .forgeref.yml if present (project override, YAML per
// SPEC_FULL.md §2.3), then environment variables.
func Load(workspaceRoot string) (*Config, error) {
	cfg := Default()
	cfg.WorkspaceRoot = workspaceRoot

	if data, err := os.ReadFile(ConfigPath(workspaceRoot)); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", ConfigPath(workspaceRoot), err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read %s: %w", ConfigPath(workspaceRoot), err)
	}

	yamlPath := filepath.Join(workspaceRoot, ".forgeref.yml")
	if data, err := os.ReadFile(yamlPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", yamlPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read %s: %w", yamlPath, err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FORGEREF_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FORGEREF_DEFAULT_SCOPE"); v != "" {
		cfg.DefaultScope = v
	}
	if v := os.Getenv("FORGEREF_JSON_LOGS"); v == "1" {
		cfg.Logging.JSON = true
	}
}

// Save writes cfg back to <workspaceRoot>/.forgeref/config.json.
func Save(cfg *Config) error {
	dir := filepath.Dir(ConfigPath(cfg.WorkspaceRoot))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: mkdir %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(ConfigPath(cfg.WorkspaceRoot), data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", ConfigPath(cfg.WorkspaceRoot), err)
	}
	return nil
}

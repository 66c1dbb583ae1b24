// Package config provides configuration loading and path management.
// Settings come from a JSONC config file merged over defaults, then
// ORQUESTRA_* environment overrides on top.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tidwall/jsonc"
)

// Config is the resolved application configuration.
type Config struct {
	// Host and Port bind the presentation-layer HTTP server.
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`

	// DataDir holds the persisted thread snapshot and approval rules.
	DataDir string `json:"dataDir,omitempty"`

	// TeamsDir is the external team runtime's shared directory. Empty
	// disables team coordination.
	TeamsDir string `json:"teamsDir,omitempty"`

	// TeamPollIntervalMS is the fixed snapshot refresh interval.
	TeamPollIntervalMS int `json:"teamPollIntervalMs,omitempty"`

	// Runner is the agent harness command and its arguments. The process
	// speaks the JSONL event protocol on stdio.
	Runner RunnerConfig `json:"runner,omitempty"`

	LogLevel string `json:"logLevel,omitempty"`
	// Pretty switches log output to human-readable console format.
	Pretty bool `json:"pretty,omitempty"`
}

// RunnerConfig describes how to launch the agent harness process.
type RunnerConfig struct {
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
}

// TeamPollInterval returns the poll interval as a duration.
func (c *Config) TeamPollInterval() time.Duration {
	if c.TeamPollIntervalMS <= 0 {
		return 0
	}
	return time.Duration(c.TeamPollIntervalMS) * time.Millisecond
}

func defaults() *Config {
	paths := GetPaths()
	return &Config{
		Host:               "127.0.0.1",
		Port:               7733,
		DataDir:            paths.StoragePath(),
		TeamPollIntervalMS: 2000,
		LogLevel:           "info",
	}
}

// Load resolves configuration (priority order):
//  1. built-in defaults
//  2. global config file (<config dir>/orquestra.json[c])
//  3. ORQUESTRA_CONFIG file override
//  4. ORQUESTRA_* environment variables
func Load() (*Config, error) {
	cfg := defaults()

	globalDir := GetPaths().Config
	for _, name := range []string{"orquestra.json", "orquestra.jsonc"} {
		if err := loadFile(filepath.Join(globalDir, name), cfg); err != nil {
			return nil, err
		}
	}

	if path := os.Getenv("ORQUESTRA_CONFIG"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// loadFile merges one JSONC config file into cfg. A missing file is
// skipped; a malformed one is an error.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var file Config
	if err := json.Unmarshal(jsonc.ToJSON(data), &file); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	merge(cfg, &file)
	return nil
}

func merge(target, source *Config) {
	if source.Host != "" {
		target.Host = source.Host
	}
	if source.Port != 0 {
		target.Port = source.Port
	}
	if source.DataDir != "" {
		target.DataDir = source.DataDir
	}
	if source.TeamsDir != "" {
		target.TeamsDir = source.TeamsDir
	}
	if source.TeamPollIntervalMS != 0 {
		target.TeamPollIntervalMS = source.TeamPollIntervalMS
	}
	if source.Runner.Command != "" {
		target.Runner = source.Runner
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}
	if source.Pretty {
		target.Pretty = true
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ORQUESTRA_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("ORQUESTRA_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("ORQUESTRA_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("ORQUESTRA_TEAMS_DIR"); v != "" {
		cfg.TeamsDir = v
	}
	if v := os.Getenv("ORQUESTRA_TEAM_POLL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.TeamPollIntervalMS = ms
		}
	}
	if v := os.Getenv("ORQUESTRA_RUNNER"); v != "" {
		cfg.Runner.Command = v
	}
	if v := os.Getenv("ORQUESTRA_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ORQUESTRA_PRETTY"); v != "" {
		cfg.Pretty = v == "1" || v == "true"
	}
}

// Save writes the configuration as plain JSON.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Package config holds the daemon's runtime configuration: the per-source
// enable flags and paths the CLI surface (cmd/rsrpcd, out of core per §1)
// feeds into the server facade (C8).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the facade's construction-time configuration. It is the
// "config" half of from-source(catalog-json, config) in §4.8.
type Config struct {
	// EnableIPC turns on the native binary IPC listener (C4).
	EnableIPC bool `yaml:"enable_ipc"`
	// EnableScanner turns on the process scanner (C6).
	EnableScanner bool `yaml:"enable_scanner"`
	// EnableWSIntake turns on the browser WebSocket intake (C5).
	EnableWSIntake bool `yaml:"enable_ws_intake"`
	// EnableWSSecondaryEvents controls whether unrecognized WS-intake
	// commands are forwarded on the fan-out channel at all, per §4.5/§4.8.
	// SET_ACTIVITY and INVITE_BROWSER are always forwarded; DEEP_LINK is
	// only logged.
	EnableWSSecondaryEvents bool `yaml:"enable_ws_secondary_events"`

	// ScanIntervalMS overrides the 10s scanner cadence from §4.6, in
	// milliseconds — carried
	// over from the original's RPCServer.process_scan_ms (see SPEC_FULL.md
	// Expansion 3). Zero means "use the §4.6 default".
	ScanIntervalMS int `yaml:"scan_interval_ms"`

	// CatalogPath, when set, is loaded at startup and watched for changes
	// (internal/catalogwatch) — a CLI-surface collaborator per §1/§6, not
	// part of the core.
	CatalogPath string `yaml:"catalog_path"`

	// LogsEnabled mirrors RSRPC_LOGS_ENABLED (§6); the CLI reads the env
	// var and can still be overridden by an explicit flag.
	LogsEnabled bool   `yaml:"logs_enabled"`
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
}

// Default returns the configuration §4.8 implies when nothing is
// overridden: every source on, secondary WS events on.
func Default() Config {
	return Config{
		EnableIPC:               true,
		EnableScanner:           true,
		EnableWSIntake:          true,
		EnableWSSecondaryEvents: true,
		LogLevel:                "info",
	}
}

// Load merges a YAML config file (if present) over Default(). A missing
// file is not an error — config files are optional sugar over flags.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Environment overrides applied after file loading.
const (
	EnvPort     = "CANVAS_BRIDGE_PORT"
	EnvToken    = "CANVAS_BRIDGE_TOKEN"
	EnvLogLevel = "CANVAS_BRIDGE_LOG_LEVEL"
)

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "canvas-bridge",
			LogLevel: "INFO",
			StateDir: defaultStateDir(),
		},
		Bridge: BridgeConfig{
			Listen:         "127.0.0.1:3055",
			RequestTimeout: 30 * time.Second,
			NotifyDuration: 4 * time.Second,
			ReplacePolicy:  "replace",
		},
		API: APIConfig{
			Enabled: true,
		},
		History: HistoryConfig{
			Enabled: true,
		},
	}
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".canvas-bridge"
	}
	return filepath.Join(home, ".canvas-bridge")
}

// Load reads and parses configuration from a file, expands ${ENV_VAR}
// references, applies defaults, environment overrides, and validation.
// An empty path yields the defaults (still subject to env overrides).
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if configPath != "" {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return nil, fmt.Errorf("config file not found: %s\n"+
				"Hint: Check the path or run with --config flag", absPath)
		}

		data = expandEnvVars(data)
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR} references with environment values.
// Unset variables expand to the empty string.
func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// applyDefaults fills zero-valued fields a partial config file left out.
func applyDefaults(cfg *Config) {
	defaults := Defaults()
	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.StateDir == "" {
		cfg.Service.StateDir = defaults.Service.StateDir
	}
	if cfg.Bridge.Listen == "" {
		cfg.Bridge.Listen = defaults.Bridge.Listen
	}
	if cfg.Bridge.RequestTimeout <= 0 {
		cfg.Bridge.RequestTimeout = defaults.Bridge.RequestTimeout
	}
	if cfg.Bridge.NotifyDuration <= 0 {
		cfg.Bridge.NotifyDuration = defaults.Bridge.NotifyDuration
	}
	if cfg.Bridge.ReplacePolicy == "" {
		cfg.Bridge.ReplacePolicy = defaults.Bridge.ReplacePolicy
	}
	if cfg.History.Path == "" {
		cfg.History.Path = filepath.Join(cfg.Service.StateDir, "history.db")
	}
}

// applyEnvOverrides applies single-parameter environment overrides.
func applyEnvOverrides(cfg *Config) {
	if port := os.Getenv(EnvPort); port != "" {
		host, _, err := net.SplitHostPort(cfg.Bridge.Listen)
		if err != nil || host == "" {
			host = "127.0.0.1"
		}
		cfg.Bridge.Listen = net.JoinHostPort(host, port)
	}
	if token := os.Getenv(EnvToken); token != "" {
		cfg.API.Auth.Token = token
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		cfg.Service.LogLevel = level
	}
}

// Validate checks the configuration for startup-fatal problems.
func Validate(cfg *Config) error {
	host, port, err := net.SplitHostPort(cfg.Bridge.Listen)
	if err != nil {
		return fmt.Errorf("bridge.listen %q is not host:port: %w", cfg.Bridge.Listen, err)
	}
	if host == "" {
		return fmt.Errorf("bridge.listen %q is missing a host", cfg.Bridge.Listen)
	}
	if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("bridge.listen port %q is invalid", port)
	}
	if cfg.Bridge.RequestTimeout <= 0 {
		return fmt.Errorf("bridge.request_timeout must be positive")
	}
	if cfg.Bridge.ReplacePolicy != "replace" {
		return fmt.Errorf("bridge.replace_policy %q is not supported (only \"replace\")", cfg.Bridge.ReplacePolicy)
	}
	return nil
}

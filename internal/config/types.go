package config

import "time"

// Config represents the complete canvas-bridge configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	API     APIConfig     `yaml:"api,omitempty"`
	History HistoryConfig `yaml:"history,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
	StateDir string `yaml:"state_dir"`
}

// BridgeConfig defines the plugin transport settings.
type BridgeConfig struct {
	// Listen is the local address the WebSocket endpoint binds to.
	// Overridable via CANVAS_BRIDGE_PORT.
	Listen string `yaml:"listen"`

	// RequestTimeout bounds each dispatched request.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// NotifyDuration is the default toast duration.
	NotifyDuration time.Duration `yaml:"notify_duration"`

	// ReplacePolicy controls what happens when a second plugin connection
	// arrives while one is live. Only "replace" (last-connected-wins,
	// superseded session's requests fail) is implemented.
	ReplacePolicy string `yaml:"replace_policy"`
}

// APIConfig defines the HTTP control surface settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines control API authentication.
type APIAuthConfig struct {
	// Token is the bearer token for /status and /events.
	// Overridable via CANVAS_BRIDGE_TOKEN. Empty disables auth
	// (acceptable on a loopback bind, logged as a warning).
	Token string `yaml:"token"`
}

// HistoryConfig defines the execution history store settings.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

package api

import "github.com/studiotools/canvas-bridge/internal/bridge"

// HealthzResponse is the GET /healthz body.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Connected     bool   `json:"connected"`
}

// StatusResponse is the GET /status body.
type StatusResponse struct {
	Bridge        bridge.Status `json:"bridge"`
	Requests      RequestCounts `json:"requests"`
	UptimeSeconds int64         `json:"uptime_seconds"`
}

// RequestCounts summarizes the request log. Zero-valued when history is
// disabled.
type RequestCounts struct {
	Total    int `json:"total"`
	OK       int `json:"ok"`
	Errors   int `json:"errors"`
	Timeouts int `json:"timeouts"`
}

// HistoryEntry is one GET /history item.
type HistoryEntry struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Tool       string `json:"tool,omitempty"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	CreatedAt  string `json:"created_at"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

package protocol

import "encoding/json"

// Request kinds carried over the plugin socket.
const (
	KindExecute    = "execute"
	KindGetContext = "getContext"
	KindNotify     = "notify"
)

// RequestEnvelope is the outbound wire message sent to the Canvas plugin.
// Exactly one of the payload fields is populated depending on Type.
type RequestEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"` // execute | getContext | notify

	// Script is the opaque script body for execute requests.
	Script string `json:"script,omitempty"`

	// Message and Timeout carry the toast parameters for notify requests.
	// Timeout is in milliseconds.
	Message string `json:"message,omitempty"`
	Timeout int    `json:"timeout,omitempty"`
}

// ResponseEnvelope is the inbound wire message received from the plugin.
type ResponseEnvelope struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

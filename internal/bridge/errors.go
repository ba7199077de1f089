package bridge

import "errors"

// Sentinel errors for the bridge's failure taxonomy. Callers match with
// errors.Is; the concrete message carried alongside explains the specific
// condition (e.g. "connection replaced" vs "connection closed").
var (
	// ErrNotConnected is returned synchronously when no plugin session is
	// attached at dispatch time. No pending entry is registered.
	ErrNotConnected = errors.New("not connected")

	// ErrSendFailure indicates the transport rejected the outbound write.
	ErrSendFailure = errors.New("send failed")

	// ErrTimeout indicates no reply arrived within the request deadline.
	ErrTimeout = errors.New("request timed out")

	// ErrConnectionLost indicates the plugin session closed or was replaced
	// while the request was outstanding.
	ErrConnectionLost = errors.New("connection lost")

	// ErrShuttingDown indicates the bridge was stopped while the request
	// was outstanding.
	ErrShuttingDown = errors.New("shutting down")
)

// RemoteError carries a failure reported by the plugin itself
// (success=false on the wire). The message is surfaced verbatim.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return "remote execution failed"
	}
	return e.Message
}

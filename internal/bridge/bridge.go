// Package bridge implements the transport between the agent-facing tool
// server and the Canvas plugin runtime. It owns the single plugin WebSocket
// session, correlates asynchronous replies back to waiting callers by request
// id, and degrades predictably when the plugin disconnects, times out, or
// never connects.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/studiotools/canvas-bridge/internal/log"
	"github.com/studiotools/canvas-bridge/internal/protocol"
)

const (
	// DefaultRequestTimeout bounds how long a dispatched request may stay
	// pending before it settles with a timeout failure.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultNotifyDuration is how long a notify toast is shown in the
	// host application when the caller does not specify one.
	DefaultNotifyDuration = 4 * time.Second

	// maxFrameSize caps inbound plugin frames. Document context dumps can
	// be large; scripts returning more than this indicate a runaway.
	maxFrameSize = 4 << 20
)

// EventSink receives bridge lifecycle events. The API layer's event hub
// satisfies this; a nil sink disables publishing.
type EventSink interface {
	Publish(eventType string, data any)
}

// Config holds bridge tunables.
type Config struct {
	// RequestTimeout is the per-request deadline. Zero means
	// DefaultRequestTimeout.
	RequestTimeout time.Duration

	// NotifyDuration is the default toast duration for Notify.
	// Zero means DefaultNotifyDuration.
	NotifyDuration time.Duration
}

// Status is a point-in-time snapshot of the bridge, exposed to the outer
// tool-dispatch layer and the HTTP control surface.
type Status struct {
	Connected    bool   `json:"connected"`
	PendingCount int    `json:"pending_count"`
	UptimeMS     int64  `json:"uptime_ms"`
	Generation   uint64 `json:"generation"`
	RemoteAddr   string `json:"remote_addr,omitempty"`
}

// Bridge is the single logical bridge instance for the process.
type Bridge struct {
	cfg     Config
	logger  *slog.Logger
	pending *pendingTable
	slot    *connSlot
	events  EventSink

	startedAt time.Time
	closed    atomic.Bool

	// ctx governs read loops; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a bridge. events may be nil.
func New(cfg Config, events EventSink) *Bridge {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.NotifyDuration <= 0 {
		cfg.NotifyDuration = DefaultNotifyDuration
	}

	logger := log.WithComponent("bridge")
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		cfg:       cfg,
		logger:    logger,
		pending:   newPendingTable(logger),
		slot:      &connSlot{},
		events:    events,
		startedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Execute forwards an opaque script to the plugin and suspends until the
// plugin replies, the request times out, or the session is lost. The script is
// never interpreted or validated here; that responsibility belongs to the
// plugin's execution environment.
func (b *Bridge) Execute(ctx context.Context, script string) (json.RawMessage, error) {
	return b.dispatch(ctx, &protocol.RequestEnvelope{
		ID:     uuid.NewString(),
		Type:   protocol.KindExecute,
		Script: script,
	})
}

// GetContext queries the plugin for the current document/selection state.
// Same failure semantics as Execute.
func (b *Bridge) GetContext(ctx context.Context) (json.RawMessage, error) {
	return b.dispatch(ctx, &protocol.RequestEnvelope{
		ID:   uuid.NewString(),
		Type: protocol.KindGetContext,
	})
}

// Notify shows a toast in the host application. Fire-and-forget in intent,
// but it still round-trips through the correlation path so transport errors
// stay visible to the caller. duration <= 0 uses the configured default.
func (b *Bridge) Notify(ctx context.Context, message string, duration time.Duration) error {
	if duration <= 0 {
		duration = b.cfg.NotifyDuration
	}
	_, err := b.dispatch(ctx, &protocol.RequestEnvelope{
		ID:      uuid.NewString(),
		Type:    protocol.KindNotify,
		Message: message,
		Timeout: int(duration.Milliseconds()),
	})
	return err
}

// IsConnected reports whether a plugin session is currently attached.
func (b *Bridge) IsConnected() bool {
	handle := b.slot.get()
	return handle != nil && handle.isOpen()
}

// Status returns a snapshot of connection and correlation state.
func (b *Bridge) Status() Status {
	st := Status{
		PendingCount: b.pending.count(),
		UptimeMS:     time.Since(b.startedAt).Milliseconds(),
	}
	if handle := b.slot.get(); handle != nil && handle.isOpen() {
		st.Connected = true
		st.Generation = handle.generation
		st.RemoteAddr = handle.remoteAddr
	}
	return st
}

// Close stops the bridge: every pending caller settles with a shutdown
// failure and the connection slot is released. Must run before process exit
// so no caller hangs forever.
func (b *Bridge) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.cancel()

	if n := b.pending.failAll(fmt.Errorf("%w: bridge stopped", ErrShuttingDown)); n > 0 {
		b.logger.Info("failed pending requests on shutdown", "count", n)
	}
	if handle := b.slot.get(); handle != nil {
		b.slot.detach(handle)
	}
	b.logger.Info("bridge closed")
}

// dispatch implements the shared request shape: check the slot, register the
// id, send the envelope, suspend until settlement.
func (b *Bridge) dispatch(ctx context.Context, req *protocol.RequestEnvelope) (json.RawMessage, error) {
	if b.closed.Load() {
		return nil, fmt.Errorf("%w: bridge stopped", ErrShuttingDown)
	}

	handle := b.slot.get()
	if handle == nil || !handle.isOpen() {
		// Fail synchronously: nothing registered, nothing to clean up.
		return nil, fmt.Errorf("%w: no plugin session; open the Canvas agent plugin", ErrNotConnected)
	}

	data, err := protocol.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	done, err := b.pending.register(req.ID, handle.generation, b.cfg.RequestTimeout)
	if err != nil {
		// Unreachable with uuid-generated ids; corruption of the
		// correlation table would mis-route replies.
		return nil, err
	}

	b.publish("request.dispatched", map[string]any{
		"request_id": req.ID,
		"type":       req.Type,
		"pending":    b.pending.count(),
	})
	b.logger.Debug("request dispatched", "request_id", req.ID, "type", req.Type)

	if sendErr := handle.send(ctx, data); sendErr != nil {
		// Settle the just-registered entry; the outcome comes back to us
		// through the channel below so settlement stays single-sourced.
		b.pending.settle(req.ID, outcome{err: fmt.Errorf("%w: %v", ErrSendFailure, sendErr)})
	}

	select {
	case o := <-done:
		b.finish(req.ID, req.Type, o)
		return o.result, o.err
	case <-ctx.Done():
		// The caller abandoned the result. The entry stays registered;
		// the timeout or a remote reply reclaims it, so nothing leaks.
		return nil, ctx.Err()
	}
}

func (b *Bridge) finish(id, kind string, o outcome) {
	data := map[string]any{
		"request_id": id,
		"type":       kind,
		"ok":         o.err == nil,
	}
	if o.err != nil {
		data["error"] = o.err.Error()
	}
	b.publish("request.settled", data)
}

// ServeHTTP accepts an inbound plugin WebSocket connection and runs its read
// loop until the connection drops or the bridge closes. The most recent
// connection is authoritative: the plugin reconnects after a reload, so a new
// connection replaces the current one and the superseded session's in-flight
// requests fail with a "connection replaced" condition.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if b.closed.Load() {
		http.Error(w, "bridge is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The listener binds to loopback; the plugin's embedded browser
		// runtime sends an app-specific Origin we cannot enumerate.
		InsecureSkipVerify: true,
	})
	if err != nil {
		b.logger.Warn("websocket accept failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(maxFrameSize)

	handle, replaced := b.slot.attach(conn, r.RemoteAddr)
	if replaced != nil {
		n := b.pending.failGeneration(replaced.generation, fmt.Errorf("%w: connection replaced", ErrConnectionLost))
		b.logger.Info("plugin connection replaced",
			"old_generation", replaced.generation,
			"new_generation", handle.generation,
			"failed_pending", n,
		)
		b.publish("plugin.replaced", map[string]any{
			"generation":     handle.generation,
			"failed_pending": n,
		})
	}

	b.logger.Info("plugin connected", "remote_addr", r.RemoteAddr, "generation", handle.generation)
	b.publish("plugin.connected", map[string]any{
		"remote_addr": r.RemoteAddr,
		"generation":  handle.generation,
	})

	b.readLoop(handle)
}

// readLoop consumes frames from one plugin session. Malformed frames are
// dropped and logged, never fatal. On read error or close the session's
// pending requests fail with a "connection closed" condition — unless a newer
// session already replaced this one, in which case attach handled them.
func (b *Bridge) readLoop(handle *connHandle) {
	logger := b.logger.With("generation", handle.generation)

	for {
		_, data, err := handle.conn.Read(b.ctx)
		if err != nil {
			if b.slot.detach(handle) {
				n := b.pending.failGeneration(handle.generation, fmt.Errorf("%w: connection closed", ErrConnectionLost))
				logger.Info("plugin disconnected", "failed_pending", n, "error", err)
				b.publish("plugin.disconnected", map[string]any{
					"generation":     handle.generation,
					"failed_pending": n,
				})
			} else {
				logger.Debug("superseded plugin connection closed", "error", err)
			}
			return
		}

		resp, decodeErr := protocol.DecodeResponse(data)
		if decodeErr != nil {
			logger.Warn("dropping malformed plugin frame", "error", decodeErr, "bytes", len(data))
			continue
		}

		var o outcome
		if resp.Success {
			o.result = resp.Result
		} else {
			o.err = &RemoteError{Message: resp.Error}
		}
		if !b.pending.settle(resp.ID, o) {
			// Already settled (late reply after timeout) or never ours.
			logger.Debug("reply for unknown request id", "request_id", resp.ID)
		}
	}
}

func (b *Bridge) publish(eventType string, data any) {
	if b.events == nil {
		return
	}
	b.events.Publish(eventType, data)
}

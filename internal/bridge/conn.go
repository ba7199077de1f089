package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// connHandle wraps one accepted plugin WebSocket connection. Each handle
// carries the generation it was attached under; pending requests remember the
// generation they were dispatched against so a superseded session's replies
// can never satisfy requests from a newer one.
type connHandle struct {
	conn       *websocket.Conn
	generation uint64
	remoteAddr string
	attachedAt time.Time
	closed     atomic.Bool

	// writeMu serializes writes: coder/websocket permits one concurrent
	// writer per connection.
	writeMu sync.Mutex
}

func (h *connHandle) isOpen() bool {
	return !h.closed.Load()
}

// send writes one text frame. Fails immediately if the handle has been
// invalidated by a newer connection or by shutdown.
func (h *connHandle) send(ctx context.Context, data []byte) error {
	if h.closed.Load() {
		return fmt.Errorf("connection handle is closed")
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return h.conn.Write(ctx, websocket.MessageText, data)
}

// invalidate marks the handle closed and tears down the underlying socket.
// Safe to call more than once.
func (h *connHandle) invalidate(code websocket.StatusCode, reason string) {
	if h.closed.Swap(true) {
		return
	}
	_ = h.conn.Close(code, reason)
}

// connSlot holds the single current plugin connection, or none. The slot is
// the only shared mutable connection state; attach/detach/current all take the
// same mutex so a send can never target a handle mid-replacement.
type connSlot struct {
	mu             sync.Mutex
	current        *connHandle
	nextGeneration uint64
}

// attach installs conn as the current handle and returns the new handle plus
// the handle it replaced (nil if the slot was empty). The replaced handle is
// already invalidated on return; failing its in-flight requests is the
// caller's job.
func (s *connSlot) attach(conn *websocket.Conn, remoteAddr string) (attached, replaced *connHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced = s.current
	if replaced != nil {
		replaced.invalidate(websocket.StatusGoingAway, "superseded by a newer plugin connection")
	}

	s.nextGeneration++
	attached = &connHandle{
		conn:       conn,
		generation: s.nextGeneration,
		remoteAddr: remoteAddr,
		attachedAt: time.Now(),
	}
	s.current = attached
	return attached, replaced
}

// detach clears the slot only if handle is still the current occupant.
// Idempotent: detaching an already-replaced handle is ignored.
func (s *connSlot) detach(handle *connHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != handle {
		return false
	}
	handle.invalidate(websocket.StatusNormalClosure, "detached")
	s.current = nil
	return true
}

// get returns the current handle, or nil if no plugin is connected.
func (s *connSlot) get() *connHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

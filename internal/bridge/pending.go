package bridge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// outcome is the single terminal resolution of a pending request.
// Exactly one of result/err is meaningful.
type outcome struct {
	result json.RawMessage
	err    error
}

// pendingRequest is owned exclusively by the pendingTable from registration
// until settlement. The channel is buffered so settlement never blocks on a
// caller that has already abandoned the request.
type pendingRequest struct {
	id          string
	generation  uint64
	submittedAt time.Time
	done        chan outcome
	timer       *time.Timer
}

// pendingTable is the correlation table: request id -> waiting caller.
// All mutations happen under one mutex so "settle exactly once" holds even
// when a reply races a timeout or a disconnect.
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]*pendingRequest
	logger  *slog.Logger
}

func newPendingTable(logger *slog.Logger) *pendingTable {
	return &pendingTable{
		entries: make(map[string]*pendingRequest),
		logger:  logger,
	}
}

// register creates a pending entry for id and arms its timeout timer.
// Returns the channel the caller waits on. A duplicate id is a programmer
// error (ids come from uuid generation) and is rejected.
func (t *pendingTable) register(id string, generation uint64, timeout time.Duration) (<-chan outcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[id]; exists {
		return nil, fmt.Errorf("duplicate request id %q", id)
	}

	entry := &pendingRequest{
		id:          id,
		generation:  generation,
		submittedAt: time.Now(),
		done:        make(chan outcome, 1),
	}
	entry.timer = time.AfterFunc(timeout, func() {
		t.settle(id, outcome{err: fmt.Errorf("%w after %s", ErrTimeout, timeout)})
	})
	t.entries[id] = entry
	return entry.done, nil
}

// settle resolves the entry for id, removing it atomically with the first
// settlement. Settling an unknown id is a no-op: the entry already settled
// (late reply after timeout) or never existed. Returns whether it settled.
func (t *pendingTable) settle(id string, o outcome) bool {
	t.mu.Lock()
	entry, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
		entry.timer.Stop()
	}
	t.mu.Unlock()

	if !ok {
		t.logger.Debug("settle for unknown request id", "request_id", id)
		return false
	}

	entry.done <- o
	return true
}

// failGeneration drains every entry at or below maxGeneration and settles it
// with err. Used when a plugin session closes or is replaced: requests issued
// against a newer session stay pending.
func (t *pendingTable) failGeneration(maxGeneration uint64, err error) int {
	return t.drain(func(e *pendingRequest) bool { return e.generation <= maxGeneration }, err)
}

// failAll drains every pending entry and settles it with err.
// Used on bridge shutdown so no caller hangs forever.
func (t *pendingTable) failAll(err error) int {
	return t.drain(func(*pendingRequest) bool { return true }, err)
}

func (t *pendingTable) drain(match func(*pendingRequest) bool, err error) int {
	t.mu.Lock()
	var drained []*pendingRequest
	for id, entry := range t.entries {
		if match(entry) {
			delete(t.entries, id)
			entry.timer.Stop()
			drained = append(drained, entry)
		}
	}
	t.mu.Unlock()

	for _, entry := range drained {
		entry.done <- outcome{err: err}
	}
	return len(drained)
}

// count returns the number of currently pending entries.
func (t *pendingTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiotools/canvas-bridge/internal/log"
)

func newTestTable() *pendingTable {
	return newPendingTable(log.WithComponent("test"))
}

func TestRegisterRejectsDuplicateID(t *testing.T) {
	table := newTestTable()

	_, err := table.register("dup", 1, time.Minute)
	require.NoError(t, err)

	_, err = table.register("dup", 1, time.Minute)
	require.Error(t, err)
	assert.Equal(t, 1, table.count())
}

func TestSettleResolvesExactlyOnce(t *testing.T) {
	table := newTestTable()

	done, err := table.register("req-1", 1, time.Minute)
	require.NoError(t, err)

	require.True(t, table.settle("req-1", outcome{result: json.RawMessage("2")}))
	// Second settlement (e.g. late reply after timeout) is a provable no-op.
	require.False(t, table.settle("req-1", outcome{err: errors.New("late")}))

	o := <-done
	require.NoError(t, o.err)
	assert.Equal(t, "2", string(o.result))

	// No second outcome is ever delivered.
	select {
	case <-done:
		t.Fatal("pending request resolved twice")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, 0, table.count())
}

func TestSettleUnknownIDIsNoop(t *testing.T) {
	table := newTestTable()
	assert.False(t, table.settle("never-registered", outcome{}))
}

func TestTimeoutSettlesAndRemovesEntry(t *testing.T) {
	table := newTestTable()

	start := time.Now()
	done, err := table.register("slow", 1, 50*time.Millisecond)
	require.NoError(t, err)

	o := <-done
	elapsed := time.Since(start)

	require.Error(t, o.err)
	assert.ErrorIs(t, o.err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.Equal(t, 0, table.count())
}

func TestSettleCancelsTimer(t *testing.T) {
	table := newTestTable()

	done, err := table.register("fast", 1, 30*time.Millisecond)
	require.NoError(t, err)
	require.True(t, table.settle("fast", outcome{result: json.RawMessage(`"ok"`)}))

	o := <-done
	require.NoError(t, o.err)

	// Wait past the deadline; the cancelled timer must not re-settle.
	select {
	case <-done:
		t.Fatal("timer fired after settlement")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestFailAllDrainsEveryEntry(t *testing.T) {
	table := newTestTable()

	const n = 1000
	channels := make([]<-chan outcome, 0, n)
	for i := range n {
		done, err := table.register(fmt.Sprintf("req-%d", i), 1, time.Minute)
		require.NoError(t, err)
		channels = append(channels, done)
	}
	require.Equal(t, n, table.count())

	drained := table.failAll(fmt.Errorf("%w: bridge stopped", ErrShuttingDown))
	assert.Equal(t, n, drained)
	assert.Equal(t, 0, table.count())

	for _, done := range channels {
		o := <-done
		assert.ErrorIs(t, o.err, ErrShuttingDown)
	}
}

func TestFailGenerationSparesNewerEntries(t *testing.T) {
	table := newTestTable()

	oldDone, err := table.register("old", 1, time.Minute)
	require.NoError(t, err)
	newDone, err := table.register("new", 2, time.Minute)
	require.NoError(t, err)

	drained := table.failGeneration(1, fmt.Errorf("%w: connection replaced", ErrConnectionLost))
	assert.Equal(t, 1, drained)

	o := <-oldDone
	assert.ErrorIs(t, o.err, ErrConnectionLost)

	select {
	case <-newDone:
		t.Fatal("newer-generation entry was failed")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, 1, table.count())
}

func TestConcurrentSettleRaces(t *testing.T) {
	table := newTestTable()

	const n = 200
	var settled int64
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := range n {
		id := fmt.Sprintf("race-%d", i)
		done, err := table.register(id, 1, time.Minute)
		require.NoError(t, err)

		// Two goroutines race to settle the same id.
		wg.Add(2)
		for range 2 {
			go func() {
				defer wg.Done()
				if table.settle(id, outcome{result: json.RawMessage("1")}) {
					mu.Lock()
					settled++
					mu.Unlock()
				}
			}()
		}
		<-done
	}
	wg.Wait()

	assert.Equal(t, int64(n), settled, "each id must settle exactly once")
	assert.Equal(t, 0, table.count())
}

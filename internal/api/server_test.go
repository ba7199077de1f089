package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiotools/canvas-bridge/internal/bridge"
	"github.com/studiotools/canvas-bridge/internal/history"
	"github.com/studiotools/canvas-bridge/internal/storage"
)

const testToken = "secret-token"

type testEnv struct {
	server *Server
	hub    *EventHub
	store  *history.Store
}

func newTestEnv(t *testing.T, token string, withHistory bool) *testEnv {
	t.Helper()

	hub := NewEventHub(64)
	b := bridge.New(bridge.Config{}, hub)
	t.Cleanup(func() { b.Close() })

	var store *history.Store
	if withHistory {
		db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		store = history.NewStore(db)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(Config{Listen: "127.0.0.1:0", OpsEnabled: true, Token: token}, b, store, hub, logger)
	return &testEnv{server: s, hub: hub, store: store}
}

func doRequest(t *testing.T, env *testEnv, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.server.setupRoutes().ServeHTTP(rec, req)
	return rec
}

func TestHealthzNeedsNoAuth(t *testing.T) {
	env := newTestEnv(t, testToken, false)

	rec := doRequest(t, env, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body HealthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.False(t, body.Connected)
}

func TestStatusRequiresToken(t *testing.T) {
	env := newTestEnv(t, testToken, false)

	rec := doRequest(t, env, http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, env, http.MethodGet, "/status", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, env, http.MethodGet, "/status", testToken)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusWithAuthDisabled(t *testing.T) {
	env := newTestEnv(t, "", false)

	rec := doRequest(t, env, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Bridge.Connected)
	assert.Zero(t, body.Requests.Total)
}

func TestStatusIncludesRequestCounts(t *testing.T) {
	env := newTestEnv(t, testToken, true)
	ctx := context.Background()

	require.NoError(t, env.store.Record(ctx, history.Entry{
		ID: "a", Kind: "script", Tool: "create_rectangle", Outcome: history.OutcomeOK,
	}))
	require.NoError(t, env.store.Record(ctx, history.Entry{
		ID: "b", Kind: "context", Tool: "get_document_info", Outcome: history.OutcomeTimeout, Error: "timed out",
	}))

	rec := doRequest(t, env, http.MethodGet, "/status", testToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var body StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Requests.Total)
	assert.Equal(t, 1, body.Requests.OK)
	assert.Equal(t, 1, body.Requests.Timeouts)
}

func TestHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t, testToken, true)
	ctx := context.Background()

	require.NoError(t, env.store.Record(ctx, history.Entry{
		ID: "a", Kind: "script", Tool: "move_node", Outcome: history.OutcomeOK,
		Duration: 120 * time.Millisecond,
	}))

	rec := doRequest(t, env, http.MethodGet, "/history?limit=10", testToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Entries []HistoryEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "move_node", body.Entries[0].Tool)
	assert.Equal(t, int64(120), body.Entries[0].DurationMS)
}

func TestHistoryLimitValidation(t *testing.T) {
	env := newTestEnv(t, testToken, true)

	for _, limit := range []string{"0", "-5", "2000", "abc"} {
		rec := doRequest(t, env, http.MethodGet, "/history?limit="+limit, testToken)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)
	}
}

func TestHistoryDisabled(t *testing.T) {
	env := newTestEnv(t, testToken, false)

	rec := doRequest(t, env, http.MethodGet, "/history", testToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventsStream(t *testing.T) {
	env := newTestEnv(t, testToken, false)

	env.hub.Publish("plugin.connected", map[string]any{"generation": 1})

	ts := httptest.NewServer(env.server.setupRoutes())
	t.Cleanup(ts.Close)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	readEventType := func() string {
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "event: ") {
				return strings.TrimPrefix(line, "event: ")
			}
		}
		t.Fatal("stream ended early")
		return ""
	}

	// The buffered event is replayed on connect.
	assert.Equal(t, "plugin.connected", readEventType())

	// Give the handler a moment to register its subscription, then
	// publish a live event.
	time.Sleep(100 * time.Millisecond)
	env.hub.Publish("plugin.disconnected", map[string]any{"generation": 1})
	assert.Equal(t, "plugin.disconnected", readEventType())
}

func TestOpsRoutesCanBeDisabled(t *testing.T) {
	hub := NewEventHub(8)
	b := bridge.New(bridge.Config{}, hub)
	t.Cleanup(func() { b.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(Config{Listen: "127.0.0.1:0", Token: testToken}, b, nil, hub, logger)
	env := &testEnv{server: s, hub: hub}

	rec := doRequest(t, env, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, env, http.MethodGet, "/status", testToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventsRequiresToken(t *testing.T) {
	env := newTestEnv(t, testToken, false)

	rec := doRequest(t, env, http.MethodGet, "/events", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

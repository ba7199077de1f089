// Package mcp serves the bridge's tool surface to an AI agent over
// stdio, speaking JSON-RPC 2.0 with newline-delimited framing. One
// request per line in, one response per line out; notifications
// (requests without an id) are processed but never answered.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studiotools/canvas-bridge/internal/bridge"
	"github.com/studiotools/canvas-bridge/internal/catalog"
	"github.com/studiotools/canvas-bridge/internal/history"
	"github.com/studiotools/canvas-bridge/internal/log"
)

// maxLineSize bounds a single framed request. Scripts are embedded in
// the params, so this needs headroom beyond typical RPC sizes.
const maxLineSize = 4 << 20

// ScriptExecutor is the slice of the bridge the tool server needs.
//
//go:generate mockgen -destination=mocks/mock_executor.go -package=mocks github.com/studiotools/canvas-bridge/internal/mcp ScriptExecutor
type ScriptExecutor interface {
	Execute(ctx context.Context, script string) (json.RawMessage, error)
	GetContext(ctx context.Context) (json.RawMessage, error)
	Notify(ctx context.Context, message string, duration time.Duration) error
	Status() bridge.Status
}

// Server reads JSON-RPC requests from in and writes responses to out.
type Server struct {
	executor ScriptExecutor
	catalog  *catalog.Catalog
	history  *history.Store // nil when history is disabled
	logger   *slog.Logger

	in  io.Reader
	out io.Writer

	writeMu sync.Mutex
}

// NewServer wires a tool server over the given streams. hist may be nil.
func NewServer(executor ScriptExecutor, cat *catalog.Catalog, hist *history.Store, in io.Reader, out io.Writer) *Server {
	return &Server{
		executor: executor,
		catalog:  cat,
		history:  hist,
		logger:   log.WithComponent("mcp"),
		in:       in,
		out:      out,
	}
}

// Run consumes requests until the input stream closes or ctx is
// cancelled. Requests are handled concurrently so a long-running
// script does not block unrelated calls; responses are serialized.
func (s *Server) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var wg sync.WaitGroup
	defer wg.Wait()

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if resp := s.handleLine(ctx, line); resp != nil {
				s.writeResponse(resp)
			}
		}()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading request stream: %w", err)
	}
	return nil
}

// handleLine parses and dispatches one framed request. A nil return
// means no response should be written (notification or unparseable id).
func (s *Server) handleLine(ctx context.Context, line []byte) *rpcResponse {
	var req rpcRequest
	if err := json.Unmarshal(line, &req); err != nil {
		s.logger.Warn("dropping malformed request line", "error", err)
		return &rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: errCodeParse, Message: "parse error"},
		}
	}
	return s.handleRequest(ctx, &req)
}

func (s *Server) handleRequest(ctx context.Context, req *rpcRequest) *rpcResponse {
	notification := len(req.ID) == 0 || string(req.ID) == "null"

	result, rpcErr := s.dispatch(ctx, req)
	if notification {
		if rpcErr != nil {
			s.logger.Debug("notification failed", "method", req.Method, "code", rpcErr.Code)
		}
		return nil
	}

	resp := &rpcResponse{JSONRPC: "2.0", ID: json.RawMessage(req.ID)}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	return resp
}

func (s *Server) dispatch(ctx context.Context, req *rpcRequest) (any, *rpcError) {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(), nil
	case "notifications/initialized":
		return map[string]any{}, nil
	case "ping":
		return map[string]any{}, nil
	case "tools/list":
		return s.handleToolsList(), nil
	case "tools/call":
		return s.handleToolsCall(ctx, req.Params)
	default:
		return nil, &rpcError{
			Code:    errCodeMethodNotFound,
			Message: fmt.Sprintf("method not found: %s", req.Method),
		}
	}
}

func (s *Server) handleInitialize() any {
	return map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    "canvas-bridge",
			"version": "1.0.0",
		},
	}
}

// statusToolName is served by the tool server itself rather than the
// catalog: it reports bridge state without touching the plugin, so it
// works even when no plugin session is attached.
const statusToolName = "get_connection_status"

func (s *Server) handleToolsList() any {
	tools := s.catalog.List()
	out := make([]toolDescriptor, 0, len(tools)+1)
	for _, t := range tools {
		out = append(out, toolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	out = append(out, toolDescriptor{
		Name:        statusToolName,
		Description: "Report whether a Canvas plugin session is attached and how many requests are in flight",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	})
	return map[string]any{"tools": out}
}

func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	var call callParams
	if err := json.Unmarshal(params, &call); err != nil {
		return nil, &rpcError{Code: errCodeInvalidParams, Message: "invalid tools/call params"}
	}
	if call.Name == statusToolName {
		payload, err := json.Marshal(s.executor.Status())
		if err != nil {
			return nil, &rpcError{Code: errCodeInternal, Message: err.Error()}
		}
		return textResult(string(payload)), nil
	}

	tool, ok := s.catalog.Get(call.Name)
	if !ok {
		return nil, &rpcError{
			Code:    errCodeInvalidParams,
			Message: fmt.Sprintf("unknown tool: %s", call.Name),
		}
	}

	started := time.Now()
	result, err := s.runTool(ctx, tool, call.Arguments)
	s.record(ctx, tool, err, time.Since(started))

	if err != nil {
		s.logger.Warn("tool call failed", "tool", tool.Name, "error", err)
		return errorResult(err.Error()), nil
	}
	return result, nil
}

// runTool executes one catalog tool against the plugin.
func (s *Server) runTool(ctx context.Context, tool *catalog.Tool, args map[string]any) (callResult, error) {
	switch tool.Kind {
	case catalog.KindScript:
		script, err := s.catalog.Render(tool.Name, args)
		if err != nil {
			return callResult{}, err
		}
		raw, err := s.executor.Execute(ctx, script)
		if err != nil {
			return callResult{}, err
		}
		return textResult(string(raw)), nil

	case catalog.KindContext:
		raw, err := s.executor.GetContext(ctx)
		if err != nil {
			return callResult{}, err
		}
		return textResult(string(raw)), nil

	case catalog.KindNotify:
		message, _ := args["message"].(string)
		if message == "" {
			return callResult{}, errors.New("notify_user requires a message")
		}
		// Zero lets the bridge apply its configured default duration.
		var duration time.Duration
		if ms, ok := args["durationMs"].(float64); ok && ms > 0 {
			duration = time.Duration(ms) * time.Millisecond
		}
		if err := s.executor.Notify(ctx, message, duration); err != nil {
			return callResult{}, err
		}
		return textResult("notification shown"), nil

	case catalog.KindRaw:
		script, _ := args["script"].(string)
		if script == "" {
			return callResult{}, errors.New("run_script requires a script")
		}
		raw, err := s.executor.Execute(ctx, script)
		if err != nil {
			return callResult{}, err
		}
		return textResult(string(raw)), nil

	default:
		return callResult{}, fmt.Errorf("tool %s has unsupported kind", tool.Name)
	}
}

func (s *Server) record(ctx context.Context, tool *catalog.Tool, err error, elapsed time.Duration) {
	if s.history == nil {
		return
	}
	entry := history.Entry{
		ID:        uuid.NewString(),
		Kind:      tool.Kind.String(),
		Tool:      tool.Name,
		Duration:  elapsed,
		CreatedAt: time.Now().UTC(),
	}
	switch {
	case err == nil:
		entry.Outcome = history.OutcomeOK
	case errors.Is(err, bridge.ErrTimeout):
		entry.Outcome = history.OutcomeTimeout
		entry.Error = err.Error()
	default:
		entry.Outcome = history.OutcomeError
		entry.Error = err.Error()
	}
	if recErr := s.history.Record(ctx, entry); recErr != nil {
		s.logger.Warn("failed to record history entry", "error", recErr)
	}
}

func (s *Server) writeResponse(resp *rpcResponse) {
	payload, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to encode response", "error", err)
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	payload = append(payload, '\n')
	if _, err := s.out.Write(payload); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}

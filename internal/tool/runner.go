package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/harunnryd/shiori/internal/errors"
	"github.com/harunnryd/shiori/internal/logger"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	StatusSuccess      = "success"
	StatusInvalidInput = "invalid_input"
	StatusError        = "error"
)

// Observer receives one observation per executed tool call.
type Observer interface {
	ObserveToolCall(tool, status string, duration time.Duration)
}

type Runner struct {
	registry *Registry
	observer Observer
}

func NewRunner(registry *Registry, observer Observer) *Runner {
	return &Runner{
		registry: registry,
		observer: observer,
	}
}

func (r *Runner) GetDescriptors() []ToolDescriptor {
	if r == nil || r.registry == nil {
		return nil
	}
	return r.registry.GetDescriptors()
}

// Execute handles the full lifecycle: Find Tool -> Validate Input -> Run Tool.
func (r *Runner) Execute(ctx context.Context, toolName string, input json.RawMessage) (json.RawMessage, error) {
	e, ok := r.registry.lookup(toolName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, NormalizeToolName(toolName))
	}
	name := NormalizeToolName(e.tool.Name())
	sessionID := logger.GetSessionID(ctx)

	if err := ValidateInput(e.resolved, input); err != nil {
		slog.Warn("Tool input validation failed", "tool", name, "session_id", sessionID, "error", err)
		r.observe(name, StatusInvalidInput, 0)
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
	}

	start := time.Now()
	slog.Info("Executing tool", "tool", name, "session_id", sessionID)

	result, err := e.tool.Execute(ctx, input)

	duration := time.Since(start)
	if err != nil {
		slog.Error("Tool execution failed", "tool", name, "error", err, "duration", duration, "session_id", sessionID)
		r.observe(name, StatusError, duration)
		return nil, fmt.Errorf("%w: %w", ErrToolFailed, err)
	}

	slog.Info("Tool execution success", "tool", name, "duration", duration, "session_id", sessionID)
	r.observe(name, StatusSuccess, duration)
	return result, nil
}

func (r *Runner) observe(name, status string, duration time.Duration) {
	if r.observer != nil {
		r.observer.ObserveToolCall(name, status, duration)
	}
}

// SessionIDFunc names the transport session a tool call arrived on.
type SessionIDFunc func(ss *mcpsdk.ServerSession) string

// Mount adds every registered tool to an MCP server. Tool failures are
// reported to the client as error results, never as protocol errors.
// sessionID may be nil, in which case the SDK's own session id is logged.
func (r *Runner) Mount(server *mcpsdk.Server, sessionID SessionIDFunc) {
	for _, d := range r.registry.GetDescriptors() {
		server.AddTool(&mcpsdk.Tool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
		}, r.handler(d.Name, sessionID))
	}
}

func (r *Runner) handler(name string, sessionID SessionIDFunc) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		if req.Session != nil {
			id := ""
			if sessionID != nil {
				id = sessionID(req.Session)
			}
			if id == "" {
				id = req.Session.ID()
			}
			ctx = logger.WithSessionID(ctx, id)
		}

		var input json.RawMessage
		if req.Params != nil {
			input = req.Params.Arguments
		}

		result, err := r.Execute(ctx, name, input)
		if err != nil {
			return errorResult(err), nil
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(result)}},
		}, nil
	}
}

func errorResult(err error) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
	}
}

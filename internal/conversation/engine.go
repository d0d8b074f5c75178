package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/harunnryd/shiori/internal/errors"
	"github.com/harunnryd/shiori/internal/invoker"
	"github.com/harunnryd/shiori/internal/logger"
	"github.com/harunnryd/shiori/internal/model"
	"github.com/harunnryd/shiori/internal/model/contract"

	"github.com/oklog/ulid/v2"
)

type State int32

const (
	StateIdle State = iota
	StateAwaitingModel
	StateExecutingTools
	StateAwaitingFinalModel
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingModel:
		return "awaiting_model"
	case StateExecutingTools:
		return "executing_tools"
	case StateAwaitingFinalModel:
		return "awaiting_final_model"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

const (
	DefaultMaxToolRounds = 1
	MaxToolRoundsLimit   = 3
	DefaultModelTimeout  = 120 * time.Second
)

// ToolRunner executes one model tool call. *invoker.Invoker satisfies it.
type ToolRunner interface {
	Call(ctx context.Context, req invoker.ToolCallRequest) invoker.Outcome
}

type Options struct {
	Model        string
	SystemPrompt string

	// MaxToolRounds bounds how many tool batches one turn may run before the
	// model must answer. Clamped to [1, MaxToolRoundsLimit].
	MaxToolRounds int
	ModelTimeout  time.Duration

	OnToolCall   func(req invoker.ToolCallRequest)
	OnToolResult func(req invoker.ToolCallRequest, out invoker.Outcome)
}

// Engine drives the two-phase tool-use loop for a single conversation.
type Engine struct {
	mu      sync.Mutex
	model   model.ChatCompleter
	tools   ToolRunner
	schemas []contract.ToolDef
	opts    Options

	id      string
	history *History
	state   atomic.Int32
	callSeq int
}

func New(completer model.ChatCompleter, tools ToolRunner, schemas []contract.ToolDef, opts Options) *Engine {
	if opts.MaxToolRounds < 1 {
		opts.MaxToolRounds = DefaultMaxToolRounds
	}
	if opts.MaxToolRounds > MaxToolRoundsLimit {
		opts.MaxToolRounds = MaxToolRoundsLimit
	}
	if opts.ModelTimeout <= 0 {
		opts.ModelTimeout = DefaultModelTimeout
	}

	return &Engine{
		model:   completer,
		tools:   tools,
		schemas: schemas,
		opts:    opts,
		id:      ulid.Make().String(),
		history: NewHistory(opts.SystemPrompt),
	}
}

// ID names the current conversation. Reset starts a new one.
func (e *Engine) ID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.id
}

func (e *Engine) State() State {
	return State(e.state.Load())
}

// setState never leaves Terminated.
func (e *Engine) setState(s State) {
	for {
		cur := e.state.Load()
		if State(cur) == StateTerminated {
			return
		}
		if e.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

// Send runs one user turn and returns the final answer. A model failure
// leaves the history ending at the user's message.
func (e *Engine) Send(ctx context.Context, input string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.State() == StateTerminated {
		return "", fmt.Errorf("send: %w", apperrors.ErrSessionClosed)
	}
	if strings.TrimSpace(input) == "" {
		return "", apperrors.InvalidInput("empty user message")
	}

	turnID := ulid.Make().String()
	ctx = logger.WithSessionID(ctx, e.id)
	ctx = logger.WithTurnID(ctx, turnID)

	e.history.Append(contract.Message{Role: contract.RoleUser, Content: input})
	mark := e.history.Len()

	answer, err := e.runTurn(ctx, turnID)
	if err != nil {
		e.history.Truncate(mark)
		e.setState(StateIdle)
		slog.Error("Turn failed", "session_id", e.id, "turn_id", turnID, "category", apperrors.Category(err), "error", err)
		return "", err
	}

	e.history.Append(contract.Message{Role: contract.RoleAssistant, Content: answer})
	e.setState(StateIdle)
	return answer, nil
}

func (e *Engine) runTurn(ctx context.Context, turnID string) (string, error) {
	e.setState(StateAwaitingModel)
	resp, err := e.complete(ctx)
	if err != nil {
		return "", err
	}

	for rounds := 0; len(resp.ToolCalls) > 0; rounds++ {
		if rounds == e.opts.MaxToolRounds {
			if strings.TrimSpace(resp.Content) == "" {
				return "", apperrors.ModelCall("no final answer: model kept requesting tools")
			}
			slog.Warn("Dropping tool calls past round limit", "turn_id", turnID, "dropped", len(resp.ToolCalls), "max_rounds", e.opts.MaxToolRounds)
			break
		}

		e.setState(StateExecutingTools)
		e.executeTools(ctx, resp.ToolCalls)

		e.setState(StateAwaitingFinalModel)
		resp, err = e.complete(ctx)
		if err != nil {
			return "", err
		}
	}

	return resp.Content, nil
}

// executeTools records the batch, then runs every call in emitted order so each
// id gets exactly one tool message before the next model call.
func (e *Engine) executeTools(ctx context.Context, calls []*contract.ToolCall) {
	recorded := make([]*contract.ToolCall, 0, len(calls))
	seen := e.history.ToolCallIDs()
	for _, tc := range calls {
		if tc == nil {
			continue
		}
		id := tc.ID
		for id == "" || seen[id] {
			e.callSeq++
			id = fmt.Sprintf("call_%s_%d", e.id, e.callSeq)
		}
		seen[id] = true
		recorded = append(recorded, &contract.ToolCall{ID: id, Name: tc.Name, Input: tc.Input})
	}

	e.history.Append(contract.Message{Role: contract.RoleAssistant, ToolCalls: recorded})

	for _, tc := range recorded {
		req := invoker.ToolCallRequest{ID: tc.ID, ToolName: tc.Name, Arguments: tc.Input}
		if e.opts.OnToolCall != nil {
			e.opts.OnToolCall(req)
		}

		out := e.tools.Call(ctx, req)

		if e.opts.OnToolResult != nil {
			e.opts.OnToolResult(req, out)
		}

		e.history.Append(contract.Message{
			Role:       contract.RoleTool,
			Name:       tc.Name,
			ToolCallID: tc.ID,
			Content:    out.Content(),
		})
	}
}

func (e *Engine) complete(ctx context.Context) (*contract.CompletionResponse, error) {
	if missing := e.history.UnpairedToolCalls(); len(missing) > 0 {
		return nil, fmt.Errorf("tool calls %s have no result: %w", strings.Join(missing, ", "), apperrors.ErrInternal)
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.ModelTimeout)
	defer cancel()

	resp, err := e.model.Complete(ctx, contract.CompletionRequest{
		Model:    e.opts.Model,
		Messages: e.history.Messages(),
		Tools:    e.schemas,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("model call timed out after %s: %w: %w", e.opts.ModelTimeout, err, apperrors.ErrModelCall)
		}
		if !errors.Is(err, apperrors.ErrModelCall) {
			return nil, apperrors.WrapWithCategory(err, "model call failed", apperrors.ErrModelCall)
		}
		return nil, err
	}
	if resp == nil {
		return nil, apperrors.ModelCall("model returned no response")
	}
	return resp, nil
}

// Reset clears the conversation back to the system prompt.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	previous := e.id
	e.id = ulid.Make().String()
	e.callSeq = 0
	e.history.Reset()
	e.setState(StateIdle)
	slog.Info("Conversation reset", "session_id", e.id, "previous_session_id", previous)
}

// History returns a copy of the message log.
func (e *Engine) History() []contract.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Messages()
}

// Tools returns the tool schemas offered to the model on every call.
func (e *Engine) Tools() []contract.ToolDef {
	out := make([]contract.ToolDef, len(e.schemas))
	copy(out, e.schemas)
	return out
}

// Close terminates the conversation. It does not own the tool session.
func (e *Engine) Close() error {
	e.state.Store(int32(StateTerminated))
	return nil
}

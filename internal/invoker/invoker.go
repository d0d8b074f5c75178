package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/shiori/internal/catalog"
	apperrors "github.com/harunnryd/shiori/internal/errors"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Caller runs one remote tool. *mcp.Session satisfies it.
type Caller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcpsdk.CallToolResult, error)
}

// ToolCallRequest is one tool call emitted by the model.
type ToolCallRequest struct {
	ID        string
	ToolName  string
	Arguments string
}

// Invoker turns model tool calls into outcomes. It never returns an error;
// every failure is folded into a Failure outcome.
type Invoker struct {
	catalog *catalog.Catalog
	caller  Caller
}

func New(cat *catalog.Catalog, caller Caller) *Invoker {
	return &Invoker{catalog: cat, caller: caller}
}

func (i *Invoker) Call(ctx context.Context, req ToolCallRequest) Outcome {
	start := time.Now()
	out := i.call(ctx, req)

	attrs := []any{
		"tool", req.ToolName,
		"call_id", req.ID,
		"status", out.Status,
		"duration", time.Since(start),
	}
	if out.IsSuccess() {
		slog.Info("Tool call completed", attrs...)
	} else {
		attrs = append(attrs, "kind", out.Kind, "category", apperrors.Category(out.Err), "error", out.Err)
		slog.Warn("Tool call failed", attrs...)
	}
	return out
}

func (i *Invoker) call(ctx context.Context, req ToolCallRequest) Outcome {
	if _, ok := i.catalog.Lookup(req.ToolName); !ok {
		return Failure(KindUnknownTool, UnknownToolMessage,
			SuggestionUnknownTool+" Available: "+strings.Join(i.catalog.Names(), ", "),
			apperrors.UnknownTool(req.ToolName))
	}

	args, err := DecodeArguments(req.Arguments)
	if err != nil {
		return Failure(KindArgumentDecode, err.Error(), SuggestionArguments, err)
	}

	res, err := i.caller.CallTool(ctx, req.ToolName, args)
	if err != nil {
		err = apperrors.MapTransportError(err)
		return Failure(KindTransport, err.Error(), SuggestionTransport, err)
	}
	if res == nil {
		err := apperrors.Protocol(fmt.Sprintf("call tool %q: empty result", req.ToolName))
		return Failure(KindTransport, err.Error(), SuggestionTransport, err)
	}

	text, hasText := firstText(res)
	if res.IsError {
		if !hasText || text == "" {
			text = UnknownErrorText
		}
		return Failure(KindApplication, text, SuggestionApplication,
			fmt.Errorf("tool %q: %s: %w", req.ToolName, text, apperrors.ErrToolApplication))
	}

	return Success(text)
}

// DecodeArguments parses the model's argument string. An empty string is an
// empty object; anything other than a JSON object is rejected.
func DecodeArguments(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	dec.UseNumber()

	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %v: %w", err, apperrors.ErrArgumentDecode)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid tool arguments: trailing data after object: %w", apperrors.ErrArgumentDecode)
	}
	if args == nil {
		return nil, fmt.Errorf("invalid tool arguments: expected a JSON object: %w", apperrors.ErrArgumentDecode)
	}
	return args, nil
}

// firstText returns the text of the first content item.
func firstText(res *mcpsdk.CallToolResult) (string, bool) {
	if res == nil || len(res.Content) == 0 {
		return "", false
	}
	switch c := res.Content[0].(type) {
	case *mcpsdk.TextContent:
		return c.Text, true
	default:
		data, err := json.Marshal(c)
		if err != nil {
			return "", false
		}
		return string(data), true
	}
}

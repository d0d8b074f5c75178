package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/harunnryd/shiori/internal/errors"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/oklog/ulid/v2"
)

const (
	DefaultClientName    = "shiori"
	DefaultClientVersion = "v1.0.0"
	DefaultOpenTimeout   = 30 * time.Second
	DefaultListTimeout   = 30 * time.Second
	DefaultInvokeTimeout = 60 * time.Second
)

// Options bound the session's network operations.
type Options struct {
	OpenTimeout   time.Duration
	ListTimeout   time.Duration
	InvokeTimeout time.Duration

	// HTTPClient must not carry a client-wide Timeout, the SSE stream is long lived.
	HTTPClient *http.Client

	ClientName    string
	ClientVersion string
}

func (o Options) withDefaults() Options {
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = DefaultOpenTimeout
	}
	if o.ListTimeout <= 0 {
		o.ListTimeout = DefaultListTimeout
	}
	if o.InvokeTimeout <= 0 {
		o.InvokeTimeout = DefaultInvokeTimeout
	}
	if o.ClientName == "" {
		o.ClientName = DefaultClientName
	}
	if o.ClientVersion == "" {
		o.ClientVersion = DefaultClientVersion
	}
	return o
}

// Session is a live SSE stream to a tool provider plus the MCP client session
// running over it. Both halves are released together by Close.
type Session struct {
	id       string
	endpoint string
	opts     Options

	httpClient   *http.Client
	client       *mcpsdk.ClientSession
	cancelStream context.CancelFunc

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Open connects to the SSE endpoint and performs the MCP handshake.
// The stream outlives ctx; ctx and OpenTimeout only bound the connect step.
func Open(ctx context.Context, endpoint string, opts Options) (*Session, error) {
	opts = opts.withDefaults()

	if err := validateEndpoint(endpoint); err != nil {
		return nil, err
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    opts.ClientName,
		Version: opts.ClientVersion,
	}, nil)

	transport := &mcpsdk.SSEClientTransport{
		Endpoint:   endpoint,
		HTTPClient: httpClient,
	}

	streamCtx, cancelStream := context.WithCancel(context.Background())
	timer := time.AfterFunc(opts.OpenTimeout, cancelStream)
	stop := context.AfterFunc(ctx, cancelStream)

	id := ulid.Make().String()
	slog.Debug("Opening tool provider session", "session_id", id, "endpoint", endpoint)

	cs, err := client.Connect(streamCtx, transport, nil)
	expired := !timer.Stop()
	parentDone := !stop()
	if err != nil {
		cancelStream()
		httpClient.CloseIdleConnections()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("connect %s: %w: %w", endpoint, ctx.Err(), apperrors.ErrConnection)
		}
		if expired {
			return nil, fmt.Errorf("connect %s: timed out after %s: %w", endpoint, opts.OpenTimeout, apperrors.ErrConnection)
		}
		return nil, fmt.Errorf("connect %s: %w: %w", endpoint, err, apperrors.ErrConnection)
	}
	if expired || parentDone {
		_ = cs.Close()
		cancelStream()
		httpClient.CloseIdleConnections()
		return nil, apperrors.Connection(fmt.Sprintf("connect %s: aborted during handshake", endpoint))
	}

	s := &Session{
		id:           id,
		endpoint:     endpoint,
		opts:         opts,
		httpClient:   httpClient,
		client:       cs,
		cancelStream: cancelStream,
	}

	attrs := []any{"session_id", id, "endpoint", endpoint}
	if info := cs.InitializeResult(); info != nil && info.ServerInfo != nil {
		attrs = append(attrs, "server", info.ServerInfo.Name, "server_version", info.ServerInfo.Version)
	}
	slog.Info("Tool provider session opened", attrs...)

	return s, nil
}

func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return apperrors.Connection("endpoint is empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint %q: %w: %w", endpoint, err, apperrors.ErrConnection)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return apperrors.Connection(fmt.Sprintf("endpoint %q must be an http or https URL", endpoint))
	}
	if u.Host == "" {
		return apperrors.Connection(fmt.Sprintf("endpoint %q has no host", endpoint))
	}
	return nil
}

func (s *Session) ID() string       { return s.id }
func (s *Session) Endpoint() string { return s.endpoint }

// ListTools returns every tool the provider advertises, following pagination.
func (s *Session) ListTools(ctx context.Context) ([]*mcpsdk.Tool, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("list tools: %w", apperrors.ErrSessionClosed)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.ListTimeout)
	defer cancel()

	var tools []*mcpsdk.Tool
	for tool, err := range s.client.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("list tools: %w: %w", err, apperrors.ErrProtocol)
		}
		if tool == nil {
			return nil, apperrors.Protocol("list tools: provider returned a nil tool")
		}
		tools = append(tools, tool)
	}

	slog.Debug("Listed provider tools", "session_id", s.id, "count", len(tools))
	return tools, nil
}

// CallTool invokes one named tool. Failures below the tool are mapped to
// transport errors; a tool that ran and failed comes back with IsError set.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (*mcpsdk.CallToolResult, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("call tool %q: %w", name, apperrors.ErrSessionClosed)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.InvokeTimeout)
	defer cancel()

	if args == nil {
		args = map[string]any{}
	}

	res, err := s.client.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, apperrors.MapTransportError(fmt.Errorf("call tool %q: %w", name, err))
	}
	if res == nil {
		return nil, apperrors.Protocol(fmt.Sprintf("call tool %q: empty result", name))
	}
	return res, nil
}

// Close tears down the MCP session and the SSE stream. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)

		var errs []error
		if err := s.client.Close(); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("close client session: %w", err))
		}
		s.cancelStream()
		s.httpClient.CloseIdleConnections()

		s.closeErr = errors.Join(errs...)
		if s.closeErr != nil {
			slog.Warn("Tool provider session closed with errors", "session_id", s.id, "error", s.closeErr)
			return
		}
		slog.Info("Tool provider session closed", "session_id", s.id)
	})
	return s.closeErr
}

package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apperrors "github.com/harunnryd/shiori/internal/errors"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEchoServer() *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "test-provider", Version: "v0.0.1"}, nil)
	server.AddTool(&mcpsdk.Tool{
		Name:        "echo",
		Description: "Echo the given text",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string", "description": "Text to echo"},
			},
			"required": []any{"text"},
		},
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var in struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(req.Params.Arguments, &in); err != nil {
			return nil, err
		}
		if in.Text == "boom" {
			return &mcpsdk.CallToolResult{
				IsError: true,
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "echo exploded"}},
			}, nil
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: in.Text}},
		}, nil
	})
	return server
}

func newTestProvider(t *testing.T) (*httptest.Server, *SSEHandler) {
	t.Helper()

	handler := NewSSEHandler(newEchoServer(), SSEHandlerOptions{})
	mux := http.NewServeMux()
	mux.HandleFunc("/sse", handler.ServeStream)
	mux.HandleFunc(handler.MessagesPath(), handler.ServeMessage)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, handler
}

func openTestSession(t *testing.T, srv *httptest.Server) *Session {
	t.Helper()

	s, err := Open(context.Background(), srv.URL+"/sse", Options{OpenTimeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSession_ListAndCall(t *testing.T) {
	srv, _ := newTestProvider(t)
	s := openTestSession(t, srv)
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, srv.URL+"/sse", s.Endpoint())

	tools, err := s.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)
	assert.Equal(t, "Echo the given text", tools[0].Description)

	schema, ok := tools[0].InputSchema.(map[string]any)
	require.True(t, ok, "client side schema should decode to a map")
	assert.Equal(t, "object", schema["type"])

	res, err := s.CallTool(context.Background(), "echo", map[string]any{"text": "hello"})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)
	assert.Equal(t, "hello", text.Text)
}

func TestSession_ToolReportedError(t *testing.T) {
	srv, _ := newTestProvider(t)
	s := openTestSession(t, srv)

	res, err := s.CallTool(context.Background(), "echo", map[string]any{"text": "boom"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	text, ok := res.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)
	assert.Equal(t, "echo exploded", text.Text)
}

func TestSession_ProviderRejectsUnknownTool(t *testing.T) {
	srv, _ := newTestProvider(t)
	s := openTestSession(t, srv)

	_, err := s.CallTool(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTransport)
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	srv, handler := newTestProvider(t)

	s, err := Open(context.Background(), srv.URL+"/sse", Options{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return handler.ActiveSessions() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.ListTools(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrSessionClosed)

	_, err = s.CallTool(context.Background(), "echo", map[string]any{"text": "hi"})
	assert.ErrorIs(t, err, apperrors.ErrSessionClosed)

	require.Eventually(t, func() bool { return handler.ActiveSessions() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestSession_StreamOutlivesOpenContext(t *testing.T) {
	srv, _ := newTestProvider(t)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := Open(ctx, srv.URL+"/sse", Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	cancel()

	tools, err := s.ListTools(context.Background())
	require.NoError(t, err)
	assert.Len(t, tools, 1)
}

func TestOpen_RejectsInvalidEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
	}{
		{"empty", ""},
		{"wrong scheme", "ftp://localhost/sse"},
		{"no host", "http:///sse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(context.Background(), tt.endpoint, Options{})
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrConnection)
		})
	}
}

func TestOpen_UnreachableProvider(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL + "/sse"
	srv.Close()

	_, err := Open(context.Background(), endpoint, Options{OpenTimeout: 2 * time.Second})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConnection)
}

func TestOpen_NonStreamingEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	_, err := Open(context.Background(), srv.URL+"/sse", Options{OpenTimeout: 2 * time.Second})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConnection)
}

func TestSSEHandler_MessageRouting(t *testing.T) {
	srv, _ := newTestProvider(t)

	tests := []struct {
		name   string
		method string
		query  string
		want   int
	}{
		{"missing session id", http.MethodPost, "", http.StatusBadRequest},
		{"unknown session", http.MethodPost, "?session_id=nope", http.StatusNotFound},
		{"wrong method", http.MethodGet, "?session_id=nope", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+DefaultMessagesPath+tt.query, strings.NewReader(`{}`))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestSSEHandler_StreamRejectsPost(t *testing.T) {
	srv, _ := newTestProvider(t)

	resp, err := http.Post(srv.URL+"/sse", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestSSEHandler_SessionIDResolvesStream(t *testing.T) {
	var handler *SSEHandler
	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "test-provider", Version: "v0.0.1"}, nil)
	server.AddTool(&mcpsdk.Tool{
		Name:        "whoami",
		Description: "Report the stream id",
		InputSchema: map[string]any{"type": "object"},
	}, func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: handler.SessionID(req.Session)}},
		}, nil
	})
	handler = NewSSEHandler(server, SSEHandlerOptions{})

	mux := http.NewServeMux()
	mux.HandleFunc("/sse", handler.ServeStream)
	mux.HandleFunc(handler.MessagesPath(), handler.ServeMessage)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	whoami := func(s *Session) string {
		res, err := s.CallTool(context.Background(), "whoami", map[string]any{})
		require.NoError(t, err)
		require.Len(t, res.Content, 1)
		text, ok := res.Content[0].(*mcpsdk.TextContent)
		require.True(t, ok)
		return text.Text
	}

	first := whoami(openTestSession(t, srv))
	second := whoami(openTestSession(t, srv))

	assert.Len(t, first, 26)
	assert.Len(t, second, 26)
	assert.NotEqual(t, first, second)
	assert.Empty(t, handler.SessionID(nil))
}

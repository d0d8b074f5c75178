package mcp

import (
	"log/slog"
	"net/http"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/oklog/ulid/v2"
)

const (
	DefaultMessagesPath = "/messages/"
	SessionIDParam      = "session_id"
)

type SSEHandlerOptions struct {
	// MessagesPath is where clients POST messages. Defaults to /messages/.
	MessagesPath string

	// OnSessionOpen and OnSessionClose observe stream lifetimes.
	OnSessionOpen  func(id string)
	OnSessionClose func(id string)
}

// SSEHandler serves one MCP server over two routes: a GET stream that
// announces a per-session message endpoint, and a POST route that feeds
// client messages into the matching stream.
type SSEHandler struct {
	server *mcpsdk.Server
	opts   SSEHandlerOptions

	mu       sync.Mutex
	sessions map[string]*mcpsdk.SSEServerTransport
	ids      map[*mcpsdk.ServerSession]string
}

func NewSSEHandler(server *mcpsdk.Server, opts SSEHandlerOptions) *SSEHandler {
	if opts.MessagesPath == "" {
		opts.MessagesPath = DefaultMessagesPath
	}
	return &SSEHandler{
		server:   server,
		opts:     opts,
		sessions: make(map[string]*mcpsdk.SSEServerTransport),
		ids:      make(map[*mcpsdk.ServerSession]string),
	}
}

// MessagesPath returns the route the message handler must be mounted on.
func (h *SSEHandler) MessagesPath() string {
	return h.opts.MessagesPath
}

// ActiveSessions reports the number of open streams.
func (h *SSEHandler) ActiveSessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// SessionID returns the stream id assigned to an MCP session, or "" if the
// session is not one of this handler's open streams.
func (h *SSEHandler) SessionID(ss *mcpsdk.ServerSession) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ids[ss]
}

// ServeStream handles GET /sse. It blocks until the client goes away or the
// MCP session ends.
func (h *SSEHandler) ServeStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id := ulid.Make().String()
	transport := &mcpsdk.SSEServerTransport{
		Endpoint: h.opts.MessagesPath + "?" + SessionIDParam + "=" + id,
		Response: w,
	}

	opened := false
	h.mu.Lock()
	h.sessions[id] = transport
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.sessions, id)
		h.mu.Unlock()
		if opened && h.opts.OnSessionClose != nil {
			h.opts.OnSessionClose(id)
		}
		slog.Debug("SSE session closed", "session_id", id)
	}()

	ss, err := h.server.Connect(r.Context(), transport, nil)
	if err != nil {
		slog.Error("SSE session connect failed", "session_id", id, "error", err)
		http.Error(w, "connection failed", http.StatusInternalServerError)
		return
	}
	defer ss.Close()

	h.mu.Lock()
	h.ids[ss] = id
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.ids, ss)
		h.mu.Unlock()
	}()

	opened = true
	if h.opts.OnSessionOpen != nil {
		h.opts.OnSessionOpen(id)
	}
	slog.Debug("SSE session opened", "session_id", id, "remote", r.RemoteAddr)

	ended := make(chan struct{})
	go func() {
		_ = ss.Wait()
		close(ended)
	}()

	select {
	case <-r.Context().Done():
	case <-ended:
	}
}

// ServeMessage handles POST /messages/?session_id=<id>.
func (h *SSEHandler) ServeMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get(SessionIDParam)
	if id == "" {
		http.Error(w, SessionIDParam+" must be provided", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	transport := h.sessions[id]
	h.mu.Unlock()
	if transport == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	transport.ServeHTTP(w, r)
}

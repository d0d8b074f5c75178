package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harunnryd/shiori/internal/model/contract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role       string `json:"role"`
		Content    string `json:"content"`
		Name       string `json:"name"`
		ToolCallID string `json:"tool_call_id"`
		ToolCalls  []struct {
			ID       string `json:"id"`
			Function struct {
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
			} `json:"function"`
		} `json:"tool_calls"`
	} `json:"messages"`
	Tools []struct {
		Type     string `json:"type"`
		Function struct {
			Name       string         `json:"name"`
			Parameters map[string]any `json:"parameters"`
		} `json:"function"`
	} `json:"tools"`
}

func newChatServer(t *testing.T, reply string, captured *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerate_ToolCallResponse(t *testing.T) {
	var captured chatRequest
	srv := newChatServer(t, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1,
		"model": "deepseek/deepseek-chat-v3-0324",
		"choices": [{
			"index": 0,
			"finish_reason": "tool_calls",
			"message": {
				"role": "assistant",
				"content": "",
				"tool_calls": [
					{"id": "call_1", "type": "function", "function": {"name": "search_gutenberg_books", "arguments": "{\"search_terms\":[\"dickens\"]}"}},
					{"type": "function", "function": {"name": "search_gutenberg_books", "arguments": "{\"search_terms\":[\"austen\"]}"}}
				]
			}
		}]
	}`, &captured)

	p := New("test-key", srv.URL+"/", "deepseek/deepseek-chat-v3-0324")
	resp, err := p.Generate(context.Background(), contract.CompletionRequest{
		Messages: []contract.Message{
			{Role: contract.RoleSystem, Content: "You help with books."},
			{Role: contract.RoleUser, Content: "Find Dickens"},
		},
		Tools: []contract.ToolDef{{
			Name:        "search_gutenberg_books",
			Description: "Search books",
			Parameters:  map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "deepseek/deepseek-chat-v3-0324", captured.Model, "provider model used when request leaves it empty")
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	require.Len(t, captured.Tools, 1)
	assert.Equal(t, "function", captured.Tools[0].Type)
	assert.Equal(t, "search_gutenberg_books", captured.Tools[0].Function.Name)

	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, `{"search_terms":["dickens"]}`, resp.ToolCalls[0].Input)
	assert.Empty(t, resp.ToolCalls[1].ID, "missing ids are left to the conversation")
}

func TestGenerate_SendsToolHistory(t *testing.T) {
	var captured chatRequest
	srv := newChatServer(t, `{"choices":[{"index":0,"message":{"role":"assistant","content":"Here are the books."}}]}`, &captured)

	p := New("test-key", srv.URL, "m")
	resp, err := p.Generate(context.Background(), contract.CompletionRequest{
		Model: "override",
		Messages: []contract.Message{
			{Role: contract.RoleUser, Content: "Find Dickens"},
			{Role: contract.RoleAssistant, ToolCalls: []*contract.ToolCall{{ID: "call_1", Name: "search", Input: `{"q":"dickens"}`}}},
			{Role: contract.RoleTool, ToolCallID: "call_1", Name: "search", Content: `{"status":"success","result":"[]"}`},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Here are the books.", resp.Content)
	assert.Empty(t, resp.ToolCalls)

	assert.Equal(t, "override", captured.Model)
	require.Len(t, captured.Messages, 3)
	require.Len(t, captured.Messages[1].ToolCalls, 1)
	assert.Equal(t, "call_1", captured.Messages[1].ToolCalls[0].ID)
	assert.Equal(t, `{"q":"dickens"}`, captured.Messages[1].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "call_1", captured.Messages[2].ToolCallID)
	assert.Equal(t, "search", captured.Messages[2].Name)
}

func TestGenerate_NoChoices(t *testing.T) {
	var captured chatRequest
	srv := newChatServer(t, `{"choices":[]}`, &captured)

	_, err := New("test-key", srv.URL, "m").Generate(context.Background(), contract.CompletionRequest{
		Messages: []contract.Message{{Role: contract.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestGenerate_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"invalid key","type":"auth"}}`)
	}))
	t.Cleanup(srv.Close)

	_, err := New("test-key", srv.URL, "m").Generate(context.Background(), contract.CompletionRequest{
		Messages: []contract.Message{{Role: contract.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai request failed")
}

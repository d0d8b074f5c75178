package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/harunnryd/shiori/internal/model/contract"

	"google.golang.org/genai"
)

type Provider struct {
	client *genai.Client
}

func New(apiKey string) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &Provider{client: client}, nil
}

func (p *Provider) Name() string {
	return "gemini"
}

func (p *Provider) Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	contents, system := toContents(req.Messages)

	var tools []*genai.Tool
	if len(req.Tools) > 0 {
		var decls []*genai.FunctionDeclaration
		for _, t := range req.Tools {
			b, err := json.Marshal(t.Parameters)
			if err != nil {
				return nil, fmt.Errorf("gemini tool %s schema: %w", t.Name, err)
			}
			var schema genai.Schema
			if err := json.Unmarshal(b, &schema); err != nil {
				return nil, fmt.Errorf("gemini tool %s schema: %w", t.Name, err)
			}
			decls = append(decls, &genai.FunctionDeclaration{Name: t.Name, Description: t.Description, Parameters: &schema})
		}
		tools = append(tools, &genai.Tool{FunctionDeclarations: decls})
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, &genai.GenerateContentConfig{
		Tools:             tools,
		SystemInstruction: system,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	out := &contract.CompletionResponse{}
	if resp == nil {
		return out, nil
	}

	for _, fc := range resp.FunctionCalls() {
		argsJSON, err := json.Marshal(fc.Args)
		if err != nil {
			return nil, fmt.Errorf("gemini function call args: %w", err)
		}
		out.ToolCalls = append(out.ToolCalls, &contract.ToolCall{ID: fc.ID, Name: fc.Name, Input: string(argsJSON)})
	}

	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				out.Content += part.Text
			}
		}
	}

	return out, nil
}

func toContents(messages []contract.Message) ([]*genai.Content, *genai.Content) {
	var system *genai.Content
	var contents []*genai.Content

	for _, m := range messages {
		switch m.Role {
		case contract.RoleSystem:
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, &genai.Part{Text: m.Content})
		case contract.RoleTool:
			var obj map[string]any
			if err := json.Unmarshal([]byte(m.Content), &obj); err != nil {
				obj = map[string]any{"result": m.Content}
			}
			name := m.Name
			if name == "" {
				name = m.ToolCallID
			}
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{ID: m.ToolCallID, Name: name, Response: obj}}}})
		case contract.RoleAssistant:
			content := &genai.Content{Role: "model"}
			if m.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				args := map[string]any{}
				if tc.Input != "" {
					_ = json.Unmarshal([]byte(tc.Input), &args)
				}
				content.Parts = append(content.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args}})
			}
			if len(content.Parts) > 0 {
				contents = append(contents, content)
			}
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		}
	}

	return contents, system
}

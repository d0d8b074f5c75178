package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

var (
	ErrToolNotFound = errors.New("tool not found")
	ErrToolFailed   = errors.New("tool execution failed")
)

// Tool represents a capability served to remote clients.
type Tool interface {
	Name() string
	Description() string
	InputSchema() *jsonschema.Schema
	Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error)
}

type entry struct {
	tool     Tool
	resolved *jsonschema.Resolved
}

// Registry holds all available tools together with their resolved input schemas.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]entry),
	}
}

func (r *Registry) Register(t Tool) error {
	name := NormalizeToolName(t.Name())
	if name == "" {
		return fmt.Errorf("tool: empty tool name")
	}

	resolved, err := resolveSchema(t.InputSchema())
	if err != nil {
		return fmt.Errorf("tool %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool: already registered: %s", name)
	}
	r.tools[name] = entry{tool: t, resolved: resolved}
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	e, ok := r.lookup(name)
	return e.tool, ok
}

func (r *Registry) lookup(name string) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[NormalizeToolName(name)]
	return e, ok
}

// Names returns registered tool names in deterministic order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) GetDescriptors() []ToolDescriptor {
	names := r.Names()

	descriptors := make([]ToolDescriptor, 0, len(names))
	for _, name := range names {
		e, ok := r.lookup(name)
		if !ok {
			continue
		}

		meta := normalizeToolMetadata(ToolMetadata{})
		if provider, ok := e.tool.(MetadataProvider); ok {
			meta = normalizeToolMetadata(provider.ToolMetadata())
		}

		descriptors = append(descriptors, ToolDescriptor{
			Name:        name,
			Description: e.tool.Description(),
			InputSchema: e.tool.InputSchema(),
			Metadata:    meta,
		})
	}
	return descriptors
}

func NormalizeToolName(name string) string {
	return strings.TrimSpace(name)
}

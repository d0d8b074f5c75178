package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/harunnryd/shiori/internal/errors"
	"github.com/harunnryd/shiori/internal/model/contract"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Lister is the slice of a provider session the catalog needs.
type Lister interface {
	ListTools(ctx context.Context) ([]*mcpsdk.Tool, error)
}

type Options struct {
	// RequireTools rejects a provider that advertises no tools.
	RequireTools bool
}

// Catalog is the fixed set of tools discovered at session start.
type Catalog struct {
	defs  []ToolDefinition
	index map[string]int
}

// Build lists the provider's tools once and translates each of them.
func Build(ctx context.Context, lister Lister, opts Options) (*Catalog, error) {
	tools, err := lister.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list provider tools: %w: %w", err, apperrors.ErrCatalog)
	}

	if len(tools) == 0 {
		if opts.RequireTools {
			return nil, fmt.Errorf("provider advertises no tools: %w", apperrors.ErrCatalog)
		}
		slog.Warn("Tool provider advertises no tools")
	}

	c := &Catalog{
		defs:  make([]ToolDefinition, 0, len(tools)),
		index: make(map[string]int, len(tools)),
	}

	for _, tool := range tools {
		def, err := Translate(tool)
		if err != nil {
			var schemaErr *SchemaError
			if errors.As(err, &schemaErr) {
				slog.Error("Tool schema rejected", "tool", schemaErr.Tool, "path", schemaErr.Path, "reason", schemaErr.Reason)
			}
			return nil, err
		}
		if _, dup := c.index[def.Name]; dup {
			return nil, fmt.Errorf("duplicate tool name %q: %w", def.Name, apperrors.ErrCatalog)
		}
		c.index[def.Name] = len(c.defs)
		c.defs = append(c.defs, def)
		slog.Debug("Tool registered", "tool", def.Name, "parameters", def.Parameters)
	}

	return c, nil
}

// New builds a catalog from already translated definitions.
func New(defs ...ToolDefinition) (*Catalog, error) {
	c := &Catalog{
		defs:  make([]ToolDefinition, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("tool definition has no name: %w", apperrors.ErrCatalog)
		}
		if _, dup := c.index[def.Name]; dup {
			return nil, fmt.Errorf("duplicate tool name %q: %w", def.Name, apperrors.ErrCatalog)
		}
		c.index[def.Name] = len(c.defs)
		c.defs = append(c.defs, def)
	}
	return c, nil
}

// Schemas returns the definitions in provider order.
func (c *Catalog) Schemas() []ToolDefinition {
	out := make([]ToolDefinition, len(c.defs))
	copy(out, c.defs)
	return out
}

func (c *Catalog) Lookup(name string) (ToolDefinition, bool) {
	i, ok := c.index[name]
	if !ok {
		return ToolDefinition{}, false
	}
	return c.defs[i], true
}

func (c *Catalog) Names() []string {
	names := make([]string, len(c.defs))
	for i, def := range c.defs {
		names[i] = def.Name
	}
	return names
}

func (c *Catalog) Len() int {
	return len(c.defs)
}

// Contract returns the definitions as model request tools.
func (c *Catalog) Contract() []contract.ToolDef {
	if len(c.defs) == 0 {
		return nil
	}
	out := make([]contract.ToolDef, len(c.defs))
	for i, def := range c.defs {
		out[i] = contract.ToolDef{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Parameters,
		}
	}
	return out
}

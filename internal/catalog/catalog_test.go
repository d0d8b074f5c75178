package catalog

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/harunnryd/shiori/internal/errors"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	tools []*mcpsdk.Tool
	err   error
	calls int
}

func (f *fakeLister) ListTools(ctx context.Context) ([]*mcpsdk.Tool, error) {
	f.calls++
	return f.tools, f.err
}

func simpleTool(name string) *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        name,
		Description: name + " tool",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"q": map[string]any{"type": "string"}},
		},
	}
}

func TestBuild_PreservesProviderOrder(t *testing.T) {
	lister := &fakeLister{tools: []*mcpsdk.Tool{searchTool(), simpleTool("zeta"), simpleTool("alpha")}}

	c, err := Build(context.Background(), lister, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, lister.calls)

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"search_gutenberg_books", "zeta", "alpha"}, c.Names())

	schemas := c.Schemas()
	require.Len(t, schemas, 3)
	assert.Equal(t, "zeta", schemas[1].Name)

	def, ok := c.Lookup("alpha")
	require.True(t, ok)
	assert.Equal(t, "alpha tool", def.Description)

	_, ok = c.Lookup("missing")
	assert.False(t, ok)
}

func TestBuild_SchemasIsACopy(t *testing.T) {
	c, err := Build(context.Background(), &fakeLister{tools: []*mcpsdk.Tool{simpleTool("a")}}, Options{})
	require.NoError(t, err)

	schemas := c.Schemas()
	schemas[0].Name = "mutated"

	assert.Equal(t, []string{"a"}, c.Names())
}

func TestBuild_EmptyProvider(t *testing.T) {
	c, err := Build(context.Background(), &fakeLister{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
	assert.Nil(t, c.Contract())

	_, err = Build(context.Background(), &fakeLister{}, Options{RequireTools: true})
	assert.ErrorIs(t, err, apperrors.ErrCatalog)
}

func TestBuild_ProviderFailure(t *testing.T) {
	cause := errors.New("stream reset")
	_, err := Build(context.Background(), &fakeLister{err: cause}, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrCatalog)
	assert.ErrorIs(t, err, cause)
}

func TestBuild_DuplicateNames(t *testing.T) {
	lister := &fakeLister{tools: []*mcpsdk.Tool{simpleTool("dup"), simpleTool("dup")}}
	_, err := Build(context.Background(), lister, Options{})
	assert.ErrorIs(t, err, apperrors.ErrCatalog)
}

func TestBuild_TranslationFailureAborts(t *testing.T) {
	broken := &mcpsdk.Tool{
		Name: "broken",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"tags": map[string]any{"type": "array"}},
		},
	}
	lister := &fakeLister{tools: []*mcpsdk.Tool{simpleTool("ok"), broken}}

	_, err := Build(context.Background(), lister, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedSchema)
}

func TestCatalog_Contract(t *testing.T) {
	c, err := Build(context.Background(), &fakeLister{tools: []*mcpsdk.Tool{searchTool()}}, Options{})
	require.NoError(t, err)

	tools := c.Contract()
	require.Len(t, tools, 1)
	assert.Equal(t, "search_gutenberg_books", tools[0].Name)
	assert.Equal(t, "Search for books in the Project Gutenberg library", tools[0].Description)
	assert.Equal(t, "object", tools[0].Parameters["type"])
}

func TestNew(t *testing.T) {
	c, err := New(ToolDefinition{Name: "a", Parameters: map[string]any{"type": "object"}})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	_, err = New(ToolDefinition{Name: "a"}, ToolDefinition{Name: "a"})
	assert.ErrorIs(t, err, apperrors.ErrCatalog)

	_, err = New(ToolDefinition{})
	assert.ErrorIs(t, err, apperrors.ErrCatalog)
}

package catalog

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/harunnryd/shiori/internal/errors"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolDefinition is a provider tool in the model's function-calling format.
// Parameters is always an object schema and must be treated as read-only.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// SchemaError names the tool and property path a translation failed on.
type SchemaError struct {
	Tool   string
	Path   string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("tool %q: %s: %s", e.Tool, e.Reason, apperrors.ErrUnsupportedSchema)
	}
	return fmt.Sprintf("tool %q: property %q: %s: %s", e.Tool, e.Path, e.Reason, apperrors.ErrUnsupportedSchema)
}

func (e *SchemaError) Unwrap() error {
	return apperrors.ErrUnsupportedSchema
}

var primitiveTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"integer": true,
	"boolean": true,
}

// Translate converts a provider tool descriptor into a ToolDefinition.
// Every property is carried over or the whole tool is rejected.
func Translate(tool *mcpsdk.Tool) (ToolDefinition, error) {
	if tool == nil {
		return ToolDefinition{}, &SchemaError{Reason: "nil tool descriptor"}
	}
	if tool.Name == "" {
		return ToolDefinition{}, &SchemaError{Reason: "tool has no name"}
	}

	t := translator{tool: tool.Name}

	schema, err := t.schemaMap(tool.InputSchema)
	if err != nil {
		return ToolDefinition{}, err
	}

	params, err := t.object("", schema, true)
	if err != nil {
		return ToolDefinition{}, err
	}

	description := tool.Description
	if description == "" {
		description = tool.Title
	}

	return ToolDefinition{
		Name:        tool.Name,
		Description: description,
		Parameters:  params,
	}, nil
}

type translator struct {
	tool string
}

func (t translator) fail(path, format string, args ...any) error {
	return &SchemaError{Tool: t.tool, Path: path, Reason: fmt.Sprintf(format, args...)}
}

// schemaMap normalizes whatever the SDK decoded the input schema into.
func (t translator) schemaMap(raw any) (map[string]any, error) {
	switch s := raw.(type) {
	case nil:
		return map[string]any{"type": "object"}, nil
	case map[string]any:
		return s, nil
	default:
		data, err := json.Marshal(s)
		if err != nil {
			return nil, t.fail("", "input schema is not JSON: %v", err)
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, t.fail("", "input schema is not a JSON object")
		}
		if m == nil {
			m = map[string]any{"type": "object"}
		}
		return m, nil
	}
}

// object translates an object schema. The root is allowed to omit "type".
func (t translator) object(path string, schema map[string]any, root bool) (map[string]any, error) {
	if _, ok := schema["type"]; ok || !root {
		typ, err := t.typeOf(path, schema)
		if err != nil {
			return nil, err
		}
		if typ != "object" {
			return nil, t.fail(path, "expected type object, got %q", typ)
		}
	}

	out := map[string]any{"type": "object"}
	props := map[string]any{}

	if rawProps, ok := schema["properties"]; ok && rawProps != nil {
		propMap, ok := rawProps.(map[string]any)
		if !ok {
			return nil, t.fail(path, "properties is not an object")
		}
		for name, rawProp := range propMap {
			propPath := joinPath(path, name)
			prop, ok := rawProp.(map[string]any)
			if !ok {
				return nil, t.fail(propPath, "property schema is not an object")
			}
			translated, err := t.property(propPath, prop)
			if err != nil {
				return nil, err
			}
			props[name] = translated
		}
	}

	if root || len(props) > 0 {
		out["properties"] = props
	}

	required, err := t.required(path, schema, props)
	if err != nil {
		return nil, err
	}
	if len(required) > 0 {
		out["required"] = required
	}

	if desc := describe(schema); desc != "" && !root {
		out["description"] = desc
	}

	return out, nil
}

func (t translator) required(path string, schema map[string]any, props map[string]any) ([]string, error) {
	raw, ok := schema["required"]
	if !ok || raw == nil {
		return nil, nil
	}

	var names []string
	switch r := raw.(type) {
	case []any:
		for _, v := range r {
			name, ok := v.(string)
			if !ok {
				return nil, t.fail(path, "required entry %v is not a string", v)
			}
			names = append(names, name)
		}
	case []string:
		names = append(names, r...)
	default:
		return nil, t.fail(path, "required is not an array")
	}

	for _, name := range names {
		if _, ok := props[name]; !ok {
			return nil, t.fail(joinPath(path, name), "required but not declared in properties")
		}
	}
	return names, nil
}

func (t translator) property(path string, schema map[string]any) (map[string]any, error) {
	typ, err := t.typeOf(path, schema)
	if err != nil {
		return nil, err
	}

	switch {
	case primitiveTypes[typ]:
		out := map[string]any{"type": typ}
		if desc := describe(schema); desc != "" {
			out["description"] = desc
		}
		if enum, ok := schema["enum"].([]any); ok && len(enum) > 0 {
			out["enum"] = enum
		}
		return out, nil

	case typ == "array":
		rawItems, ok := schema["items"]
		if !ok || rawItems == nil {
			return nil, t.fail(path, "array has no items schema")
		}
		items, ok := rawItems.(map[string]any)
		if !ok {
			return nil, t.fail(path, "array items is not a single schema")
		}
		translated, err := t.property(path+"[]", items)
		if err != nil {
			return nil, err
		}
		out := map[string]any{"type": "array", "items": translated}
		if desc := describe(schema); desc != "" {
			out["description"] = desc
		}
		return out, nil

	case typ == "object":
		return t.object(path, schema, false)

	default:
		return nil, t.fail(path, "unsupported type %q", typ)
	}
}

// typeOf resolves "type", collapsing nullable unions such as ["null","string"].
func (t translator) typeOf(path string, schema map[string]any) (string, error) {
	raw, ok := schema["type"]
	if !ok || raw == nil {
		return "", t.fail(path, "missing type")
	}

	switch v := raw.(type) {
	case string:
		return v, nil
	case []any:
		var nonNull []string
		for _, entry := range v {
			s, ok := entry.(string)
			if !ok {
				return "", t.fail(path, "type entry %v is not a string", entry)
			}
			if s != "null" {
				nonNull = append(nonNull, s)
			}
		}
		if len(nonNull) != 1 {
			return "", t.fail(path, "union type %v is not supported", v)
		}
		return nonNull[0], nil
	default:
		return "", t.fail(path, "type %v is not supported", raw)
	}
}

func describe(schema map[string]any) string {
	if desc, ok := schema["description"].(string); ok && desc != "" {
		return desc
	}
	if title, ok := schema["title"].(string); ok {
		return title
	}
	return ""
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

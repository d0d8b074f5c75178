package tool

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

func resolveSchema(schema *jsonschema.Schema) (*jsonschema.Resolved, error) {
	if schema == nil {
		return nil, fmt.Errorf("input schema is required")
	}
	if schema.Type != "object" {
		return nil, fmt.Errorf("input schema must have type \"object\", got %q", schema.Type)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve input schema: %w", err)
	}
	return resolved, nil
}

// ValidateInput checks the raw arguments against a resolved tool schema.
// Missing arguments are treated as an empty object.
func ValidateInput(schema *jsonschema.Resolved, input json.RawMessage) error {
	if len(bytes.TrimSpace(input)) == 0 {
		input = json.RawMessage("{}")
	}

	var args any
	if err := json.Unmarshal(input, &args); err != nil {
		return fmt.Errorf("invalid JSON input: %w", err)
	}
	if _, ok := args.(map[string]any); !ok {
		return fmt.Errorf("input must be a JSON object, got %s", jsonKind(args))
	}

	return schema.Validate(args)
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

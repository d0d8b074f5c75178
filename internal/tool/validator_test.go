package tool

import (
	"encoding/json"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
)

func TestValidateInput(t *testing.T) {
	schema := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"name": {Type: "string"},
			"age":  {Type: "number"},
			"tags": {
				Type:  "array",
				Items: &jsonschema.Schema{Type: "string"},
			},
		},
		Required: []string{"name"},
	}
	resolved, err := resolveSchema(schema)
	if err != nil {
		t.Fatalf("resolveSchema() error = %v", err)
	}

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "Valid input",
			input:   `{"name": "Alice", "age": 30, "tags": ["admin"]}`,
			wantErr: false,
		},
		{
			name:    "Missing required field",
			input:   `{"age": 30}`,
			wantErr: true,
		},
		{
			name:    "Invalid type (string vs number)",
			input:   `{"name": "Alice", "age": "thirty"}`,
			wantErr: true,
		},
		{
			name:    "Invalid array item type",
			input:   `{"name": "Alice", "tags": [123]}`,
			wantErr: true,
		},
		{
			name:    "Extra fields (allowed)",
			input:   `{"name": "Alice", "extra": "field"}`,
			wantErr: false,
		},
		{
			name:    "Not an object",
			input:   `["Alice"]`,
			wantErr: true,
		},
		{
			name:    "Malformed JSON",
			input:   `{"name":`,
			wantErr: true,
		},
		{
			name:    "Empty input still needs required fields",
			input:   ``,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInput(resolved, json.RawMessage(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateInput() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolveSchema_RequiresObject(t *testing.T) {
	if _, err := resolveSchema(nil); err == nil {
		t.Fatal("expected error for nil schema")
	}
	if _, err := resolveSchema(&jsonschema.Schema{Type: "string"}); err == nil {
		t.Fatal("expected error for non-object schema")
	}

	resolved, err := resolveSchema(&jsonschema.Schema{Type: "object"})
	if err != nil {
		t.Fatalf("resolveSchema() error = %v", err)
	}
	if err := ValidateInput(resolved, nil); err != nil {
		t.Fatalf("ValidateInput(nil) error = %v, want nil", err)
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harunnryd/shiori/internal/catalog"

	"gopkg.in/yaml.v3"
)

type OutputFormat string

const (
	OutputFormatTable OutputFormat = "table"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatYAML  OutputFormat = "yaml"
)

type ToolFormatter interface {
	FormatTools([]catalog.ToolDefinition) (string, error)
}

func NewToolFormatter(format OutputFormat) (ToolFormatter, error) {
	switch format {
	case OutputFormatTable, "":
		return NewToolTableFormatter(), nil
	case OutputFormatJSON:
		return jsonToolFormatter{}, nil
	case OutputFormatYAML:
		return yamlToolFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, json, yaml)", format)
	}
}

type jsonToolFormatter struct{}

func (jsonToolFormatter) FormatTools(defs []catalog.ToolDefinition) (string, error) {
	if defs == nil {
		defs = []catalog.ToolDefinition{}
	}
	data, err := json.MarshalIndent(defs, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type yamlToolFormatter struct{}

// yamlTool keeps the field names identical to the JSON form.
type yamlTool struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Parameters  map[string]any `yaml:"parameters"`
}

func (yamlToolFormatter) FormatTools(defs []catalog.ToolDefinition) (string, error) {
	out := make([]yamlTool, len(defs))
	for i, def := range defs {
		out[i] = yamlTool{Name: def.Name, Description: def.Description, Parameters: def.Parameters}
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

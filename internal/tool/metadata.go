package tool

import (
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

type ToolMetadata struct {
	Source       string   `json:"source"`
	Capabilities []string `json:"capabilities,omitempty"`
}

type MetadataProvider interface {
	ToolMetadata() ToolMetadata
}

type ToolDescriptor struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"input_schema,omitempty"`
	Metadata    ToolMetadata       `json:"metadata"`
}

func normalizeToolMetadata(meta ToolMetadata) ToolMetadata {
	source := strings.TrimSpace(strings.ToLower(meta.Source))
	if source == "" {
		source = "runtime"
	}

	seen := make(map[string]struct{}, len(meta.Capabilities))
	capabilities := make([]string, 0, len(meta.Capabilities))
	for _, capability := range meta.Capabilities {
		normalized := strings.TrimSpace(strings.ToLower(capability))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		capabilities = append(capabilities, normalized)
	}
	sort.Strings(capabilities)

	return ToolMetadata{
		Source:       source,
		Capabilities: capabilities,
	}
}

package main

import (
	"sort"
	"strings"

	"github.com/harunnryd/shiori/internal/catalog"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
)

type ToolTableFormatter struct {
	headerStyle  lipgloss.Style
	oddRowStyle  lipgloss.Style
	evenRowStyle lipgloss.Style
	borderStyle  lipgloss.Style
}

func NewToolTableFormatter() *ToolTableFormatter {
	purple := lipgloss.Color("99")
	gray := lipgloss.Color("245")
	lightGray := lipgloss.Color("241")

	return &ToolTableFormatter{
		headerStyle: lipgloss.NewStyle().
			Foreground(purple).
			Bold(true).
			Align(lipgloss.Center).
			Padding(0, 1),
		oddRowStyle: lipgloss.NewStyle().
			Foreground(gray).
			Padding(0, 1),
		evenRowStyle: lipgloss.NewStyle().
			Foreground(lightGray).
			Padding(0, 1),
		borderStyle: lipgloss.NewStyle().
			Foreground(purple),
	}
}

func (f *ToolTableFormatter) FormatTools(defs []catalog.ToolDefinition) (string, error) {
	if len(defs) == 0 {
		return "No tools available", nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(f.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return f.headerStyle
			case row%2 == 0:
				return f.evenRowStyle
			default:
				return f.oddRowStyle
			}
		}).
		Headers("Name", "Description", "Parameters")

	for _, def := range defs {
		t.Row(
			def.Name,
			truncateString(def.Description, 50),
			truncateString(strings.Join(parameterNames(def), ", "), 30),
		)
	}

	return t.String(), nil
}

func parameterNames(def catalog.ToolDefinition) []string {
	props, _ := def.Parameters["properties"].(map[string]any)
	required := map[string]bool{}
	if names, ok := def.Parameters["required"].([]string); ok {
		for _, n := range names {
			required[n] = true
		}
	}

	names := make([]string, 0, len(props))
	for name := range props {
		if required[name] {
			name += "*"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func truncateString(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

package output

import (
	"fmt"
	"strings"

	"github.com/ncbimcp/ncbimcp/internal/tools"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatPretty   Format = "pretty"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
	FormatNames    Format = "names"
	// FormatText passes tool output through unchanged.
	FormatText Format = "text"
)

// ListFormats are accepted by list-tools.
var ListFormats = []Format{FormatTable, FormatJSON, FormatNames, FormatMarkdown}

// DescribeFormats are accepted by describe-tool.
var DescribeFormats = []Format{FormatPretty, FormatJSON, FormatYAML, FormatMarkdown}

// ParseFormat validates value against allowed. An empty value selects the
// first allowed format.
func ParseFormat(value string, allowed []Format) (Format, error) {
	normalized := Format(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" && len(allowed) > 0 {
		return allowed[0], nil
	}
	for _, candidate := range allowed {
		if normalized == candidate {
			return candidate, nil
		}
	}
	names := make([]string, 0, len(allowed))
	for _, candidate := range allowed {
		names = append(names, string(candidate))
	}
	return "", fmt.Errorf("unsupported output format: %s (expected one of %s)", value, strings.Join(names, ", "))
}

// FormatToolList renders the catalog for list-tools.
func FormatToolList(format Format, catalog []tools.Tool) (string, error) {
	switch format {
	case FormatJSON:
		return marshalJSON(catalog)
	case FormatNames:
		names := make([]string, 0, len(catalog))
		for _, tool := range catalog {
			names = append(names, tool.Name)
		}
		return strings.Join(names, "\n"), nil
	case FormatMarkdown:
		return markdownToolList(catalog), nil
	case FormatTable:
		return tableToolList(catalog), nil
	default:
		return "", fmt.Errorf("unsupported output format for tool list: %s", format)
	}
}

// FormatTool renders one tool for describe-tool.
func FormatTool(format Format, tool tools.Tool) (string, error) {
	switch format {
	case FormatJSON:
		return marshalJSON(describe(tool))
	case FormatYAML:
		return marshalYAML(describe(tool))
	case FormatMarkdown:
		return markdownTool(tool), nil
	case FormatPretty, FormatTable:
		return prettyTool(tool), nil
	default:
		return "", fmt.Errorf("unsupported output format for tool description: %s", format)
	}
}

// toolDescription is the machine-readable form of a tool, including its
// JSON Schema as advertised over MCP.
type toolDescription struct {
	Name        string            `json:"name" yaml:"name"`
	Group       string            `json:"group" yaml:"group"`
	Description string            `json:"description" yaml:"description"`
	Parameters  []tools.Parameter `json:"parameters" yaml:"parameters"`
	Required    []string          `json:"required,omitempty" yaml:"required,omitempty"`
	AnyOf       [][]string        `json:"any_of,omitempty" yaml:"any_of,omitempty"`
	InputSchema map[string]any    `json:"input_schema" yaml:"input_schema"`
}

func describe(tool tools.Tool) toolDescription {
	return toolDescription{
		Name:        tool.Name,
		Group:       tool.Group,
		Description: tool.Description,
		Parameters:  tool.Parameters,
		Required:    tool.Required,
		AnyOf:       tool.AnyOf,
		InputSchema: tool.InputSchema(),
	}
}

// requirement labels a parameter for human-readable output.
func requirement(tool tools.Tool, name string) string {
	if tool.IsRequired(name) {
		return "required"
	}
	for _, set := range tool.AnyOf {
		for _, member := range set {
			if member == name {
				return "one of"
			}
		}
	}
	return "optional"
}

func defaultLabel(param tools.Parameter) string {
	if param.Default == nil {
		return ""
	}
	return fmt.Sprint(param.Default)
}

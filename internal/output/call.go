package output

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CallFormats are accepted by call-tool.
var CallFormats = []Format{FormatText, FormatJSON, FormatYAML}

// CallResult is a tool invocation as seen from the CLI.
type CallResult struct {
	Tool    string
	IsError bool
	Text    string
}

type structuredCall struct {
	Tool    string `json:"tool" yaml:"tool"`
	IsError bool   `json:"is_error" yaml:"is_error"`
	Content any    `json:"content" yaml:"content"`
}

// FormatCallResult renders a tool result. JSON payloads are embedded as
// structured values so json and yaml output stay machine-readable.
func FormatCallResult(format Format, result CallResult) (string, error) {
	switch format {
	case FormatText:
		return result.Text, nil
	case FormatJSON:
		return marshalJSON(structured(result))
	case FormatYAML:
		return marshalYAML(structured(result))
	default:
		return "", fmt.Errorf("unsupported output format for tool result: %s", format)
	}
}

func structured(result CallResult) structuredCall {
	out := structuredCall{Tool: result.Tool, IsError: result.IsError, Content: result.Text}
	trimmed := strings.TrimSpace(result.Text)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return out
	}
	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
		out.Content = decoded
	}
	return out
}

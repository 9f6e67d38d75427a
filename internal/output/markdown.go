package output

import (
	"fmt"
	"strings"

	"github.com/ncbimcp/ncbimcp/internal/tools"
)

func markdownToolList(catalog []tools.Tool) string {
	var sb strings.Builder
	for i, group := range tools.Groups() {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("## %s\n\n", group))
		sb.WriteString("| Tool | Description |\n")
		sb.WriteString("|------|-------------|\n")
		for _, tool := range catalog {
			if tool.Group != group {
				continue
			}
			sb.WriteString(fmt.Sprintf("| `%s` | %s |\n", tool.Name, escapeMarkdownCell(firstSentence(tool.Description))))
		}
	}
	return sb.String()
}

func markdownTool(tool tools.Tool) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## `%s`\n\n", tool.Name))
	sb.WriteString(tool.Description)
	sb.WriteString("\n\n")

	if len(tool.Parameters) == 0 {
		sb.WriteString("_No parameters._\n")
		return sb.String()
	}

	sb.WriteString("| Parameter | Type | Requirement | Default | Description |\n")
	sb.WriteString("|-----------|------|-------------|---------|-------------|\n")
	for _, param := range tool.Parameters {
		sb.WriteString(fmt.Sprintf("| `%s` | %s | %s | %s | %s |\n",
			param.Name,
			param.Type,
			requirement(tool, param.Name),
			escapeMarkdownCell(defaultLabel(param)),
			escapeMarkdownCell(param.Description),
		))
	}
	return sb.String()
}

func escapeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "|", "\\|")
	return strings.ReplaceAll(value, "\n", " ")
}

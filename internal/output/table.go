package output

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ncbimcp/ncbimcp/internal/tools"
)

const descriptionWidth = 72

func tableToolList(catalog []tools.Tool) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Group", "Tool", "Description"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, AutoMerge: true},
		{Number: 3, WidthMax: descriptionWidth},
	})

	for _, group := range tools.Groups() {
		for _, tool := range catalog {
			if tool.Group != group {
				continue
			}
			t.AppendRow(table.Row{group, tool.Name, firstSentence(tool.Description)})
		}
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d tools", len(catalog)), ""})

	return t.Render()
}

func prettyTool(tool tools.Tool) string {
	var sb strings.Builder
	sb.WriteString(text.Bold.Sprint(tool.Name))
	sb.WriteString(fmt.Sprintf(" (%s)\n\n", tool.Group))
	sb.WriteString(text.WrapSoft(tool.Description, descriptionWidth+20))
	sb.WriteString("\n\n")

	if len(tool.Parameters) == 0 {
		sb.WriteString("No parameters.\n")
		return sb.String()
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Parameter", "Type", "Requirement", "Default", "Description"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, WidthMax: descriptionWidth},
	})
	for _, param := range tool.Parameters {
		t.AppendRow(table.Row{
			param.Name,
			param.Type,
			requirement(tool, param.Name),
			defaultLabel(param),
			param.Description,
		})
	}
	sb.WriteString(t.Render())

	if len(tool.AnyOf) > 0 {
		sets := make([]string, 0, len(tool.AnyOf))
		for _, set := range tool.AnyOf {
			sets = append(sets, strings.Join(set, " + "))
		}
		sb.WriteString("\n\nProvide one of: ")
		sb.WriteString(strings.Join(sets, " | "))
	}
	sb.WriteString("\n")
	return sb.String()
}

func firstSentence(value string) string {
	value = strings.TrimSpace(value)
	if idx := strings.Index(value, ". "); idx >= 0 {
		return value[:idx+1]
	}
	return value
}

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ncbimcp/ncbimcp/internal/core/engine"
	"github.com/ncbimcp/ncbimcp/internal/output"
	"github.com/ncbimcp/ncbimcp/internal/tools"
)

var listToolsCmd = &cobra.Command{
	Use:   "list-tools",
	Short: "List available MCP tools",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		value, _ := cmd.Flags().GetString("format")
		format, err := output.ParseFormat(value, output.ListFormats)
		if err != nil {
			return err
		}
		rendered, err := output.FormatToolList(format, tools.Catalog())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
		return err
	},
}

var describeToolCmd = &cobra.Command{
	Use:               "describe-tool <name>",
	Short:             "Show a tool's parameters and schema",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeToolNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		value, _ := cmd.Flags().GetString("format")
		format, err := output.ParseFormat(value, output.DescribeFormats)
		if err != nil {
			return err
		}
		tool, ok := tools.Lookup(args[0])
		if !ok {
			return fmt.Errorf("%w: %s (run list-tools to see available tools)", engine.ErrUnknownTool, args[0])
		}
		rendered, err := output.FormatTool(format, tool)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
		return err
	},
}

func init() {
	rootCmd.AddCommand(listToolsCmd)
	rootCmd.AddCommand(describeToolCmd)

	listToolsCmd.Flags().StringP("format", "f", string(output.FormatTable), "output format: table, json, names, markdown")
	describeToolCmd.Flags().StringP("format", "f", string(output.FormatPretty), "output format: pretty, json, yaml, markdown")
}

func completeToolNames(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var matches []string
	for _, name := range tools.Names() {
		if strings.HasPrefix(name, toComplete) {
			matches = append(matches, name)
		}
	}
	return matches, cobra.ShellCompDirectiveNoFileComp
}

// completeToolParams offers "name=" for each parameter of the tool named in args.
func completeToolParams(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	tool, ok := tools.Lookup(args[0])
	if !ok {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var matches []string
	for _, name := range tool.ParameterNames() {
		if candidate := name + "="; strings.HasPrefix(candidate, toComplete) {
			matches = append(matches, candidate)
		}
	}
	return matches, cobra.ShellCompDirectiveNoSpace | cobra.ShellCompDirectiveNoFileComp
}

package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ncbimcp/ncbimcp/internal/core"
	apperrors "github.com/ncbimcp/ncbimcp/internal/errors"
	"github.com/ncbimcp/ncbimcp/internal/observability"
	"github.com/ncbimcp/ncbimcp/internal/output"
)

var callToolCmd = &cobra.Command{
	Use:   "call-tool <name> [json-arguments]",
	Short: "Call a tool directly against NCBI",
	Long: `Call a tool directly against NCBI and print its result.

Arguments may be given as a JSON object, as repeated -p key=value flags, or
both; flags override keys from the JSON object. Values given with -p are
parsed as JSON when possible, so -p retmax=5 is a number and
-p 'id_list=["1","2"]' is a list.`,
	Example: `  ncbi-mcp call-tool esearch -p db=pubmed -p term=crispr -p retmax=5
  ncbi-mcp call-tool efetch '{"db":"protein","id_list":["NP_000537"],"rettype":"fasta"}'
  ncbi-mcp call-tool search_and_fetch -p db=pubmed -p term=insulin -o results.xml`,
	Args:              cobra.RangeArgs(1, 2),
	ValidArgsFunction: completeToolNames,
	RunE: func(cmd *cobra.Command, args []string) error {
		value, _ := cmd.Flags().GetString("format")
		format, err := output.ParseFormat(value, output.CallFormats)
		if err != nil {
			return err
		}

		raw := ""
		if len(args) > 1 {
			raw = args[1]
		}
		pairs, _ := cmd.Flags().GetStringArray("param")
		params, err := parseToolArguments(raw, pairs)
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rt, err := newRuntime(cmd.Context(), cfg, observability.CLILogger)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }()

		observability.CLILogger.Debug("Calling tool", zap.String("tool", args[0]), zap.Any("arguments", params))
		result := rt.mcp.Call(cmd.Context(), args[0], params)

		rendered, err := output.FormatCallResult(format, output.CallResult{
			Tool:    args[0],
			IsError: result.IsError,
			Text:    resultText(result),
		})
		if err != nil {
			return err
		}

		outPath, _ := cmd.Flags().GetString("output")
		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(sink.writer, rendered); err != nil {
			_ = sink.close()
			return err
		}
		if err := sink.close(); err != nil {
			return err
		}
		if sink.path != "-" {
			observability.CLILogger.Info("Results written", zap.String("path", sink.path))
		}

		if result.IsError {
			return fmt.Errorf("tool %s reported an error", args[0])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(callToolCmd)

	callToolCmd.Flags().StringArrayP("param", "p", nil, "argument in key=value form (repeatable)")
	callToolCmd.Flags().StringP("output", "o", "", "write the result to a file instead of stdout")
	callToolCmd.Flags().StringP("format", "f", string(output.FormatText), "output format: text, json, yaml")
	_ = callToolCmd.RegisterFlagCompletionFunc("param", completeToolParams)
}

// parseToolArguments merges a JSON object with key=value pairs.
func parseToolArguments(raw string, pairs []string) (core.Params, error) {
	params := core.Params{}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return nil, apperrors.NewInvalidInputError(fmt.Sprintf("invalid JSON arguments: %v", err))
		}
		if params == nil {
			params = core.Params{}
		}
	}

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, apperrors.NewInvalidInputError(fmt.Sprintf("invalid parameter format: %q (use key=value)", pair))
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			params[key] = decoded
		} else {
			params[key] = value
		}
	}
	return params, nil
}

func resultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	parts := make([]string, 0, len(result.Content))
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}

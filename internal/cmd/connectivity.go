package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ncbimcp/ncbimcp/internal/core"
	apperrors "github.com/ncbimcp/ncbimcp/internal/errors"
	"github.com/ncbimcp/ncbimcp/internal/observability"
)

const sampleDatabases = 5

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Check connectivity with NCBI",
	Long:  "Run get_databases against NCBI to confirm the configured endpoint, credentials and rate budget work.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return apperrors.WrapConfigInvalid(cmd.Context(), err, "invalid configuration")
		}
		rt, err := newRuntime(cmd.Context(), cfg, observability.CLILogger)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }()

		observability.CLILogger.Debug("Testing NCBI connectivity", zap.String("base_url", cfg.NCBI.BaseURL))
		report, err := checkConnectivity(cmd.Context(), rt)
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "Connectivity test failed:", err)
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), ascii.DrawBox(report, 0))
		return err
	},
}

func init() {
	rootCmd.AddCommand(testCmd)
}

// checkConnectivity runs get_databases and summarises the reply.
func checkConnectivity(ctx context.Context, rt *toolRuntime) (string, error) {
	result, err := rt.dispatcher.Invoke(ctx, core.ToolGetDatabases, nil)
	if err != nil {
		return "", err
	}
	if envelope := apperrors.FromResult(ctx, result); envelope != nil {
		return "", envelope
	}

	var listing struct {
		Databases []string `json:"available_databases"`
		Count     int      `json:"count"`
	}
	if err := json.Unmarshal(result.Payload(), &listing); err != nil {
		return "", fmt.Errorf("decode get_databases reply: %w", err)
	}

	sample := listing.Databases[:min(sampleDatabases, len(listing.Databases))]
	credential := "anonymous"
	if rt.cfg.NCBI.APIKey != "" {
		credential = "API key"
	}
	lines := []string{
		"NCBI MCP Server Test Results",
		"",
		"Connected to " + rt.cfg.NCBI.BaseURL,
		fmt.Sprintf("Found %d available databases", listing.Count),
		"Sample databases: " + strings.Join(sample, ", "),
		fmt.Sprintf("Rate budget: %d requests/second (%s)", rt.limiter.Capacity(), credential),
	}
	return strings.Join(lines, "\n"), nil
}

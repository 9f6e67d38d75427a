package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/ncbimcp/ncbimcp/internal/config"
	"github.com/ncbimcp/ncbimcp/internal/core/store"
	"github.com/ncbimcp/ncbimcp/internal/output"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the EInfo response cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show response cache statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		value, _ := cmd.Flags().GetString("format")
		format, err := output.ParseFormat(value, []output.Format{output.FormatTable, output.FormatJSON})
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openStore(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		stats, err := db.Stats(cmd.Context())
		if err != nil {
			return err
		}

		if format == output.FormatJSON {
			payload, err := json.MarshalIndent(stats, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(payload))
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), ascii.DrawBox(cacheSummary(cfg, stats), 0))
		return err
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired cache entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openStore(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		removed, err := db.PurgeExpired(cmd.Context())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired entries\n", removed)
		return err
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cache entry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openStore(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		if err := db.ClearCache(cmd.Context()); err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), "Response cache cleared")
		return err
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)

	cacheStatsCmd.Flags().StringP("format", "f", string(output.FormatTable), "output format: table, json")
}

func cacheSummary(cfg *config.Config, stats store.CacheStats) string {
	location := cfg.Store.Path
	if cfg.Store.URL != "" {
		location = cfg.Store.URL
	}
	state := "disabled (set cache.enabled to use it)"
	if cfg.Cache.Enabled {
		state = fmt.Sprintf("enabled, ttl %s", cfg.Cache.EInfoTTL)
	}
	lines := []string{
		"EInfo Response Cache",
		"",
		"Location: " + location,
		"State: " + state,
		fmt.Sprintf("Entries: %d (%d expired)", stats.Entries, stats.Expired),
		fmt.Sprintf("Stored: %d bytes", stats.Bytes),
	}
	return strings.Join(lines, "\n")
}

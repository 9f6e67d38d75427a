package cmd

import (
	"context"
	"sync"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ncbimcp/ncbimcp/internal/config"
	"github.com/ncbimcp/ncbimcp/internal/observability"
)

var (
	cfgFile string
	verbose bool

	// v is built in initConfig; command flags are bound onto it there.
	v *viper.Viper

	loadOnce  sync.Once
	loadedCfg *config.Config
	loadErr   error

	// Version info set by main package
	versionInfo = struct {
		Version   string
		Commit    string
		BuildDate string
	}{Version: "dev", Commit: "unknown", BuildDate: "unknown"}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "MCP server for the NCBI E-utilities",
	Long: `ncbi-mcp exposes the NCBI Entrez E-utilities (PubMed, protein, nucleotide,
gene and the other Entrez databases) as Model Context Protocol tools.

Run "serve" to start the MCP server on stdio, or use the CLI subcommands to
list, describe and call tools directly.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	// Config loading must not emit metrics to stdout; serve enables telemetry later.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/ncbi-mcp/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
}

// initConfig prepares the CLI logger and the viper instance.
func initConfig() {
	observability.InitCLILogger(config.AppName, verbose)

	var err error
	v, err = config.NewViper(cfgFile)
	if err != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Failed to read configuration", err)
	}
	if verbose {
		v.Set("logging.level", "debug")
	}
	bindServeFlags(v)

	if used := v.ConfigFileUsed(); used != "" {
		observability.CLILogger.Debug("Using config file", zap.String("path", used))
	}
}

// loadConfig decodes and validates configuration once per process.
func loadConfig() (*config.Config, error) {
	loadOnce.Do(func() {
		if v == nil {
			v, loadErr = config.NewViper(cfgFile)
			if loadErr != nil {
				return
			}
		}
		loadedCfg, loadErr = config.Load(v)
	})
	return loadedCfg, loadErr
}

// mustLoadConfig exits with a config error code when configuration is invalid.
func mustLoadConfig() *config.Config {
	cfg, err := loadConfig()
	if err != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Invalid configuration", err)
	}
	return cfg
}

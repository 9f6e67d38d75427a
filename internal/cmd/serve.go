package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ncbimcp/ncbimcp/internal/config"
	apperrors "github.com/ncbimcp/ncbimcp/internal/errors"
	"github.com/ncbimcp/ncbimcp/internal/metrics"
	"github.com/ncbimcp/ncbimcp/internal/observability"
	"github.com/ncbimcp/ncbimcp/internal/server"
	"github.com/ncbimcp/ncbimcp/internal/server/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the MCP server.

Without --port the server speaks MCP over stdin/stdout, which is what desktop
MCP clients launch. With --port it serves the streamable HTTP transport at /mcp
alongside /health, /version and /metrics.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return apperrors.WrapConfigInvalid(cmd.Context(), err, "invalid configuration")
		}
		return runServe(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "localhost", "HTTP listen host")
	serveCmd.Flags().IntP("port", "p", 0, "HTTP listen port (default: stdio transport)")
}

func bindServeFlags(v *viper.Viper) {
	_ = v.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = v.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(parent context.Context, cfg *config.Config) error {
	transport := "stdio"
	if cfg.Server.UsesHTTP() {
		transport = "http"
	}
	observability.InitServerLogger(config.AppName, cfg.Logging.Level, transport)
	logger := observability.ServerLogger

	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(cfg.Metrics.Port); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			return apperrors.WrapInternal(parent, err, "metrics initialization failed")
		}
	} else {
		observability.DisableMetrics()
	}
	metrics.SetServerStartTime(time.Now().Unix())

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return apperrors.WrapInternal(ctx, err, "failed to initialize request path")
	}
	go rt.sessions.Run(ctx, cfg.Sessions.SweepInterval)

	logger.Info("Initializing MCP server",
		zap.String("version", versionInfo.Version),
		zap.String("transport", transport),
		zap.Int("rate_capacity", rt.limiter.Capacity()),
		zap.Bool("api_key", cfg.NCBI.APIKey != ""),
		zap.Bool("einfo_cache", rt.store != nil),
	)

	var srv *server.Server
	if cfg.Server.UsesHTTP() {
		srv = server.New(server.Options{
			Host:        cfg.Server.Host,
			Port:        cfg.Server.Port,
			ReadTimeout: cfg.Server.ReadTimeout,
			IdleTimeout: cfg.Server.IdleTimeout,
			MCP:         rt.mcp.HTTPHandler(),
			Health:      healthManager(rt),
			AdminToken:  cfg.Server.AdminToken,
		})
	}

	// Handlers run LIFO: stop serving first, release resources last.
	signals.OnShutdown(func(context.Context) error {
		if err := rt.Close(); err != nil {
			logger.Warn("Failed to close response cache", zap.Error(err))
		}
		if err := observability.StopMetrics(); err != nil {
			logger.Warn("Failed to stop metrics exporter", zap.Error(err))
		}
		observability.Sync()
		return nil
	})
	signals.OnShutdown(func(sctx context.Context) error {
		logger.Info("Shutdown requested")
		cancel()
		if srv == nil {
			return nil
		}
		shutdownCtx, done := context.WithTimeout(sctx, cfg.Server.ShutdownTimeout)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return apperrors.WrapInternal(sctx, err, "server shutdown failed")
		}
		logger.Info("HTTP server stopped gracefully")
		return nil
	})

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		if err := signals.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Signal handler error", zap.Error(err))
			errCh <- err
		}
	}()

	if srv != nil {
		go func() { errCh <- srv.Start() }()
	} else {
		go func() { errCh <- rt.mcp.RunStdio(ctx) }()
	}

	select {
	case <-ctx.Done():
		err = nil
	case err = <-errCh:
	}
	cancel()

	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	}
	_ = rt.Close()
	observability.Sync()

	if err != nil && !errors.Is(err, context.Canceled) {
		return apperrors.WrapInternal(parent, err, "server error")
	}
	logger.Info("Server stopped", zap.String("transport", transport))
	return nil
}

// healthManager reports readiness of the components behind /mcp.
func healthManager(rt *toolRuntime) *handlers.HealthManager {
	hm := handlers.NewHealthManager(versionInfo.Version)
	hm.RegisterChecker("eutils", handlers.CheckerFunc(func(context.Context) error {
		if rt.cfg.NCBI.BaseURL == "" {
			return apperrors.NewConfigInvalidError("ncbi.base_url is empty")
		}
		return nil
	}))
	if rt.cfg.Metrics.Enabled {
		hm.RegisterChecker("telemetry", handlers.CheckerFunc(func(context.Context) error {
			if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
				return apperrors.NewInternalError("telemetry system not initialized")
			}
			return nil
		}))
	}
	if rt.store != nil {
		hm.RegisterChecker("response_cache", handlers.CheckerFunc(func(ctx context.Context) error {
			return rt.store.DB.PingContext(ctx)
		}))
	}
	return hm
}

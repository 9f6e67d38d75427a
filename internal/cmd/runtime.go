package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/ncbimcp/ncbimcp/internal/config"
	"github.com/ncbimcp/ncbimcp/internal/core/engine"
	"github.com/ncbimcp/ncbimcp/internal/core/eutils"
	"github.com/ncbimcp/ncbimcp/internal/core/store"
	"github.com/ncbimcp/ncbimcp/internal/mcpserver"
	"github.com/ncbimcp/ncbimcp/internal/metrics"
)

// toolRuntime is the wired request path shared by serve and the CLI tool commands.
type toolRuntime struct {
	cfg        *config.Config
	limiter    *engine.RateLimiter
	sessions   *engine.SessionStore
	dispatcher *engine.Dispatcher
	store      *store.Store
	mcp        *mcpserver.Server
}

// newRuntime wires configuration into the client, limiter, executor,
// session store and dispatcher. The logger may be nil.
func newRuntime(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*toolRuntime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}

	client := &eutils.Client{
		BaseURL:    cfg.NCBI.BaseURL,
		HTTPClient: &http.Client{},
		APIKey:     cfg.NCBI.APIKey,
		Email:      cfg.NCBI.Email,
		Tool:       cfg.NCBI.Tool,
		UserAgent:  fmt.Sprintf("%s/%s", config.AppName, versionInfo.Version),
	}

	limiter := engine.NewRateLimiter(engine.CapacityFor(cfg.NCBI.APIKey))
	limiter.StrictWindow = cfg.RateLimit.StrictWindow

	sessions := engine.NewSessionStore(cfg.Sessions.TTL)
	sessions.OnChange = metrics.SetSessionsCached

	executor := &engine.Executor{
		Transport: client,
		Limiter:   limiter,
		Policy: engine.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		},
		Timeout:  cfg.NCBI.RequestTimeout,
		Recorder: metrics.Recorder{},
	}

	dispatcher := &engine.Dispatcher{
		Executor: executor,
		Sessions: sessions,
		CacheTTL: cfg.Cache.EInfoTTL,
		PageSize: cfg.Composite.PageSize,
		Version:  versionInfo.Version,
	}

	rt := &toolRuntime{
		cfg:        cfg,
		limiter:    limiter,
		sessions:   sessions,
		dispatcher: dispatcher,
	}

	if cfg.Cache.Enabled {
		db, err := openStore(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		rt.store = db
		dispatcher.Cache = db
	}

	// Interface fields stay nil rather than holding a typed nil pointer.
	if logger != nil {
		executor.Logger = logger
		dispatcher.Logger = logger
		rt.mcp = mcpserver.New(dispatcher, versionInfo.Version, logger)
		logger.Debug("runtime ready",
			zap.Int("rate_capacity", limiter.Capacity()),
			zap.Bool("strict_window", limiter.StrictWindow),
			zap.Bool("einfo_cache", rt.store != nil),
		)
	} else {
		rt.mcp = mcpserver.New(dispatcher, versionInfo.Version, nil)
	}

	return rt, nil
}

// Close releases the response cache.
func (r *toolRuntime) Close() error {
	if r == nil || r.store == nil {
		return nil
	}
	return r.store.Close()
}

func openStore(ctx context.Context, cfg config.StoreConfig) (*store.Store, error) {
	db, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

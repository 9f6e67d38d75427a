package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ncbimcp/ncbimcp/internal/core"
	"github.com/ncbimcp/ncbimcp/internal/core/eutils"
	"github.com/ncbimcp/ncbimcp/internal/tools"
)

// DefaultInfoCacheTTL is how long cached EInfo replies are served.
const DefaultInfoCacheTTL = 24 * time.Hour

// Contract violations returned by Invoke. Everything else is reported
// through the Result.
var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrNotConfigured    = errors.New("dispatcher is not configured")
)

// ResponseCache stores raw EInfo replies.
type ResponseCache interface {
	GetCachedResponse(ctx context.Context, key string) ([]byte, bool, error)
	SetCachedResponse(ctx context.Context, key string, body []byte, ttl time.Duration) error
}

// Dispatcher turns tool invocations into executor calls and threads
// history sessions between them.
type Dispatcher struct {
	Executor *Executor
	Sessions *SessionStore

	// Cache serves EInfo replies when set.
	Cache    ResponseCache
	CacheTTL time.Duration

	// PageSize is the EFetch batch used by search_and_fetch.
	PageSize int

	Version string
	Logger  Logger
}

// Invoke runs one tool. The error is non-nil only for unknown tools and
// arguments that fail validation; remote and transient failures are
// reported through the Result.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args core.Params) (*core.Result, error) {
	if d == nil || d.Executor == nil {
		return nil, ErrNotConfigured
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tool, ok := tools.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = core.Params{}
	}
	if err := tool.Validate(args); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}

	d.logDebug("dispatching tool", zap.String("tool", tool.Name), zap.Int("arguments", len(args)))

	switch tool.Name {
	case core.ToolSearchAndFetch:
		return d.searchAndFetch(ctx, tool, args)
	case core.ToolGetDatabases:
		return d.getDatabases(ctx, tool)
	case core.ToolServerInfo:
		return &core.Result{Tool: tool.Name, Local: d.serverInfo()}, nil
	}
	return d.primitive(ctx, tool, args)
}

func (d *Dispatcher) primitive(ctx context.Context, tool tools.Tool, args core.Params) (*core.Result, error) {
	params, err := tool.WireParams(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}

	op := tool.Operation
	req := core.OutboundRequest{
		Operation: op,
		Database:  params["db"],
		Params:    params,
	}

	if op.UsesHistory() && !args.Has("id_list") {
		db := args.String("db")
		if op == core.OperationLink {
			db = args.String("dbfrom")
		}
		webEnv := args.String("webenv")
		session, ok := d.Sessions.Lookup(db, webEnv)
		if !ok {
			d.logDebug("history session not cached", zap.String("db", db), zap.String("webenv", webEnv))
			outcome := sessionExpiredOutcome(op, db, webEnv)
			return &core.Result{Tool: tool.Name, Outcome: &outcome}, nil
		}
		if args.Has("query_key") {
			session.QueryKey = args.String("query_key")
		}
		req.Session = &session
	}

	var outcome core.Outcome
	if op == core.OperationInfo {
		outcome = d.info(ctx, req)
	} else {
		outcome = d.Executor.Execute(ctx, req)
	}
	outcome = d.afterExecute(req, outcome)
	return &core.Result{Tool: tool.Name, Outcome: &outcome}, nil
}

// afterExecute records sessions the remote created and drops the ones it forgot.
func (d *Dispatcher) afterExecute(req core.OutboundRequest, outcome core.Outcome) core.Outcome {
	if outcome.Kind == core.OutcomeRemoteError && req.Session != nil && eutils.SessionExpired(outcome.Message) {
		d.Sessions.Forget(req.Session.Database, req.Session.WebEnv)
		outcome.Kind = core.OutcomeSessionExpired
		return outcome
	}
	if !outcome.OK() || !req.Operation.CreatesHistory() {
		return outcome
	}

	var (
		result eutils.SearchResult
		err    error
	)
	switch {
	case req.Operation == core.OperationSearch && req.Params["usehistory"] == "y":
		result, err = eutils.DecodeSearch(outcome.Payload)
	case req.Operation == core.OperationPost:
		result, err = eutils.DecodePost(outcome.Payload)
	default:
		return outcome
	}
	if err != nil {
		d.logWarn("could not read history session from response",
			zap.String("operation", string(req.Operation)),
			zap.String("request_id", outcome.RequestID),
			zap.Error(err),
		)
		return outcome
	}

	if session, ok := result.Session(req.Database); ok {
		d.Sessions.Record(session)
		outcome.Session = &session
	}
	return outcome
}

func (d *Dispatcher) getDatabases(ctx context.Context, tool tools.Tool) (*core.Result, error) {
	req := core.OutboundRequest{
		Operation: core.OperationInfo,
		Params:    map[string]string{"retmode": "json"},
	}
	outcome := d.info(ctx, req)
	if !outcome.OK() {
		return &core.Result{Tool: tool.Name, Outcome: &outcome}, nil
	}

	names, err := eutils.DecodeDatabases(outcome.Payload)
	if err != nil {
		outcome.Kind = core.OutcomeRemoteError
		outcome.Message = err.Error()
		return &core.Result{Tool: tool.Name, Outcome: &outcome}, nil
	}

	payload, err := json.MarshalIndent(map[string]any{
		"available_databases": names,
		"count":               len(names),
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	outcome.Payload = payload
	outcome.ContentType = "application/json"
	return &core.Result{Tool: tool.Name, Outcome: &outcome}, nil
}

// info executes an EInfo request through the response cache.
func (d *Dispatcher) info(ctx context.Context, req core.OutboundRequest) core.Outcome {
	key := infoCacheKey(req)
	if d.Cache != nil {
		body, ok, err := d.Cache.GetCachedResponse(ctx, key)
		switch {
		case err != nil:
			d.logWarn("einfo cache read failed", zap.String("key", key), zap.Error(err))
		case ok:
			return core.Outcome{
				Kind:      core.OutcomeSuccess,
				Operation: core.OperationInfo,
				Payload:   body,
				FromCache: true,
			}
		}
	}

	outcome := d.Executor.Execute(ctx, req)
	if outcome.OK() && d.Cache != nil {
		if err := d.Cache.SetCachedResponse(ctx, key, outcome.Payload, d.cacheTTL()); err != nil {
			d.logWarn("einfo cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return outcome
}

func (d *Dispatcher) serverInfo() map[string]any {
	capacity := 0
	strict := false
	if d.Executor.Limiter != nil {
		capacity = d.Executor.Limiter.Capacity()
		strict = d.Executor.Limiter.StrictWindow
	}

	eutilities := make([]string, 0, len(core.Operations))
	helpers := make([]string, 0, 3)
	for _, tool := range tools.Catalog() {
		entry := tool.Name + " - " + tool.Description
		if tool.Group == tools.GroupEUtilities {
			eutilities = append(eutilities, entry)
		} else {
			helpers = append(helpers, entry)
		}
	}

	policy := d.Executor.Policy.WithDefaults()
	return map[string]any{
		"server_name": "NCBI-MCP Server",
		"version":     d.version(),
		"description": "Model Context Protocol server for NCBI E-utilities: search, fetch and link records across NCBI databases.",
		"capabilities": map[string]any{
			"eutils_supported": eutilities,
			"helper_tools":     helpers,
			"special_features": []string{
				"Combined search and fetch over the history server",
				"Shared rate limiting across concurrent calls",
				"Bounded retries of transient failures",
			},
		},
		"limits": map[string]any{
			"requests_per_second": capacity,
			"strict_window":       strict,
			"max_attempts":        policy.MaxAttempts,
			"page_size":           d.pageSize(),
		},
		"sessions": map[string]any{
			"cached": d.Sessions.Len(),
			"ttl":    d.Sessions.ttlString(),
		},
		"protocol": "Model Context Protocol (MCP)",
	}
}

func sessionExpiredOutcome(op core.Operation, db, webEnv string) core.Outcome {
	return core.Outcome{
		Kind:      core.OutcomeSessionExpired,
		Operation: op,
		Message:   fmt.Sprintf("no active history session for webenv %q in %s; run the search again or pass id_list", webEnv, db),
	}
}

func infoCacheKey(req core.OutboundRequest) string {
	db := strings.ToLower(strings.TrimSpace(req.Params["db"]))
	if db == "" {
		db = "_all"
	}
	retmode := req.Params["retmode"]
	if retmode == "" {
		retmode = "xml"
	}
	return "einfo:" + db + ":" + retmode
}

func (d *Dispatcher) cacheTTL() time.Duration {
	if d.CacheTTL > 0 {
		return d.CacheTTL
	}
	return DefaultInfoCacheTTL
}

func (d *Dispatcher) version() string {
	if d.Version != "" {
		return d.Version
	}
	return "dev"
}

func (d *Dispatcher) logDebug(msg string, fields ...zap.Field) {
	if d.Logger != nil {
		d.Logger.Debug(msg, fields...)
	}
}

func (d *Dispatcher) logWarn(msg string, fields ...zap.Field) {
	if d.Logger != nil {
		d.Logger.Warn(msg, fields...)
	}
}

package integration

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ncbimcp/ncbimcp/internal/core/engine"
	"github.com/ncbimcp/ncbimcp/internal/core/eutils"
	"github.com/ncbimcp/ncbimcp/internal/mcpserver"
	"github.com/ncbimcp/ncbimcp/internal/observability"
	"github.com/ncbimcp/ncbimcp/internal/server"
)

// isPermissionError normalizes OS-specific permission errors so we can skip
// when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// cleanupMetrics tears down global telemetry state so each test starts clean.
func cleanupMetrics(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		_ = observability.StopMetrics()
		observability.TelemetrySystem = nil
	})
}

func initMetricsOrSkip(t *testing.T) {
	t.Helper()
	if err := observability.InitMetrics(0); err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics tests due to sandbox permissions: %v", err)
		}
		require.NoError(t, err)
	}
	cleanupMetrics(t)
}

// listenOrSkip binds IPv4 loopback explicitly and skips when the sandbox
// refuses to open sockets.
func listenOrSkip(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping server setup: %v", err)
		}
		require.NoError(t, err)
	}
	ts := &httptest.Server{Listener: listener, Config: &http.Server{Handler: handler}}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts
}

// stack is the full request path pointed at a fake E-utilities endpoint.
type stack struct {
	dispatcher *engine.Dispatcher
	sessions   *engine.SessionStore
	http       *httptest.Server
}

func newStack(t *testing.T, ncbi http.Handler) *stack {
	t.Helper()

	upstream := listenOrSkip(t, ncbi)
	sessions := engine.NewSessionStore(time.Hour)
	dispatcher := &engine.Dispatcher{
		Executor: &engine.Executor{
			Transport: &eutils.Client{BaseURL: upstream.URL + "/", Email: "tests@example.com", Tool: "ncbi-mcp-tests"},
			Limiter:   engine.NewRateLimiter(engine.CapacityAnonymous),
			Policy:    engine.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
			Timeout:   5 * time.Second,
		},
		Sessions: sessions,
		PageSize: 2,
		Version:  "test",
	}

	mcp := mcpserver.New(dispatcher, "test", nil)
	srv := server.New(server.Options{Host: "127.0.0.1", MCP: mcp.HTTPHandler()})

	return &stack{
		dispatcher: dispatcher,
		sessions:   sessions,
		http:       listenOrSkip(t, srv.Handler()),
	}
}

package metrics

import (
	"strings"
	"time"

	"github.com/ncbimcp/ncbimcp/internal/core"
	"github.com/ncbimcp/ncbimcp/internal/observability"
)

// Metric names following Prometheus conventions
const (
	EUtilsAttemptsTotal   = "eutils_attempts_total"
	EUtilsAttemptDuration = "eutils_attempt_duration_ms"
	EUtilsRetriesTotal    = "eutils_retries_total"
	EUtilsOutcomesTotal   = "eutils_outcomes_total"
	EUtilsAttemptsPerCall = "eutils_attempts_per_request"

	ToolCallsTotal   = "mcp_tool_calls_total"
	ToolCallDuration = "mcp_tool_call_duration_ms"

	SessionsCached = "history_sessions_cached"

	ServerStartTime = "app_server_start_time_seconds"
)

// Recorder emits executor events through the global telemetry system.
// The zero value is ready to use.
type Recorder struct{}

// RecordAttempt counts one network attempt and its latency.
func (Recorder) RecordAttempt(op core.Operation, kind core.OutcomeKind, elapsed time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	labels := map[string]string{
		"operation": string(op),
		"outcome":   string(kind),
	}
	_ = observability.TelemetrySystem.Counter(EUtilsAttemptsTotal, 1, labels)
	_ = observability.TelemetrySystem.Histogram(EUtilsAttemptDuration, elapsed, map[string]string{
		"operation": string(op),
	})
}

// RecordRetry counts a retry and why it happened.
func (Recorder) RecordRetry(op core.Operation, reason string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(EUtilsRetriesTotal, 1, map[string]string{
		"operation": string(op),
		"reason":    retryReason(reason),
	})
}

// RecordOutcome counts the final classification of a logical request.
func (Recorder) RecordOutcome(op core.Operation, kind core.OutcomeKind, attempts int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(EUtilsOutcomesTotal, 1, map[string]string{
		"operation": string(op),
		"outcome":   string(kind),
	})
	_ = observability.TelemetrySystem.Gauge(EUtilsAttemptsPerCall, float64(attempts), map[string]string{
		"operation": string(op),
	})
}

// RecordToolCall counts one tool invocation by result kind.
func RecordToolCall(tool string, kind core.ResultKind, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(ToolCallsTotal, 1, map[string]string{
		"tool":   tool,
		"result": string(kind),
	})
	_ = observability.TelemetrySystem.Histogram(ToolCallDuration, duration, map[string]string{
		"tool": tool,
	})
}

// SetSessionsCached reports the history session cache size. It matches
// the SessionStore OnChange signature.
func SetSessionsCached(size int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(SessionsCached, float64(size), nil)
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(timestamp), nil)
}

// retryReason collapses free-form reasons into a low-cardinality label.
func retryReason(reason string) string {
	switch {
	case reason == "":
		return "unknown"
	case strings.HasPrefix(reason, "rate limit exceeded"):
		return "rate_limited"
	case strings.HasPrefix(reason, "server error:"):
		return "server_error"
	case strings.HasPrefix(reason, "request timed out"):
		return "timeout"
	default:
		return "network"
	}
}

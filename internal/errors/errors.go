package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ncbimcp/ncbimcp/internal/core"
	"github.com/ncbimcp/ncbimcp/internal/core/engine"
	"github.com/ncbimcp/ncbimcp/internal/metrics"
	"github.com/ncbimcp/ncbimcp/internal/observability"
	"github.com/ncbimcp/ncbimcp/internal/server/middleware"
)

// Error codes surfaced to MCP clients and HTTP callers.
const (
	CodeRemoteError       = "REMOTE_ERROR"
	CodeTransientFailure  = "TRANSIENT_FAILURE"
	CodeSessionExpired    = "SESSION_EXPIRED"
	CodePartialCompletion = "PARTIAL_COMPLETION"
	CodeUnknownTool       = "UNKNOWN_TOOL"
	CodeInvalidInput      = "INVALID_INPUT"

	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeInternal         = "INTERNAL_ERROR"
	CodeConfigInvalid    = "CONFIG_INVALID"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
	CodeExternalService  = "EXTERNAL_SERVICE_ERROR"
)

func NewInvalidInputError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInvalidInput, message)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeNotFound, message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeMethodNotAllowed, message)
}

func NewInternalError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInternal, message)
}

func NewConfigInvalidError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeConfigInvalid, message)
}

// WrapInternal wraps err as an INTERNAL_ERROR carrying the request correlation ID.
func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	envelope := errors.NewErrorEnvelope(CodeInternal, message)
	envelope = envelope.WithCorrelationID(extractCorrelationID(ctx))
	return withWrappedError(envelope, err)
}

// WrapConfigInvalid wraps a configuration load or validation failure.
func WrapConfigInvalid(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	envelope := errors.NewErrorEnvelope(CodeConfigInvalid, message)
	envelope = envelope.WithCorrelationID(extractCorrelationID(ctx))
	return withWrappedError(envelope, err)
}

// FromInvokeError maps a dispatcher contract violation to an envelope.
func FromInvokeError(ctx context.Context, tool string, err error) *errors.ErrorEnvelope {
	code := CodeInternal
	switch {
	case stderrors.Is(err, engine.ErrUnknownTool):
		code = CodeUnknownTool
	case stderrors.Is(err, engine.ErrInvalidArguments):
		code = CodeInvalidInput
	}

	message := "tool invocation failed"
	if err != nil {
		message = err.Error()
	}
	envelope := errors.NewErrorEnvelope(code, message).WithCorrelationID(extractCorrelationID(ctx))
	if updated, ctxErr := envelope.WithContext(map[string]interface{}{"tool": tool}); ctxErr == nil {
		envelope = updated
	}
	if code == CodeInternal {
		envelope, _ = envelope.WithSeverity(errors.SeverityHigh)
	}
	return envelope
}

// FromResult returns nil for a successful result and an envelope otherwise.
func FromResult(ctx context.Context, result *core.Result) *errors.ErrorEnvelope {
	kind := result.Kind()
	if kind == core.ResultSuccess {
		return nil
	}

	code, message, details := describeResult(result)
	envelope := errors.NewErrorEnvelope(code, message).WithCorrelationID(extractCorrelationID(ctx))
	if len(details) > 0 {
		if updated, err := envelope.WithContext(details); err == nil {
			envelope = updated
		}
	}
	if kind == core.ResultTransientFailure {
		envelope, _ = envelope.WithSeverity(errors.SeverityMedium)
	}
	return envelope
}

// CodeForKind returns the error code of a non-success result kind.
func CodeForKind(kind core.ResultKind) string {
	switch kind {
	case core.ResultRemoteError:
		return CodeRemoteError
	case core.ResultSessionExpired:
		return CodeSessionExpired
	case core.ResultPartialCompletion:
		return CodePartialCompletion
	default:
		return CodeTransientFailure
	}
}

func describeResult(result *core.Result) (string, string, map[string]interface{}) {
	code := CodeForKind(result.Kind())
	details := map[string]interface{}{}
	if result != nil {
		details["tool"] = result.Tool
	}

	if result != nil && result.Composite != nil {
		comp := result.Composite
		details["state"] = string(comp.State)
		details["pages_completed"] = len(comp.Pages)
		details["pages_planned"] = comp.Planned
		details["total_records"] = comp.Total
		if comp.Session != nil {
			details["webenv"] = comp.Session.WebEnv
			details["query_key"] = comp.Session.QueryKey
		}
		failure := comp.Failure
		if failure == nil {
			failure = comp.Search
		}
		if failure != nil {
			addOutcomeDetails(details, *failure)
		}
		message := comp.Message
		if message == "" && failure != nil {
			message = outcomeMessage(*failure)
		}
		return code, message, details
	}

	if result != nil && result.Outcome != nil {
		addOutcomeDetails(details, *result.Outcome)
		return code, outcomeMessage(*result.Outcome), details
	}
	return code, "tool invocation failed", details
}

func addOutcomeDetails(details map[string]interface{}, outcome core.Outcome) {
	details["operation"] = string(outcome.Operation)
	if outcome.RequestID != "" {
		details["request_id"] = outcome.RequestID
	}
	if outcome.Attempts > 0 {
		details["attempts"] = outcome.Attempts
	}
	if outcome.HTTPStatus > 0 {
		details["http_status"] = outcome.HTTPStatus
	}
	if outcome.Reason != "" {
		details["reason"] = outcome.Reason
	}
	if outcome.Exhausted {
		details["retries_exhausted"] = true
	}
}

func outcomeMessage(outcome core.Outcome) string {
	switch {
	case outcome.Message != "":
		return outcome.Message
	case outcome.Reason != "":
		return outcome.Reason
	default:
		return string(outcome.Kind)
	}
}

// extractCorrelationID gets correlation ID from context, falls back to generating new UUID
func extractCorrelationID(ctx context.Context) string {
	if ctx != nil {
		if requestID := middleware.GetRequestID(ctx); requestID != "" {
			return requestID
		}
	}
	return uuid.New().String()
}

// EnsureEnvelope normalizes any error into a gofulmen ErrorEnvelope.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		env := errors.NewErrorEnvelope(CodeInternal, "unexpected nil error")
		env, _ = env.WithSeverity(errors.SeverityCritical)
		return env
	}

	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		return envelope
	}

	env := errors.NewErrorEnvelope(CodeInternal, "unexpected error")
	env = withWrappedError(env, err)
	env, _ = env.WithSeverity(errors.SeverityHigh)
	return env
}

// EnsureCorrelationID attaches a correlation ID to the envelope using the context when available.
func EnsureCorrelationID(envelope *errors.ErrorEnvelope, ctx context.Context) *errors.ErrorEnvelope {
	if envelope == nil || envelope.CorrelationID != "" {
		return envelope
	}

	var correlationID string
	if ctx != nil {
		correlationID = middleware.GetRequestID(ctx)
	}
	if correlationID == "" {
		correlationID = "fallback-" + errors.GenerateCorrelationID()
	}
	return envelope.WithCorrelationID(correlationID)
}

// HTTPStatusFromCode resolves the HTTP status code corresponding to an error code.
func HTTPStatusFromCode(code string) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotFound, CodeUnknownTool:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeSessionExpired:
		return http.StatusGone
	case CodeRemoteError, CodePartialCompletion:
		return http.StatusBadGateway
	case CodeTransientFailure, CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func withWrappedError(envelope *errors.ErrorEnvelope, err error) *errors.ErrorEnvelope {
	if envelope == nil || err == nil {
		return envelope
	}
	updated, updateErr := envelope.WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	if updateErr != nil {
		return envelope
	}
	return updated
}

// ResponseDetails merges envelope details and context into one map.
func ResponseDetails(envelope *errors.ErrorEnvelope) map[string]interface{} {
	if envelope == nil {
		return nil
	}

	details := make(map[string]interface{})
	for key, value := range envelope.Details {
		details[key] = value
	}
	for key, value := range envelope.Context {
		if _, exists := details[key]; !exists {
			details[key] = value
		}
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

// ErrorDetail is the error body returned to HTTP and MCP callers.
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// Detail flattens an envelope into its response body.
func Detail(envelope *errors.ErrorEnvelope) ErrorDetail {
	if envelope == nil {
		return ErrorDetail{Code: CodeInternal, Message: "unknown error"}
	}
	return ErrorDetail{
		Code:      envelope.Code,
		Message:   envelope.Message,
		Details:   ResponseDetails(envelope),
		RequestID: envelope.CorrelationID,
	}
}

// HTTPErrorResponse wraps ErrorDetail in the standard envelope structure.
type HTTPErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// RespondWithError normalizes the supplied error and writes a JSON response.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	RespondWithEnvelope(w, r, EnsureEnvelope(err))
}

// RespondWithEnvelope finalizes the provided envelope, logging and emitting metrics.
func RespondWithEnvelope(w http.ResponseWriter, r *http.Request, envelope *errors.ErrorEnvelope) {
	if w == nil {
		return
	}

	var ctx context.Context
	if r != nil {
		ctx = r.Context()
	}
	envelope = EnsureCorrelationID(envelope, ctx)
	statusCode := HTTPStatusFromCode(envelope.Code)

	LogEnvelope(envelope, zap.Int("http_status", statusCode))
	metrics.RecordError(envelope.Code, statusCode)
	if r != nil {
		metrics.RecordErrorByEndpoint(r.URL.Path, envelope.Code)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{Error: Detail(envelope)})
}

// LogEnvelope logs an envelope at a level derived from its severity.
func LogEnvelope(envelope *errors.ErrorEnvelope, extra ...zap.Field) {
	logger := observability.Logger()
	if logger == nil || envelope == nil {
		return
	}

	fields := append([]zap.Field{zap.String("error_code", envelope.Code)}, extra...)
	if envelope.Severity != "" {
		fields = append(fields, zap.String("severity", string(envelope.Severity)))
	}
	for key, value := range envelope.Context {
		fields = append(fields, zap.Any(key, value))
	}
	if envelope.CorrelationID != "" {
		fields = append(fields, zap.String("request_id", envelope.CorrelationID))
	}

	switch envelope.Severity {
	case errors.SeverityCritical, errors.SeverityHigh:
		logger.Error(envelope.Message, fields...)
	case errors.SeverityMedium:
		logger.Warn(envelope.Message, fields...)
	default:
		logger.Info(envelope.Message, fields...)
	}
}

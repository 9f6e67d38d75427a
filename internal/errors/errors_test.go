package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncbimcp/ncbimcp/internal/core"
	"github.com/ncbimcp/ncbimcp/internal/core/engine"
	"github.com/ncbimcp/ncbimcp/internal/server/middleware"
)

func TestFromResultSuccessIsNil(t *testing.T) {
	result := &core.Result{Tool: "esearch", Outcome: &core.Outcome{Kind: core.OutcomeSuccess}}
	assert.Nil(t, FromResult(context.Background(), result))

	local := &core.Result{Tool: "server_info", Local: map[string]any{"version": "dev"}}
	assert.Nil(t, FromResult(context.Background(), local))
}

func TestFromResultCodes(t *testing.T) {
	tests := []struct {
		name    string
		outcome core.Outcome
		code    string
		message string
	}{
		{
			name:    "remote error keeps message",
			outcome: core.Outcome{Kind: core.OutcomeRemoteError, Operation: core.OperationFetch, Message: "Invalid uid 0 at position 0", HTTPStatus: 200},
			code:    CodeRemoteError,
			message: "Invalid uid 0 at position 0",
		},
		{
			name:    "transient exhausted",
			outcome: core.Outcome{Kind: core.OutcomeTransientFailure, Operation: core.OperationSearch, Message: "gave up after 3 attempts: server error: 503 Service Unavailable", Attempts: 3, Exhausted: true},
			code:    CodeTransientFailure,
			message: "gave up after 3 attempts: server error: 503 Service Unavailable",
		},
		{
			name:    "session expired",
			outcome: core.Outcome{Kind: core.OutcomeSessionExpired, Operation: core.OperationFetch, Message: "no active history session"},
			code:    CodeSessionExpired,
			message: "no active history session",
		},
		{
			name:    "reason used when message empty",
			outcome: core.Outcome{Kind: core.OutcomeTransientFailure, Operation: core.OperationInfo, Reason: "deadline exceeded"},
			code:    CodeTransientFailure,
			message: "deadline exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := tt.outcome
			env := FromResult(context.Background(), &core.Result{Tool: "t", Outcome: &outcome})
			require.NotNil(t, env)
			assert.Equal(t, tt.code, env.Code)
			assert.Equal(t, tt.message, env.Message)
			assert.NotEmpty(t, env.CorrelationID)
			assert.Equal(t, string(tt.outcome.Operation), env.Context["operation"])
		})
	}
}

func TestFromResultPartialCompletion(t *testing.T) {
	failure := core.Outcome{Kind: core.OutcomeTransientFailure, Operation: core.OperationFetch, Reason: "server error: 503 Service Unavailable", Attempts: 3}
	result := &core.Result{
		Tool: core.ToolSearchAndFetch,
		Composite: &core.CompositeOutcome{
			State:   core.StatePartiallyFailed,
			Session: &core.Session{Database: "pubmed", WebEnv: "MCID_1", QueryKey: "1"},
			Planned: 3,
			Total:   5,
			Pages:   []core.Outcome{{Kind: core.OutcomeSuccess}},
			Failure: &failure,
			Message: "fetched 1 of 3 pages before failure",
		},
	}

	env := FromResult(context.Background(), result)
	require.NotNil(t, env)
	assert.Equal(t, CodePartialCompletion, env.Code)
	assert.Equal(t, "fetched 1 of 3 pages before failure", env.Message)
	assert.EqualValues(t, 1, env.Context["pages_completed"])
	assert.EqualValues(t, 3, env.Context["pages_planned"])
	assert.Equal(t, "MCID_1", env.Context["webenv"])
	assert.Equal(t, "server error: 503 Service Unavailable", env.Context["reason"])
}

func TestFromInvokeError(t *testing.T) {
	unknown := FromInvokeError(context.Background(), "eblast", fmt.Errorf("%w: eblast", engine.ErrUnknownTool))
	assert.Equal(t, CodeUnknownTool, unknown.Code)
	assert.Equal(t, "eblast", unknown.Context["tool"])

	invalid := FromInvokeError(context.Background(), "efetch", fmt.Errorf("%w: missing db", engine.ErrInvalidArguments))
	assert.Equal(t, CodeInvalidInput, invalid.Code)

	other := FromInvokeError(context.Background(), "efetch", fmt.Errorf("boom"))
	assert.Equal(t, CodeInternal, other.Code)
}

func TestCorrelationIDFromRequestContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDContextKey, "req-123")
	env := FromResult(ctx, &core.Result{Tool: "t", Outcome: &core.Outcome{Kind: core.OutcomeRemoteError, Message: "bad"}})
	assert.Equal(t, "req-123", env.CorrelationID)
}

func TestHTTPStatusFromCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatusFromCode(CodeInvalidInput))
	assert.Equal(t, http.StatusNotFound, HTTPStatusFromCode(CodeUnknownTool))
	assert.Equal(t, http.StatusGone, HTTPStatusFromCode(CodeSessionExpired))
	assert.Equal(t, http.StatusBadGateway, HTTPStatusFromCode(CodeRemoteError))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatusFromCode(CodeTransientFailure))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromCode("SOMETHING_ELSE"))
}

func TestEnsureEnvelope(t *testing.T) {
	original := NewNotFoundError("missing")
	assert.Same(t, original, EnsureEnvelope(original))

	wrapped := EnsureEnvelope(fmt.Errorf("plain"))
	assert.Equal(t, CodeInternal, wrapped.Code)
	assert.Equal(t, "plain", wrapped.Context["wrapped_error"])
	assert.Equal(t, gferrors.SeverityHigh, wrapped.Severity)

	assert.Equal(t, CodeInternal, EnsureEnvelope(nil).Code)
}

func TestRespondWithError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDContextKey, "abc"))
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, NewNotFoundError("The requested resource was not found"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeNotFound, body.Error.Code)
	assert.Equal(t, "abc", body.Error.RequestID)
}

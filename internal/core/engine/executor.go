package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ncbimcp/ncbimcp/internal/core"
)

// DefaultRequestTimeout bounds a single network call.
const DefaultRequestTimeout = 30 * time.Second

// Transport performs a single HTTP exchange with the remote service.
// Implementations must not retry; the executor owns retries.
type Transport interface {
	Do(ctx context.Context, req core.OutboundRequest) (*core.RawResponse, error)
}

// Logger is the subset of the gofulmen logger used by the engine.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// Recorder receives execution events for metrics.
type Recorder interface {
	RecordAttempt(op core.Operation, kind core.OutcomeKind, elapsed time.Duration)
	RecordRetry(op core.Operation, reason string)
	RecordOutcome(op core.Operation, kind core.OutcomeKind, attempts int)
}

// Executor performs one logical request: admission, network call,
// classification and bounded retry of transient failures.
type Executor struct {
	Transport Transport
	Limiter   *RateLimiter
	Policy    RetryPolicy
	Timeout   time.Duration
	Logger    Logger
	Recorder  Recorder

	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Execute runs the request and never returns a rate-limited outcome.
func (e *Executor) Execute(ctx context.Context, req core.OutboundRequest) core.Outcome {
	if ctx == nil {
		ctx = context.Background()
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if e == nil || e.Transport == nil {
		return transientOutcome(req, 0, "no transport configured")
	}

	policy := e.Policy.WithDefaults()

	var (
		last       core.Outcome
		retryAfter time.Duration
	)
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := policy.Backoff(attempt-1, retryAfter)
			if deadline, ok := ctx.Deadline(); ok && e.now().Add(delay).After(deadline) {
				return e.finish(req, deadlineOutcome(req, attempt-1, context.DeadlineExceeded))
			}
			e.logDebug("retrying request",
				zap.String("request_id", req.ID),
				zap.String("operation", string(req.Operation)),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.String("reason", last.Reason),
			)
			if err := e.sleep(ctx, delay); err != nil {
				return e.finish(req, deadlineOutcome(req, attempt-1, err))
			}
		}

		req.Attempt = attempt
		var (
			outcome  core.Outcome
			admitted bool
		)
		outcome, retryAfter, admitted = e.attempt(ctx, req)
		outcome.Attempts = attempt
		if !admitted {
			return e.finish(req, outcome)
		}

		switch outcome.Kind {
		case core.OutcomeSuccess, core.OutcomeRemoteError, core.OutcomeSessionExpired:
			return e.finish(req, outcome)
		}
		if ctx.Err() != nil {
			return e.finish(req, deadlineOutcome(req, attempt, ctx.Err()))
		}

		last = outcome
		if e.Recorder != nil && attempt < policy.MaxAttempts {
			e.Recorder.RecordRetry(req.Operation, outcome.Reason)
		}
	}

	last.Kind = core.OutcomeTransientFailure
	last.Exhausted = true
	last.Attempts = policy.MaxAttempts
	last.Message = fmt.Sprintf("gave up after %d attempts: %s", policy.MaxAttempts, last.Reason)
	e.logWarn("request failed after retries",
		zap.String("request_id", req.ID),
		zap.String("operation", string(req.Operation)),
		zap.Int("attempts", policy.MaxAttempts),
		zap.String("reason", last.Reason),
	)
	return e.finish(req, last)
}

// attempt reports admitted=false when the limiter could not grant a slot
// before the caller's deadline; no later attempt can do better.
func (e *Executor) attempt(ctx context.Context, req core.OutboundRequest) (core.Outcome, time.Duration, bool) {
	if _, err := e.Limiter.Acquire(ctx); err != nil {
		return deadlineOutcome(req, req.Attempt, err), 0, false
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	started := e.now()
	resp, err := e.Transport.Do(callCtx, req.Clone())
	elapsed := e.now().Sub(started)

	var outcome core.Outcome
	var retryAfter time.Duration
	switch {
	case err != nil && ctx.Err() != nil:
		outcome = deadlineOutcome(req, req.Attempt, ctx.Err())
	case err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded):
		outcome = transientOutcome(req, 0, fmt.Sprintf("request timed out after %s", e.timeout()))
	case err != nil:
		outcome = transientOutcome(req, 0, err.Error())
	case resp == nil:
		outcome = transientOutcome(req, 0, "empty response")
	default:
		outcome = classify(req, resp)
		retryAfter = retryAfterHeader(resp.Header, e.now())
	}

	if e.Recorder != nil {
		e.Recorder.RecordAttempt(req.Operation, outcome.Kind, elapsed)
	}
	return outcome, retryAfter, true
}

func classify(req core.OutboundRequest, resp *core.RawResponse) core.Outcome {
	outcome := core.Outcome{
		Operation:   req.Operation,
		RequestID:   req.ID,
		HTTPStatus:  resp.StatusCode,
		ContentType: resp.ContentType,
	}

	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		if resp.RemoteMessage != "" {
			outcome.Kind = core.OutcomeRemoteError
			outcome.Message = resp.RemoteMessage
			outcome.Payload = resp.Body
			return outcome
		}
		outcome.Kind = core.OutcomeSuccess
		outcome.Payload = resp.Body
	case status == http.StatusTooManyRequests:
		outcome.Kind = core.OutcomeRateLimited
		outcome.Reason = "rate limit exceeded (429)"
		outcome.Message = resp.RemoteMessage
	case status == http.StatusRequestTimeout || status >= 500:
		outcome.Kind = core.OutcomeTransientFailure
		outcome.Reason = fmt.Sprintf("server error: %d %s", status, http.StatusText(status))
		outcome.Message = resp.RemoteMessage
	default:
		outcome.Kind = core.OutcomeRemoteError
		outcome.Message = resp.RemoteMessage
		if outcome.Message == "" {
			outcome.Message = fmt.Sprintf("%d %s", status, http.StatusText(status))
		}
		outcome.Payload = resp.Body
	}
	return outcome
}

func (e *Executor) finish(req core.OutboundRequest, outcome core.Outcome) core.Outcome {
	if outcome.Operation == "" {
		outcome.Operation = req.Operation
	}
	if outcome.RequestID == "" {
		outcome.RequestID = req.ID
	}
	if e.Recorder != nil {
		e.Recorder.RecordOutcome(req.Operation, outcome.Kind, outcome.Attempts)
	}
	return outcome
}

func transientOutcome(req core.OutboundRequest, attempts int, reason string) core.Outcome {
	return core.Outcome{
		Kind:      core.OutcomeTransientFailure,
		Operation: req.Operation,
		RequestID: req.ID,
		Reason:    reason,
		Message:   reason,
		Attempts:  attempts,
	}
}

func deadlineOutcome(req core.OutboundRequest, attempts int, err error) core.Outcome {
	reason := "deadline exceeded"
	if errors.Is(err, context.Canceled) {
		reason = "request canceled"
	}
	return transientOutcome(req, attempts, reason)
}

func (e *Executor) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return DefaultRequestTimeout
}

func (e *Executor) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now().UTC()
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) error {
	if e.Sleep != nil {
		return e.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func (e *Executor) logDebug(msg string, fields ...zap.Field) {
	if e.Logger != nil {
		e.Logger.Debug(msg, fields...)
	}
}

func (e *Executor) logWarn(msg string, fields ...zap.Field) {
	if e.Logger != nil {
		e.Logger.Warn(msg, fields...)
	}
}

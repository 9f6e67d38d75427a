package engine

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Retry defaults applied when the policy leaves a field unset.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 8 * time.Second
)

// RetryPolicy bounds retries of transient failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// WithDefaults fills unset fields.
func (p RetryPolicy) WithDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Backoff returns the pause after the given failed attempt (1-based).
// A server-supplied Retry-After raises the pause but never beyond MaxDelay.
func (p RetryPolicy) Backoff(failed int, retryAfter time.Duration) time.Duration {
	p = p.WithDefaults()
	if failed < 1 {
		failed = 1
	}

	delay := p.MaxDelay
	if shift := failed - 1; shift < 31 {
		if scaled := p.BaseDelay << shift; scaled > 0 && scaled < p.MaxDelay {
			delay = scaled
		}
	}
	if retryAfter > delay {
		delay = retryAfter
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// retryAfterHeader parses delta-seconds or an HTTP date relative to now.
func retryAfterHeader(header http.Header, now time.Time) time.Duration {
	if header == nil {
		return 0
	}

	value := strings.TrimSpace(header.Get("Retry-After"))
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if parsed, err := http.ParseTime(value); err == nil {
		if wait := parsed.Sub(now); wait > 0 {
			return wait
		}
	}
	return 0
}

// Package httpretry implements the bounded retry-with-backoff combinator
// shared by the LLM Client and Directory Client (spec §7,
// "Upstream-transient" policy). It generalizes the teacher's
// mcp.ClassifyError / CallTool retry shape — classify, then jittered
// backoff, then retry — from MCP transport errors and a single retry to
// HTTP transport/status errors and a configurable bounded attempt count.
package httpretry

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"time"
)

// Action determines how a failed attempt should be handled.
type Action int

const (
	// NoRetry — the error is not recoverable; surface it immediately.
	NoRetry Action = iota
	// Retry — transient failure; back off and attempt again.
	Retry
)

// Default bounds, overridable via Policy. MaxAttempts counts the initial
// try plus retries, so 3 means at most 2 retries after the first failure
// (spec §7 default of 3 bounded attempts).
const (
	DefaultMaxAttempts  = 3
	DefaultBackoffMin   = 200 * time.Millisecond
	DefaultBackoffMax   = 1200 * time.Millisecond
)

// Policy configures attempt count and backoff bounds.
type Policy struct {
	MaxAttempts int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
}

// DefaultPolicy returns the spec's default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BackoffMin:  DefaultBackoffMin,
		BackoffMax:  DefaultBackoffMax,
	}
}

// ClassifyError determines the retry action for a transport-level error
// (no HTTP response was obtained at all).
func ClassifyError(err error) Action {
	if err == nil {
		return NoRetry
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NoRetry
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Retry
		}
		return Retry
	}
	if isConnectionError(err) {
		return Retry
	}
	return NoRetry
}

// ClassifyStatus determines the retry action for an HTTP response that
// was received but carries a failure status. 429 and 5xx are treated as
// transient; any other 4xx is a permanent client-side failure.
func ClassifyStatus(statusCode int) Action {
	if statusCode == http.StatusTooManyRequests {
		return Retry
	}
	if statusCode >= 500 {
		return Retry
	}
	return NoRetry
}

func isConnectionError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection reset", "broken pipe", "connection closed", "no such host", "eof"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// backoff returns a jittered delay uniformly distributed in [min, max).
func backoff(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int64N(int64(max-min)))
}

// Attempt is what Do calls on each try. It should return the action to
// take if it fails (ignored on success); Do inspects the returned error
// only to tell success from failure, not to classify retries — the
// attempt function itself knows whether its own failure was a transport
// error or a bad status code and returns the right Action.
type Attempt func(ctx context.Context) (Action, error)

// Do runs attempt up to policy.MaxAttempts times, sleeping a jittered
// backoff between retries, honoring ctx cancellation. It returns the
// last error once attempts are exhausted or a NoRetry action is
// returned.
func Do(ctx context.Context, policy Policy, attempt Attempt) error {
	var lastErr error
	for i := 0; i < policy.MaxAttempts; i++ {
		action, err := attempt(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if action == NoRetry || i == policy.MaxAttempts-1 {
			return lastErr
		}
		delay := backoff(policy.BackoffMin, policy.BackoffMax)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

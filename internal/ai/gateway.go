// Package ai is the reasoning gateway: it asks a language model for
// structured decisions and guarantees the caller always gets a usable
// value back, either the parsed decision or the caller's default.
package ai

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Fallback reasons. They never escape Reason; they are reported in
// Decision.FallbackErr.
var (
	ErrProviderTimeout   = errors.New("reasoning provider timed out")
	ErrProviderFailure   = errors.New("reasoning provider failed")
	ErrMalformedResponse = errors.New("malformed reasoning response")
)

const strictSuffix = "\n\nIMPORTANT: Your previous answer could not be parsed. Respond with ONLY the raw JSON object. No markdown, no code fences, no commentary."

// Decision is the outcome of a reasoning call. Exactly one of the two
// shapes holds: Parsed with Value from the model, or a fallback carrying
// the call site's default in Value and the reason in FallbackErr.
type Decision[T any] struct {
	Value       T
	Parsed      bool
	FallbackErr error
}

// IsFallback reports whether Value is the call-site default.
func (d Decision[T]) IsFallback() bool {
	return !d.Parsed
}

// Request describes one structured reasoning call.
type Request[T any] struct {
	// Operation names the call in logs and cost accounting
	Operation string
	Prompt    string
	// Schema is the JSON shape the model is asked to return
	Schema string
	// Default is returned on any failure
	Default T
	// Validate may normalize the decoded value in place. A non-nil error
	// marks the response as malformed.
	Validate func(*T) error
}

// Gateway wraps a Completer with a per-call timeout.
type Gateway struct {
	completer Completer
	timeout   time.Duration
	logger    *zap.Logger

	calls     atomic.Int64
	fallbacks atomic.Int64
	retries   atomic.Int64
}

// GatewayStats summarizes reasoning activity.
type GatewayStats struct {
	Calls     int64
	Fallbacks int64
	Retries   int64
}

// NewGateway creates a reasoning gateway. A nil completer makes every
// decision fall back to its default.
func NewGateway(completer Completer, timeout time.Duration, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gateway{
		completer: completer,
		timeout:   timeout,
		logger:    logger.Named("reasoning"),
	}
}

// Stats returns a snapshot of the counters.
func (g *Gateway) Stats() GatewayStats {
	return GatewayStats{
		Calls:     g.calls.Load(),
		Fallbacks: g.fallbacks.Load(),
		Retries:   g.retries.Load(),
	}
}

// Reason asks the model for a decision of type T. Provider errors and
// timeouts fall back to req.Default immediately. A malformed response is
// retried once with a stricter instruction before falling back.
func Reason[T any](ctx context.Context, g *Gateway, req Request[T]) Decision[T] {
	if g == nil || g.completer == nil {
		return Decision[T]{Value: req.Default, FallbackErr: fmt.Errorf("%w: no provider configured", ErrProviderFailure)}
	}
	g.calls.Add(1)

	value, err := reasonOnce(ctx, g, req, req.Prompt)
	if errors.Is(err, ErrMalformedResponse) {
		g.retries.Add(1)
		g.logger.Debug("malformed reasoning response, retrying with strict instruction",
			zap.String("operation", req.Operation), zap.Error(err))
		value, err = reasonOnce(ctx, g, req, req.Prompt+strictSuffix)
	}
	if err != nil {
		g.fallbacks.Add(1)
		g.logger.Warn("reasoning fell back to default",
			zap.String("operation", req.Operation), zap.Error(err))
		return Decision[T]{Value: req.Default, FallbackErr: err}
	}
	return Decision[T]{Value: value, Parsed: true}
}

func reasonOnce[T any](ctx context.Context, g *Gateway, req Request[T], prompt string) (T, error) {
	var zero T

	callCtx, cancel := context.WithTimeout(WithOperation(ctx, req.Operation), g.timeout)
	defer cancel()

	raw, err := g.completer.Complete(callCtx, prompt, req.Schema)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w: %v", ErrProviderTimeout, err)
		}
		return zero, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}

	result := Parse[T](raw)
	if !result.Success {
		return zero, fmt.Errorf("%w: %s (response: %q)", ErrMalformedResponse, result.Error, truncate(raw, 200))
	}
	value := result.Data
	if req.Validate != nil {
		if err := req.Validate(&value); err != nil {
			return zero, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}
	return value, nil
}

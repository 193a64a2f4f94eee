package toolpipe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const retryJitterFactor = 0.25

// attemptOutcome is the single-assignment cell an attempt goroutine writes to.
type attemptOutcome struct {
	value any
	err   error
}

// invokeWithRetry runs impl until it succeeds, fails with a retry-invariant
// error, or MaxRetries extra attempts are spent. It returns the number of
// attempts made.
func (e *Executor) invokeWithRetry(ctx context.Context, name string, b binding, args json.RawMessage) (any, int, error) {
	attempts := 0
	op := func() (any, error) {
		attempts++
		v, err := e.invokeOnce(ctx, b, args)
		if err != nil && !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return v, err
	}
	v, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(e.newBackOff()),
		backoff.WithMaxTries(uint(e.cfg.MaxRetries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			e.logger.Warn("tool attempt failed, retrying",
				"tool", name, "attempt", attempts, "next_in", next, "error", err)
		}),
	)
	return v, attempts, err
}

func (e *Executor) newBackOff() backoff.BackOff {
	if e.cfg.RetryBackoff <= 0 {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.RetryBackoff
	b.MaxInterval = e.cfg.MaxRetryBackoff
	b.Multiplier = 2
	b.RandomizationFactor = retryJitterFactor
	return b
}

// invokeOnce races a single invocation against its timeout. The attempt
// goroutine writes into a 1-buffered channel so a late result never blocks
// and is never observed once the race has been decided.
func (e *Executor) invokeOnce(ctx context.Context, b binding, args json.RawMessage) (any, error) {
	timeout := e.timeoutFor(b)
	var (
		attemptCtx context.Context
		cancel     context.CancelFunc
	)
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		attemptCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan attemptOutcome, 1)
	go func() {
		if e.recoverPanics {
			defer func() {
				if p := recover(); p != nil {
					done <- attemptOutcome{err: &SystemError{Err: &panicError{p: p}}}
				}
			}()
		}
		v, err := b.wrapped.Invoke(attemptCtx, args)
		done <- attemptOutcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		// Both cases may be ready at once; a result delivered after the deadline still loses.
		expired := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		if ctx.Err() == nil && (expired || errors.Is(out.err, context.DeadlineExceeded)) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return out.value, out.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
}

// timeoutFor returns the attempt budget of a binding: a middleware or
// implementation override wins over the executor default.
func (e *Executor) timeoutFor(b binding) time.Duration {
	for _, impl := range []Implementation{b.wrapped, b.raw} {
		if to, ok := impl.(TimeoutOverrider); ok && to.Timeout() > 0 {
			return to.Timeout()
		}
	}
	return e.cfg.ToolTimeout
}

// panicError wraps a recovered panic value for SystemError; used by the executor and WithRecovery.
type panicError struct{ p any }

func (e *panicError) Error() string {
	return "panic: " + fmt.Sprint(e.p)
}

// Package retry runs remote attempts against a per-attempt deadline, with
// capped exponential backoff between qualifying failures and a cancellation
// handle that is distinct from the caller's context.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrCancelled is returned when the executor's Cancel handle was invoked.
// Callers must not confuse it with a timeout.
var ErrCancelled = errors.New("execution cancelled")

// TimeoutError reports that a single attempt exceeded its deadline.
type TimeoutError struct {
	Label    string
	Attempt  int
	Deadline time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: attempt %d timed out after %s", e.Label, e.Attempt, e.Deadline)
}

// Policy holds the per-call-site execution policy. Deadlines and budgets are
// configuration, not constants.
type Policy struct {
	Deadline    time.Duration
	Retries     int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Executor drives attempts for one logical call. Each invocation of Do owns a
// fresh attempt; Cancel stops any further attempts and pending backoff waits
// without affecting other executors.
type Executor struct {
	label  string
	policy Policy

	cancelOnce sync.Once
	cancelled  chan struct{}
}

// New creates an Executor with a human-readable failure label.
func New(label string, p Policy) *Executor {
	if p.Deadline <= 0 {
		p.Deadline = 2 * time.Second
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = 250 * time.Millisecond
	}
	if p.BackoffCap < p.BackoffBase {
		p.BackoffCap = p.BackoffBase
	}
	return &Executor{
		label:     label,
		policy:    p,
		cancelled: make(chan struct{}),
	}
}

// Cancel aborts the executor. Any in-flight Do resolves to ErrCancelled before
// its next attempt; a write already sent to the remote service may still land.
func (e *Executor) Cancel() {
	e.cancelOnce.Do(func() { close(e.cancelled) })
}

// Cancelled reports whether Cancel has been invoked.
func (e *Executor) Cancelled() bool {
	select {
	case <-e.cancelled:
		return true
	default:
		return false
	}
}

// Do races op against the policy deadline, retrying transient failures up to
// the retry budget. op receives a context that expires with the attempt, so a
// fresh attempt is produced per invocation and no timer outlives its attempt.
func Do[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error)) (T, error) {
	var zero T

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.policy.BackoffBase
	bo.MaxInterval = e.policy.BackoffCap
	bo.Multiplier = 1.5
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	var lastErr error
	for attempt := 0; attempt <= e.policy.Retries; attempt++ {
		if e.Cancelled() {
			return zero, ErrCancelled
		}
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%s: %w", e.label, err)
		}

		if attempt > 0 {
			if err := e.wait(ctx, bo.NextBackOff()); err != nil {
				return zero, err
			}
		}

		val, err := doAttempt(ctx, e, attempt, op)
		if err == nil {
			return val, nil
		}
		if errors.Is(err, ErrCancelled) {
			return zero, ErrCancelled
		}
		if !Transient(err) {
			return zero, fmt.Errorf("%s: %w", e.label, err)
		}
		lastErr = err
	}

	var te *TimeoutError
	if errors.As(lastErr, &te) {
		return zero, lastErr
	}
	return zero, fmt.Errorf("%s: %w", e.label, lastErr)
}

// doAttempt runs one attempt racing op against the deadline. The attempt
// context is always cancelled on return, so the deadline timer never outlives
// the attempt regardless of how it settles.
func doAttempt[T any](ctx context.Context, e *Executor, n int, op func(context.Context) (T, error)) (T, error) {
	var zero T

	attemptCtx, cancel := context.WithTimeout(ctx, e.policy.Deadline)
	defer cancel()

	type result struct {
		val T
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		v, err := op(attemptCtx)
		resCh <- result{val: v, err: err}
	}()

	select {
	case r := <-resCh:
		return r.val, r.err
	case <-e.cancelled:
		return zero, ErrCancelled
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, &TimeoutError{Label: e.label, Attempt: n + 1, Deadline: e.policy.Deadline}
	}
}

// wait sleeps for d, resolving early on caller-context expiry or Cancel.
func (e *Executor) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-e.cancelled:
		return ErrCancelled
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", e.label, ctx.Err())
	}
}

// Transient reports whether err qualifies for a retry: attempt timeouts,
// context deadline expiry, and network-class failures.
func Transient(err error) bool {
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var tr *transientError
	return errors.As(err, &tr)
}

// MarkTransient wraps err so Transient reports true for it. Stores use it to
// tag failures that are worth retrying but carry no network error type.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type OutcomeKind int

const (
	Ok OutcomeKind = iota
	Retryable
	Fatal
)

func (k OutcomeKind) String() string {
	return [...]string{"ok", "retryable", "fatal"}[k]
}

// Outcome is the result of one attempt of a Step.
type Outcome struct {
	Kind   OutcomeKind
	Reason error
}

// Step is an action verified by a success condition and retried a bounded number of times.
type Step struct {
	Name   string
	Action func(ctx context.Context) error
	// Submit runs after Action when set.
	Submit func(ctx context.Context) error
	// Success, when nil, makes a completed Action and Submit count as success.
	Success Probe
	// Failure, when set, tells a recoverable failure apart from a fatal one once Success times out.
	Failure Probe
	// Recovery runs before every attempt except the first.
	Recovery    func(ctx context.Context) error
	MaxAttempts int
	WaitTimeout time.Duration
	FailureWait time.Duration
}

// RunStep executes s until it succeeds, hits a fatal outcome or runs out of attempts.
func (it *Interactor) RunStep(ctx context.Context, s Step) error {
	attempts := s.MaxAttempts
	if attempts < 1 {
		attempts = it.Retries
	}
	if s.WaitTimeout <= 0 {
		s.WaitTimeout = it.Timeout
	}
	if s.FailureWait <= 0 {
		s.FailureWait = it.FailureWait
	}

	var (
		attempt int
		last    error
		fatal   bool
	)
	operation := func() error {
		attempt++
		it.Log.Info("executing step.", slog.String("step", s.Name), slog.Int("attempt", attempt),
			slog.Int("max", attempts))
		out := it.attemptStep(ctx, s, attempt)
		last = out.Reason
		switch out.Kind {
		case Ok:
			return nil
		case Fatal:
			fatal = true
			return backoff.Permanent(out.Reason)
		}
		it.Log.Warn("step attempt failed.", slog.String("step", s.Name), slog.Int("attempt", attempt),
			slog.String("err", last.Error()))
		return last
	}

	// attempts follow each other at once, the waits live inside the attempt
	if err := backoff.Retry(operation, backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(attempts-1))); err == nil {
		it.Log.Info("step succeeded.", slog.String("step", s.Name), slog.Int("attempt", attempt))
		return nil
	}
	if fatal {
		it.Log.Error("step failed.", slog.String("step", s.Name), slog.String("err", last.Error()))
	}
	return &VerificationStepFailedError{Step: s.Name, Attempts: attempt, Err: last}
}

func (it *Interactor) attemptStep(ctx context.Context, s Step, attempt int) Outcome {
	if attempt > 1 && s.Recovery != nil {
		if err := s.Recovery(ctx); err != nil {
			if isFatal(ctx, err) {
				return Outcome{Kind: Fatal, Reason: err}
			}
			return Outcome{Kind: Retryable, Reason: fmt.Errorf("recovery: %w", err)}
		}
	}
	if err := s.Action(ctx); err != nil {
		return it.actionFailed(ctx, s.Name, err)
	}
	if s.Submit != nil {
		if err := s.Submit(ctx); err != nil {
			return it.actionFailed(ctx, s.Name, err)
		}
	}
	if s.Success == nil {
		return Outcome{Kind: Ok}
	}

	err := it.Until(ctx, s.Name, "success condition", s.WaitTimeout, s.Success)
	if err == nil {
		return Outcome{Kind: Ok}
	}
	var timeout *TimeoutReachedError
	if !errors.As(err, &timeout) {
		return Outcome{Kind: Fatal, Reason: err}
	}
	if s.Failure == nil {
		return Outcome{Kind: Retryable, Reason: err}
	}

	detected, ferr := it.Observe(ctx, s.FailureWait, s.Failure)
	if ferr != nil {
		return Outcome{Kind: Fatal, Reason: ferr}
	}
	if detected {
		return Outcome{Kind: Retryable, Reason: fmt.Errorf("failure condition detected: %w", err)}
	}
	return Outcome{Kind: Fatal, Reason: fmt.Errorf("neither success nor failure condition observed: %w", err)}
}

func (it *Interactor) actionFailed(ctx context.Context, step string, err error) Outcome {
	if isFatal(ctx, err) {
		return Outcome{Kind: Fatal, Reason: err}
	}
	it.Diag.Capture(ctx, it.Driver, step)
	return Outcome{Kind: Retryable, Reason: err}
}

func isFatal(ctx context.Context, err error) bool {
	return errors.Is(err, ErrSessionClosed) || ctx.Err() != nil
}

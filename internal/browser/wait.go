package browser

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Probe reports whether a condition currently holds.
type Probe func(ctx context.Context) (bool, error)

// Waiter polls the page until a condition holds or the timeout elapses.
type Waiter struct {
	Driver Driver
	Diag   *Diagnostics
	Log    *slog.Logger
	Poll   time.Duration
}

// WaitFor blocks until the element satisfies cond. On timeout a screenshot tagged with step is taken
// and a *TimeoutReachedError is returned.
func (w *Waiter) WaitFor(ctx context.Context, step string, loc Locator, cond Condition, timeout time.Duration) error {
	ok, err := w.poll(ctx, timeout, w.Is(loc, cond))
	if err != nil {
		return err
	}
	if !ok {
		w.Diag.Capture(ctx, w.Driver, step)
		w.Log.Error("element wait timed out.", slog.String("step", step), slog.String("locator", loc.String()),
			slog.String("condition", cond.String()), slog.Duration("timeout", timeout))
		return &TimeoutReachedError{Step: step, Locator: loc, Condition: cond.String(), Timeout: timeout}
	}
	return nil
}

// Is returns a probe reporting whether the element satisfies cond.
func (w *Waiter) Is(loc Locator, cond Condition) Probe {
	return func(ctx context.Context) (bool, error) {
		st, err := w.Driver.State(ctx, loc)
		if err != nil {
			return false, err
		}
		return st.satisfies(cond), nil
	}
}

// Until blocks until probe reports true. what describes the condition in the error.
func (w *Waiter) Until(ctx context.Context, step, what string, timeout time.Duration, probe Probe) error {
	ok, err := w.poll(ctx, timeout, probe)
	if err != nil {
		return err
	}
	if !ok {
		w.Diag.Capture(ctx, w.Driver, step)
		w.Log.Error("wait timed out.", slog.String("step", step), slog.String("condition", what),
			slog.Duration("timeout", timeout))
		return &TimeoutReachedError{Step: step, Condition: what, Timeout: timeout}
	}
	return nil
}

// Observe polls probe for at most timeout without any diagnostics. It reports whether the probe held.
func (w *Waiter) Observe(ctx context.Context, timeout time.Duration, probe Probe) (bool, error) {
	return w.poll(ctx, timeout, probe)
}

// WaitForPageLoad waits for the document to finish loading and, when guard is set, for it to be visible.
func (w *Waiter) WaitForPageLoad(ctx context.Context, step string, timeout time.Duration, guard *Locator) error {
	err := w.Until(ctx, step, "document ready", timeout, func(ctx context.Context) (bool, error) {
		state, err := w.Driver.ReadyState(ctx)
		return state == "complete", err
	})
	if err != nil {
		return err
	}
	if guard != nil {
		return w.WaitFor(ctx, step, *guard, Clickable, timeout)
	}
	return nil
}

// poll evaluates probe at least once. Probe errors other than a closed session count as "not yet".
func (w *Waiter) poll(ctx context.Context, timeout time.Duration, probe Probe) (bool, error) {
	interval := w.Poll
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := probe(ctx)
		if err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return false, err
			}
			w.Log.Debug("probe failed.", slog.String("err", err.Error()))
		}
		if ok {
			return true, nil
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

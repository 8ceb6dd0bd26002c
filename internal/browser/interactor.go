package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IliaW/name-check-worker/config"
)

// Interactor performs clicks, text entry and selection with the fallbacks the portal needs.
type Interactor struct {
	*Waiter
	Timeout      time.Duration
	StepTimeout  time.Duration
	Retries      int
	Settle       time.Duration
	ScrollSettle time.Duration
	StaleBackoff time.Duration
	FailureWait  time.Duration
	// Overlays are class names of leftover modal layers removed before a selection.
	Overlays []string
}

func NewInteractor(d Driver, cfg *config.BrowserConfig, store ArtifactStore, log *slog.Logger) *Interactor {
	diag := &Diagnostics{Dir: cfg.ScreenshotDir, Store: store, Log: log, Timeout: cfg.ScreenshotTimeout}
	retries := cfg.Retries
	if retries < 1 {
		retries = 1
	}
	return &Interactor{
		Waiter:       &Waiter{Driver: d, Diag: diag, Log: log, Poll: cfg.PollInterval},
		Timeout:      cfg.ElementTimeout,
		StepTimeout:  cfg.StepTimeout,
		Retries:      retries,
		Settle:       cfg.SettleDelay,
		ScrollSettle: cfg.ScrollSettle,
		StaleBackoff: cfg.StaleBackoff,
		FailureWait:  cfg.FailureWait,
	}
}

type options struct {
	step    string
	guard   *Locator
	timeout time.Duration
	keep    bool
}

type Option func(*options)

// WithStep names the step used in logs and screenshot file names.
func WithStep(step string) Option {
	return func(o *options) { o.step = step }
}

// WithGuard makes Click wait for guard to be clickable once the page has loaded.
func WithGuard(guard Locator) Option {
	return func(o *options) { o.guard = &guard }
}

func WithTimeout(timeout time.Duration) Option {
	return func(o *options) { o.timeout = timeout }
}

// KeepExisting makes SendText append instead of clearing the field first.
func KeepExisting() Option {
	return func(o *options) { o.keep = true }
}

func (it *Interactor) options(prefix string, loc Locator, opts []Option) options {
	o := options{step: loc.step(prefix), timeout: it.Timeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Sleep pauses for d unless ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Click waits for the page and the element, scrolls it into view and clicks it. A native click that
// would land on another element is retried as a scripted click. Stale references are re-resolved up
// to Retries times.
func (it *Interactor) Click(ctx context.Context, loc Locator, opts ...Option) error {
	o := it.options("click", loc, opts)
	if err := it.WaitForPageLoad(ctx, o.step, it.pageTimeout(), o.guard); err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= it.Retries; attempt++ {
		if err := it.WaitFor(ctx, o.step, loc, Clickable, o.timeout); err != nil {
			return err
		}
		err := it.clickOnce(ctx, loc)
		if err == nil {
			it.Log.Debug("clicked.", slog.String("locator", loc.String()))
			return nil
		}
		if errors.Is(err, ErrSessionClosed) || ctx.Err() != nil {
			return err
		}
		lastErr = err
		if !errors.Is(err, ErrStale) {
			break
		}
		it.Log.Warn("stale element on click. retrying...", slog.String("locator", loc.String()),
			slog.Int("attempt", attempt))
		if err = Sleep(ctx, it.StaleBackoff); err != nil {
			return err
		}
	}

	it.Diag.Capture(ctx, it.Driver, o.step)
	it.Log.Error("click failed.", slog.String("step", o.step), slog.String("err", lastErr.Error()))
	return &ElementNotInteractableError{Step: o.step, Locator: loc, Err: lastErr}
}

func (it *Interactor) clickOnce(ctx context.Context, loc Locator) error {
	if err := it.Driver.ScrollIntoView(ctx, loc); err != nil {
		return err
	}
	if err := Sleep(ctx, it.ScrollSettle); err != nil {
		return err
	}
	err := it.Driver.Click(ctx, loc)
	if errors.Is(err, ErrNotInteractable) {
		it.Log.Warn("native click intercepted. using scripted click.", slog.String("locator", loc.String()))
		return it.Driver.DispatchClick(ctx, loc)
	}
	return err
}

// SendText types text into the element and verifies the field holds it. A mismatch triggers exactly
// one scripted assignment; a second mismatch fails the step.
func (it *Interactor) SendText(ctx context.Context, loc Locator, text string, opts ...Option) error {
	o := it.options("send_text", loc, opts)
	if text == "" {
		it.Log.Error("refusing to send empty text.", slog.String("step", o.step), slog.String("locator", loc.String()))
		return &AutomationError{Step: o.step, Msg: "no text to send to " + loc.String(), Err: ErrEmptyInput}
	}

	var lastErr error
	for attempt := 1; attempt <= it.Retries; attempt++ {
		if err := it.WaitFor(ctx, o.step, loc, Clickable, o.timeout); err != nil {
			return err
		}
		err := it.typeOnce(ctx, loc, text, o.keep)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrSessionClosed) || ctx.Err() != nil {
			return err
		}
		lastErr = err
		if !errors.Is(err, ErrStale) {
			break
		}
		it.Log.Warn("stale element on text entry. retrying...", slog.String("locator", loc.String()),
			slog.Int("attempt", attempt))
		if err = Sleep(ctx, it.StaleBackoff); err != nil {
			return err
		}
	}

	it.Diag.Capture(ctx, it.Driver, o.step)
	it.Log.Error("text entry failed.", slog.String("step", o.step), slog.String("err", lastErr.Error()))
	return &ElementNotInteractableError{Step: o.step, Locator: loc, Err: lastErr}
}

func (it *Interactor) typeOnce(ctx context.Context, loc Locator, text string, keep bool) error {
	// focus
	err := it.Driver.Click(ctx, loc)
	if errors.Is(err, ErrNotInteractable) {
		err = it.Driver.DispatchClick(ctx, loc)
	}
	if err != nil {
		return err
	}
	if err = Sleep(ctx, it.ScrollSettle); err != nil {
		return err
	}
	if !keep {
		if err = it.Driver.Clear(ctx, loc); err != nil {
			return err
		}
	}
	if err = it.Driver.SendKeys(ctx, loc, text); err != nil {
		return err
	}
	got, err := it.Driver.Value(ctx, loc)
	if err != nil {
		return err
	}
	want := text
	if keep {
		// appended input is verified by suffix
		if len(got) >= len(text) {
			got = got[len(got)-len(text):]
		}
	}
	if got == want {
		return nil
	}

	it.Log.Warn("field value mismatch. setting value by script.", slog.String("locator", loc.String()))
	if err = it.Driver.SetValue(ctx, loc, text); err != nil {
		return err
	}
	got, err = it.Driver.Value(ctx, loc)
	if err != nil {
		return err
	}
	if got != text {
		return fmt.Errorf("%w: expected %q, got %q", ErrValueMismatch, text, got)
	}
	return nil
}

// ClearText empties an input field.
func (it *Interactor) ClearText(ctx context.Context, loc Locator, opts ...Option) error {
	o := it.options("clear", loc, opts)
	if err := it.WaitFor(ctx, o.step, loc, Present, o.timeout); err != nil {
		return err
	}
	if err := it.Driver.Clear(ctx, loc); err != nil {
		it.Diag.Capture(ctx, it.Driver, o.step)
		return &ElementNotInteractableError{Step: o.step, Locator: loc, Err: err}
	}
	return nil
}

// Select picks option in a dropdown by value, then by visible text, then by assigning the value through a script.
func (it *Interactor) Select(ctx context.Context, loc Locator, option string, opts ...Option) error {
	o := it.options("select", loc, opts)
	if err := it.WaitFor(ctx, o.step, loc, Clickable, o.timeout); err != nil {
		return err
	}
	it.RemoveOverlays(ctx)
	if err := it.Driver.ScrollIntoView(ctx, loc); err != nil && !errors.Is(err, ErrStale) {
		return it.selectFailed(ctx, o.step, loc, err)
	}
	if err := Sleep(ctx, it.ScrollSettle); err != nil {
		return err
	}

	err := it.Driver.SelectByValue(ctx, loc, option)
	if errors.Is(err, ErrNoSuchOption) {
		it.Log.Debug("option not found by value. trying visible text.", slog.String("option", option))
		err = it.Driver.SelectByText(ctx, loc, option)
	}
	if errors.Is(err, ErrNoSuchOption) {
		it.Log.Warn("option not found. setting value by script.", slog.String("option", option))
		err = it.Driver.SetValue(ctx, loc, option)
	}
	if err != nil {
		return it.selectFailed(ctx, o.step, loc, err)
	}
	it.Log.Debug("option selected.", slog.String("locator", loc.String()), slog.String("option", option))
	return nil
}

func (it *Interactor) selectFailed(ctx context.Context, step string, loc Locator, err error) error {
	if errors.Is(err, ErrSessionClosed) {
		return err
	}
	it.Diag.Capture(ctx, it.Driver, step)
	it.Log.Error("selection failed.", slog.String("step", step), slog.String("err", err.Error()))
	return &ElementNotInteractableError{Step: step, Locator: loc, Err: err}
}

// RemoveOverlays deletes leftover modal layers that would swallow clicks.
func (it *Interactor) RemoveOverlays(ctx context.Context) {
	for _, class := range it.Overlays {
		script := fmt.Sprintf(`document.querySelectorAll('.%s').forEach(e => e.remove())`, class)
		if err := it.Driver.Execute(ctx, script); err != nil {
			it.Log.Debug("failed to remove overlay.", slog.String("class", class), slog.String("err", err.Error()))
		}
	}
}

// Capture takes a screenshot tagged with step.
func (it *Interactor) Capture(ctx context.Context, step string) string {
	return it.Diag.Capture(ctx, it.Driver, step)
}

func (it *Interactor) pageTimeout() time.Duration {
	if it.StepTimeout > 0 {
		return it.StepTimeout
	}
	return it.Timeout
}

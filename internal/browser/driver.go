package browser

import (
	"context"
)

// Driver is a live page handle. Implementations return the package sentinels
// (ErrNoSuchElement, ErrStale, ErrNotInteractable, ErrNoSuchOption, ErrSessionClosed)
// so callers can decide on fallbacks.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	ReadyState(ctx context.Context) (string, error)

	// State never fails for a missing element, it reports Present=false instead.
	State(ctx context.Context, loc Locator) (ElementState, error)
	ScrollIntoView(ctx context.Context, loc Locator) error
	// Click performs a native pointer click. It fails with ErrNotInteractable
	// when another element would receive the click.
	Click(ctx context.Context, loc Locator) error
	// DispatchClick clicks through a script, bypassing overlays.
	DispatchClick(ctx context.Context, loc Locator) error
	Clear(ctx context.Context, loc Locator) error
	SendKeys(ctx context.Context, loc Locator, text string) error
	Value(ctx context.Context, loc Locator) (string, error)
	// SetValue assigns the value through a script and fires input and change events.
	SetValue(ctx context.Context, loc Locator, value string) error
	Text(ctx context.Context, loc Locator) (string, error)
	Checked(ctx context.Context, loc Locator) (bool, error)
	SelectByValue(ctx context.Context, loc Locator, value string) error
	SelectByText(ctx context.Context, loc Locator, text string) error
	OuterHTML(ctx context.Context, loc Locator) (string, error)
	Execute(ctx context.Context, script string) error

	Screenshot(ctx context.Context) ([]byte, error)
	ElementScreenshot(ctx context.Context, loc Locator) ([]byte, error)
	Close() error
}

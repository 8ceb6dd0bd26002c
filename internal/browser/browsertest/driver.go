// Package browsertest provides an in-memory browser.Driver for tests.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/IliaW/name-check-worker/internal/browser"
)

type Option struct {
	Value string
	Text  string
}

// Element is the scripted state of one element. A zero Element is absent.
type Element struct {
	Present bool
	Visible bool
	Enabled bool
	Value   string
	Text    string
	Checked bool
	HTML    string
	Options []Option
	Image   []byte

	// ClickErrs are returned by successive native clicks before they start succeeding.
	ClickErrs []error
	// DropKeys makes SendKeys leave the value untouched.
	DropKeys bool
	// RejectScript makes SetValue leave the value untouched.
	RejectScript bool
	// Toggle makes a successful click flip Checked.
	Toggle bool

	OnClick func(d *Driver)
	// OnChange runs after a selection or a scripted value assignment.
	OnChange func(d *Driver)
}

// Live returns a present, visible and enabled element.
func Live() *Element {
	return &Element{Present: true, Visible: true, Enabled: true}
}

// Driver implements browser.Driver over a map of scripted elements. Every call is recorded.
type Driver struct {
	mu       sync.Mutex
	elements map[string]*Element
	url      string
	ready    string
	calls    []string
	closed   bool

	ScreenshotErr error
	OnNavigate    func(d *Driver, url string)
}

var _ browser.Driver = (*Driver)(nil)

func New() *Driver {
	return &Driver{elements: make(map[string]*Element), ready: "complete"}
}

// Set installs el for loc and returns it.
func (d *Driver) Set(loc browser.Locator, el *Element) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.elements[loc.Key()] = el
	return el
}

// Remove makes loc absent.
func (d *Driver) Remove(loc browser.Locator) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.elements, loc.Key())
}

// Update runs fn on the element for loc under the driver lock, creating the element when missing.
func (d *Driver) Update(loc browser.Locator, fn func(el *Element)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, ok := d.elements[loc.Key()]
	if !ok {
		el = &Element{}
		d.elements[loc.Key()] = el
	}
	fn(el)
}

// Element returns a copy of the element state for loc.
func (d *Driver) Element(loc browser.Locator) Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.elements[loc.Key()]; ok {
		return *el
	}
	return Element{}
}

func (d *Driver) SetURL(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.url = url
}

func (d *Driver) SetReadyState(state string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ready = state
}

// Calls returns the recorded calls, e.g. "Click id=submit".
func (d *Driver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// Count returns how many recorded calls start with prefix.
func (d *Driver) Count(prefix string) int {
	n := 0
	for _, c := range d.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Driver) record(format string, args ...any) error {
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
	if d.closed {
		return browser.ErrSessionClosed
	}
	return nil
}

// live returns the element when it is present, or ErrNoSuchElement.
func (d *Driver) live(loc browser.Locator) (*Element, error) {
	el, ok := d.elements[loc.Key()]
	if !ok || !el.Present {
		return nil, fmt.Errorf("%w: %s", browser.ErrNoSuchElement, loc)
	}
	return el, nil
}

func (d *Driver) Navigate(_ context.Context, url string) error {
	d.mu.Lock()
	if err := d.record("Navigate %s", url); err != nil {
		d.mu.Unlock()
		return err
	}
	d.url = url
	hook := d.OnNavigate
	d.mu.Unlock()
	if hook != nil {
		hook(d, url)
	}
	return nil
}

func (d *Driver) Location(_ context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("Location"); err != nil {
		return "", err
	}
	return d.url, nil
}

func (d *Driver) ReadyState(_ context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return "", browser.ErrSessionClosed
	}
	return d.ready, nil
}

// State is not recorded, waits poll it many times.
func (d *Driver) State(_ context.Context, loc browser.Locator) (browser.ElementState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return browser.ElementState{}, browser.ErrSessionClosed
	}
	el, ok := d.elements[loc.Key()]
	if !ok {
		return browser.ElementState{}, nil
	}
	return browser.ElementState{Present: el.Present, Visible: el.Present && el.Visible,
		Enabled: el.Present && el.Enabled}, nil
}

func (d *Driver) ScrollIntoView(_ context.Context, loc browser.Locator) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("ScrollIntoView %s", loc.Key()); err != nil {
		return err
	}
	_, err := d.live(loc)
	return err
}

func (d *Driver) Click(_ context.Context, loc browser.Locator) error {
	d.mu.Lock()
	if err := d.record("Click %s", loc.Key()); err != nil {
		d.mu.Unlock()
		return err
	}
	el, err := d.live(loc)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	if len(el.ClickErrs) > 0 {
		err = el.ClickErrs[0]
		el.ClickErrs = el.ClickErrs[1:]
		d.mu.Unlock()
		return err
	}
	return d.clicked(el)
}

func (d *Driver) DispatchClick(_ context.Context, loc browser.Locator) error {
	d.mu.Lock()
	if err := d.record("DispatchClick %s", loc.Key()); err != nil {
		d.mu.Unlock()
		return err
	}
	el, err := d.live(loc)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	return d.clicked(el)
}

// clicked applies click effects and runs the hook outside the lock. It expects d.mu held.
func (d *Driver) clicked(el *Element) error {
	if el.Toggle {
		el.Checked = !el.Checked
	}
	hook := el.OnClick
	d.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	return nil
}

func (d *Driver) Clear(_ context.Context, loc browser.Locator) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("Clear %s", loc.Key()); err != nil {
		return err
	}
	el, err := d.live(loc)
	if err != nil {
		return err
	}
	el.Value = ""
	return nil
}

func (d *Driver) SendKeys(_ context.Context, loc browser.Locator, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("SendKeys %s %s", loc.Key(), text); err != nil {
		return err
	}
	el, err := d.live(loc)
	if err != nil {
		return err
	}
	if !el.DropKeys {
		el.Value += text
	}
	return nil
}

func (d *Driver) Value(_ context.Context, loc browser.Locator) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("Value %s", loc.Key()); err != nil {
		return "", err
	}
	el, err := d.live(loc)
	if err != nil {
		return "", err
	}
	return el.Value, nil
}

func (d *Driver) SetValue(_ context.Context, loc browser.Locator, value string) error {
	d.mu.Lock()
	if err := d.record("SetValue %s %s", loc.Key(), value); err != nil {
		d.mu.Unlock()
		return err
	}
	el, err := d.live(loc)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	if el.RejectScript {
		d.mu.Unlock()
		return nil
	}
	el.Value = value
	return d.changed(el)
}

// changed runs the change hook outside the lock. It expects d.mu held.
func (d *Driver) changed(el *Element) error {
	hook := el.OnChange
	d.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	return nil
}

func (d *Driver) Text(_ context.Context, loc browser.Locator) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("Text %s", loc.Key()); err != nil {
		return "", err
	}
	el, err := d.live(loc)
	if err != nil {
		return "", err
	}
	return el.Text, nil
}

func (d *Driver) Checked(_ context.Context, loc browser.Locator) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("Checked %s", loc.Key()); err != nil {
		return false, err
	}
	el, err := d.live(loc)
	if err != nil {
		return false, err
	}
	return el.Checked, nil
}

func (d *Driver) SelectByValue(_ context.Context, loc browser.Locator, value string) error {
	return d.selectBy(loc, "SelectByValue", value, func(o Option) string { return o.Value })
}

func (d *Driver) SelectByText(_ context.Context, loc browser.Locator, text string) error {
	return d.selectBy(loc, "SelectByText", text, func(o Option) string { return o.Text })
}

func (d *Driver) selectBy(loc browser.Locator, call, want string, field func(Option) string) error {
	d.mu.Lock()
	if err := d.record("%s %s %s", call, loc.Key(), want); err != nil {
		d.mu.Unlock()
		return err
	}
	el, err := d.live(loc)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	for _, o := range el.Options {
		if field(o) == want {
			el.Value = o.Value
			return d.changed(el)
		}
	}
	d.mu.Unlock()
	return fmt.Errorf("%w: %q", browser.ErrNoSuchOption, want)
}

func (d *Driver) OuterHTML(_ context.Context, loc browser.Locator) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("OuterHTML %s", loc.Key()); err != nil {
		return "", err
	}
	el, err := d.live(loc)
	if err != nil {
		return "", err
	}
	return el.HTML, nil
}

func (d *Driver) Execute(_ context.Context, script string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.record("Execute %s", script)
}

func (d *Driver) Screenshot(_ context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("Screenshot"); err != nil {
		return nil, err
	}
	if d.ScreenshotErr != nil {
		return nil, d.ScreenshotErr
	}
	return []byte("png"), nil
}

func (d *Driver) ElementScreenshot(_ context.Context, loc browser.Locator) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("ElementScreenshot %s", loc.Key()); err != nil {
		return nil, err
	}
	el, err := d.live(loc)
	if err != nil {
		return nil, err
	}
	return el.Image, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "Close")
	d.closed = true
	return nil
}

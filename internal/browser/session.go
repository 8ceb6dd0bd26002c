package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/IliaW/name-check-worker/config"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
)

// Session is a Driver backed by a Chrome instance controlled through chromedp.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	log         *slog.Logger
	closed      atomic.Bool
	once        sync.Once
}

func NewSession(cfg *config.BrowserConfig, profilePath string, log *slog.Logger) (*Session, error) {
	log.Info("starting browser session.", slog.Bool("headless", cfg.Headless))
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-notifications", true),
	)
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if profilePath != "" {
		opts = append(opts, chromedp.UserDataDir(profilePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		log.Debug(fmt.Sprintf(format, args...))
	}))
	// the first Run starts the browser
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	log.Info("browser session started.")

	return &Session{
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		log:         log,
	}, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		s.log.Info("closing browser session.")
		err = chromedp.Cancel(s.ctx)
		s.cancel()
		s.allocCancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("browser did not close cleanly.", slog.String("err", err.Error()))
		} else {
			err = nil
		}
	})
	return err
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *Session) Location(ctx context.Context) (string, error) {
	var loc string
	err := s.run(ctx, chromedp.Location(&loc))
	return loc, err
}

func (s *Session) ReadyState(ctx context.Context) (string, error) {
	var state string
	err := s.run(ctx, chromedp.Evaluate(`document.readyState`, &state))
	return state, err
}

func (s *Session) State(ctx context.Context, loc Locator) (ElementState, error) {
	res, err := s.eval(ctx, loc, `
	const r = el.getBoundingClientRect();
	const st = window.getComputedStyle(el);
	const visible = st.display !== 'none' && st.visibility !== 'hidden' &&
		parseFloat(st.opacity || '1') > 0 && (r.width > 0 || r.height > 0);
	return {found: true, visible: visible, enabled: !el.disabled && el.getAttribute('aria-disabled') !== 'true'};`)
	if errors.Is(err, ErrNoSuchElement) {
		return ElementState{}, nil
	}
	if err != nil {
		return ElementState{}, err
	}
	return ElementState{Present: true, Visible: res.Visible, Enabled: res.Enabled}, nil
}

func (s *Session) ScrollIntoView(ctx context.Context, loc Locator) error {
	_, err := s.eval(ctx, loc, `el.scrollIntoView({behavior: 'smooth', block: 'center'}); return {found: true, ok: true};`)
	return err
}

func (s *Session) Click(ctx context.Context, loc Locator) error {
	res, err := s.eval(ctx, loc, `
	const r = el.getBoundingClientRect();
	const x = r.left + r.width / 2, y = r.top + r.height / 2;
	const top = document.elementFromPoint(x, y);
	return {found: true, ok: !!top && (top === el || el.contains(top)), x: x, y: y};`)
	if err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("%w: %s is covered by another element", ErrNotInteractable, loc)
	}
	return s.run(ctx, chromedp.MouseClickXY(res.X, res.Y))
}

func (s *Session) DispatchClick(ctx context.Context, loc Locator) error {
	_, err := s.eval(ctx, loc, `el.click(); return {found: true, ok: true};`)
	return err
}

func (s *Session) Clear(ctx context.Context, loc Locator) error {
	_, err := s.eval(ctx, loc, `
	el.focus();
	el.value = '';
	el.dispatchEvent(new Event('input', {bubbles: true}));
	return {found: true, ok: true};`)
	return err
}

func (s *Session) SendKeys(ctx context.Context, loc Locator, text string) error {
	if _, err := s.eval(ctx, loc, `el.focus(); return {found: true, ok: true};`); err != nil {
		return err
	}
	return s.run(ctx, chromedp.KeyEvent(text))
}

func (s *Session) Value(ctx context.Context, loc Locator) (string, error) {
	res, err := s.eval(ctx, loc, `return {found: true, value: el.value === undefined ? '' : String(el.value)};`)
	return res.Value, err
}

func (s *Session) SetValue(ctx context.Context, loc Locator, value string) error {
	_, err := s.eval(ctx, loc, fmt.Sprintf(`
	el.value = %s;
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));
	return {found: true, ok: true};`, jsString(value)))
	return err
}

func (s *Session) Text(ctx context.Context, loc Locator) (string, error) {
	res, err := s.eval(ctx, loc, `return {found: true, value: (el.innerText || el.textContent || '').trim()};`)
	return res.Value, err
}

func (s *Session) Checked(ctx context.Context, loc Locator) (bool, error) {
	res, err := s.eval(ctx, loc, `return {found: true, checked: !!el.checked};`)
	return res.Checked, err
}

func (s *Session) SelectByValue(ctx context.Context, loc Locator, value string) error {
	return s.selectOption(ctx, loc, "o.value", value)
}

func (s *Session) SelectByText(ctx context.Context, loc Locator, text string) error {
	return s.selectOption(ctx, loc, "o.text.trim()", text)
}

func (s *Session) selectOption(ctx context.Context, loc Locator, field, want string) error {
	res, err := s.eval(ctx, loc, fmt.Sprintf(`
	const opt = Array.from(el.options || []).find(o => %s === %s);
	if (!opt) { return {found: true, ok: false}; }
	el.value = opt.value;
	el.dispatchEvent(new Event('change', {bubbles: true}));
	return {found: true, ok: true};`, field, jsString(want)))
	if err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("%w: %q in %s", ErrNoSuchOption, want, loc)
	}
	return nil
}

func (s *Session) OuterHTML(ctx context.Context, loc Locator) (string, error) {
	res, err := s.eval(ctx, loc, `return {found: true, value: el.outerHTML};`)
	return res.Value, err
}

func (s *Session) Execute(ctx context.Context, script string) error {
	return s.run(ctx, chromedp.Evaluate(script, nil))
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

func (s *Session) ElementScreenshot(ctx context.Context, loc Locator) ([]byte, error) {
	res, err := s.eval(ctx, loc, `
	const r = el.getBoundingClientRect();
	return {found: true, x: r.left + window.scrollX, y: r.top + window.scrollY, width: r.width, height: r.height};`)
	if err != nil {
		return nil, err
	}
	if res.Width <= 0 || res.Height <= 0 {
		return nil, fmt.Errorf("%w: %s has no size", ErrNotInteractable, loc)
	}
	var buf []byte
	err = s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithCaptureBeyondViewport(true).
			WithClip(&page.Viewport{X: res.X, Y: res.Y, Width: res.Width, Height: res.Height, Scale: 1}).
			Do(ctx)
		return err
	}))
	return buf, err
}

type evalResult struct {
	Found   bool    `json:"found"`
	OK      bool    `json:"ok"`
	Value   string  `json:"value"`
	Visible bool    `json:"visible"`
	Enabled bool    `json:"enabled"`
	Checked bool    `json:"checked"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

func (s *Session) eval(ctx context.Context, loc Locator, body string) (evalResult, error) {
	var res evalResult
	if err := s.run(ctx, chromedp.Evaluate(elementScript(loc, body), &res)); err != nil {
		return res, err
	}
	if !res.Found {
		return res, fmt.Errorf("%w: %s", ErrNoSuchElement, loc)
	}
	return res, nil
}

// run executes actions on the browser tab while honouring cancellation of the caller's context.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if s.ctx.Err() != nil || errors.Is(err, chromedp.ErrInvalidContext) {
		return fmt.Errorf("%w: %v", ErrSessionClosed, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return classifyError(err)
}

const findElement = `function(by, sel) {
	switch (by) {
	case 'id': return document.getElementById(sel);
	case 'css': return document.querySelector(sel);
	case 'class': return document.getElementsByClassName(sel)[0] || null;
	case 'xpath': return document.evaluate(sel, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	}
	return null;
}`

func elementScript(loc Locator, body string) string {
	return fmt.Sprintf(`(function() {
	const el = (%s)(%s, %s);
	if (!el) { return {found: false}; }
	%s
})()`, findElement, jsString(string(loc.By)), jsString(loc.Selector), body)
}

func jsString(s string) string {
	out, err := jsoniter.MarshalToString(s)
	if err != nil {
		return `''`
	}
	return out
}

var (
	staleMarkers = []string{
		"could not find node",
		"no node with given id",
		"node is detached",
		"cannot find context with specified id",
		"execution context was destroyed",
	}
	closedMarkers = []string{
		"target closed",
		"websocket: close",
		"use of closed network connection",
		"session with given id not found",
	}
)

func classifyError(err error) error {
	msg := strings.ToLower(err.Error())
	for _, m := range staleMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %v", ErrStale, err)
		}
	}
	for _, m := range closedMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %v", ErrSessionClosed, err)
		}
	}
	return err
}

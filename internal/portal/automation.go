package portal

import (
	"context"
	"log/slog"

	"github.com/IliaW/name-check-worker/config"
	"github.com/IliaW/name-check-worker/internal/browser"
	"github.com/IliaW/name-check-worker/internal/model"
)

// SessionFactory starts a new browser for one run.
type SessionFactory func(ctx context.Context, cfg *config.Config) (browser.Driver, error)

// ChromeSessions starts chromedp sessions using the browser settings and profile of cfg.
func ChromeSessions(log *slog.Logger) SessionFactory {
	return func(_ context.Context, cfg *config.Config) (browser.Driver, error) {
		return browser.NewSession(cfg.BrowserSettings, cfg.Meta.ProfilePath, log)
	}
}

// Automation runs the name check against the portal. Every run owns its own browser session.
type Automation struct {
	newSession SessionFactory
	solver     Solver
	store      browser.ArtifactStore
	log        *slog.Logger
}

func NewAutomation(newSession SessionFactory, solver Solver, store browser.ArtifactStore, log *slog.Logger) *Automation {
	return &Automation{newSession: newSession, solver: solver, store: store, log: log}
}

// Page is an authenticated browser positioned on the form.
type Page struct {
	Driver browser.Driver
	It     *browser.Interactor
	State  AuthState
	log    *slog.Logger
}

func (p *Page) Close() {
	if err := p.Driver.Close(); err != nil {
		p.log.Warn("failed to close browser session.", slog.String("err", err.Error()))
	}
}

// Open starts a session, navigates to the form and logs in when needed. The session is closed on any failure.
func (a *Automation) Open(ctx context.Context, cfg *config.Config) (*Page, error) {
	d, err := a.newSession(ctx, cfg)
	if err != nil {
		a.log.Error("failed to start browser session.", slog.String("err", err.Error()))
		return nil, &browser.AutomationError{Step: "open_session", Msg: "failed to start browser", Err: err}
	}
	page := &Page{Driver: d, It: a.interactor(d, cfg), log: a.log}

	if err = a.prepare(ctx, cfg, page); err != nil {
		page.Close()
		return nil, err
	}
	return page, nil
}

func (a *Automation) prepare(ctx context.Context, cfg *config.Config, page *Page) error {
	it := page.It
	if err := it.Driver.Navigate(ctx, cfg.Meta.URL); err != nil {
		return err
	}
	if err := it.WaitForPageLoad(ctx, "open_form", it.StepTimeout, nil); err != nil {
		return err
	}

	captcha := NewCaptchaLoop(it, a.solver, cfg.BrowserSettings, a.log)
	auth := NewAuthenticator(it, captcha, cfg, a.log)
	state, err := auth.Detect(ctx)
	if err != nil {
		return err
	}
	a.log.Info("authentication state detected.", slog.String("state", state.String()))
	if state == NeedsLogin {
		if state, err = auth.Login(ctx); err != nil {
			page.State = state
			return err
		}
		if err = it.Driver.Navigate(ctx, cfg.Meta.URL); err != nil {
			return err
		}
		if err = it.WaitForPageLoad(ctx, "open_form", it.StepTimeout, nil); err != nil {
			return err
		}
	}
	page.State = state
	return nil
}

// Check fills the form for cfg.Meta and scrapes the result tabs. The session is always closed on return.
func (a *Automation) Check(ctx context.Context, cfg *config.Config) (model.ScrapeRecord, error) {
	page, err := a.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	form := NewFormFiller(page.It, cfg.FormSettings, a.log)
	if err = form.Fill(ctx, cfg.Meta.CompanyName, cfg.Meta.Codes()); err != nil {
		page.It.Capture(ctx, "automation_failure")
		return nil, err
	}
	// tables load after the check completes
	if err = browser.Sleep(ctx, 3*page.It.Settle); err != nil {
		return nil, err
	}
	return NewScraper(page.It, a.log).ScrapeAll(ctx), nil
}

func (a *Automation) interactor(d browser.Driver, cfg *config.Config) *browser.Interactor {
	it := browser.NewInteractor(d, cfg.BrowserSettings, a.store, a.log)
	it.Overlays = []string{ModalBackdrop.Selector}
	return it
}

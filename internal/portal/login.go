package portal

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/IliaW/name-check-worker/config"
	"github.com/IliaW/name-check-worker/internal/browser"
)

type AuthState int

const (
	Unknown AuthState = iota
	AlreadyAuthenticated
	NeedsLogin
	Authenticated
	LoginFailed
)

func (s AuthState) String() string {
	return [...]string{"unknown", "already authenticated", "needs login", "authenticated", "login failed"}[s]
}

const loginPage = "fologin.html"

// Authenticator detects whether the session is logged in and performs the login when it is not.
type Authenticator struct {
	it      *browser.Interactor
	captcha *CaptchaLoop
	cfg     *config.Config
	log     *slog.Logger
}

func NewAuthenticator(it *browser.Interactor, captcha *CaptchaLoop, cfg *config.Config, log *slog.Logger) *Authenticator {
	return &Authenticator{it: it, captcha: captcha, cfg: cfg, log: log}
}

// Detect inspects the current location and page. It is recomputed on every call.
func (a *Authenticator) Detect(ctx context.Context) (AuthState, error) {
	loc, err := a.it.Driver.Location(ctx)
	if err != nil {
		return Unknown, err
	}
	if target := a.cfg.Meta.URL; target != "" && strings.Contains(loc, target) {
		return AlreadyAuthenticated, nil
	}
	if login := a.cfg.PortalSettings.LoginURL; login != "" && strings.Contains(loc, login) || strings.Contains(loc, loginPage) {
		return NeedsLogin, nil
	}
	for _, probe := range []browser.Locator{PasswordField, LoginButton} {
		st, err := a.it.Driver.State(ctx, probe)
		if err != nil {
			return Unknown, err
		}
		if st.Present {
			return NeedsLogin, nil
		}
	}
	// nothing points at a login page
	return AlreadyAuthenticated, nil
}

// Login signs in with the configured credentials. Missing credentials fail before the browser is touched.
func (a *Authenticator) Login(ctx context.Context) (AuthState, error) {
	if missing := a.cfg.MissingCredentials(); len(missing) > 0 {
		a.log.Error("credentials are not configured.", slog.String("missing", strings.Join(missing, ", ")))
		return LoginFailed, &browser.AutomationError{
			Step: "login",
			Msg:  "missing " + strings.Join(missing, " and "),
			Err:  config.ErrMissingCredentials,
		}
	}
	portal := a.cfg.PortalSettings
	a.log.Info("logging in to the portal.")

	if err := a.it.Driver.Navigate(ctx, portal.LoginURL); err != nil {
		return LoginFailed, err
	}
	if err := a.it.WaitForPageLoad(ctx, "login_page", a.it.StepTimeout, nil); err != nil {
		return LoginFailed, err
	}
	loc, err := a.it.Driver.Location(ctx)
	if err != nil {
		return LoginFailed, err
	}

	if portal.HomeURL != "" && strings.Contains(loc, portal.HomeURL) {
		// the portal sends already signed-in users to the home page
		a.log.Info("redirected to home page. skipping login form.")
		if err = a.it.Driver.Navigate(ctx, portal.ApplicationHistoryURL); err != nil {
			return LoginFailed, err
		}
		if err = a.it.WaitForPageLoad(ctx, "application_history", a.it.StepTimeout, nil); err != nil {
			return LoginFailed, err
		}
	} else if err = a.fillLoginForm(ctx); err != nil {
		return LoginFailed, err
	}

	if err = a.VerifyLocation(ctx); err != nil {
		return LoginFailed, err
	}
	a.log.Info("login successful.")
	return Authenticated, nil
}

func (a *Authenticator) fillLoginForm(ctx context.Context) error {
	if err := a.it.WaitFor(ctx, "login_form", CaptchaImage, browser.Present, a.it.StepTimeout); err != nil {
		return err
	}
	if err := a.it.SendText(ctx, UsernameInput, a.cfg.Username, browser.WithStep("login_username")); err != nil {
		return err
	}
	if err := a.it.SendText(ctx, PasswordInput, a.cfg.Password, browser.WithStep("login_password")); err != nil {
		return err
	}
	if err := a.captcha.Run(ctx); err != nil {
		return err
	}
	if err := a.it.WaitForPageLoad(ctx, "login_submit", a.it.StepTimeout, nil); err != nil {
		a.log.Warn("page not ready after login.", slog.String("err", err.Error()))
	}
	return nil
}

// VerifyLocation waits until the browser lands on the application history page.
func (a *Authenticator) VerifyLocation(ctx context.Context) error {
	want := a.cfg.PortalSettings.ApplicationHistoryURL
	var last string
	err := a.it.Until(ctx, "login_verify", "application history page", a.it.StepTimeout,
		func(ctx context.Context) (bool, error) {
			loc, err := a.it.Driver.Location(ctx)
			last = loc
			return strings.Contains(loc, want), err
		})
	if err == nil {
		return nil
	}
	var timeout *browser.TimeoutReachedError
	if errors.As(err, &timeout) {
		a.log.Error("login failed.", slog.String("location", last), slog.String("expected", want))
		return &browser.AutomationError{Step: "login", Msg: "login failed, browser is at " + last, Err: err}
	}
	return err
}

package portal_test

import (
	"context"
	"testing"

	"github.com/IliaW/name-check-worker/config"
	"github.com/IliaW/name-check-worker/internal/browser"
	"github.com/IliaW/name-check-worker/internal/browser/browsertest"
	"github.com/IliaW/name-check-worker/internal/portal"
	"github.com/IliaW/name-check-worker/internal/portal/portaltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authenticator(cfg *config.Config, p *portaltest.Portal, solver portal.Solver) *portal.Authenticator {
	it := interactor(cfg, p)
	captcha := portal.NewCaptchaLoop(it, solver, cfg.BrowserSettings, discard)
	return portal.NewAuthenticator(it, captcha, cfg, discard)
}

func TestDetect(t *testing.T) {
	cfg := testConfig(t)
	tests := []struct {
		name  string
		setup func(p *portaltest.Portal)
		want  portal.AuthState
	}{
		{
			name:  "on the form",
			setup: func(p *portaltest.Portal) { p.SetURL(cfg.Meta.URL) },
			want:  portal.AlreadyAuthenticated,
		},
		{
			name:  "on the login page",
			setup: func(p *portaltest.Portal) { p.SetURL(cfg.PortalSettings.LoginURL + "?redirect=1") },
			want:  portal.NeedsLogin,
		},
		{
			name: "password field elsewhere",
			setup: func(p *portaltest.Portal) {
				p.SetURL("https://portal.example/session-expired")
				p.Set(portal.PasswordField, browsertest.Live())
			},
			want: portal.NeedsLogin,
		},
		{
			name:  "unrecognised page",
			setup: func(p *portaltest.Portal) { p.SetURL("https://portal.example/dashboard") },
			want:  portal.AlreadyAuthenticated,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := portaltest.New(cfg, false)
			tt.setup(p)

			state, err := authenticator(cfg, p, &portaltest.Solver{}).Detect(context.Background())

			require.NoError(t, err)
			assert.Equal(t, tt.want, state)
		})
	}
}

func TestLoginMissingCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.Password = ""
	p := portaltest.New(cfg, false)

	state, err := authenticator(cfg, p, &portaltest.Solver{}).Login(context.Background())

	assert.Equal(t, portal.LoginFailed, state)
	require.ErrorIs(t, err, config.ErrMissingCredentials)
	require.ErrorIs(t, err, browser.ErrAutomation)
	assert.Contains(t, err.Error(), "missing password")
	assert.Empty(t, p.Calls())
}

func TestLogin(t *testing.T) {
	cfg := testConfig(t)
	p := portaltest.New(cfg, false)
	solver := &portaltest.Solver{}

	state, err := authenticator(cfg, p, solver).Login(context.Background())

	require.NoError(t, err)
	assert.Equal(t, portal.Authenticated, state)
	assert.Equal(t, 1, solver.Calls())
	assert.Equal(t, cfg.Username, p.Element(portal.UsernameInput).Value)
	assert.Equal(t, cfg.Password, p.Element(portal.PasswordInput).Value)
	assert.True(t, p.LoggedIn())
}

func TestLoginHomeRedirectSkipsForm(t *testing.T) {
	cfg := testConfig(t)
	p := portaltest.New(cfg, false)
	p.HomeRedirect = true
	solver := &portaltest.Solver{}

	state, err := authenticator(cfg, p, solver).Login(context.Background())

	require.NoError(t, err)
	assert.Equal(t, portal.Authenticated, state)
	assert.Zero(t, solver.Calls())
	assert.Equal(t, 1, p.Count("Navigate "+cfg.PortalSettings.ApplicationHistoryURL))
}

func TestLoginStuckOnLoginPage(t *testing.T) {
	cfg := testConfig(t)
	p := portaltest.New(cfg, false)
	p.StuckAfterLogin = true

	state, err := authenticator(cfg, p, &portaltest.Solver{}).Login(context.Background())

	assert.Equal(t, portal.LoginFailed, state)
	var automation *browser.AutomationError
	require.ErrorAs(t, err, &automation)
	assert.Contains(t, automation.Msg, "login failed, browser is at "+cfg.PortalSettings.LoginURL)
}

func TestLoginCaptchaExhausted(t *testing.T) {
	cfg := testConfig(t)
	p := portaltest.New(cfg, false)
	solver := &portaltest.Solver{Answers: []string{"WRONG"}}

	state, err := authenticator(cfg, p, solver).Login(context.Background())

	assert.Equal(t, portal.LoginFailed, state)
	var failed *browser.VerificationStepFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, cfg.BrowserSettings.CaptchaAttempts, solver.Calls())
}

package portal_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IliaW/name-check-worker/config"
	"github.com/IliaW/name-check-worker/internal/browser"
	"github.com/IliaW/name-check-worker/internal/portal"
	"github.com/IliaW/name-check-worker/internal/portal/portaltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captchaPage struct {
	cfg *config.Config
	it  *browser.Interactor
}

func loginPage(t *testing.T) (*portaltest.Portal, *captchaPage) {
	cfg := testConfig(t)
	p := portaltest.New(cfg, false)
	require.NoError(t, p.Navigate(context.Background(), cfg.PortalSettings.LoginURL))
	return p, &captchaPage{cfg: cfg, it: interactor(cfg, p)}
}

func (c *captchaPage) loop(solver portal.Solver, attempts int) *portal.CaptchaLoop {
	bc := *c.cfg.BrowserSettings
	bc.CaptchaAttempts = attempts
	return portal.NewCaptchaLoop(c.it, solver, &bc, discard)
}

func TestCaptchaAccepted(t *testing.T) {
	p, page := loginPage(t)
	solver := &portaltest.Solver{}

	err := page.loop(solver, 3).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, solver.Calls())
	assert.True(t, p.LoggedIn())
	assert.Zero(t, p.Count("Click "+portal.CaptchaRefresh.Key()))
}

func TestCaptchaRejectWaitIsConfigurable(t *testing.T) {
	p, page := loginPage(t)
	page.cfg.BrowserSettings.CaptchaTimeout = 2 * time.Second
	page.cfg.BrowserSettings.CaptchaRejectWait = 5 * time.Millisecond

	start := time.Now()
	err := page.loop(&portaltest.Solver{}, 1).Run(context.Background())

	require.NoError(t, err)
	assert.True(t, p.LoggedIn())
	assert.Less(t, time.Since(start), time.Second)
}

func TestCaptchaRetriesAfterIncorrectAnswer(t *testing.T) {
	p, page := loginPage(t)
	solver := &portaltest.Solver{Answers: []string{"WRONG", portaltest.CaptchaAnswer}}

	err := page.loop(solver, 3).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, solver.Calls())
	assert.Equal(t, 1, p.Count("Click "+portal.CaptchaRefresh.Key()))
	assert.True(t, p.LoggedIn())
}

func TestCaptchaAttemptsAreBounded(t *testing.T) {
	p, page := loginPage(t)
	solver := &portaltest.Solver{Answers: []string{"WRONG"}}

	err := page.loop(solver, 3).Run(context.Background())

	var failed *browser.VerificationStepFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "captcha", failed.Step)
	assert.Equal(t, 3, failed.Attempts)
	assert.Equal(t, 3, solver.Calls())
	// no refresh after the last attempt
	assert.Equal(t, 2, p.Count("Click "+portal.CaptchaRefresh.Key()))
	assert.False(t, p.LoggedIn())
}

func TestCaptchaSolverErrorUsesAttempt(t *testing.T) {
	_, page := loginPage(t)
	solver := &portaltest.Solver{Err: errors.New("service unavailable")}

	err := page.loop(solver, 2).Run(context.Background())

	require.ErrorIs(t, err, browser.ErrAutomation)
	assert.Equal(t, 2, solver.Calls())
}

func TestCaptchaStopsOnClosedSession(t *testing.T) {
	p, page := loginPage(t)
	require.NoError(t, p.Close())
	solver := &portaltest.Solver{}

	err := page.loop(solver, 3).Run(context.Background())

	require.ErrorIs(t, err, browser.ErrSessionClosed)
	assert.Zero(t, solver.Calls())
}

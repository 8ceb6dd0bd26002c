package portal

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IliaW/name-check-worker/config"
	"github.com/IliaW/name-check-worker/internal/browser"
	"github.com/cenkalti/backoff/v4"
)

// Solver reads the text of a CAPTCHA image given as base64 encoded PNG.
type Solver interface {
	Solve(ctx context.Context, imageBase64 string) (string, error)
}

var errCaptchaRejected = errors.New("captcha rejected by portal")

// CaptchaLoop solves the login CAPTCHA, refreshing it after every failed attempt.
type CaptchaLoop struct {
	it         *browser.Interactor
	solver     Solver
	attempts   int
	timeout    time.Duration
	rejectWait time.Duration
	log        *slog.Logger
}

// NewCaptchaLoop reads the attempt count and waits from cfg. A zero CaptchaRejectWait falls back to CaptchaTimeout.
func NewCaptchaLoop(it *browser.Interactor, solver Solver, cfg *config.BrowserConfig, log *slog.Logger) *CaptchaLoop {
	attempts := cfg.CaptchaAttempts
	if attempts < 1 {
		attempts = 1
	}
	rejectWait := cfg.CaptchaRejectWait
	if rejectWait <= 0 {
		rejectWait = cfg.CaptchaTimeout
	}
	return &CaptchaLoop{
		it:         it,
		solver:     solver,
		attempts:   attempts,
		timeout:    cfg.CaptchaTimeout,
		rejectWait: rejectWait,
		log:        log,
	}
}

// Run makes at most the configured number of attempts. An incorrect-CAPTCHA message counts as a used attempt.
func (c *CaptchaLoop) Run(ctx context.Context) error {
	attempt := 0
	operation := func() error {
		attempt++
		if attempt > 1 {
			c.refresh(ctx)
		}
		c.log.Info("solving captcha.", slog.Int("attempt", attempt), slog.Int("max", c.attempts))
		err := c.attempt(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, browser.ErrSessionClosed) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		c.log.Warn("captcha attempt failed.", slog.Int("attempt", attempt), slog.String("err", err.Error()))
		return err
	}

	err := backoff.Retry(operation, backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(c.attempts-1)))
	switch {
	case err == nil:
		c.log.Info("captcha accepted.")
		return nil
	case errors.Is(err, browser.ErrSessionClosed) || ctx.Err() != nil:
		return err
	}
	c.log.Error("captcha attempts exhausted.", slog.Int("attempts", c.attempts))
	return &browser.VerificationStepFailedError{Step: "captcha", Attempts: c.attempts, Err: err}
}

func (c *CaptchaLoop) attempt(ctx context.Context) error {
	if err := c.it.WaitFor(ctx, "captcha_image", CaptchaImage, browser.Present, c.it.Timeout); err != nil {
		return err
	}
	img, err := c.it.Driver.ElementScreenshot(ctx, CaptchaImage)
	if err != nil {
		return fmt.Errorf("capture captcha image: %w", err)
	}
	text, err := c.solver.Solve(ctx, base64.StdEncoding.EncodeToString(img))
	if err != nil {
		return fmt.Errorf("solve captcha: %w", err)
	}
	c.log.Debug("captcha solved.", slog.String("text", text))

	if err = c.it.SendText(ctx, CaptchaInput, text, browser.WithStep("captcha_input")); err != nil {
		return err
	}
	if err = c.it.Click(ctx, LoginSubmit, browser.WithStep("captcha_submit")); err != nil {
		return err
	}
	if err = c.it.WaitForPageLoad(ctx, "captcha_submit", c.timeout, nil); err != nil {
		if errors.Is(err, browser.ErrSessionClosed) {
			return err
		}
		c.log.Warn("page not ready after captcha submit.", slog.String("err", err.Error()))
	}

	rejected, err := c.it.Observe(ctx, c.rejectWait, c.rejected)
	if err != nil {
		return err
	}
	if rejected {
		if err = c.it.ClearText(ctx, CaptchaInput, browser.WithStep("captcha_clear")); err != nil {
			c.log.Warn("failed to clear captcha input.", slog.String("err", err.Error()))
		}
		return errCaptchaRejected
	}
	return nil
}

// rejected reports whether the incorrect-CAPTCHA message is on screen.
func (c *CaptchaLoop) rejected(ctx context.Context) (bool, error) {
	st, err := c.it.Driver.State(ctx, CaptchaError)
	if err != nil || !st.Visible {
		return false, err
	}
	text, err := c.it.Driver.Text(ctx, CaptchaError)
	if err != nil {
		return false, err
	}
	return strings.Contains(strings.ToLower(text), "incorrect"), nil
}

func (c *CaptchaLoop) refresh(ctx context.Context) {
	if err := c.it.Click(ctx, CaptchaRefresh, browser.WithStep("captcha_refresh")); err != nil {
		c.log.Warn("failed to refresh captcha.", slog.String("err", err.Error()))
	}
	_ = browser.Sleep(ctx, c.it.Settle)
}

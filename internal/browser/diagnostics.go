package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// ArtifactStore archives diagnostic files outside the local machine.
type ArtifactStore interface {
	WriteArtifact(ctx context.Context, name string, body []byte) string
}

// Diagnostics captures screenshots when a step fails. Capture is best-effort and never fails the caller.
type Diagnostics struct {
	Dir   string
	Store ArtifactStore
	Log   *slog.Logger
	Now   func() time.Time
	// Timeout bounds the screenshot and its upload. Zero means defaultScreenshotTimeout.
	Timeout time.Duration
}

const defaultScreenshotTimeout = 10 * time.Second

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// FileName builds the screenshot name for a failed step.
func FileName(step string, at time.Time) string {
	return fmt.Sprintf("error_%s_%s.png", unsafeChars.ReplaceAllString(step, "_"), at.Format("20060102-150405"))
}

// Capture saves a screenshot of the current page tagged with step and returns its path,
// or an empty string when nothing could be saved.
func (d *Diagnostics) Capture(ctx context.Context, driver Driver, step string) string {
	if d == nil || driver == nil {
		return ""
	}
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultScreenshotTimeout
	}
	// the caller's context may already be done, the screenshot is still worth taking
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	img, err := driver.Screenshot(sctx)
	if err != nil {
		d.Log.Warn("failed to take screenshot.", slog.String("step", step), slog.String("err", err.Error()))
		return ""
	}
	name := FileName(step, now())
	path := filepath.Join(d.Dir, name)
	if err = os.MkdirAll(d.Dir, 0o755); err != nil {
		d.Log.Warn("failed to create screenshot directory.", slog.String("err", err.Error()))
		return ""
	}
	if err = os.WriteFile(path, img, 0o644); err != nil {
		d.Log.Warn("failed to save screenshot.", slog.String("path", path), slog.String("err", err.Error()))
		return ""
	}
	d.Log.Info("screenshot saved.", slog.String("step", step), slog.String("path", path))
	if d.Store != nil {
		if link := d.Store.WriteArtifact(sctx, name, img); link != "" {
			d.Log.Debug("screenshot archived.", slog.String("link", link))
		}
	}

	return path
}

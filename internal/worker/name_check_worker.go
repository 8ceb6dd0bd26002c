package worker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/IliaW/name-check-worker/config"
	"github.com/IliaW/name-check-worker/internal/analyser"
	"github.com/IliaW/name-check-worker/internal/aws_s3"
	"github.com/IliaW/name-check-worker/internal/browser"
	"github.com/IliaW/name-check-worker/internal/cache"
	"github.com/IliaW/name-check-worker/internal/llm"
	"github.com/IliaW/name-check-worker/internal/model"
	"github.com/IliaW/name-check-worker/internal/persistence"
)

// Checker runs the portal automation for one request.
type Checker interface {
	Check(ctx context.Context, cfg *config.Config) (model.ScrapeRecord, error)
}

type Analyser interface {
	Analyse(ctx context.Context, record model.ScrapeRecord, checkType model.CheckType) (*model.Analysis, error)
}

type NameCheckWorker struct {
	InputChan  <-chan *model.NameCheckTask
	OutputChan chan<- *model.NameCheckResult
	PanicChan  chan struct{}
	Automation Checker
	Analyser   Analyser
	Cfg        *config.Config
	Log        *slog.Logger
	Db         persistence.HistoryStorage
	S3         aws_s3.BucketClient
	Cache      cache.CachedClient
	Wg         *sync.WaitGroup
}

const unexpectedError = "An unexpected error occurred. Site might be slow or unresponsive."

// CacheKey is the payload a check result is cached under.
type CacheKey struct {
	Name      string          `json:"name"`
	NicCode   string          `json:"nic_code"`
	CheckType model.CheckType `json:"check_type"`
}

func NewCacheKey(name, nicCode string, checkType model.CheckType) CacheKey {
	return CacheKey{
		Name:      strings.ToUpper(strings.Join(strings.Fields(name), " ")),
		NicCode:   strings.ReplaceAll(nicCode, " ", ""),
		CheckType: checkType,
	}
}

// Run starts the name check worker. Each task is checked with its own browser session, one at a time.
// A task that panics is still answered. The worker then adds one to Wg for its replacement, signals
// PanicChan and stops; the reader of PanicChan either starts a new Run or calls Wg.Done.
func (w *NameCheckWorker) Run(ctx context.Context) {
	defer w.Wg.Done()
	w.Log.Debug("starting name check worker.")

	for task := range w.InputChan {
		result, ok := w.safeProcess(ctx, task)
		if task.Reply != nil {
			task.Reply <- result
		}
		if w.OutputChan != nil {
			w.OutputChan <- result
		}
		if !ok {
			w.Wg.Add(1)
			w.PanicChan <- struct{}{}
			return
		}
	}
	w.Log.Debug("name check worker stopped.")
}

func (w *NameCheckWorker) safeProcess(ctx context.Context, task *model.NameCheckTask) (result *model.NameCheckResult, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			w.Log.Error("PANIC!", slog.Any("err", r), slog.String("id", task.ID))
			result = &model.NameCheckResult{
				ID:         task.ID,
				Name:       task.Name,
				CheckType:  task.CheckType,
				WorkerVers: w.Cfg.Version,
				Error:      unexpectedError,
				CheckedAt:  time.Now().UTC(),
			}
			ok = false
		}
	}()
	return w.Process(ctx, task), true
}

// Process checks one company name and archives the outcome. It never returns nil.
func (w *NameCheckWorker) Process(ctx context.Context, task *model.NameCheckTask) *model.NameCheckResult {
	start := time.Now()
	checkType := task.CheckType
	if checkType == "" {
		checkType = model.CheckType(w.Cfg.Meta.CheckType)
	}
	log := w.Log.With(slog.String("id", task.ID), slog.String("name", task.Name))
	result := &model.NameCheckResult{
		ID:         task.ID,
		Name:       task.Name,
		CheckType:  checkType,
		WorkerVers: w.Cfg.Version,
	}
	if strings.TrimSpace(task.Name) == "" {
		result.Error = "Company name is required."
		return w.finish(result, start)
	}

	if ctx.Err() != nil {
		result.Error = "The service is shutting down. Please try again later."
		return w.finish(result, start)
	}

	key := NewCacheKey(task.Name, task.NicCode, checkType)
	if cached, ok := w.Cache.Get(key); ok {
		log.Info("returning cached result.")
		cached.ID = task.ID
		return cached
	}

	cfg := w.Cfg.ForRequest(task.Name, task.NicCode, string(checkType))
	tctx, cancel := context.WithTimeout(ctx, w.Cfg.WorkerSettings.TaskTimeout)
	defer cancel()

	log.Info("starting name check.")
	record, err := w.Automation.Check(tctx, cfg)
	if err != nil {
		log.Error("name check failed.", slog.String("err", err.Error()))
		result.Error = UserMessage(err)
		return w.archive(tctx, w.finish(result, start))
	}
	result.Scrape = record

	analysis, err := w.Analyser.Analyse(tctx, record, checkType)
	if err != nil {
		log.Error("analysis failed.", slog.String("err", err.Error()))
		result.Error = UserMessage(err)
		return w.archive(tctx, w.finish(result, start))
	}
	if analysis.Verdict == model.NotValid {
		analysis.RecommendedNames = llm.Validate([]string{task.Name, analysis.BaseName}, analysis.RecommendedNames,
			analysis.BaseName)
	}
	result.Analysis = analysis
	result.Success = true
	w.finish(result, start)
	log.Info("name check finished.", slog.String("verdict", string(analysis.Verdict)),
		slog.Duration("duration", result.Duration))

	w.Cache.Set(key, result)
	return w.archive(tctx, result)
}

func (w *NameCheckWorker) finish(result *model.NameCheckResult, start time.Time) *model.NameCheckResult {
	result.Duration = time.Since(start)
	result.CheckedAt = time.Now().UTC()
	return result
}

func (w *NameCheckWorker) archive(ctx context.Context, result *model.NameCheckResult) *model.NameCheckResult {
	if w.Db != nil {
		w.Db.Save(result)
	}
	if w.S3 != nil {
		// the archive outlives the task deadline
		w.S3.WriteResult(context.WithoutCancel(ctx), result)
	}
	return result
}

// UserMessage converts an internal error into the message returned to callers. Details stay in the logs.
func UserMessage(err error) string {
	var (
		automation   *browser.AutomationError
		timeout      *browser.TimeoutReachedError
		interactable *browser.ElementNotInteractableError
		verification *browser.VerificationStepFailedError
	)
	switch {
	case errors.Is(err, browser.ErrSessionClosed):
		return "The automation browser closed unexpectedly. Please try again."
	case errors.Is(err, config.ErrMissingCredentials):
		return "Portal credentials are not configured."
	case errors.As(err, &automation) && automation.Step == "login":
		return "Login to the portal failed. Please try again later."
	case errors.As(err, &automation) && automation.Step == "open_session":
		return "A critical error occurred with the automation browser. Please try again."
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &timeout):
		return "A required element on the page did not load in time. The website may be experiencing high load or is unresponsive."
	case errors.As(err, &interactable):
		return "Automation failed because an element was blocked by another element on the page (like a pop-up or loading spinner)."
	case errors.As(err, &verification):
		return "Automation process failed at a critical step: " + verification.Step + "."
	case errors.Is(err, browser.ErrNoSuchElement):
		return "Automation failed because a required element could not be found. The website's structure may have been updated."
	case errors.Is(err, analyser.ErrNoResults):
		return "The portal did not return any name check results."
	case errors.Is(err, browser.ErrAutomation):
		return "Automation process failed at a critical step."
	default:
		return unexpectedError
	}
}

package worker_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/IliaW/name-check-worker/config"
	"github.com/IliaW/name-check-worker/internal/analyser"
	"github.com/IliaW/name-check-worker/internal/browser"
	"github.com/IliaW/name-check-worker/internal/model"
	"github.com/IliaW/name-check-worker/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blockingErrors = `<table id="errorTable">
<tr><th>Type</th><th>Field</th><th>Message</th></tr>
<tr><td>Error</td><td>Name</td><td>Name is too similar to an existing company</td></tr>
</table>`

const passingErrors = `<table id="errorTable">
<tr><td>Info</td><td>Name</td><td>Name is available</td></tr>
</table>`

const similarNames = `<table id="nameSimilarityAlertsTable">
<tr><td>ACME ROBOTICS PRIVATE LIMITED</td><td>98%</td></tr>
</table>`

func TestProcessRejectedName(t *testing.T) {
	f := newFixture(t, false)
	f.portal.Results = map[model.TabKey]string{model.ErrorTab: blockingErrors, model.NameSimilarityTab: similarNames}
	task := &model.NameCheckTask{ID: "1", Name: "ACME ROBOTICS"}

	result := f.worker.Process(context.Background(), task)

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "1", result.ID)
	assert.Equal(t, model.NameCheck, result.CheckType)
	assert.Equal(t, model.NotValid, result.Analysis.Verdict)
	assert.Equal(t, []string{"Name is too similar to an existing company"}, result.Analysis.BlockingMessages)
	assert.Equal(t, "ACME ROBOTICS PRIVATE LIMITED", result.Analysis.BaseName)
	names := result.Analysis.RecommendedNames
	assert.GreaterOrEqual(t, len(names), 3)
	assert.LessOrEqual(t, len(names), 7)
	for _, s := range names {
		assert.NotEqual(t, "acme robotics", strings.ToLower(s.Name))
		assert.NotEqual(t, "acme robotics private limited", strings.ToLower(s.Name))
	}
	assert.Len(t, result.Scrape[model.ErrorTab], 2)
	assert.Equal(t, 1, f.solver.Calls())
	assert.True(t, f.portal.Closed())
	assert.Equal(t, 1, f.history.Len())
}

func TestProcessAcceptedName(t *testing.T) {
	f := newFixture(t, true)
	f.portal.Results = map[model.TabKey]string{model.ErrorTab: passingErrors}

	result := f.worker.Process(context.Background(), &model.NameCheckTask{ID: "2", Name: "Zyphra Labs"})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, model.Valid, result.Analysis.Verdict)
	assert.Empty(t, result.Analysis.RecommendedNames)
	assert.Zero(t, f.solver.Calls())
}

func TestProcessUsesCache(t *testing.T) {
	f := newFixture(t, true)
	f.portal.Results = map[model.TabKey]string{model.ErrorTab: passingErrors}

	first := f.worker.Process(context.Background(), &model.NameCheckTask{ID: "1", Name: "Zyphra Labs"})
	// the fake portal hands out a single session, a second browser run would fail
	second := f.worker.Process(context.Background(), &model.NameCheckTask{ID: "2", Name: "  zyphra   labs "})

	require.True(t, first.Success)
	require.True(t, second.Success, second.Error)
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, "2", second.ID)
	assert.Equal(t, 1, f.history.Len())
}

func TestProcessLoginFailure(t *testing.T) {
	f := newFixture(t, false)
	f.portal.StuckAfterLogin = true

	result := f.worker.Process(context.Background(), &model.NameCheckTask{ID: "3", Name: "ACME ROBOTICS"})

	assert.False(t, result.Success)
	assert.Equal(t, "Login to the portal failed. Please try again later.", result.Error)
	assert.Equal(t, result.Error, result.Envelope().Error)
	assert.Nil(t, result.Envelope().Data)
	assert.True(t, f.portal.Closed())
	assert.Equal(t, 1, f.history.Len())
	_, cached := f.cache.Get(worker.NewCacheKey("ACME ROBOTICS", "", model.NameCheck))
	assert.False(t, cached)
}

func TestProcessMissingCredentials(t *testing.T) {
	f := newFixture(t, false)
	f.cfg.Password = ""

	result := f.worker.Process(context.Background(), &model.NameCheckTask{ID: "4", Name: "ACME ROBOTICS"})

	assert.False(t, result.Success)
	assert.Equal(t, "Portal credentials are not configured.", result.Error)
	assert.Zero(t, f.solver.Calls())
}

func TestProcessEmptyName(t *testing.T) {
	f := newFixture(t, true)

	result := f.worker.Process(context.Background(), &model.NameCheckTask{ID: "5", Name: "   "})

	assert.False(t, result.Success)
	assert.Equal(t, "Company name is required.", result.Error)
	assert.Empty(t, f.portal.Calls())
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"session closed", fmt.Errorf("click: %w", browser.ErrSessionClosed), "The automation browser closed unexpectedly. Please try again."},
		{"missing credentials", &browser.AutomationError{Step: "login", Err: config.ErrMissingCredentials}, "Portal credentials are not configured."},
		{"login", &browser.AutomationError{Step: "login", Msg: "login failed"}, "Login to the portal failed. Please try again later."},
		{"timeout", &browser.TimeoutReachedError{Step: "open_form"}, "A required element on the page did not load in time. The website may be experiencing high load or is unresponsive."},
		{"deadline", context.DeadlineExceeded, "A required element on the page did not load in time. The website may be experiencing high load or is unresponsive."},
		{"not interactable", &browser.ElementNotInteractableError{Step: "auto_check"}, "Automation failed because an element was blocked by another element on the page (like a pop-up or loading spinner)."},
		{"step failed", &browser.VerificationStepFailedError{Step: "captcha", Attempts: 3}, "Automation process failed at a critical step: captcha."},
		{"no such element", browser.ErrNoSuchElement, "Automation failed because a required element could not be found. The website's structure may have been updated."},
		{"no results", analyser.ErrNoResults, "The portal did not return any name check results."},
		{"other", errors.New("boom"), "An unexpected error occurred. Site might be slow or unresponsive."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, worker.UserMessage(tt.err))
		})
	}
}

func TestRunRepliesAndForwards(t *testing.T) {
	f := newFixture(t, true)
	input := make(chan *model.NameCheckTask, 1)
	output := make(chan *model.NameCheckResult, 1)
	wg := &sync.WaitGroup{}
	f.worker.InputChan = input
	f.worker.OutputChan = output
	f.worker.PanicChan = make(chan struct{}, 1)
	f.worker.Wg = wg

	reply := make(chan *model.NameCheckResult, 1)
	input <- &model.NameCheckTask{ID: "6", Name: "", Reply: reply}
	close(input)
	wg.Add(1)
	f.worker.Run(context.Background())
	wg.Wait()

	assert.Equal(t, "6", (<-reply).ID)
	assert.Equal(t, "6", (<-output).ID)
}

type panicking struct{}

func (panicking) Check(context.Context, *config.Config) (model.ScrapeRecord, error) {
	panic("chrome crashed")
}

func TestRunReportsPanic(t *testing.T) {
	f := newFixture(t, true)
	input := make(chan *model.NameCheckTask, 2)
	output := make(chan *model.NameCheckResult, 2)
	wg := &sync.WaitGroup{}
	f.worker.InputChan = input
	f.worker.OutputChan = output
	f.worker.PanicChan = make(chan struct{}, 1)
	f.worker.Wg = wg
	f.worker.Automation = panicking{}

	reply := make(chan *model.NameCheckResult, 1)
	input <- &model.NameCheckTask{ID: "7", Name: "ACME ROBOTICS", Reply: reply}
	input <- &model.NameCheckTask{ID: "8", Name: "ACME ROBOTICS"}
	wg.Add(1)
	f.worker.Run(context.Background())

	require.Len(t, reply, 1)
	result := <-reply
	assert.Equal(t, "7", result.ID)
	assert.False(t, result.Success)
	assert.Equal(t, "An unexpected error occurred. Site might be slow or unresponsive.", result.Envelope().Error)
	assert.Equal(t, "7", (<-output).ID)

	// the crashed worker stops and leaves the next task to its replacement
	assert.Len(t, input, 1)
	require.Len(t, f.worker.PanicChan, 1)
	<-f.worker.PanicChan
	wg.Done()
	wg.Wait()
}

func TestProcessAfterShutdown(t *testing.T) {
	f := newFixture(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := f.worker.Process(ctx, &model.NameCheckTask{ID: "8", Name: "ACME ROBOTICS"})

	assert.False(t, result.Success)
	assert.Equal(t, "The service is shutting down. Please try again later.", result.Error)
	assert.Empty(t, f.portal.Calls())
}

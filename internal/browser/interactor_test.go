package browser_test

import (
	"context"
	"errors"
	"testing"

	"github.com/IliaW/name-check-worker/internal/browser"
	"github.com/IliaW/name-check-worker/internal/browser/browsertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClick(t *testing.T) {
	it, d := newInteractor(t)
	clicked := 0
	el := d.Set(button, browsertest.Live())
	el.OnClick = func(*browsertest.Driver) { clicked++ }

	require.NoError(t, it.Click(context.Background(), button))
	assert.Equal(t, 1, clicked)
	assert.Equal(t, 1, d.Count("ScrollIntoView"))
	assert.Zero(t, d.Count("DispatchClick"))
}

func TestClickFallsBackToScriptedClick(t *testing.T) {
	it, d := newInteractor(t)
	el := d.Set(button, browsertest.Live())
	el.ClickErrs = []error{browser.ErrNotInteractable}

	require.NoError(t, it.Click(context.Background(), button))
	assert.Equal(t, 1, d.Count("Click id=button"))
	assert.Equal(t, 1, d.Count("DispatchClick id=button"))
}

func TestClickRetriesStaleElement(t *testing.T) {
	it, d := newInteractor(t)
	el := d.Set(button, browsertest.Live())
	el.ClickErrs = []error{browser.ErrStale, browser.ErrStale}

	require.NoError(t, it.Click(context.Background(), button))
	assert.Equal(t, 3, d.Count("Click id=button"))
}

func TestClickStaleExhausted(t *testing.T) {
	it, d := newInteractor(t)
	el := d.Set(button, browsertest.Live())
	el.ClickErrs = []error{browser.ErrStale, browser.ErrStale, browser.ErrStale}

	err := it.Click(context.Background(), button, browser.WithStep("submit"))
	var notInteractable *browser.ElementNotInteractableError
	require.ErrorAs(t, err, &notInteractable)
	assert.Equal(t, "submit", notInteractable.Step)
	assert.ErrorIs(t, err, browser.ErrStale)
	assert.ErrorIs(t, err, browser.ErrAutomation)
	assert.Equal(t, 1, d.Count("Screenshot"))
}

func TestClickUnexpectedErrorIsNotRetried(t *testing.T) {
	it, d := newInteractor(t)
	el := d.Set(button, browsertest.Live())
	el.ClickErrs = []error{errors.New("boom")}

	err := it.Click(context.Background(), button)
	var notInteractable *browser.ElementNotInteractableError
	require.ErrorAs(t, err, &notInteractable)
	assert.Equal(t, 1, d.Count("Click id=button"))
}

func TestClickWaitsForGuard(t *testing.T) {
	it, d := newInteractor(t)
	d.Set(button, browsertest.Live())

	err := it.Click(context.Background(), button, browser.WithGuard(guard))
	var timeoutErr *browser.TimeoutReachedError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, guard, timeoutErr.Locator)
	assert.Zero(t, d.Count("Click"))

	d.Set(guard, browsertest.Live())
	assert.NoError(t, it.Click(context.Background(), button, browser.WithGuard(guard)))
}

func TestSendTextEmptyFailsFast(t *testing.T) {
	it, d := newInteractor(t)
	d.Set(field, browsertest.Live())

	err := it.SendText(context.Background(), field, "")
	assert.ErrorIs(t, err, browser.ErrEmptyInput)
	assert.ErrorIs(t, err, browser.ErrAutomation)
	assert.Empty(t, d.Calls())
}

func TestSendText(t *testing.T) {
	it, d := newInteractor(t)
	el := d.Set(field, browsertest.Live())
	el.Value = "old"

	require.NoError(t, it.SendText(context.Background(), field, "ACME ROBOTICS"))
	assert.Equal(t, "ACME ROBOTICS", d.Element(field).Value)
	assert.Equal(t, 1, d.Count("Clear"))
	assert.Zero(t, d.Count("SetValue"))
}

func TestSendTextKeepExisting(t *testing.T) {
	it, d := newInteractor(t)
	el := d.Set(field, browsertest.Live())
	el.Value = "ACME"

	require.NoError(t, it.SendText(context.Background(), field, " ROBOTICS", browser.KeepExisting()))
	assert.Equal(t, "ACME ROBOTICS", d.Element(field).Value)
	assert.Zero(t, d.Count("Clear"))
}

func TestSendTextScriptedFallback(t *testing.T) {
	it, d := newInteractor(t)
	el := d.Set(field, browsertest.Live())
	el.DropKeys = true

	require.NoError(t, it.SendText(context.Background(), field, "secret"))
	assert.Equal(t, "secret", d.Element(field).Value)
	assert.Equal(t, 1, d.Count("SetValue"))
}

func TestSendTextFallbackHappensOnce(t *testing.T) {
	it, d := newInteractor(t)
	el := d.Set(field, browsertest.Live())
	el.DropKeys = true
	el.RejectScript = true

	err := it.SendText(context.Background(), field, "secret")
	var notInteractable *browser.ElementNotInteractableError
	require.ErrorAs(t, err, &notInteractable)
	assert.ErrorIs(t, err, browser.ErrValueMismatch)
	assert.Equal(t, 1, d.Count("SetValue"))
	assert.Equal(t, 1, d.Count("SendKeys"))
}

func TestSelectFallsBackToVisibleText(t *testing.T) {
	it, d := newInteractor(t)
	it.Overlays = []string{"modal-backdrop"}
	el := d.Set(choice, browsertest.Live())
	el.Options = []browsertest.Option{{Value: "1", Text: "Private"}, {Value: "2", Text: "Public"}}

	require.NoError(t, it.Select(context.Background(), choice, "Private"))
	assert.Equal(t, "1", d.Element(choice).Value)
	assert.Equal(t, 1, d.Count("SelectByValue"))
	assert.Equal(t, 1, d.Count("SelectByText"))
	assert.Equal(t, 1, d.Count("Execute"))
	assert.Zero(t, d.Count("SetValue"))
}

func TestSelectScriptedFallback(t *testing.T) {
	it, d := newInteractor(t)
	d.Set(choice, browsertest.Live())

	require.NoError(t, it.Select(context.Background(), choice, "Private"))
	assert.Equal(t, "Private", d.Element(choice).Value)
	assert.Equal(t, 1, d.Count("SetValue"))
}

func TestClearText(t *testing.T) {
	it, d := newInteractor(t)
	el := d.Set(field, browsertest.Live())
	el.Value = "wrong"

	require.NoError(t, it.ClearText(context.Background(), field))
	assert.Empty(t, d.Element(field).Value)
}

package browser

import (
	"errors"
	"fmt"
	"time"
)

// ErrAutomation is matched by every error raised by the automation layer.
var ErrAutomation = errors.New("automation failed")

var (
	ErrNoSuchElement   = errors.New("no such element")
	ErrStale           = errors.New("stale element reference")
	ErrNotInteractable = errors.New("element not interactable")
	ErrNoSuchOption    = errors.New("no such option")
	ErrSessionClosed   = errors.New("browser session closed")
	ErrEmptyInput      = errors.New("empty input text")
	ErrValueMismatch   = errors.New("field value does not match input")
)

type AutomationError struct {
	Step string
	Msg  string
	Err  error
}

func (e *AutomationError) Error() string {
	msg := fmt.Sprintf("step %q: %s", e.Step, e.Msg)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AutomationError) Unwrap() error { return e.Err }

func (e *AutomationError) Is(target error) bool { return target == ErrAutomation }

// TimeoutReachedError reports a wait that ran out of time.
type TimeoutReachedError struct {
	Step      string
	Locator   Locator
	Condition string
	Timeout   time.Duration
}

func (e *TimeoutReachedError) Error() string {
	if e.Locator.Selector == "" {
		return fmt.Sprintf("step %q: timed out after %s waiting for %s", e.Step, e.Timeout, e.Condition)
	}
	return fmt.Sprintf("step %q: timed out after %s waiting for %s to be %s", e.Step, e.Timeout, e.Locator,
		e.Condition)
}

func (e *TimeoutReachedError) Is(target error) bool { return target == ErrAutomation }

// ElementNotInteractableError reports an element that could not be clicked or filled after every fallback.
type ElementNotInteractableError struct {
	Step    string
	Locator Locator
	Err     error
}

func (e *ElementNotInteractableError) Error() string {
	return fmt.Sprintf("step %q: element %s not interactable: %v", e.Step, e.Locator, e.Err)
}

func (e *ElementNotInteractableError) Unwrap() error { return e.Err }

func (e *ElementNotInteractableError) Is(target error) bool { return target == ErrAutomation }

// VerificationStepFailedError reports a step that never reached its success condition.
type VerificationStepFailedError struct {
	Step     string
	Attempts int
	Err      error
}

func (e *VerificationStepFailedError) Error() string {
	return fmt.Sprintf("step %q failed after %d attempt(s): %v", e.Step, e.Attempts, e.Err)
}

func (e *VerificationStepFailedError) Unwrap() error { return e.Err }

func (e *VerificationStepFailedError) Is(target error) bool { return target == ErrAutomation }

package types

import (
	"errors"
	"fmt"
	"time"
)

// HookFailure represents an error raised by one of a suite's lifecycle
// hooks. The runner attaches it to the affected tests: a beforeAll failure
// skips the suite's descendants, a beforeEach failure fails the one test it
// was bracketing.
type HookFailure struct {
	Kind  HookKind
	Hook  string
	Suite string
	Err   error
}

func (e *HookFailure) Error() string {
	return fmt.Sprintf("%s hook %q in suite %q: %v", e.Kind, e.Hook, e.Suite, e.Err)
}

func (e *HookFailure) Unwrap() error {
	return e.Err
}

// NewHookFailure creates a new HookFailure for the given hook and suite.
func NewHookFailure(kind HookKind, hook, suite string, err error) *HookFailure {
	return &HookFailure{Kind: kind, Hook: hook, Suite: suite, Err: err}
}

// IsHookFailure checks if an error is a HookFailure.
func IsHookFailure(err error) bool {
	var hookErr *HookFailure
	return errors.As(err, &hookErr)
}

// AssertionFailure represents a test body failing on its own logic, as
// opposed to a hook or timeout failure.
type AssertionFailure struct {
	Test string
	Err  error
}

func (e *AssertionFailure) Error() string {
	return fmt.Sprintf("test %q: %v", e.Test, e.Err)
}

func (e *AssertionFailure) Unwrap() error {
	return e.Err
}

// NewAssertionFailure creates a new AssertionFailure for the given test.
func NewAssertionFailure(test string, err error) *AssertionFailure {
	return &AssertionFailure{Test: test, Err: err}
}

// IsAssertionFailure checks if an error is an AssertionFailure.
func IsAssertionFailure(err error) bool {
	var assertErr *AssertionFailure
	return errors.As(err, &assertErr)
}

// TimeoutExceeded represents a soft timeout firing on an execution unit.
// The unit's body may still be running when this is reported.
type TimeoutExceeded struct {
	Unit  string
	Limit time.Duration
}

func (e *TimeoutExceeded) Error() string {
	return fmt.Sprintf("%q exceeded its %s timeout", e.Unit, e.Limit)
}

// NewTimeoutExceeded creates a new TimeoutExceeded for the given unit.
func NewTimeoutExceeded(unit string, limit time.Duration) *TimeoutExceeded {
	return &TimeoutExceeded{Unit: unit, Limit: limit}
}

// IsTimeoutExceeded checks if an error is a TimeoutExceeded.
func IsTimeoutExceeded(err error) bool {
	var timeoutErr *TimeoutExceeded
	return errors.As(err, &timeoutErr)
}

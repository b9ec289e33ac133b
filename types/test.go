// Package types contains shared types used across the harness: the suite
// tree, test statuses, execution strategies and result records.
package types

import (
	"context"
	"fmt"
	"time"
)

// TestStatus represents the possible states of a test execution
type TestStatus string

// String implements the Stringer interface for TestStatus
func (s TestStatus) String() string {
	return string(s)
}

// TestStatus enum values. A test starts pending, is running while its hooks
// and body execute, and ends in exactly one of the four terminal states.
const (
	TestStatusPending TestStatus = "pending"
	TestStatusRunning TestStatus = "running"
	TestStatusPass    TestStatus = "pass"
	TestStatusFail    TestStatus = "fail"
	TestStatusSkip    TestStatus = "skip"
	TestStatusTimeout TestStatus = "timeout"
)

// IsTerminal reports whether the status is one of the four final states.
func (s TestStatus) IsTerminal() bool {
	switch s {
	case TestStatusPass, TestStatusFail, TestStatusSkip, TestStatusTimeout:
		return true
	default:
		return false
	}
}

// ExecMode tags how a test body was declared. Scheduling treats both modes
// identically; the tag is carried through to results and metrics.
type ExecMode string

// String implements the Stringer interface for ExecMode
func (m ExecMode) String() string {
	return string(m)
}

// ExecMode enum values
const (
	ExecModeSync  ExecMode = "sync"
	ExecModeAsync ExecMode = "async"
)

// TestFunc is a test body. It succeeds by returning nil and fails by
// returning an error. The context carries the unit's timeout tracker.
type TestFunc func(ctx context.Context) error

// TestCase is a leaf of the suite tree. Nodes are built during the
// declaration phase and are read-only during execution except for the
// Status, Duration and Err fields, each written exactly once by the runner.
type TestCase struct {
	Name    string
	Suite   *Suite // parent, non-owning
	Fn      TestFunc
	Mode    ExecMode
	Timeout time.Duration // 0 means inherit from the suite chain
	Skip    bool
	Only    bool

	// Index is the registration index: the global declaration-order
	// position, stamped when a run plan is built and used to key result
	// records.
	Index int

	Status   TestStatus
	Duration time.Duration
	Err      error
}

// FullName returns the slash-joined suite path plus the test name.
func (t *TestCase) FullName() string {
	if t.Suite == nil {
		return t.Name
	}
	return t.Suite.Path() + "/" + t.Name
}

// EffectiveTimeout resolves the timeout for this test: an explicit per-test
// override wins, then the nearest ancestor suite with an override, then the
// global default. Zero values inherit from the next level up.
func (t *TestCase) EffectiveTimeout(global time.Duration) time.Duration {
	if t.Timeout > 0 {
		return t.Timeout
	}
	for s := t.Suite; s != nil; s = s.Parent {
		if s.Timeout > 0 {
			return s.Timeout
		}
	}
	return global
}

// Result captures the outcome of a single test, keyed by registration index
// so reporters can recover declaration order regardless of completion order.
type Result struct {
	Index    int
	Test     string
	Suite    string // slash-joined suite path
	Status   TestStatus
	Duration time.Duration
	Mode     ExecMode
	Err      error
}

// RunSummary aggregates one run's results.
type RunSummary struct {
	RunID    string
	Total    int
	Passed   int
	Failed   int
	Skipped  int
	TimedOut int
	Duration time.Duration
}

// Status collapses the summary into a single overall status: any failure or
// timeout makes the run a fail, a run with nothing executed is a skip.
func (s RunSummary) Status() TestStatus {
	switch {
	case s.Failed > 0 || s.TimedOut > 0:
		return TestStatusFail
	case s.Passed == 0 && s.Skipped > 0:
		return TestStatusSkip
	default:
		return TestStatusPass
	}
}

// String returns a single-line human-readable form of the summary.
func (s RunSummary) String() string {
	return fmt.Sprintf("RunID: %s, Status: %s, Total: %d, Passed: %d, Failed: %d, Skipped: %d, TimedOut: %d, Duration: %.1fs",
		s.RunID, s.Status(), s.Total, s.Passed, s.Failed, s.Skipped, s.TimedOut, s.Duration.Seconds())
}

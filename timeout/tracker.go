// Package timeout implements soft deadline tracking for execution units.
// A Tracker records one unit's deadline and extension budget; the Enforcer
// polls registered trackers and flags the expired ones. Timeouts are soft:
// nothing here interrupts a running test body, expiry only changes the
// status the unit is reported with.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State represents the lifecycle of a Tracker
type State string

// String implements the Stringer interface for State
func (s State) String() string {
	return string(s)
}

// State enum values. TimedOut and Completed are terminal; TimedOut wins a
// race with a late Complete.
const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateTimedOut  State = "timed_out"
)

var (
	// ErrExtensionDisabled is returned by Extend when the unit was not
	// configured to allow extensions.
	ErrExtensionDisabled = errors.New("timeout extension disabled")
	// ErrExtensionLimitExceeded is returned by Extend when the requested
	// extension would push the accumulated total past the configured limit.
	ErrExtensionLimitExceeded = errors.New("timeout extension limit exceeded")
	// ErrNotRunning is returned by Extend outside the running state.
	ErrNotRunning = errors.New("tracker is not running")
)

// TrackerConfig holds the immutable creation-time fields of a Tracker.
type TrackerConfig struct {
	// Unit names the owning execution unit, for errors and logs.
	Unit string
	// Base is the unit's timeout. Zero means no deadline: the tracker
	// never expires.
	Base time.Duration
	// AllowExtension enables Extend calls from the unit's body.
	AllowExtension bool
	// MaxExtension caps the cumulative extension granted to the unit.
	MaxExtension time.Duration
}

// Tracker is a per-execution-unit deadline tracker. It is created by the
// unit that owns it and registered with an Enforcer only while running;
// all state transitions are safe against concurrent enforcer polls.
type Tracker struct {
	cfg TrackerConfig

	mu          sync.Mutex
	state       State
	startedAt   time.Time
	deadline    time.Time
	accumulated time.Duration
	expired     chan struct{}
}

// NewTracker creates an idle Tracker for one execution unit.
func NewTracker(cfg TrackerConfig) *Tracker {
	return &Tracker{cfg: cfg, state: StateIdle, expired: make(chan struct{})}
}

// Unit returns the name of the owning execution unit.
func (t *Tracker) Unit() string {
	return t.cfg.Unit
}

// Base returns the configured base timeout.
func (t *Tracker) Base() time.Duration {
	return t.cfg.Base
}

// State returns the tracker's current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Deadline returns the current deadline. The zero time means no deadline.
func (t *Tracker) Deadline() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deadline
}

// Accumulated returns the total extension granted so far.
func (t *Tracker) Accumulated() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.accumulated
}

// Elapsed returns how long the unit has been running.
func (t *Tracker) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startedAt.IsZero() {
		return 0
	}
	return time.Since(t.startedAt)
}

// Start transitions idle -> running, records the start timestamp and fixes
// the deadline at start + base.
func (t *Tracker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateIdle {
		return fmt.Errorf("tracker for %q already started (state %s)", t.cfg.Unit, t.state)
	}
	t.state = StateRunning
	t.startedAt = time.Now()
	if t.cfg.Base > 0 {
		t.deadline = t.startedAt.Add(t.cfg.Base)
	}
	return nil
}

// Extend pushes the deadline out by d. It only succeeds while running,
// with extensions enabled, and while the accumulated total stays within
// MaxExtension; a failed Extend leaves the deadline unchanged.
func (t *Tracker) Extend(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("extension must be positive, got %s", d)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateRunning {
		return fmt.Errorf("cannot extend %q: %w", t.cfg.Unit, ErrNotRunning)
	}
	if !t.cfg.AllowExtension {
		return fmt.Errorf("cannot extend %q: %w", t.cfg.Unit, ErrExtensionDisabled)
	}
	if t.accumulated+d > t.cfg.MaxExtension {
		return fmt.Errorf("cannot extend %q by %s (%s of %s used): %w",
			t.cfg.Unit, d, t.accumulated, t.cfg.MaxExtension, ErrExtensionLimitExceeded)
	}
	t.accumulated += d
	if !t.deadline.IsZero() {
		t.deadline = t.deadline.Add(d)
	}
	return nil
}

// TimedOut reports whether the unit is past its deadline. It is a pure
// check: observing expiry does not transition the state, that is
// MarkTimedOut's job.
func (t *Tracker) TimedOut() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case StateTimedOut:
		return true
	case StateRunning:
		return !t.deadline.IsZero() && !time.Now().Before(t.deadline)
	default:
		return false
	}
}

// MarkTimedOut transitions running -> timed_out. It reports whether this
// call performed the transition; repeated calls are no-ops. TimedOut is
// terminal: a later Complete will not overwrite it.
func (t *Tracker) MarkTimedOut() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateRunning {
		return false
	}
	t.state = StateTimedOut
	close(t.expired)
	return true
}

// Expired returns a channel that closes when the tracker transitions to
// timed_out. The orchestrator selects on it against the body's own
// completion; a unit whose body keeps running past this signal is reported
// timed out and detached.
func (t *Tracker) Expired() <-chan struct{} {
	return t.expired
}

// Complete transitions running -> completed and reports whether it did.
// If the tracker already timed out the call is a no-op returning false:
// timed_out wins the race with a late Complete.
func (t *Tracker) Complete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateRunning {
		return false
	}
	t.state = StateCompleted
	return true
}

type trackerContextKey struct{}

// WithTracker attaches the unit's Tracker to the context handed to its
// body and hooks.
func WithTracker(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, trackerContextKey{}, t)
}

// FromContext returns the Tracker attached to ctx, if any. Test bodies use
// this to request deadline extensions for their own unit.
func FromContext(ctx context.Context) (*Tracker, bool) {
	t, ok := ctx.Value(trackerContextKey{}).(*Tracker)
	return t, ok
}

package timeout

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// DefaultPollInterval is how often the enforcer checks registered trackers.
// Expiry detection is never more precise than this interval.
const DefaultPollInterval = 50 * time.Millisecond

// Enforcer is the background monitor that flags expired trackers. Units
// register their tracker for the duration of their run and must unregister
// on completion; the enforcer never owns a tracker.
type Enforcer struct {
	interval time.Duration
	log      log.Logger

	mu      sync.Mutex
	tracked map[*Tracker]struct{}

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewEnforcer creates a stopped Enforcer. A zero interval selects
// DefaultPollInterval.
func NewEnforcer(interval time.Duration, logger log.Logger) *Enforcer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Enforcer{
		interval: interval,
		log:      logger,
		tracked:  make(map[*Tracker]struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the poll loop. Starting an already running enforcer is a
// no-op.
func (e *Enforcer) Start() {
	if !e.running.CompareAndSwap(false, true) {
		return
	}
	e.done = make(chan struct{})
	e.wg.Add(1)
	go e.loop()
	e.log.Debug("Timeout enforcer started", "interval", e.interval)
}

// Stop terminates the poll loop and joins it: no tick runs after Stop
// returns. Stopping a stopped enforcer is a no-op.
func (e *Enforcer) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	close(e.done)
	e.wg.Wait()
	e.log.Debug("Timeout enforcer stopped")
}

// Register adds a tracker to the poll set. Safe to call concurrently with
// the poll tick.
func (e *Enforcer) Register(t *Tracker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tracked[t] = struct{}{}
}

// Unregister removes a tracker from the poll set. Units must call this on
// completion so the enforcer holds no dangling references.
func (e *Enforcer) Unregister(t *Tracker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.tracked, t)
}

// TrackedCount returns the number of currently registered trackers.
func (e *Enforcer) TrackedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tracked)
}

func (e *Enforcer) loop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.tick()
		case <-e.done:
			return
		}
	}
}

// tick snapshots the registration set under the lock, then checks each
// tracker outside it so a slow check never blocks Register/Unregister.
func (e *Enforcer) tick() {
	e.mu.Lock()
	snapshot := make([]*Tracker, 0, len(e.tracked))
	for t := range e.tracked {
		snapshot = append(snapshot, t)
	}
	e.mu.Unlock()

	for _, t := range snapshot {
		if t.TimedOut() && t.MarkTimedOut() {
			e.log.Warn("Execution unit exceeded its timeout",
				"unit", t.Unit(),
				"timeout", t.Base(),
				"extension", t.Accumulated())
		}
	}
}

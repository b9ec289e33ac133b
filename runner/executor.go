package runner

import (
	"context"
	"fmt"

	"github.com/ethereum-optimism/infra/op-harness/types"
	"golang.org/x/sync/semaphore"
)

// Unit is one schedulable execution unit: the full per-test lifecycle of
// hooks, body, cleanup and result recording. It returns the recorded
// result plus a channel that closes when the test body itself has
// returned. For a unit that timed out softly the result arrives while the
// body may still be running; the channel then closes late (or never).
type Unit func(ctx context.Context) (types.Result, <-chan struct{})

// Handle tracks one submitted unit until its result is available.
type Handle struct {
	index int
	done  chan struct{}

	// result is written once before done closes, read only after.
	result types.Result
}

// Index returns the registration index the handle was submitted with.
func (h *Handle) Index() int {
	return h.index
}

// TaskExecutor runs units under a concurrency bound. Submit blocks while
// the pool is full, so dispatch order is preserved and a bail or
// cancellation check between submissions takes effect before the next unit
// starts. A slot frees only once a unit's lifecycle has completed and its
// body has returned: a body overrunning its soft timeout keeps its slot
// leaked until it actually returns.
type TaskExecutor struct {
	sem *semaphore.Weighted
	max int64
}

// NewTaskExecutor creates an executor bounded to maxConcurrent units.
func NewTaskExecutor(maxConcurrent int64) (*TaskExecutor, error) {
	if maxConcurrent < 1 {
		return nil, fmt.Errorf("max concurrent must be at least 1, got %d", maxConcurrent)
	}
	return &TaskExecutor{
		sem: semaphore.NewWeighted(maxConcurrent),
		max: maxConcurrent,
	}, nil
}

// MaxConcurrent returns the configured bound.
func (e *TaskExecutor) MaxConcurrent() int64 {
	return e.max
}

// Submit acquires a slot, blocking the caller while the pool is full, then
// runs the unit on its own goroutine. It fails only when ctx is cancelled
// while waiting for a slot.
func (e *TaskExecutor) Submit(ctx context.Context, index int, unit Unit) (*Handle, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring executor slot for unit %d: %w", index, err)
	}

	h := &Handle{index: index, done: make(chan struct{})}
	go func() {
		result, bodyDone := unit(ctx)
		h.result = result
		close(h.done)
		// Hold the slot while a detached body is still executing.
		<-bodyDone
		e.sem.Release(1)
	}()
	return h, nil
}

// AwaitAll joins every handle and returns their results in submission
// order. It waits for unit lifecycles, not for detached bodies, so a run
// can finish while a leaked body is still executing.
func (e *TaskExecutor) AwaitAll(handles []*Handle) []types.Result {
	results := make([]types.Result, 0, len(handles))
	for _, h := range handles {
		<-h.done
		results = append(results, h.result)
	}
	return results
}

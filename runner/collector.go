package runner

import (
	"sort"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

// ResultCollector aggregates result records during a run. Records are keyed
// by registration index, so the collected set reads back in declaration
// order no matter which order units completed in.
type ResultCollector interface {
	// Add stores one result. Each registration index is written exactly
	// once per run.
	Add(result types.Result)
	// Get returns the result at a registration index.
	Get(index int) (types.Result, bool)
	// Sorted returns all results in registration-index order.
	Sorted() []types.Result
	// Count returns the number of collected results.
	Count() int
	// Summary folds the collected results into a run summary.
	Summary(runID string, duration time.Duration) types.RunSummary
}

// resultCollector is the default thread-safe implementation.
type resultCollector struct {
	mu      sync.Mutex
	byIndex map[int]types.Result
}

var _ ResultCollector = (*resultCollector)(nil)

// NewResultCollector creates an empty collector.
func NewResultCollector() ResultCollector {
	return &resultCollector{byIndex: make(map[int]types.Result)}
}

func (c *resultCollector) Add(result types.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byIndex[result.Index] = result
}

func (c *resultCollector) Get(index int) (types.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.byIndex[index]
	return r, ok
}

func (c *resultCollector) Sorted() []types.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	indices := make([]int, 0, len(c.byIndex))
	for i := range c.byIndex {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	results := make([]types.Result, 0, len(indices))
	for _, i := range indices {
		results = append(results, c.byIndex[i])
	}
	return results
}

func (c *resultCollector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byIndex)
}

func (c *resultCollector) Summary(runID string, duration time.Duration) types.RunSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	summary := types.RunSummary{
		RunID:    runID,
		Total:    len(c.byIndex),
		Duration: duration,
	}
	for _, r := range c.byIndex {
		switch r.Status {
		case types.TestStatusPass:
			summary.Passed++
		case types.TestStatusFail:
			summary.Failed++
		case types.TestStatusSkip:
			summary.Skipped++
		case types.TestStatusTimeout:
			summary.TimedOut++
		}
	}
	return summary
}

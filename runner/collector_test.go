package runner

import (
	"sync"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorAddAndGet(t *testing.T) {
	c := NewResultCollector()

	result := types.Result{Index: 3, Test: "TestConnect", Suite: "db", Status: types.TestStatusPass}
	c.Add(result)

	got, ok := c.Get(3)
	require.True(t, ok)
	assert.Equal(t, result, got)

	_, ok = c.Get(7)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Count())
}

func TestCollectorSortedByIndex(t *testing.T) {
	c := NewResultCollector()

	// Completion order deliberately scrambled.
	for _, idx := range []int{4, 0, 2, 1, 3} {
		c.Add(types.Result{Index: idx, Status: types.TestStatusPass})
	}

	sorted := c.Sorted()
	require.Len(t, sorted, 5)
	for i, result := range sorted {
		assert.Equal(t, i, result.Index)
	}
}

func TestCollectorSummaryCounts(t *testing.T) {
	c := NewResultCollector()
	statuses := []types.TestStatus{
		types.TestStatusPass,
		types.TestStatusPass,
		types.TestStatusFail,
		types.TestStatusSkip,
		types.TestStatusTimeout,
	}
	for i, status := range statuses {
		c.Add(types.Result{Index: i, Status: status})
	}

	summary := c.Summary("run-1", 2*time.Second)
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 2, summary.Passed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.TimedOut)
	assert.Equal(t, 2*time.Second, summary.Duration)
	assert.Equal(t, types.TestStatusFail, summary.Status())
}

func TestCollectorConcurrentAdd(t *testing.T) {
	c := NewResultCollector()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			c.Add(types.Result{Index: idx, Status: types.TestStatusPass})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, c.Count())
	assert.Len(t, c.Sorted(), n)
}

package reporting

import (
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureReporter records events for assertions.
type captureReporter struct {
	events []string
}

func (c *captureReporter) OnSuiteStart(suitePath string) {
	c.events = append(c.events, "start:"+suitePath)
}

func (c *captureReporter) OnTestResult(result types.Result) {
	c.events = append(c.events, "test:"+result.Test)
}

func (c *captureReporter) OnSuiteEnd(suitePath string) {
	c.events = append(c.events, "end:"+suitePath)
}

func (c *captureReporter) OnRunComplete(summary types.RunSummary) {
	c.events = append(c.events, "complete:"+summary.RunID)
}

func sampleSummary() types.RunSummary {
	return types.RunSummary{
		RunID:    "run-1",
		Total:    3,
		Passed:   2,
		Failed:   1,
		Duration: 1500 * time.Millisecond,
	}
}

func TestNoopReporterIsSafe(t *testing.T) {
	r := NewNoopReporter()
	require.NotNil(t, r)

	r.OnSuiteStart("api")
	r.OnTestResult(types.Result{Test: "TestFoo"})
	r.OnSuiteEnd("api")
	r.OnRunComplete(sampleSummary())
}

func TestMultiReporterFansOut(t *testing.T) {
	first := &captureReporter{}
	second := &captureReporter{}
	m := NewMultiReporter(first, nil, second)

	m.OnSuiteStart("api")
	m.OnTestResult(types.Result{Test: "TestFoo"})
	m.OnSuiteEnd("api")
	m.OnRunComplete(sampleSummary())

	want := []string{"start:api", "test:TestFoo", "end:api", "complete:run-1"}
	assert.Equal(t, want, first.events)
	assert.Equal(t, want, second.events)
}

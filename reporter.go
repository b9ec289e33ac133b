package harness

import (
	"sync"

	"github.com/ethereum-optimism/infra/op-harness/metrics"
	"github.com/ethereum-optimism/infra/op-harness/reporting"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// MetricsReporter feeds the result stream into Prometheus. Results are
// buffered until the summary arrives because the run ID only travels with
// the summary.
type MetricsReporter struct {
	mu      sync.Mutex
	results []types.Result
}

var _ reporting.Reporter = (*MetricsReporter)(nil)

// NewMetricsReporter creates a new MetricsReporter.
func NewMetricsReporter() *MetricsReporter {
	return &MetricsReporter{}
}

func (r *MetricsReporter) OnSuiteStart(string) {}
func (r *MetricsReporter) OnSuiteEnd(string)   {}

func (r *MetricsReporter) OnTestResult(result types.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

// OnRunComplete records every buffered result plus the run aggregate.
func (r *MetricsReporter) OnRunComplete(summary types.RunSummary) {
	r.mu.Lock()
	results := r.results
	r.results = nil
	r.mu.Unlock()

	for _, res := range results {
		metrics.RecordTestResult(summary.RunID, res.Suite, res.Test, res.Mode, res.Status)
	}
	metrics.RecordRun(
		summary.RunID,
		summary.Status().String(),
		summary.Total,
		summary.Passed,
		summary.Failed,
		summary.Skipped,
		summary.TimedOut,
		summary.Duration,
	)
}

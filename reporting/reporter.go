// Package reporting delivers run results to pluggable sinks. The runner
// replays events after execution completes, so every Reporter observes the
// stream in registration order no matter which concurrency strategy
// produced the results.
package reporting

import (
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// Reporter receives the result stream of one run. Events arrive in
// registration order: a suite's OnSuiteStart, its own test results, its
// child suites recursively, then OnSuiteEnd. OnRunComplete is always the
// final event. All calls are made from a single goroutine.
type Reporter interface {
	OnSuiteStart(suitePath string)
	OnTestResult(result types.Result)
	OnSuiteEnd(suitePath string)
	OnRunComplete(summary types.RunSummary)
}

type noopReporter struct{}

// NewNoopReporter returns a Reporter that discards every event.
func NewNoopReporter() Reporter {
	return &noopReporter{}
}

func (noopReporter) OnSuiteStart(string)            {}
func (noopReporter) OnTestResult(types.Result)      {}
func (noopReporter) OnSuiteEnd(string)              {}
func (noopReporter) OnRunComplete(types.RunSummary) {}

// MultiReporter fans each event out to every child reporter in order.
type MultiReporter struct {
	reporters []Reporter
}

var _ Reporter = (*MultiReporter)(nil)

// NewMultiReporter combines reporters into one. Nil entries are dropped.
func NewMultiReporter(reporters ...Reporter) *MultiReporter {
	m := &MultiReporter{}
	for _, r := range reporters {
		if r != nil {
			m.reporters = append(m.reporters, r)
		}
	}
	return m
}

func (m *MultiReporter) OnSuiteStart(suitePath string) {
	for _, r := range m.reporters {
		r.OnSuiteStart(suitePath)
	}
}

func (m *MultiReporter) OnTestResult(result types.Result) {
	for _, r := range m.reporters {
		r.OnTestResult(result)
	}
}

func (m *MultiReporter) OnSuiteEnd(suitePath string) {
	for _, r := range m.reporters {
		r.OnSuiteEnd(suitePath)
	}
}

func (m *MultiReporter) OnRunComplete(summary types.RunSummary) {
	for _, r := range m.reporters {
		r.OnRunComplete(summary)
	}
}

package types

import "fmt"

// Strategy selects how a run schedules its execution units. It is chosen
// once per run, not per test.
type Strategy string

// String implements the Stringer interface for Strategy
func (s Strategy) String() string {
	return string(s)
}

// Strategy enum values
const (
	// StrategySequential runs suites and tests strictly in declaration order
	// on a single logical thread of control.
	StrategySequential Strategy = "sequential"
	// StrategyConcurrent dispatches test bodies to a bounded executor;
	// completion order is unspecified, report order is registration order.
	StrategyConcurrent Strategy = "concurrent"
	// StrategyParallel assigns whole suites to a worker pool; a suite's own
	// tests still run within their worker.
	StrategyParallel Strategy = "parallel"
)

// ParseStrategy validates a strategy name from config or CLI input.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategySequential, StrategyConcurrent, StrategyParallel:
		return Strategy(s), nil
	case "":
		return StrategySequential, nil
	default:
		return "", fmt.Errorf("invalid concurrency strategy %q (want sequential, concurrent or parallel)", s)
	}
}

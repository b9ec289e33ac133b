package runner

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/ethereum/go-ethereum/log"
)

// ProgressIndicator receives execution lifecycle events for live feedback.
// Implementations must be safe for concurrent use: the concurrent and
// parallel strategies invoke it from multiple goroutines.
type ProgressIndicator interface {
	StartRun(totalTests int)
	StartSuite(suitePath string, totalTests int)
	StartTest(testName string)
	CompleteTest(testName string, status types.TestStatus)
	CompleteSuite(suitePath string)
	CompleteRun()
}

// newProgressIndicator returns a periodic console indicator, or a no-op one
// when updateInterval is zero.
func newProgressIndicator(logger log.Logger, updateInterval time.Duration) ProgressIndicator {
	if updateInterval <= 0 {
		return NewNoOpProgressIndicator()
	}
	return NewConsoleProgressIndicator(logger, updateInterval)
}

// noOpProgressIndicator provides a no-op implementation of ProgressIndicator
type noOpProgressIndicator struct{}

// NewNoOpProgressIndicator creates a progress indicator that does nothing
func NewNoOpProgressIndicator() ProgressIndicator {
	return &noOpProgressIndicator{}
}

func (n *noOpProgressIndicator) StartRun(totalTests int)                               {}
func (n *noOpProgressIndicator) StartSuite(suitePath string, totalTests int)           {}
func (n *noOpProgressIndicator) StartTest(testName string)                             {}
func (n *noOpProgressIndicator) CompleteTest(testName string, status types.TestStatus) {}
func (n *noOpProgressIndicator) CompleteSuite(suitePath string)                        {}
func (n *noOpProgressIndicator) CompleteRun()                                          {}

// consoleProgressIndicator logs run progress at a fixed interval.
type consoleProgressIndicator struct {
	logger log.Logger
	ticker *time.Ticker
	stopCh chan struct{}
	mu     sync.RWMutex

	completedTests int
	totalTests     int
	runStartTime   time.Time

	// Suites may overlap under the parallel strategy, so start times are
	// kept per path rather than as a single current suite.
	suiteStart map[string]time.Time

	// Track currently running tests
	runningTests map[string]time.Time // test name -> start time
}

// NewConsoleProgressIndicator creates a progress indicator that shows updates in the console
func NewConsoleProgressIndicator(logger log.Logger, updateInterval time.Duration) ProgressIndicator {
	if updateInterval == 0 {
		updateInterval = 30 * time.Second // Default to 30 seconds
	}

	indicator := &consoleProgressIndicator{
		logger:       logger,
		ticker:       time.NewTicker(updateInterval),
		stopCh:       make(chan struct{}),
		suiteStart:   make(map[string]time.Time),
		runningTests: make(map[string]time.Time),
	}

	// Start the progress reporting goroutine
	go indicator.progressReporter()

	return indicator
}

func (c *consoleProgressIndicator) StartRun(totalTests int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalTests = totalTests
	c.completedTests = 0
	c.runStartTime = time.Now()
	c.suiteStart = make(map[string]time.Time)
	c.runningTests = make(map[string]time.Time)
}

func (c *consoleProgressIndicator) StartSuite(suitePath string, totalTests int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.suiteStart[suitePath] = time.Now()
	c.logger.Info("Starting suite", "suite", suitePath, "suiteTests", totalTests)
}

// StartTest tracks when a test starts running
func (c *consoleProgressIndicator) StartTest(testName string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.runningTests[testName] = time.Now()
	c.logger.Debug("Test started", "test", testName, "runningTests", len(c.runningTests))
}

func (c *consoleProgressIndicator) CompleteTest(testName string, status types.TestStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.runningTests, testName)
	c.completedTests++

	// Individual completions stay at debug level to avoid spam.
	c.logger.Debug("Test completed", "test", testName, "status", status,
		"completed", c.completedTests, "total", c.totalTests)
}

func (c *consoleProgressIndicator) CompleteSuite(suitePath string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	started, ok := c.suiteStart[suitePath]
	if !ok {
		return
	}
	delete(c.suiteStart, suitePath)
	c.logger.Info("Completed suite", "suite", suitePath,
		"duration", time.Since(started).Truncate(time.Second))
}

func (c *consoleProgressIndicator) CompleteRun() {
	c.ticker.Stop()
	close(c.stopCh)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.Info("Run finished", "completed", c.completedTests, "total", c.totalTests,
		"duration", time.Since(c.runStartTime).Truncate(time.Second))
}

// progressReporter runs in a goroutine and periodically reports progress
func (c *consoleProgressIndicator) progressReporter() {
	for {
		select {
		case <-c.ticker.C:
			c.reportProgress()
		case <-c.stopCh:
			return
		}
	}
}

func (c *consoleProgressIndicator) reportProgress() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var percentComplete float64
	if c.totalTests > 0 {
		percentComplete = float64(c.completedTests) * 100.0 / float64(c.totalTests)
	}

	c.logger.Info("Progress update",
		"completed", c.completedTests,
		"total", c.totalTests,
		"percent", fmt.Sprintf("%.1f%%", percentComplete),
		"numRunning", len(c.runningTests),
		"longestRunning", formatRunningTests(c.runningTests, 3))
}

// Helper function that formats running tests into a display string
func formatRunningTests(runningTests map[string]time.Time, maxShow int) string {
	if len(runningTests) == 0 {
		return ""
	}

	type runningTest struct {
		name     string
		duration time.Duration
	}

	var running []runningTest
	now := time.Now()
	for testName, startTime := range runningTests {
		running = append(running, runningTest{
			name:     testName,
			duration: now.Sub(startTime),
		})
	}

	// Longest running first
	sort.Slice(running, func(i, j int) bool {
		return running[i].duration > running[j].duration
	})

	var runningStrs []string
	for i, test := range running {
		if i >= maxShow {
			break
		}
		runningStrs = append(runningStrs, fmt.Sprintf("%s (%v)", test.name, test.duration.Truncate(time.Second)))
	}
	if len(running) > maxShow {
		runningStrs = append(runningStrs, fmt.Sprintf("+%d more", len(running)-maxShow))
	}

	return strings.Join(runningStrs, ", ")
}

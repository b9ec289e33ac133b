package harness

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-harness/registry"
	"github.com/ethereum-optimism/infra/op-harness/runner"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// trackedMockRunner is a mock runner that counts executions and provides synchronization
type trackedMockRunner struct {
	mock.Mock
	execCount atomic.Int32  // Count of Run executions
	execCh    chan struct{} // Channel for signaling on each execution
}

var _ runner.TestRunner = (*trackedMockRunner)(nil)

// newTrackedMockRunner creates a new runner with execution tracking
func newTrackedMockRunner() *trackedMockRunner {
	return &trackedMockRunner{
		execCh: make(chan struct{}, 100), // Buffer to prevent blocking
	}
}

// Run implements the runner.TestRunner interface
func (m *trackedMockRunner) Run(ctx context.Context) (types.RunSummary, error) {
	m.execCount.Add(1)
	args := m.Called(ctx)

	// Signal that an execution has happened
	select {
	case m.execCh <- struct{}{}:
	default:
		// Non-blocking send, just in case no one is listening
	}

	return args.Get(0).(types.RunSummary), args.Error(1)
}

// waitForExecutions waits for a specific number of executions with timeout
func (m *trackedMockRunner) waitForExecutions(ctx context.Context, count int32) bool {
	timeoutCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if m.execCount.Load() >= count {
			return true
		}

		select {
		case <-m.execCh:
			// An execution signal received, immediately recheck the count
			continue
		case <-ticker.C:
			// Periodic check, loop back to check the count again
			continue
		case <-timeoutCtx.Done():
			return false
		}
	}
}

// newTestHarness creates a harness around a tracked mock runner. The
// scheduler is real so lifecycle behavior is exercised end to end.
func newTestHarness(t *testing.T, cfg *Config) (*trackedMockRunner, *harness) {
	t.Helper()

	if cfg.Log == nil {
		cfg.Log = log.NewLogger(log.DiscardHandler())
	}

	mockRunner := newTrackedMockRunner()
	h := &harness{
		config:           cfg,
		registry:         registry.NewRegistry(registry.Config{Log: cfg.Log}),
		runner:           mockRunner,
		scheduler:        NewIntervalScheduler(cfg.RunInterval, cfg.RunOnce, cfg.Log),
		shutdownCallback: func(error) {},
	}
	h.scheduler.RegisterCallback(h.runTests)
	return mockRunner, h
}

// teardownTest ensures the service is fully stopped before test completion
func teardownTest(t *testing.T, service *harness, cancel context.CancelFunc) {
	t.Helper()

	cancel()

	if !service.Stopped() {
		err := service.Stop(context.Background())
		assert.NoError(t, err, "Service should stop cleanly during teardown")
	}

	ctx, cancelWait := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancelWait()

	if err := service.WaitForShutdown(ctx); err != nil {
		t.Logf("Warning: Service did not shut down cleanly in teardown: %v", err)
	}
}

func passSummary() types.RunSummary {
	return types.RunSummary{RunID: "run-1", Total: 2, Passed: 2, Duration: 10 * time.Millisecond}
}

// TestHarness_Start_RunsTestsImmediately tests that the service runs tests immediately when started
func TestHarness_Start_RunsTestsImmediately(t *testing.T) {
	mockRunner, service := newTestHarness(t, &Config{RunInterval: 25 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer teardownTest(t, service, cancel)

	mockRunner.On("Run", mock.Anything).Return(passSummary(), nil)

	err := service.Start(ctx)
	require.NoError(t, err)

	execCompleted := mockRunner.waitForExecutions(ctx, 1)
	require.True(t, execCompleted, "First execution should have completed")
}

// TestHarness_Start_RunsTestsPeriodically tests that the service runs tests periodically
func TestHarness_Start_RunsTestsPeriodically(t *testing.T) {
	mockRunner, service := newTestHarness(t, &Config{RunInterval: 25 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer teardownTest(t, service, cancel)

	mockRunner.On("Run", mock.Anything).Return(passSummary(), nil)

	err := service.Start(ctx)
	require.NoError(t, err)

	execCompleted := mockRunner.waitForExecutions(ctx, 3)
	require.True(t, execCompleted, "Multiple executions should have completed")

	callCount := mockRunner.execCount.Load()
	assert.GreaterOrEqual(t, callCount, int32(3), "Runner should be called at least 3 times")
}

// TestHarness_Context_Cancellation tests that the service properly handles
// context cancellation
func TestHarness_Context_Cancellation(t *testing.T) {
	mockRunner, service := newTestHarness(t, &Config{RunInterval: 25 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer teardownTest(t, service, cancel)

	mockRunner.On("Run", mock.Anything).Return(passSummary(), nil)

	err := service.Start(ctx)
	require.NoError(t, err)

	execCompleted := mockRunner.waitForExecutions(ctx, 1)
	require.True(t, execCompleted, "First execution should have completed")

	execCountBeforeCancel := mockRunner.execCount.Load()

	cancel()

	// Wait a moment for the cancellation to propagate
	time.Sleep(50 * time.Millisecond)

	assert.True(t, service.Stopped(), "Service should be stopped after context cancellation")

	// Wait more time to ensure no more tests run after stopping
	time.Sleep(3 * service.config.RunInterval)

	assert.Equal(t, execCountBeforeCancel, mockRunner.execCount.Load(),
		"No additional test executions should occur after context cancellation")
}

// TestHarness_RunOnceMode tests that the service runs once and triggers shutdown
func TestHarness_RunOnceMode(t *testing.T) {
	mockRunner, service := newTestHarness(t, &Config{RunOnce: true, RunInterval: 25 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	shutdownCh := make(chan struct{}, 1)
	service.shutdownCallback = func(error) { shutdownCh <- struct{}{} }

	mockRunner.On("Run", mock.Anything).Return(passSummary(), nil).Once()

	err := service.Start(ctx)
	require.NoError(t, err)

	select {
	case <-shutdownCh:
		// Run-once mode requested shutdown after the successful run
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for shutdown callback")
	}

	// Verify the runner was called exactly once and doesn't continue running
	time.Sleep(3 * service.config.RunInterval)
	mockRunner.AssertNumberOfCalls(t, "Run", 1)
}

// TestHarness_RunOnceMode_TestFailure tests that failed tests surface as a
// TestFailureError so the CLI maps them to exit code 1
func TestHarness_RunOnceMode_TestFailure(t *testing.T) {
	mockRunner, service := newTestHarness(t, &Config{RunOnce: true})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	failed := types.RunSummary{RunID: "run-2", Total: 2, Passed: 1, Failed: 1}
	mockRunner.On("Run", mock.Anything).Return(failed, nil).Once()

	err := service.Start(ctx)
	require.Error(t, err)
	assert.True(t, IsTestFailureError(err), "expected a test failure error, got %v", err)
}

// TestHarness_RunOnceMode_RuntimeError tests that operational errors exit with code 2
func TestHarness_RunOnceMode_RuntimeError(t *testing.T) {
	mockRunner, service := newTestHarness(t, &Config{RunOnce: true})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mockRunner.On("Run", mock.Anything).Return(types.RunSummary{}, assert.AnError).Once()

	err := service.Start(ctx)
	require.Error(t, err)

	exitErr, ok := err.(cli.ExitCoder)
	require.True(t, ok, "expected a cli exit error, got %T", err)
	assert.Equal(t, 2, exitErr.ExitCode())
}

// TestHarness_Summary tests the summary accessor across a run
func TestHarness_Summary(t *testing.T) {
	mockRunner, service := newTestHarness(t, &Config{RunOnce: true})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assert.Nil(t, service.Summary(), "No summary before the first run")

	mockRunner.On("Run", mock.Anything).Return(passSummary(), nil).Once()
	require.NoError(t, service.Start(ctx))

	summary := service.Summary()
	require.NotNil(t, summary)
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, types.TestStatusPass, summary.Status())
}

// TestNew_NilConfig tests constructor validation
func TestNew_NilConfig(t *testing.T) {
	_, err := New(context.Background(), nil, "v0.1.0", func(error) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config is required")
}

// TestNew_BuildsService tests that New wires the registry, runner and reporters
func TestNew_BuildsService(t *testing.T) {
	logger := log.NewLogger(log.DiscardHandler())

	h, err := New(context.Background(), &Config{
		Log:         logger,
		RunOnce:     true,
		Concurrency: types.StrategySequential,
	}, "v0.1.0", func(error) {})
	require.NoError(t, err)
	require.NotNil(t, h)

	assert.Greater(t, h.registry.TestCount(), 0, "Built-in checks should be registered")
	assert.Nil(t, h.fileSink, "No file sink without an output directory")
	assert.True(t, h.Stopped(), "Not started yet")
}

// TestNew_WithOutputDir tests that an output directory enables the file sink
func TestNew_WithOutputDir(t *testing.T) {
	logger := log.NewLogger(log.DiscardHandler())

	h, err := New(context.Background(), &Config{
		Log:       logger,
		RunOnce:   true,
		OutputDir: t.TempDir(),
	}, "v0.1.0", func(error) {})
	require.NoError(t, err)
	require.NotNil(t, h.fileSink)
}

// TestNew_ManifestSuiteOverride tests that manifest suite overrides reach the tree
func TestNew_ManifestSuiteOverride(t *testing.T) {
	logger := log.NewLogger(log.DiscardHandler())

	skip := true
	h, err := New(context.Background(), &Config{
		Log:     logger,
		RunOnce: true,
		Manifest: &registry.Manifest{
			Bail: &skip,
			Suites: map[string]registry.SuiteOverride{
				"filesystem": {Skip: true},
			},
		},
	}, "v0.1.0", func(error) {})
	require.NoError(t, err)

	roots := h.registry.Roots()
	var fsSuite *types.Suite
	for _, root := range roots {
		if root.Name == "filesystem" {
			fsSuite = root
		}
	}
	require.NotNil(t, fsSuite)
	assert.True(t, fsSuite.Skip)
}

// TestNew_ManifestUnknownSuite tests that a typo in the manifest fails construction
func TestNew_ManifestUnknownSuite(t *testing.T) {
	logger := log.NewLogger(log.DiscardHandler())

	_, err := New(context.Background(), &Config{
		Log:     logger,
		RunOnce: true,
		Manifest: &registry.Manifest{
			Suites: map[string]registry.SuiteOverride{
				"no-such-suite": {Skip: true},
			},
		},
	}, "v0.1.0", func(error) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown suite")
}

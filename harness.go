package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-harness/checks"
	"github.com/ethereum-optimism/infra/op-harness/exitcodes"
	"github.com/ethereum-optimism/infra/op-harness/registry"
	"github.com/ethereum-optimism/infra/op-harness/reporting"
	"github.com/ethereum-optimism/infra/op-harness/runner"
	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// harness implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &harness{}

// harness wires the registered suites, the runner, the reporters and the
// scheduler into one runnable service.
type harness struct {
	ctx       context.Context
	config    *Config
	version   string
	registry  *registry.Registry
	runner    runner.TestRunner
	scheduler TestScheduler
	fileSink  *reporting.FileSink

	mu      sync.Mutex
	summary *types.RunSummary

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*harness, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating harness with config",
		"manifest", config.ManifestPath,
		"concurrency", config.Concurrency,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"bail", config.Bail)

	reg := registry.NewRegistry(registry.Config{Log: config.Log})
	checks.RegisterAll(reg)

	if config.Manifest != nil {
		if err := reg.ApplyManifest(config.Manifest); err != nil {
			return nil, fmt.Errorf("failed to apply manifest: %w", err)
		}
	}

	reporters := []reporting.Reporter{
		reporting.NewConsoleReporter(os.Stdout),
		NewMetricsReporter(),
	}
	var fileSink *reporting.FileSink
	if config.OutputDir != "" {
		fileSink = reporting.NewFileSink(config.OutputDir, config.Log)
		reporters = append(reporters, fileSink)
	}

	var progressInterval = config.ProgressInterval
	if !config.ShowProgress {
		progressInterval = 0
	}

	testRunner, err := runner.NewTestRunner(reg, runner.Options{
		Bail:             config.Bail,
		Filter:           config.Filter,
		Reporter:         reporting.NewMultiReporter(reporters...),
		Concurrency:      config.Concurrency,
		MaxConcurrent:    config.MaxConcurrent,
		Workers:          config.Workers,
		DefaultTimeout:   config.DefaultTimeout,
		AllowExtension:   config.AllowExtension,
		MaxExtension:     config.MaxExtension,
		Log:              config.Log,
		ProgressInterval: progressInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create test runner: %w", err)
	}
	config.Log.Info("harness.New: created registry and test runner",
		"version", version, "tests", reg.TestCount())

	h := &harness{
		ctx:              ctx,
		config:           config,
		version:          version,
		registry:         reg,
		runner:           testRunner,
		scheduler:        NewIntervalScheduler(config.RunInterval, config.RunOnce, config.Log),
		fileSink:         fileSink,
		shutdownCallback: shutdownCallback,
	}
	h.scheduler.RegisterCallback(h.runTests)
	return h, nil
}

// Start runs the registered suites on the configured schedule.
// Start implements the cliapp.Lifecycle interface.
func (h *harness) Start(ctx context.Context) error {
	// Recover panics so operational failures exit with the runtime error code
	defer func() {
		if r := recover(); r != nil {
			h.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	h.ctx = ctx

	if h.config.RunOnce {
		h.config.Log.Info("Starting op-harness in run-once mode")
	} else {
		h.config.Log.Info("Starting op-harness in continuous mode", "interval", h.config.RunInterval)
	}

	if err := h.scheduler.Start(ctx); err != nil {
		// Configuration problems and other operational errors exit with code 2
		h.config.Log.Error("Runtime error running tests", "error", err)
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}

	if h.config.RunOnce {
		h.config.Log.Info("Tests completed, exiting (run-once mode)")

		if summary := h.Summary(); summary != nil && summary.Status() == types.TestStatusFail {
			h.config.Log.Warn("Run-once test run completed with failures, returning exit code 1")
			return NewTestFailureError(summary.String())
		}

		// Only need to call this when we're in run-once mode and no test failed
		go func() {
			h.shutdownCallback(nil)
		}()
		return nil
	}

	h.config.Log.Debug("op-harness started successfully")
	return nil
}

// runTests runs one full pass over the suite tree and stores the summary.
// Test failures are reflected in the summary, not the returned error; the
// error is reserved for operational problems.
func (h *harness) runTests() error {
	h.config.Log.Info("Running all tests...")
	summary, err := h.runner.Run(h.ctx)
	if err != nil {
		h.config.Log.Error("Runtime error running tests", "error", err)
		return NewRuntimeError(err)
	}

	h.mu.Lock()
	h.summary = &summary
	h.mu.Unlock()

	fmt.Println(summary.String())
	if h.fileSink != nil {
		h.config.Log.Info("Results written", "path", h.fileSink.Path(summary.RunID))
	}
	h.config.Log.Info("Test run completed", "run_id", summary.RunID, "status", summary.Status())
	return nil
}

// Stop stops the op-harness service.
// Stop implements the cliapp.Lifecycle interface.
func (h *harness) Stop(ctx context.Context) error {
	h.config.Log.Info("Stopping op-harness")

	if err := h.scheduler.Stop(); err != nil {
		return err
	}

	// Tear the suite tree down; any further declaration is a bug
	h.registry.Close()

	h.config.Log.Info("op-harness stopped successfully")
	return nil
}

// Stopped returns true if the op-harness service is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (h *harness) Stopped() bool {
	return h.scheduler.Stopped()
}

// WaitForShutdown blocks until all background goroutines have terminated.
// This is useful in tests to ensure complete cleanup before moving to the next test.
func (h *harness) WaitForShutdown(ctx context.Context) error {
	return h.scheduler.WaitForShutdown(ctx)
}

// Summary returns the most recent run's summary, or nil before the first
// run completes.
func (h *harness) Summary() *types.RunSummary {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.summary
}

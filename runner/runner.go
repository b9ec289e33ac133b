// Package runner walks the suite tree and executes tests under a selected
// concurrency strategy, enforcing soft timeouts and collecting results in
// registration order.
package runner

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ethereum-optimism/infra/op-harness/registry"
	"github.com/ethereum-optimism/infra/op-harness/reporting"
	"github.com/ethereum-optimism/infra/op-harness/timeout"
	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Options configures one run. Zero values select the documented defaults.
type Options struct {
	// Bail stops scheduling new units after the first fail or timeout.
	Bail bool
	// Filter is an optional glob matched against slash-joined test paths
	// ("api/**", "*/Test*"). Non-matching tests are recorded as skipped.
	Filter string
	// Reporter receives the ordered result stream. Nil means no reporting.
	Reporter reporting.Reporter
	// Concurrency selects the execution strategy. Empty means sequential.
	Concurrency types.Strategy
	// MaxConcurrent bounds the concurrent strategy's executor. Zero means
	// runtime.NumCPU().
	MaxConcurrent uint
	// Workers sizes the parallel strategy's suite pool. Zero means
	// runtime.NumCPU().
	Workers uint
	// DefaultTimeout applies to tests with no per-test or per-suite
	// override. Zero means no timeout.
	DefaultTimeout time.Duration
	// AllowExtension permits bodies to extend their own deadline.
	AllowExtension bool
	// MaxExtension caps the cumulative extension per test.
	MaxExtension time.Duration

	// Log receives the runner's structured output.
	Log log.Logger
	// PollInterval overrides the timeout enforcer's poll interval.
	PollInterval time.Duration
	// ProgressInterval enables periodic progress logging when positive.
	ProgressInterval time.Duration
}

// TestRunner executes the registry's declared tests. A runner is reusable:
// each Run call is an independent run with its own ID and result set.
type TestRunner interface {
	Run(ctx context.Context) (types.RunSummary, error)
}

type runner struct {
	reg    *registry.Registry
	opts   Options
	log    log.Logger
	tracer trace.Tracer

	enforcer *timeout.Enforcer
}

var _ TestRunner = (*runner)(nil)

// runState carries the mutable pieces of one run.
type runState struct {
	runID     string
	collector ResultCollector
	progress  ProgressIndicator
	onlyMode  bool
	bailed    atomic.Bool
}

// closedChan is the body-done signal for units that never started a body.
var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// NewTestRunner validates the options and creates a runner.
func NewTestRunner(reg *registry.Registry, opts Options) (TestRunner, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if opts.Log == nil {
		opts.Log = log.New()
	}
	switch opts.Concurrency {
	case "":
		opts.Concurrency = types.StrategySequential
	case types.StrategySequential, types.StrategyConcurrent, types.StrategyParallel:
	default:
		return nil, fmt.Errorf("invalid concurrency strategy %q", opts.Concurrency)
	}
	if opts.MaxConcurrent == 0 {
		opts.MaxConcurrent = uint(runtime.NumCPU())
	}
	if opts.Workers == 0 {
		opts.Workers = uint(runtime.NumCPU())
	}
	if opts.Filter != "" && !doublestar.ValidatePattern(opts.Filter) {
		return nil, fmt.Errorf("invalid filter pattern %q", opts.Filter)
	}
	if opts.Reporter == nil {
		opts.Reporter = reporting.NewNoopReporter()
	}

	return &runner{
		reg:      reg,
		opts:     opts,
		log:      opts.Log,
		tracer:   otel.Tracer("test runner"),
		enforcer: timeout.NewEnforcer(opts.PollInterval, opts.Log),
	}, nil
}

// Run is a convenience wrapper: build a runner for the registry and execute
// one run.
func Run(ctx context.Context, reg *registry.Registry, opts Options) (types.RunSummary, error) {
	r, err := NewTestRunner(reg, opts)
	if err != nil {
		return types.RunSummary{}, err
	}
	return r.Run(ctx)
}

func (r *runner) Run(ctx context.Context) (types.RunSummary, error) {
	if r.reg.Closed() {
		return types.RunSummary{}, fmt.Errorf("registry is closed")
	}

	runID := uuid.New().String()
	roots := r.reg.Roots()
	st := &runState{
		runID:     runID,
		collector: NewResultCollector(),
		onlyMode:  types.HasOnly(roots),
	}
	total := assignIndices(roots)
	st.progress = newProgressIndicator(r.log, r.opts.ProgressInterval)

	r.log.Info("Starting run",
		"runID", runID,
		"tests", total,
		"strategy", r.opts.Concurrency,
		"onlyMode", st.onlyMode,
		"bail", r.opts.Bail)

	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("run %s", runID))
	defer span.End()

	st.progress.StartRun(total)
	r.enforcer.Start()
	defer r.enforcer.Stop()

	start := time.Now()
	var runErr error
	switch r.opts.Concurrency {
	case types.StrategyConcurrent:
		runErr = r.runConcurrent(ctx, st, roots)
	case types.StrategyParallel:
		runErr = r.runParallel(ctx, st, roots)
	default:
		runErr = r.runSequential(ctx, st, roots)
	}
	duration := time.Since(start)
	st.progress.CompleteRun()

	summary := st.collector.Summary(runID, duration)
	r.replay(st, roots, summary)

	r.log.Info("Run complete",
		"runID", runID,
		"status", summary.Status(),
		"total", summary.Total,
		"passed", summary.Passed,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"timedOut", summary.TimedOut,
		"duration", duration)
	return summary, runErr
}

// assignIndices stamps every declared test with its registration index:
// the declaration-order position across the whole forest.
func assignIndices(roots []*types.Suite) int {
	i := 0
	for _, s := range roots {
		s.WalkTests(func(tc *types.TestCase) {
			tc.Index = i
			i++
		})
	}
	return i
}

func (r *runner) runSequential(ctx context.Context, st *runState, roots []*types.Suite) error {
	for _, s := range roots {
		r.runSuiteSequential(ctx, st, s)
	}
	return ctx.Err()
}

// runSuiteSequential executes one suite subtree in declaration order on the
// calling goroutine. The parallel strategy reuses it inside each worker.
func (r *runner) runSuiteSequential(ctx context.Context, st *runState, s *types.Suite) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("suite %s", s.Path()))
	defer span.End()

	if st.bailed.Load() || ctx.Err() != nil {
		r.skipSubtree(st, s, nil)
		return
	}
	st.progress.StartSuite(s.Path(), s.CountTests())

	if hookErr := r.runBeforeAll(ctx, s); hookErr != nil {
		// Suite-fatal, run-recoverable: descendants are skipped with the
		// error attached, afterAll still gets its chance to clean up.
		r.skipSubtree(st, s, hookErr)
		r.runAfterAll(ctx, s)
		return
	}

	for _, tc := range s.Tests {
		r.dispatchSequential(ctx, st, tc)
	}
	for _, child := range s.Suites {
		r.runSuiteSequential(ctx, st, child)
	}

	r.runAfterAll(ctx, s)
	st.progress.CompleteSuite(s.Path())
}

func (r *runner) dispatchSequential(ctx context.Context, st *runState, tc *types.TestCase) {
	if st.bailed.Load() || ctx.Err() != nil {
		r.recordSkip(st, tc, nil)
		return
	}
	if r.skipsByFilter(st, tc) {
		r.recordSkip(st, tc, nil)
		return
	}
	r.runTest(ctx, st, tc)
}

// skipsByFilter applies the declarative skip/only resolution and the name
// filter. Filtered tests never start running.
func (r *runner) skipsByFilter(st *runState, tc *types.TestCase) bool {
	if types.EffectiveSkip(tc, st.onlyMode) {
		return true
	}
	if r.opts.Filter == "" {
		return false
	}
	ok, _ := doublestar.Match(r.opts.Filter, tc.FullName())
	return !ok
}

// runBeforeAll runs a suite's beforeAll hooks once. The first failure wins
// and is returned as the reason to skip the suite's descendants.
func (r *runner) runBeforeAll(ctx context.Context, s *types.Suite) error {
	for _, h := range s.BeforeAll {
		if err := h.Fn(ctx); err != nil {
			hookErr := types.NewHookFailure(h.Kind, h.Name, s.Path(), err)
			r.log.Error("beforeAll hook failed, skipping suite",
				"suite", s.Path(), "hook", h.Name, "error", err)
			return hookErr
		}
	}
	return nil
}

// runAfterAll runs a suite's afterAll hooks once. Failures are logged and
// swallowed: cleanup never changes a result.
func (r *runner) runAfterAll(ctx context.Context, s *types.Suite) {
	for _, h := range s.AfterAll {
		if err := h.Fn(ctx); err != nil {
			r.log.Error("afterAll hook failed",
				"suite", s.Path(), "hook", h.Name, "error", err)
		}
	}
}

// skipSubtree records a skip for every test under s without running any
// hook. cause is attached to each result (beforeAll failures); nil means a
// plain filter or bail skip.
func (r *runner) skipSubtree(st *runState, s *types.Suite, cause error) {
	s.WalkTests(func(tc *types.TestCase) {
		r.recordSkip(st, tc, cause)
	})
}

func (r *runner) recordSkip(st *runState, tc *types.TestCase, cause error) types.Result {
	tc.Status = types.TestStatusSkip
	tc.Err = cause
	result := types.Result{
		Index:  tc.Index,
		Test:   tc.Name,
		Suite:  tc.Suite.Path(),
		Status: types.TestStatusSkip,
		Mode:   tc.Mode,
		Err:    cause,
	}
	st.collector.Add(result)
	st.progress.CompleteTest(tc.FullName(), types.TestStatusSkip)
	return result
}

// runTest executes the full per-test lifecycle: timeout tracking, inherited
// beforeEach hooks, the body raced against soft expiry, inherited afterEach
// hooks, then result recording and the bail check. The returned channel
// closes when the body goroutine has returned; on a soft timeout that can
// be long after the result was recorded, or never.
func (r *runner) runTest(ctx context.Context, st *runState, tc *types.TestCase) (types.Result, <-chan struct{}) {
	fullName := tc.FullName()
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("test %s", tc.Name))
	defer span.End()

	tracker := timeout.NewTracker(timeout.TrackerConfig{
		Unit:           fullName,
		Base:           tc.EffectiveTimeout(r.opts.DefaultTimeout),
		AllowExtension: r.opts.AllowExtension,
		MaxExtension:   r.opts.MaxExtension,
	})
	r.enforcer.Register(tracker)
	defer r.enforcer.Unregister(tracker)
	if err := tracker.Start(); err != nil {
		r.log.Error("Failed to start timeout tracker", "test", fullName, "error", err)
	}

	tc.Status = types.TestStatusRunning
	st.progress.StartTest(fullName)
	start := time.Now()
	hctx := timeout.WithTracker(ctx, tracker)

	var failure error
	for _, h := range types.ResolveBeforeEach(tc) {
		if err := h.Fn(hctx); err != nil {
			failure = types.NewHookFailure(h.Kind, h.Name, h.Owner.Path(), err)
			r.log.Error("beforeEach hook failed, skipping test body",
				"test", fullName, "hook", h.Name, "suite", h.Owner.Path(), "error", err)
			break
		}
	}

	var bodyDone <-chan struct{} = closedChan
	if failure == nil {
		bodyCtx, cancel := context.WithCancel(hctx)
		defer cancel()

		done := make(chan struct{})
		bodyDone = done
		errCh := make(chan error, 1)
		go func() {
			defer close(done)
			errCh <- tc.Fn(bodyCtx)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				failure = types.NewAssertionFailure(fullName, err)
			}
		case <-tracker.Expired():
			// Soft timeout: detach and report, the body keeps whatever
			// thread it is on until it returns on its own.
		}
	}

	// afterEach always runs, for every resolved hook, even when beforeEach
	// failed part-way or the body is still executing after a timeout.
	for _, h := range types.ResolveAfterEach(tc) {
		if err := h.Fn(hctx); err != nil {
			r.log.Error("afterEach hook failed",
				"test", fullName, "hook", h.Name, "suite", h.Owner.Path(), "error", err)
		}
	}

	duration := time.Since(start)

	status := types.TestStatusPass
	var resultErr error
	switch {
	case tracker.TimedOut():
		// Covers both an enforcer-marked tracker and an expiry that fell
		// between polls and is only observed here.
		tracker.MarkTimedOut()
		status = types.TestStatusTimeout
		resultErr = types.NewTimeoutExceeded(fullName, tracker.Base())
		if failure != nil {
			r.log.Debug("Failure superseded by timeout", "test", fullName, "error", failure)
		}
	case !tracker.Complete():
		// The enforcer won the race after our expiry check.
		status = types.TestStatusTimeout
		resultErr = types.NewTimeoutExceeded(fullName, tracker.Base())
	case failure != nil:
		status = types.TestStatusFail
		resultErr = failure
	}

	tc.Status = status
	tc.Duration = duration
	tc.Err = resultErr
	result := types.Result{
		Index:    tc.Index,
		Test:     tc.Name,
		Suite:    tc.Suite.Path(),
		Status:   status,
		Duration: duration,
		Mode:     tc.Mode,
		Err:      resultErr,
	}
	st.collector.Add(result)
	st.progress.CompleteTest(fullName, status)

	if r.opts.Bail && (status == types.TestStatusFail || status == types.TestStatusTimeout) {
		if st.bailed.CompareAndSwap(false, true) {
			r.log.Warn("Bailing out, no further tests will start", "test", fullName, "status", status)
		}
	}
	return result, bodyDone
}

func (r *runner) runConcurrent(ctx context.Context, st *runState, roots []*types.Suite) error {
	executor, err := NewTaskExecutor(int64(r.opts.MaxConcurrent))
	if err != nil {
		return err
	}
	for _, s := range roots {
		r.runSuiteConcurrent(ctx, st, s, executor)
	}
	return ctx.Err()
}

// runSuiteConcurrent dispatches one suite's tests to the bounded executor.
// The suite walk itself stays on the calling goroutine so beforeAll and
// afterAll bracket the whole subtree; each test's hooks run on the same
// goroutine as its body inside the submitted unit.
func (r *runner) runSuiteConcurrent(ctx context.Context, st *runState, s *types.Suite, executor *TaskExecutor) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("suite %s", s.Path()))
	defer span.End()

	if st.bailed.Load() || ctx.Err() != nil {
		r.skipSubtree(st, s, nil)
		return
	}
	st.progress.StartSuite(s.Path(), s.CountTests())

	if hookErr := r.runBeforeAll(ctx, s); hookErr != nil {
		r.skipSubtree(st, s, hookErr)
		r.runAfterAll(ctx, s)
		return
	}

	handles := make([]*Handle, 0, len(s.Tests))
	for _, tc := range s.Tests {
		tc := tc
		if st.bailed.Load() || ctx.Err() != nil {
			r.recordSkip(st, tc, nil)
			continue
		}
		if r.skipsByFilter(st, tc) {
			r.recordSkip(st, tc, nil)
			continue
		}
		h, err := executor.Submit(ctx, tc.Index, func(uctx context.Context) (types.Result, <-chan struct{}) {
			if st.bailed.Load() {
				return r.recordSkip(st, tc, nil), closedChan
			}
			return r.runTest(uctx, st, tc)
		})
		if err != nil {
			// Cancelled while waiting for a slot.
			r.recordSkip(st, tc, nil)
			continue
		}
		handles = append(handles, h)
	}

	// Own tests settle before any child suite starts, so suite hooks keep
	// strict bracketing and max_concurrent=1 reproduces sequential
	// ordering exactly.
	executor.AwaitAll(handles)

	for _, child := range s.Suites {
		r.runSuiteConcurrent(ctx, st, child, executor)
	}

	r.runAfterAll(ctx, s)
	st.progress.CompleteSuite(s.Path())
}

// replay walks the tree in declaration order and feeds the reporter from
// the collector's index-keyed records, so reporters observe registration
// order no matter how execution interleaved.
func (r *runner) replay(st *runState, roots []*types.Suite, summary types.RunSummary) {
	for _, s := range roots {
		r.replaySuite(st, s)
	}
	r.opts.Reporter.OnRunComplete(summary)
}

func (r *runner) replaySuite(st *runState, s *types.Suite) {
	r.opts.Reporter.OnSuiteStart(s.Path())
	for _, tc := range s.Tests {
		// Records can be missing only when a run was cancelled mid-flight.
		if result, ok := st.collector.Get(tc.Index); ok {
			r.opts.Reporter.OnTestResult(result)
		}
	}
	for _, child := range s.Suites {
		r.replaySuite(st, child)
	}
	r.opts.Reporter.OnSuiteEnd(s.Path())
}

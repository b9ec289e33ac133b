package harness

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-harness/flags"
	"github.com/ethereum-optimism/infra/op-harness/registry"
	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/ethereum/go-ethereum/log"
)

// Config holds the application configuration
type Config struct {
	ManifestPath     string         // Optional YAML manifest applied on top of registered suites
	Filter           string         // Glob matched against full test names; non-matching tests are skipped
	Bail             bool           // Stop scheduling new tests after the first failure or timeout
	Concurrency      types.Strategy // Execution strategy for each run
	MaxConcurrent    uint           // Bound for the concurrent strategy (0 = number of CPUs)
	Workers          uint           // Suite workers for the parallel strategy (0 = number of CPUs)
	DefaultTimeout   time.Duration  // Default per-test timeout, overridable per suite or test
	AllowExtension   bool           // Allow running tests to extend their own deadline
	MaxExtension     time.Duration  // Total deadline extension a test may request; 0 grants none
	RunInterval      time.Duration  // Interval between test runs
	RunOnce          bool           // Indicates if the service should exit after one test run
	OutputDir        string         // Directory for per-run result files, empty disables file output
	ShowProgress     bool           // Whether to log periodic progress updates during test execution
	ProgressInterval time.Duration  // Interval between progress updates when ShowProgress is 'true'
	Log              log.Logger

	Manifest *registry.Manifest // Parsed manifest, nil when ManifestPath is empty
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	concurrency, err := types.ParseStrategy(ctx.String(flags.Concurrency.Name))
	if err != nil {
		return nil, err
	}

	manifestPath := ctx.String(flags.Manifest.Name)
	if manifestPath != "" {
		manifestPath, err = filepath.Abs(manifestPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for manifest '%s': %w", ctx.String(flags.Manifest.Name), err)
		}
	}

	outputDir := ctx.String(flags.OutputDir.Name)
	if outputDir != "" {
		outputDir, err = filepath.Abs(outputDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for output directory '%s': %w", ctx.String(flags.OutputDir.Name), err)
		}
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	cfg := &Config{
		ManifestPath:     manifestPath,
		Filter:           ctx.String(flags.Filter.Name),
		Bail:             ctx.Bool(flags.Bail.Name),
		Concurrency:      concurrency,
		MaxConcurrent:    ctx.Uint(flags.MaxConcurrent.Name),
		Workers:          ctx.Uint(flags.Workers.Name),
		DefaultTimeout:   ctx.Duration(flags.DefaultTimeout.Name),
		AllowExtension:   ctx.Bool(flags.AllowExtension.Name),
		MaxExtension:     ctx.Duration(flags.MaxExtension.Name),
		RunInterval:      runInterval,
		RunOnce:          runOnce,
		OutputDir:        outputDir,
		ShowProgress:     ctx.Bool(flags.ShowProgress.Name),
		ProgressInterval: ctx.Duration(flags.ProgressInterval.Name),
		Log:              log,
	}

	if manifestPath != "" {
		m, err := registry.LoadManifest(manifestPath)
		if err != nil {
			return nil, err
		}
		cfg.Manifest = m
		if err := mergeManifest(ctx, cfg, m); err != nil {
			return nil, err
		}
	}

	// Validate after the merge so manifest-supplied patterns are covered too
	if cfg.Filter != "" && !doublestar.ValidatePattern(cfg.Filter) {
		return nil, fmt.Errorf("invalid filter pattern %q", cfg.Filter)
	}

	return cfg, nil
}

// mergeManifest fills config fields the command line left unset. A flag
// given on the command line or via environment always wins over the
// manifest; per-suite overrides are applied to the registry separately.
func mergeManifest(ctx *cli.Context, cfg *Config, m *registry.Manifest) error {
	if m.Concurrency != "" && !ctx.IsSet(flags.Concurrency.Name) {
		concurrency, err := types.ParseStrategy(m.Concurrency)
		if err != nil {
			return fmt.Errorf("manifest: %w", err)
		}
		cfg.Concurrency = concurrency
	}
	if m.MaxConcurrent > 0 && !ctx.IsSet(flags.MaxConcurrent.Name) {
		cfg.MaxConcurrent = m.MaxConcurrent
	}
	if m.Workers > 0 && !ctx.IsSet(flags.Workers.Name) {
		cfg.Workers = m.Workers
	}
	if m.Timeout.Std() > 0 && !ctx.IsSet(flags.DefaultTimeout.Name) {
		cfg.DefaultTimeout = m.Timeout.Std()
	}
	if m.Bail != nil && !ctx.IsSet(flags.Bail.Name) {
		cfg.Bail = *m.Bail
	}
	if m.Filter != "" && !ctx.IsSet(flags.Filter.Name) {
		cfg.Filter = m.Filter
	}
	if m.AllowExtension != nil && !ctx.IsSet(flags.AllowExtension.Name) {
		cfg.AllowExtension = *m.AllowExtension
	}
	if m.MaxExtension.Std() > 0 && !ctx.IsSet(flags.MaxExtension.Name) {
		cfg.MaxExtension = m.MaxExtension.Std()
	}
	return nil
}

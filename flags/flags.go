package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

const EnvVarPrefix = "OP_HARNESS"

var (
	Manifest = &cli.StringFlag{
		Name:    "manifest",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MANIFEST"),
		Usage:   "Path to a YAML manifest applied on top of the registered suites (eg. 'suites.yaml')",
	}
	Filter = &cli.StringFlag{
		Name:    "filter",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FILTER"),
		Usage:   "Glob matched against full test names (eg. 'api/**'). Non-matching tests are recorded as skipped.",
	}
	Bail = &cli.BoolFlag{
		Name:    "bail",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "BAIL"),
		Usage:   "Stop scheduling new tests after the first failure or timeout",
	}
	Concurrency = &cli.StringFlag{
		Name:    "concurrency",
		Value:   "sequential",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONCURRENCY"),
		Usage:   "Execution strategy: 'sequential', 'concurrent' or 'parallel'",
		Action: func(_ *cli.Context, s string) error {
			_, err := types.ParseStrategy(s)
			return err
		},
	}
	MaxConcurrent = &cli.UintFlag{
		Name:    "max-concurrent",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MAX_CONCURRENT"),
		Usage:   "Maximum tests in flight with the 'concurrent' strategy (0 = number of CPUs)",
	}
	Workers = &cli.UintFlag{
		Name:    "workers",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WORKERS"),
		Usage:   "Suite worker count for the 'parallel' strategy (0 = number of CPUs)",
	}
	DefaultTimeout = &cli.DurationFlag{
		Name:    "default-timeout",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DEFAULT_TIMEOUT"),
		Usage:   "Default timeout for individual tests (e.g. '30s'). Set to 0 or omit for no timeout.",
	}
	AllowExtension = &cli.BoolFlag{
		Name:    "allow-extension",
		Value:   true,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ALLOW_EXTENSION"),
		Usage:   "Allow running tests to extend their own deadline",
	}
	MaxExtension = &cli.DurationFlag{
		Name:    "max-extension",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MAX_EXTENSION"),
		Usage:   "Total extra time a single test may request via deadline extension. Extensions need an explicit budget; 0 grants none.",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between test runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	OutputDir = &cli.StringFlag{
		Name:    "output-dir",
		Value:   "results",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "OUTPUT_DIR"),
		Usage:   "Directory where per-run result files are written. Set empty to disable file output.",
	}
	ShowProgress = &cli.BoolFlag{
		Name:    "show-progress",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHOW_PROGRESS"),
		Usage:   "Log periodic progress updates during test execution",
	}
	ProgressInterval = &cli.DurationFlag{
		Name:    "progress-interval",
		Value:   30 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROGRESS_INTERVAL"),
		Usage:   "Interval between progress updates when --show-progress is set",
	}
)

var requiredFlags = []cli.Flag{}

var optionalFlags = []cli.Flag{
	Manifest,
	Filter,
	Bail,
	Concurrency,
	MaxConcurrent,
	Workers,
	DefaultTimeout,
	AllowExtension,
	MaxExtension,
	RunInterval,
	OutputDir,
	ShowProgress,
	ProgressInterval,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)
	// optionalFlags = append(optionalFlags, oppprof.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}

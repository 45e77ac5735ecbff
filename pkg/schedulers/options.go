package schedulers

import (
	"runtime"

	"github.com/XiaoConstantine/qd-go/pkg/core"
)

// Option configures optional scheduler parameters. The strategy and
// zeta options apply to the bandit scheduler only and are ignored by
// the round-robin scheduler.
type Option func(*options)

type options struct {
	batchSize      int
	statsFrequency int
	reportMode     core.ReportMode
	reportArchives []core.Archive
	parallel       bool
	maxWorkers     int
	showProgress   bool
	seed           int64
	hasSeed        bool

	strategy Strategy
	zeta     float64
}

func defaultOptions() *options {
	return &options{
		batchSize:      runtime.NumCPU(),
		statsFrequency: 1,
		reportMode:     core.ReportCompact,
		maxWorkers:     runtime.NumCPU(),
		showProgress:   true,
		strategy:       StrategyUCB1,
		zeta:           0.05,
	}
}

// WithBatchSize sets how many candidates each batch evaluates
// (default: host CPU count).
func WithBatchSize(n int) Option {
	return func(o *options) {
		o.batchSize = n
	}
}

// WithStatsFrequency emits a progress report every k batches
// (default 1).
func WithStatsFrequency(k int) Option {
	return func(o *options) {
		o.statsFrequency = k
	}
}

// WithReportMode selects compact or verbose progress reports.
func WithReportMode(mode core.ReportMode) Option {
	return func(o *options) {
		o.reportMode = mode
	}
}

// WithReportArchives overrides the archives progress reports aggregate
// over (default: the distinct archives referenced by the emitters).
func WithReportArchives(archives []core.Archive) Option {
	return func(o *options) {
		o.reportArchives = archives
	}
}

// WithParallel evaluates batch candidates concurrently when enabled.
func WithParallel(parallel bool) Option {
	return func(o *options) {
		o.parallel = parallel
	}
}

// WithMaxWorkers bounds the parallel evaluation pool
// (default: host CPU count).
func WithMaxWorkers(n int) Option {
	return func(o *options) {
		o.maxWorkers = n
	}
}

// WithProgress toggles progress report emission (default on).
func WithProgress(show bool) Option {
	return func(o *options) {
		o.showProgress = show
	}
}

// WithSeed fixes the scheduler's selection RNG for reproducible runs.
// Only the bandit scheduler consumes scheduler-side randomness.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
		o.hasSeed = true
	}
}

// WithStrategy selects the bandit allocation rule (default UCB1).
func WithStrategy(s Strategy) Option {
	return func(o *options) {
		o.strategy = s
	}
}

// WithZeta sets the UCB1 exploration coefficient (default 0.05).
func WithZeta(zeta float64) Option {
	return func(o *options) {
		o.zeta = zeta
	}
}

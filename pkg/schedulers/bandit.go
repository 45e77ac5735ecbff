package schedulers

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/XiaoConstantine/qd-go/pkg/core"
	"github.com/XiaoConstantine/qd-go/pkg/errors"
	"github.com/XiaoConstantine/qd-go/pkg/logging"
	"github.com/XiaoConstantine/qd-go/pkg/utils"
)

// Strategy selects the bandit allocation rule.
type Strategy int

const (
	// StrategyUCB1 scores emitters by mean reward plus a zeta-scaled
	// confidence radius. This is the default.
	StrategyUCB1 Strategy = iota
	// StrategyThompson samples emitter scores from a running normal
	// model of per-batch mean rewards.
	StrategyThompson
)

// String provides human-readable strategy names.
func (s Strategy) String() string {
	return [...]string{"UCB1", "THOMPSON"}[s]
}

// BanditScheduler treats emitter selection as a multi-armed bandit:
// each batch it activates the numActive most promising emitters and
// splits the batch budget between them.
type BanditScheduler struct {
	emitters       []core.Emitter
	numActive      int
	zeta           float64
	strategy       Strategy
	batchSize      int
	statsFrequency int
	parallel       bool
	maxWorkers     int
	showProgress   bool

	reportArchives []core.Archive
	reporter       *Reporter
	logger         *logging.Logger
	rng            *rand.Rand

	// UCB1 state: cumulative reward and pull count per emitter.
	rewards []float64
	counts  []float64

	// Thompson state: Welford running mean/variance of per-batch mean
	// rewards.
	tsMeans  []float64
	tsM2     []float64
	tsCounts []float64

	totalEvaluations int
}

var _ core.Scheduler = (*BanditScheduler)(nil)

// NewBanditScheduler builds a bandit scheduler activating numActive
// emitters per batch.
func NewBanditScheduler(emitters []core.Emitter, numActive int, opts ...Option) (*BanditScheduler, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if err := validateEmitters(emitters); err != nil {
		return nil, err
	}
	if numActive <= 0 || numActive > len(emitters) {
		return nil, errors.WithFields(
			errors.New(errors.InvalidArgument, "num_active must be in (0, len(emitters)]"),
			errors.Fields{"num_active": numActive, "emitters": len(emitters)},
		)
	}
	if o.batchSize <= 0 || o.statsFrequency <= 0 {
		return nil, errors.WithFields(
			errors.New(errors.InvalidArgument, "batch size and stats frequency must be positive"),
			errors.Fields{"batch_size": o.batchSize, "stats_frequency": o.statsFrequency},
		)
	}
	if o.zeta < 0 {
		return nil, errors.WithFields(
			errors.New(errors.InvalidArgument, "zeta must be non-negative"),
			errors.Fields{"zeta": o.zeta},
		)
	}

	reportArchives := o.reportArchives
	if reportArchives == nil {
		reportArchives = distinctArchives(emitters)
	}

	seed := o.seed
	if !o.hasSeed {
		seed = time.Now().UnixNano()
	}

	n := len(emitters)
	return &BanditScheduler{
		emitters:       emitters,
		numActive:      numActive,
		zeta:           o.zeta,
		strategy:       o.strategy,
		batchSize:      o.batchSize,
		statsFrequency: o.statsFrequency,
		parallel:       o.parallel,
		maxWorkers:     o.maxWorkers,
		showProgress:   o.showProgress,
		reportArchives: reportArchives,
		reporter:       NewReporter(reportArchives, o.reportMode),
		logger:         logging.GetLogger(),
		rng:            rand.New(rand.NewSource(seed)),
		rewards:        make([]float64, n),
		counts:         make([]float64, n),
		tsMeans:        make([]float64, n),
		tsM2:           make([]float64, n),
		tsCounts:       make([]float64, n),
	}, nil
}

// Run executes batches until at least nEvaluations objective calls have
// completed.
func (s *BanditScheduler) Run(ctx context.Context, objective core.Objective, nEvaluations int) error {
	if nEvaluations <= 0 {
		return errors.WithFields(
			errors.New(errors.InvalidArgument, "evaluation budget must be positive"),
			errors.Fields{"n_evaluations": nEvaluations},
		)
	}
	first := s.emitters[0].Archive()
	if err := core.ValidateObjective(objective, first.SolutionDim(), first.MeasureDim()); err != nil {
		return err
	}

	nBatches := utils.CeilDiv(nEvaluations, s.batchSize)
	s.logger.Info(ctx, "bandit run: strategy=%s emitters=%d active=%d batches=%d", s.strategy, len(s.emitters), s.numActive, nBatches)

	for batch := 1; batch <= nBatches; batch++ {
		if err := errors.CheckContext(ctx, "bandit run"); err != nil {
			return err
		}

		active := s.selectEmitters()
		quota := utils.CeilDiv(s.batchSize, len(active))

		// Ask each active emitter its share, truncating so the batch
		// never exceeds batchSize candidates in total.
		type span struct {
			emitter int
			start   int
			count   int
		}
		spans := make([]span, 0, len(active))
		var solutions [][]float64
		remaining := s.batchSize
		for _, idx := range active {
			count := utils.Min(quota, remaining)
			if count == 0 {
				break
			}
			asked, err := s.emitters[idx].Ask(count)
			if err != nil {
				return err
			}
			spans = append(spans, span{emitter: idx, start: len(solutions), count: len(asked)})
			solutions = append(solutions, asked...)
			remaining -= len(asked)
		}

		objectives, measures := evaluate(objective, solutions, s.parallel, s.maxWorkers)

		for _, sl := range spans {
			end := sl.start + sl.count
			if err := s.emitters[sl.emitter].Tell(solutions[sl.start:end], objectives[sl.start:end], measures[sl.start:end]); err != nil {
				return err
			}
			s.updateStats(sl.emitter, objectives[sl.start:end])
		}
		s.totalEvaluations += len(solutions)

		if s.showProgress && batch%s.statsFrequency == 0 {
			s.reporter.Emit(ctx, batch, s.totalEvaluations)
		}
	}

	return nil
}

// selectEmitters picks numActive emitter indices by the configured
// strategy.
func (s *BanditScheduler) selectEmitters() []int {
	if s.strategy == StrategyThompson {
		return s.selectThompson()
	}
	return s.selectUCB1()
}

func (s *BanditScheduler) selectUCB1() []int {
	// Unplayed arms first, chosen uniformly.
	unused := make([]int, 0, len(s.emitters))
	for i := range s.emitters {
		if s.counts[i] == 0 {
			unused = append(unused, i)
		}
	}
	if len(unused) > 0 {
		s.rng.Shuffle(len(unused), func(a, b int) {
			unused[a], unused[b] = unused[b], unused[a]
		})
		return unused[:utils.Min(len(unused), s.numActive)]
	}

	total := 0.0
	for _, c := range s.counts {
		total += c
	}
	scores := make([]float64, len(s.emitters))
	for i := range s.emitters {
		scores[i] = s.rewards[i]/s.counts[i] + s.zeta*math.Sqrt(2*math.Log(total)/s.counts[i])
	}
	return utils.ArgsortDescending(scores)[:s.numActive]
}

func (s *BanditScheduler) selectThompson() []int {
	scores := make([]float64, len(s.emitters))
	for i := range s.emitters {
		variance := 1.0
		if s.tsCounts[i] >= 2 {
			variance = s.tsM2[i] / (s.tsCounts[i] - 1)
		}
		scores[i] = s.tsMeans[i] + s.rng.NormFloat64()*math.Sqrt(variance)
	}
	return utils.ArgsortDescending(scores)[:s.numActive]
}

// updateStats folds a told slice into the selection statistics.
func (s *BanditScheduler) updateStats(emitter int, objectives []float64) {
	if len(objectives) == 0 {
		return
	}

	sum := 0.0
	for _, obj := range objectives {
		sum += obj
	}

	// UCB1 accumulates raw reward and pull counts.
	s.rewards[emitter] += sum
	s.counts[emitter] += float64(len(objectives))

	// Thompson tracks per-batch mean reward with Welford's update.
	mean := sum / float64(len(objectives))
	s.tsCounts[emitter]++
	delta := mean - s.tsMeans[emitter]
	s.tsMeans[emitter] += delta / s.tsCounts[emitter]
	s.tsM2[emitter] += delta * (mean - s.tsMeans[emitter])
}

// TotalEvaluations returns how many objective calls completed across
// all Run invocations.
func (s *BanditScheduler) TotalEvaluations() int {
	return s.totalEvaluations
}

// Best returns the highest-objective occupant across the report
// archives, or false when every archive is empty.
func (s *BanditScheduler) Best() (core.Elite, bool) {
	return bestElite(s.reportArchives)
}

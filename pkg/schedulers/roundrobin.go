package schedulers

import (
	"context"
	"math"

	"github.com/XiaoConstantine/qd-go/pkg/core"
	"github.com/XiaoConstantine/qd-go/pkg/errors"
	"github.com/XiaoConstantine/qd-go/pkg/logging"
	"github.com/XiaoConstantine/qd-go/pkg/utils"
)

// RoundRobinScheduler cycles through its emitters one per batch: ask a
// full batch from the active emitter, evaluate it, tell the results
// back. All ask/tell and archive mutation happens on the goroutine
// calling Run; only objective evaluations fan out.
type RoundRobinScheduler struct {
	emitters       []core.Emitter
	batchSize      int
	statsFrequency int
	parallel       bool
	maxWorkers     int
	showProgress   bool

	reportArchives []core.Archive
	reporter       *Reporter
	logger         *logging.Logger

	totalEvaluations int
}

var _ core.Scheduler = (*RoundRobinScheduler)(nil)

// NewRoundRobinScheduler builds a scheduler over a nonempty emitter
// list. All emitters must share solution and measure dimensions.
func NewRoundRobinScheduler(emitters []core.Emitter, opts ...Option) (*RoundRobinScheduler, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if err := validateEmitters(emitters); err != nil {
		return nil, err
	}
	if o.batchSize <= 0 || o.statsFrequency <= 0 {
		return nil, errors.WithFields(
			errors.New(errors.InvalidArgument, "batch size and stats frequency must be positive"),
			errors.Fields{"batch_size": o.batchSize, "stats_frequency": o.statsFrequency},
		)
	}

	reportArchives := o.reportArchives
	if reportArchives == nil {
		reportArchives = distinctArchives(emitters)
	}

	return &RoundRobinScheduler{
		emitters:       emitters,
		batchSize:      o.batchSize,
		statsFrequency: o.statsFrequency,
		parallel:       o.parallel,
		maxWorkers:     o.maxWorkers,
		showProgress:   o.showProgress,
		reportArchives: reportArchives,
		reporter:       NewReporter(reportArchives, o.reportMode),
		logger:         logging.GetLogger(),
	}, nil
}

// validateEmitters checks the shared preconditions of both schedulers.
func validateEmitters(emitters []core.Emitter) error {
	if len(emitters) == 0 {
		return errors.New(errors.InvalidArgument, "scheduler requires at least one emitter")
	}
	solutionDim := emitters[0].Archive().SolutionDim()
	measureDim := emitters[0].Archive().MeasureDim()
	for i, emitter := range emitters[1:] {
		archive := emitter.Archive()
		if archive.SolutionDim() != solutionDim || archive.MeasureDim() != measureDim {
			return errors.WithFields(
				errors.New(errors.InvalidArgument, "emitter dimensions disagree"),
				errors.Fields{
					"emitter":      i + 1,
					"solution_dim": archive.SolutionDim(),
					"measure_dim":  archive.MeasureDim(),
				},
			)
		}
	}
	return nil
}

// Run executes batches until at least nEvaluations objective calls have
// completed.
func (s *RoundRobinScheduler) Run(ctx context.Context, objective core.Objective, nEvaluations int) error {
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
	s.logger.Info(ctx, "round-robin run: emitters=%d batch_size=%d batches=%d", len(s.emitters), s.batchSize, nBatches)

	for batch := 1; batch <= nBatches; batch++ {
		if err := errors.CheckContext(ctx, "round-robin run"); err != nil {
			return err
		}

		emitter := s.emitters[(batch-1)%len(s.emitters)]
		solutions, err := emitter.Ask(s.batchSize)
		if err != nil {
			return err
		}

		objectives, measures := evaluate(objective, solutions, s.parallel, s.maxWorkers)

		if err := emitter.Tell(solutions, objectives, measures); err != nil {
			return err
		}
		s.totalEvaluations += len(solutions)

		if s.showProgress && batch%s.statsFrequency == 0 {
			s.reporter.Emit(ctx, batch, s.totalEvaluations)
		}
	}

	return nil
}

// TotalEvaluations returns how many objective calls completed across
// all Run invocations.
func (s *RoundRobinScheduler) TotalEvaluations() int {
	return s.totalEvaluations
}

// Best returns the highest-objective occupant across the report
// archives, or false when every archive is empty.
func (s *RoundRobinScheduler) Best() (core.Elite, bool) {
	return bestElite(s.reportArchives)
}

func bestElite(archives []core.Archive) (core.Elite, bool) {
	best := core.Elite{Objective: math.Inf(-1)}
	found := false
	for _, archive := range archives {
		for _, elite := range archive.Elites() {
			if elite.Objective > best.Objective {
				best = elite
				found = true
			}
		}
	}
	return best, found
}

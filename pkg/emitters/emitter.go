package emitters

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/XiaoConstantine/qd-go/pkg/core"
	"github.com/XiaoConstantine/qd-go/pkg/errors"
	"github.com/XiaoConstantine/qd-go/pkg/logging"
	"github.com/XiaoConstantine/qd-go/pkg/utils"
)

// Option configures optional emitter parameters. Ranking, selection and
// restart options apply to the CMA-ES emitter only and are ignored by
// the others.
type Option func(*options)

type options struct {
	bounds  *core.Bounds
	seed    int64
	hasSeed bool

	ranker      RankerPolicy
	selection   SelectionRule
	restartRule int
}

// WithBounds sets per-dimension solution bounds. Without this option
// solutions are unbounded.
func WithBounds(b core.Bounds) Option {
	return func(o *options) {
		bounds := b
		o.bounds = &bounds
	}
}

// WithSeed fixes the emitter RNG seed for reproducible runs.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
		o.hasSeed = true
	}
}

// WithRanker selects the CMA-ES candidate ranking policy
// (default RankTwoStageImprovement).
func WithRanker(p RankerPolicy) Option {
	return func(o *options) {
		o.ranker = p
	}
}

// WithSelectionRule selects the CMA-ES parent selection rule
// (default SelectMu).
func WithSelectionRule(r SelectionRule) Option {
	return func(o *options) {
		o.selection = r
	}
}

// WithRestartRule sets how many stagnant generations the CMA-ES emitter
// tolerates before restarting (default 20).
func WithRestartRule(generations int) Option {
	return func(o *options) {
		o.restartRule = generations
	}
}

func applyOptions(opts []Option) *options {
	o := &options{
		ranker:      RankTwoStageImprovement,
		selection:   SelectMu,
		restartRule: 20,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// base carries the state every emitter shares: a borrowed archive
// handle, bounds, the initial point, and a privately owned RNG.
type base struct {
	id      string
	archive core.Archive
	bounds  core.Bounds
	x0      []float64
	rng     *rand.Rand
	logger  *logging.Logger
}

func newBase(archive core.Archive, x0 []float64, o *options) (base, error) {
	if archive == nil {
		return base{}, errors.New(errors.InvalidArgument, "emitter requires an archive")
	}
	dim := archive.SolutionDim()

	x0 = broadcast(x0, dim)
	if len(x0) != dim {
		return base{}, errors.WithFields(
			errors.New(errors.DimensionMismatch, "x0 length does not match archive solution dimension"),
			errors.Fields{"expected": dim, "actual": len(x0)},
		)
	}

	bounds := core.Unbounded(dim)
	if o.bounds != nil {
		bounds = *o.bounds
		if bounds.Dim() != dim {
			return base{}, errors.WithFields(
				errors.New(errors.DimensionMismatch, "bounds length does not match archive solution dimension"),
				errors.Fields{"expected": dim, "actual": bounds.Dim()},
			)
		}
	}

	seed := o.seed
	if !o.hasSeed {
		seed = time.Now().UnixNano()
	}

	return base{
		id:      uuid.NewString(),
		archive: archive,
		bounds:  bounds,
		x0:      utils.CopyFloats(x0),
		rng:     rand.New(rand.NewSource(seed)),
		logger:  logging.GetLogger(),
	}, nil
}

// broadcast expands a single-element vector to dim entries.
func broadcast(v []float64, dim int) []float64 {
	if len(v) != 1 || dim == 1 {
		return v
	}
	out := make([]float64, dim)
	for i := range out {
		out[i] = v[0]
	}
	return out
}

func (b *base) ID() string {
	return b.id
}

func (b *base) Archive() core.Archive {
	return b.archive
}

// parents draws n parent solutions from the archive, falling back to x0
// copies while the archive is still empty.
func (b *base) parents(n int) ([][]float64, error) {
	out := make([][]float64, n)
	if b.archive.Empty() {
		for i := range out {
			out[i] = utils.CopyFloats(b.x0)
		}
		return out, nil
	}
	elites, err := b.archive.Sample(b.rng, n)
	if err != nil {
		return nil, err
	}
	for i, elite := range elites {
		out[i] = elite.Solution
	}
	return out, nil
}

// validateBatch checks the tell invariant that solutions, objectives
// and measures describe the same candidates.
func (b *base) validateBatch(solutions [][]float64, objectives []float64, measures [][]float64) error {
	if len(solutions) != len(objectives) || len(solutions) != len(measures) {
		return errors.WithFields(
			errors.New(errors.InvalidArgument, "tell batch lengths disagree"),
			errors.Fields{
				"solutions":  len(solutions),
				"objectives": len(objectives),
				"measures":   len(measures),
			},
		)
	}
	return nil
}

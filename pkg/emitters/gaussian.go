package emitters

import (
	"context"

	"github.com/XiaoConstantine/qd-go/pkg/core"
	"github.com/XiaoConstantine/qd-go/pkg/errors"
	"github.com/XiaoConstantine/qd-go/pkg/utils"
)

// GaussianEmitter perturbs archive elites with isotropic-per-dimension
// Gaussian noise. Until the archive holds anything every parent is x0.
type GaussianEmitter struct {
	base
	sigma []float64
}

var _ core.Emitter = (*GaussianEmitter)(nil)

// NewGaussianEmitter builds a Gaussian emitter. sigma is either a
// single value broadcast to every dimension or one value per dimension.
func NewGaussianEmitter(archive core.Archive, x0 []float64, sigma []float64, opts ...Option) (*GaussianEmitter, error) {
	o := applyOptions(opts)
	b, err := newBase(archive, x0, o)
	if err != nil {
		return nil, err
	}

	dim := archive.SolutionDim()
	sigma = broadcast(sigma, dim)
	if len(sigma) != dim {
		return nil, errors.WithFields(
			errors.New(errors.DimensionMismatch, "sigma length does not match archive solution dimension"),
			errors.Fields{"expected": dim, "actual": len(sigma)},
		)
	}
	for i, s := range sigma {
		if s <= 0 {
			return nil, errors.WithFields(
				errors.New(errors.InvalidArgument, "sigma must be positive"),
				errors.Fields{"dim": i, "sigma": s},
			)
		}
	}

	return &GaussianEmitter{
		base:  b,
		sigma: utils.CopyFloats(sigma),
	}, nil
}

// Ask samples n offspring around archive parents.
func (e *GaussianEmitter) Ask(n int) ([][]float64, error) {
	parents, err := e.parents(n)
	if err != nil {
		return nil, err
	}

	out := make([][]float64, n)
	for i, parent := range parents {
		offspring := make([]float64, len(parent))
		for d := range offspring {
			offspring[d] = parent[d] + e.sigma[d]*e.rng.NormFloat64()
		}
		e.bounds.Clamp(offspring)
		out[i] = offspring
	}
	return out, nil
}

// Tell inserts every evaluated candidate into the archive.
func (e *GaussianEmitter) Tell(solutions [][]float64, objectives []float64, measures [][]float64) error {
	if err := e.validateBatch(solutions, objectives, measures); err != nil {
		return err
	}

	added := 0
	for i := range solutions {
		result, err := e.archive.Add(solutions[i], objectives[i], measures[i])
		if err != nil {
			return err
		}
		if result.Status.Added() {
			added++
		}
	}
	e.logger.Debug(context.Background(), "gaussian emitter %s: told %d candidates, %d added", e.id, len(solutions), added)
	return nil
}

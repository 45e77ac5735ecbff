package emitters

import (
	"context"

	"github.com/XiaoConstantine/qd-go/pkg/core"
	"github.com/XiaoConstantine/qd-go/pkg/errors"
)

// IsoLineEmitter implements the Iso+LineDD operator of Vassiliades and
// Mouret: isotropic Gaussian noise plus a directional component along
// the difference of two archive parents.
type IsoLineEmitter struct {
	base
	sigmaIso  float64
	sigmaLine float64
}

var _ core.Emitter = (*IsoLineEmitter)(nil)

// NewIsoLineEmitter builds an Iso+LineDD emitter with isotropic scale
// sigmaIso and directional scale sigmaLine.
func NewIsoLineEmitter(archive core.Archive, x0 []float64, sigmaIso, sigmaLine float64, opts ...Option) (*IsoLineEmitter, error) {
	o := applyOptions(opts)
	b, err := newBase(archive, x0, o)
	if err != nil {
		return nil, err
	}
	if sigmaIso <= 0 || sigmaLine < 0 {
		return nil, errors.WithFields(
			errors.New(errors.InvalidArgument, "sigma_iso must be positive and sigma_line non-negative"),
			errors.Fields{"sigma_iso": sigmaIso, "sigma_line": sigmaLine},
		)
	}

	return &IsoLineEmitter{
		base:      b,
		sigmaIso:  sigmaIso,
		sigmaLine: sigmaLine,
	}, nil
}

// Ask samples n offspring of the form x1 + sigma_iso*z + sigma_line*(x2-x1)*u
// with z standard normal per dimension and u a standard normal scalar.
func (e *IsoLineEmitter) Ask(n int) ([][]float64, error) {
	first, err := e.parents(n)
	if err != nil {
		return nil, err
	}
	second, err := e.parents(n)
	if err != nil {
		return nil, err
	}

	out := make([][]float64, n)
	for i := range out {
		x1, x2 := first[i], second[i]
		u := e.rng.NormFloat64()
		offspring := make([]float64, len(x1))
		for d := range offspring {
			offspring[d] = x1[d] + e.sigmaIso*e.rng.NormFloat64() + e.sigmaLine*(x2[d]-x1[d])*u
		}
		e.bounds.Clamp(offspring)
		out[i] = offspring
	}
	return out, nil
}

// Tell inserts every evaluated candidate into the archive.
func (e *IsoLineEmitter) Tell(solutions [][]float64, objectives []float64, measures [][]float64) error {
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
	e.logger.Debug(context.Background(), "isoline emitter %s: told %d candidates, %d added", e.id, len(solutions), added)
	return nil
}

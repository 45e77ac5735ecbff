package emitters

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/XiaoConstantine/qd-go/pkg/core"
	"github.com/XiaoConstantine/qd-go/pkg/errors"
	"github.com/XiaoConstantine/qd-go/pkg/utils"
)

// RankerPolicy orders an evaluated batch before parent selection. The
// two-stage and improvement policies insert candidates into the archive
// while ranking; the plain objective and random-direction policies rank
// without touching the archive, and insertion happens in a separate
// sweep after the covariance update.
type RankerPolicy int

const (
	RankObjective RankerPolicy = iota
	RankTwoStageObjective
	RankImprovement
	RankTwoStageImprovement
	RankRandomDirection
	RankTwoStageRandomDirection
)

// String provides human-readable policy names.
func (p RankerPolicy) String() string {
	return [...]string{
		"OBJECTIVE",
		"TWO_STAGE_OBJECTIVE",
		"IMPROVEMENT",
		"TWO_STAGE_IMPROVEMENT",
		"RANDOM_DIRECTION",
		"TWO_STAGE_RANDOM_DIRECTION",
	}[p]
}

// addsDuringRanking reports whether the policy's ranking key requires
// archive insertion.
func (p RankerPolicy) addsDuringRanking() bool {
	switch p {
	case RankImprovement, RankTwoStageObjective, RankTwoStageImprovement, RankTwoStageRandomDirection:
		return true
	default:
		return false
	}
}

// SelectionRule chooses the parents from a ranked batch.
type SelectionRule int

const (
	// SelectMu keeps the first mu ranked candidates.
	SelectMu SelectionRule = iota
	// SelectFilter keeps ranked candidates not dominated in solution
	// space by an earlier kept one.
	SelectFilter
)

// String provides human-readable rule names.
func (r SelectionRule) String() string {
	return [...]string{"MU", "FILTER"}[r]
}

// CMAESEmitter runs a full Covariance Matrix Adaptation Evolution
// Strategy over the archive's solution space. The sampling distribution
// is N(mean, sigma^2 * C) with C kept in eigendecomposed form
// C = B * diag(d^2) * B^T.
type CMAESEmitter struct {
	base
	sigma0      float64
	ranker      RankerPolicy
	selection   SelectionRule
	restartRule int

	// Constants derived from the solution dimension.
	lambda  int
	mu      int
	weights []float64
	mueff   float64
	cc      float64
	c1      float64
	cmu     float64
	csigma  float64
	dsigma  float64
	chiN    float64

	// Mutable state.
	mean       []float64
	sigma      float64
	cov        *mat.SymDense
	eigvecs    *mat.Dense
	eigvals    []float64 // sqrt of the eigenvalues of cov
	pc         []float64
	ps         []float64
	generation int
	lastImp    int

	// Unit direction in measure space for the random-direction
	// rankers, drawn lazily and dropped on restart.
	direction []float64
}

var _ core.Emitter = (*CMAESEmitter)(nil)

// NewCMAESEmitter builds a CMA-ES emitter with initial step size sigma0
// centered on x0.
func NewCMAESEmitter(archive core.Archive, x0 []float64, sigma0 float64, opts ...Option) (*CMAESEmitter, error) {
	o := applyOptions(opts)
	b, err := newBase(archive, x0, o)
	if err != nil {
		return nil, err
	}
	if sigma0 <= 0 {
		return nil, errors.WithFields(
			errors.New(errors.InvalidArgument, "sigma0 must be positive"),
			errors.Fields{"sigma0": sigma0},
		)
	}
	if o.restartRule <= 0 {
		return nil, errors.WithFields(
			errors.New(errors.InvalidArgument, "restart rule must be positive"),
			errors.Fields{"restart_rule": o.restartRule},
		)
	}

	e := &CMAESEmitter{
		base:        b,
		sigma0:      sigma0,
		ranker:      o.ranker,
		selection:   o.selection,
		restartRule: o.restartRule,
	}
	e.deriveConstants(archive.SolutionDim())
	e.reset()
	return e, nil
}

// deriveConstants computes the strategy constants from the dimension.
func (e *CMAESEmitter) deriveConstants(dim int) {
	d := float64(dim)

	e.lambda = 4 + int(3*math.Log(d))
	e.mu = e.lambda / 2

	e.weights = make([]float64, e.mu)
	sum := 0.0
	for i := 0; i < e.mu; i++ {
		e.weights[i] = math.Log(float64(e.lambda+1)/2) - math.Log(float64(i+1))
		sum += e.weights[i]
	}
	sumSq := 0.0
	for i := range e.weights {
		e.weights[i] /= sum
		sumSq += e.weights[i] * e.weights[i]
	}
	e.mueff = 1 / sumSq

	e.cc = 4 / (d + 4)
	e.c1 = 2 / ((d+1.3)*(d+1.3) + e.mueff)
	e.cmu = math.Min(1-e.c1, 2*(e.mueff-2+1/e.mueff)/((d+2)*(d+2)+e.mueff))
	e.csigma = (e.mueff + 2) / (d + e.mueff + 5)
	e.dsigma = 1 + 2*math.Max(0, math.Sqrt((e.mueff-1)/(d+1))-1) + e.csigma
	e.chiN = math.Sqrt(d) * (1 - 1/(4*d) + 1/(21*d*d))
}

// reset restores the search distribution to its initial state.
func (e *CMAESEmitter) reset() {
	dim := e.archive.SolutionDim()

	e.mean = utils.CopyFloats(e.x0)
	e.sigma = e.sigma0
	e.cov = identitySym(dim)
	e.eigvecs = identityDense(dim)
	e.eigvals = make([]float64, dim)
	for i := range e.eigvals {
		e.eigvals[i] = 1
	}
	e.pc = make([]float64, dim)
	e.ps = make([]float64, dim)
	e.direction = nil
	e.lastImp = e.generation
}

func identitySym(dim int) *mat.SymDense {
	s := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		s.SetSym(i, i, 1)
	}
	return s
}

func identityDense(dim int) *mat.Dense {
	d := mat.NewDense(dim, dim, nil)
	for i := 0; i < dim; i++ {
		d.Set(i, i, 1)
	}
	return d
}

// Lambda returns the derived population size.
func (e *CMAESEmitter) Lambda() int { return e.lambda }

// Mu returns the derived parent count.
func (e *CMAESEmitter) Mu() int { return e.mu }

// Sigma returns the current step size.
func (e *CMAESEmitter) Sigma() float64 { return e.sigma }

// Mean returns a copy of the current distribution mean.
func (e *CMAESEmitter) Mean() []float64 { return utils.CopyFloats(e.mean) }

// Generation returns how many tell calls the emitter has processed.
func (e *CMAESEmitter) Generation() int { return e.generation }

// Ask samples n candidates from N(mean, sigma^2 * C).
func (e *CMAESEmitter) Ask(n int) ([][]float64, error) {
	dim := len(e.mean)
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		z := make([]float64, dim)
		for d := range z {
			z[d] = e.eigvals[d] * e.rng.NormFloat64()
		}
		y := make([]float64, dim)
		yVec := mat.NewVecDense(dim, y)
		yVec.MulVec(e.eigvecs, mat.NewVecDense(dim, z))

		x := make([]float64, dim)
		for d := range x {
			x[d] = e.mean[d] + e.sigma*y[d]
		}
		e.bounds.Clamp(x)
		out[i] = x
	}
	return out, nil
}

// Tell consumes an evaluated batch: rank, select parents, update mean,
// evolution paths, covariance and step size, then check the restart
// rule.
func (e *CMAESEmitter) Tell(solutions [][]float64, objectives []float64, measures [][]float64) error {
	if err := e.validateBatch(solutions, objectives, measures); err != nil {
		return err
	}
	if len(solutions) == 0 {
		return nil
	}

	e.generation++
	dim := len(e.mean)

	ranked, addResults, err := e.rank(solutions, objectives, measures)
	if err != nil {
		return err
	}

	parents := e.selectParents(ranked, solutions)

	// Renormalize the log-weights over the actual parent count: the
	// filter rule can keep fewer than mu candidates.
	weights := e.weights[:utils.Min(len(parents), e.mu)]
	parents = parents[:len(weights)]
	wsum := 0.0
	for _, w := range weights {
		wsum += w
	}

	oldMean := e.mean
	newMean := make([]float64, dim)
	for i, idx := range parents {
		w := weights[i] / wsum
		for d := 0; d < dim; d++ {
			newMean[d] += w * solutions[idx][d]
		}
	}

	y := make([]float64, dim)
	for d := 0; d < dim; d++ {
		y[d] = (newMean[d] - oldMean[d]) / e.sigma
	}

	// Conjugate evolution path: ps += sqrt(cs*(2-cs)*mueff) * C^(-1/2) y
	cy := e.invSqrtCovMul(y)
	psScale := math.Sqrt(e.csigma * (2 - e.csigma) * e.mueff)
	for d := 0; d < dim; d++ {
		e.ps[d] = (1-e.csigma)*e.ps[d] + psScale*cy[d]
	}

	psNorm := floats.Norm(e.ps, 2)
	hsigma := 0.0
	denom := math.Sqrt(1 - math.Pow(1-e.csigma, float64(2*e.generation)))
	if psNorm/denom < (1.4+2/(float64(dim)+1))*e.chiN {
		hsigma = 1
	}

	pcScale := math.Sqrt(e.cc * (2 - e.cc) * e.mueff)
	for d := 0; d < dim; d++ {
		e.pc[d] = (1-e.cc)*e.pc[d] + hsigma*pcScale*y[d]
	}

	e.updateCovariance(solutions, parents, weights, wsum, oldMean, hsigma)

	e.sigma *= math.Exp((e.csigma / e.dsigma) * (psNorm/e.chiN - 1))

	if err := e.decompose(); err != nil {
		return err
	}

	e.mean = newMean

	// Policies that rank without inserting populate the archive here,
	// after the distribution update.
	if !e.ranker.addsDuringRanking() {
		addResults = make([]core.AddResult, len(solutions))
		for i := range solutions {
			result, addErr := e.archive.Add(solutions[i], objectives[i], measures[i])
			if addErr != nil {
				return addErr
			}
			addResults[i] = result
		}
	}

	improved := false
	for _, result := range addResults {
		if result.Status.Added() {
			improved = true
			break
		}
	}
	if improved {
		e.lastImp = e.generation
	} else if e.generation-e.lastImp >= e.restartRule {
		e.logger.Debug(context.Background(), "cmaes emitter %s: restarting after %d stagnant generations", e.id, e.generation-e.lastImp)
		e.reset()
	}

	return nil
}

// rank orders candidate indices descending by the active policy's key
// and returns any add results produced while ranking.
func (e *CMAESEmitter) rank(solutions [][]float64, objectives []float64, measures [][]float64) ([]int, []core.AddResult, error) {
	n := len(solutions)

	var addResults []core.AddResult
	if e.ranker.addsDuringRanking() {
		addResults = make([]core.AddResult, n)
		for i := 0; i < n; i++ {
			result, err := e.archive.Add(solutions[i], objectives[i], measures[i])
			if err != nil {
				return nil, nil, err
			}
			addResults[i] = result
		}
	}

	var keys []float64
	switch e.ranker {
	case RankObjective, RankTwoStageObjective:
		keys = objectives
	case RankImprovement, RankTwoStageImprovement:
		keys = make([]float64, n)
		for i, result := range addResults {
			keys[i] = result.Value
		}
	case RankRandomDirection, RankTwoStageRandomDirection:
		keys = make([]float64, n)
		dir := e.randomDirection(len(measures[0]))
		for i, m := range measures {
			keys[i] = floats.Dot(dir, m)
		}
	}

	switch e.ranker {
	case RankTwoStageObjective, RankTwoStageImprovement, RankTwoStageRandomDirection:
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool {
			addedA := addResults[idx[a]].Status.Added()
			addedB := addResults[idx[b]].Status.Added()
			if addedA != addedB {
				return addedA
			}
			return keys[idx[a]] > keys[idx[b]]
		})
		return idx, addResults, nil
	default:
		return utils.ArgsortDescending(keys), addResults, nil
	}
}

// randomDirection returns the lazily drawn unit direction in measure
// space.
func (e *CMAESEmitter) randomDirection(measureDim int) []float64 {
	if e.direction == nil {
		dir := make([]float64, measureDim)
		for i := range dir {
			dir[i] = e.rng.NormFloat64()
		}
		norm := floats.Norm(dir, 2)
		if norm > 0 {
			floats.Scale(1/norm, dir)
		}
		e.direction = dir
	}
	return e.direction
}

// selectParents applies the configured selection rule to the ranked
// indices.
func (e *CMAESEmitter) selectParents(ranked []int, solutions [][]float64) []int {
	switch e.selection {
	case SelectFilter:
		kept := make([]int, 0, len(ranked))
		for _, idx := range ranked {
			dominated := false
			for _, k := range kept {
				if allGreaterEqual(solutions[k], solutions[idx]) {
					dominated = true
					break
				}
			}
			if !dominated {
				kept = append(kept, idx)
			}
		}
		return kept
	default:
		return ranked[:utils.Min(len(ranked), e.mu)]
	}
}

// allGreaterEqual reports componentwise a >= b; equality counts, so a
// kept earlier candidate always beats an identical later one.
func allGreaterEqual(a, b []float64) bool {
	for i := range a {
		if a[i] < b[i] {
			return false
		}
	}
	return true
}

// updateCovariance applies the rank-one and rank-mu updates.
func (e *CMAESEmitter) updateCovariance(solutions [][]float64, parents []int, weights []float64, wsum float64, oldMean []float64, hsigma float64) {
	dim := len(oldMean)
	discount := 1 - e.c1 - e.cmu + (1-hsigma)*e.c1

	next := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			v := discount*e.cov.At(i, j) + e.c1*e.pc[i]*e.pc[j]
			next.SetSym(i, j, v)
		}
	}

	for pi, idx := range parents {
		w := e.cmu * weights[pi] / wsum
		dev := make([]float64, dim)
		for d := 0; d < dim; d++ {
			dev[d] = (solutions[idx][d] - oldMean[d]) / e.sigma
		}
		for i := 0; i < dim; i++ {
			for j := i; j < dim; j++ {
				next.SetSym(i, j, next.At(i, j)+w*dev[i]*dev[j])
			}
		}
	}

	e.cov = next
}

// invSqrtCovMul computes C^(-1/2) * y via the eigendecomposition.
func (e *CMAESEmitter) invSqrtCovMul(y []float64) []float64 {
	dim := len(y)

	var rotated mat.VecDense
	rotated.MulVec(e.eigvecs.T(), mat.NewVecDense(dim, y))
	for d := 0; d < dim; d++ {
		if e.eigvals[d] > 0 {
			rotated.SetVec(d, rotated.AtVec(d)/e.eigvals[d])
		} else {
			rotated.SetVec(d, 0)
		}
	}

	out := make([]float64, dim)
	outVec := mat.NewVecDense(dim, out)
	outVec.MulVec(e.eigvecs, &rotated)
	return out
}

// decompose refreshes the eigendecomposition of the covariance matrix,
// clamping negative eigenvalues to zero.
func (e *CMAESEmitter) decompose() error {
	var eig mat.EigenSym
	if !eig.Factorize(e.cov, true) {
		return errors.New(errors.Unknown, "covariance eigendecomposition failed")
	}

	vals := eig.Values(nil)
	for i, v := range vals {
		if v < 0 {
			v = 0
		}
		e.eigvals[i] = math.Sqrt(v)
	}

	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	e.eigvecs = &vecs
	return nil
}

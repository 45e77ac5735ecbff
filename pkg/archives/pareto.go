package archives

import (
	"math"
	"math/rand"

	"github.com/XiaoConstantine/qd-go/pkg/core"
	"github.com/XiaoConstantine/qd-go/pkg/errors"
	"github.com/XiaoConstantine/qd-go/pkg/utils"
)

// ParetoArchive keeps the non-dominated set over the joint vector
// (objective, measures...), all components maximized. It has no fixed
// tessellation: Cells tracks the current member count and coverage is
// full whenever the set is nonempty.
type ParetoArchive struct {
	solutionDim int
	measureDim  int

	points []paretoPoint
	nextID int

	qdScoreOffset float64
}

var _ core.Archive = (*ParetoArchive)(nil)

type paretoPoint struct {
	id        int
	solution  []float64
	objective float64
	measures  []float64
}

// key returns the maximized comparison vector for dominance checks.
func (p paretoPoint) key() []float64 {
	k := make([]float64, 0, 1+len(p.measures))
	k = append(k, p.objective)
	return append(k, p.measures...)
}

// NewParetoArchive builds an empty Pareto archive.
func NewParetoArchive(solutionDim, measureDim int) (*ParetoArchive, error) {
	if solutionDim <= 0 || measureDim <= 0 {
		return nil, errors.WithFields(
			errors.New(errors.InvalidArgument, "dimensions must be positive"),
			errors.Fields{"solution_dim": solutionDim, "measure_dim": measureDim},
		)
	}
	return &ParetoArchive{solutionDim: solutionDim, measureDim: measureDim}, nil
}

// dominates reports whether a dominates b: componentwise >= with at
// least one strictly greater component.
func dominates(a, b []float64) bool {
	better := false
	for i := range a {
		if a[i] < b[i] {
			return false
		}
		if a[i] > b[i] {
			better = true
		}
	}
	return better
}

// Add inserts a candidate unless it is dominated by a stored point.
// Every stored point the candidate dominates is removed; the status is
// IMPROVE when any removal happened and NEW otherwise.
func (p *ParetoArchive) Add(solution []float64, objective float64, measures []float64) (core.AddResult, error) {
	if len(solution) != p.solutionDim {
		return core.AddResult{}, errors.WithFields(
			errors.New(errors.DimensionMismatch, "solution length does not match archive"),
			errors.Fields{"expected": p.solutionDim, "actual": len(solution)},
		)
	}
	if len(measures) != p.measureDim {
		return core.AddResult{}, p.measureMismatch(len(measures))
	}

	if objective < p.qdScoreOffset {
		p.qdScoreOffset = objective
	}

	candidate := paretoPoint{
		solution:  utils.CopyFloats(solution),
		objective: objective,
		measures:  utils.CopyFloats(measures),
	}
	ck := candidate.key()

	for _, stored := range p.points {
		if dominates(stored.key(), ck) {
			return core.AddResult{Status: core.StatusNotAdded, Value: objective}, nil
		}
	}

	kept := p.points[:0]
	removed := 0
	for _, stored := range p.points {
		if dominates(ck, stored.key()) {
			removed++
			continue
		}
		kept = append(kept, stored)
	}
	p.nextID++
	candidate.id = p.nextID
	p.points = append(kept, candidate)

	status := core.StatusNew
	if removed > 0 {
		status = core.StatusImprove
	}
	return core.AddResult{Status: status, Value: objective}, nil
}

func (p *ParetoArchive) measureMismatch(actual int) error {
	return errors.WithFields(
		errors.New(errors.DimensionMismatch, "measure length does not match archive"),
		errors.Fields{"expected": p.measureDim, "actual": actual},
	)
}

// Clear drops all stored points.
func (p *ParetoArchive) Clear() {
	p.points = nil
	p.nextID = 0
	p.qdScoreOffset = 0
}

// Get returns the stored point whose measures are closest to the query
// in squared Euclidean distance.
func (p *ParetoArchive) Get(measures []float64) (core.Elite, bool, error) {
	if len(measures) != p.measureDim {
		return core.Elite{}, false, p.measureMismatch(len(measures))
	}
	if len(p.points) == 0 {
		return core.Elite{}, false, nil
	}

	bestIdx := 0
	bestDist := math.Inf(1)
	for i, stored := range p.points {
		dist := 0.0
		for j, mu := range stored.measures {
			d := mu - measures[j]
			dist += d * d
		}
		if dist < bestDist {
			bestDist = dist
			bestIdx = i
		}
	}
	return p.eliteAt(bestIdx), true, nil
}

// GetElite is identical to Get: members of a non-dominated set are
// their own best-ever records.
func (p *ParetoArchive) GetElite(measures []float64) (core.Elite, bool, error) {
	return p.Get(measures)
}

func (p *ParetoArchive) eliteAt(i int) core.Elite {
	stored := p.points[i]
	return core.Elite{
		Cell:      stored.id,
		Solution:  utils.CopyFloats(stored.solution),
		Objective: stored.objective,
		Measures:  utils.CopyFloats(stored.measures),
	}
}

// Elites returns all stored points.
func (p *ParetoArchive) Elites() []core.Elite {
	out := make([]core.Elite, len(p.points))
	for i := range p.points {
		out[i] = p.eliteAt(i)
	}
	return out
}

// Sample draws n stored points uniformly with replacement.
func (p *ParetoArchive) Sample(rng *rand.Rand, n int) ([]core.Elite, error) {
	if len(p.points) == 0 {
		return nil, errors.New(errors.EmptyArchive, "cannot sample from an empty archive")
	}
	out := make([]core.Elite, n)
	for i := 0; i < n; i++ {
		out[i] = p.eliteAt(rng.Intn(len(p.points)))
	}
	return out, nil
}

// QDScoreOffset returns the running minimum objective ever observed.
func (p *ParetoArchive) QDScoreOffset() float64 {
	return p.qdScoreOffset
}

func (p *ParetoArchive) Len() int    { return len(p.points) }
func (p *ParetoArchive) Empty() bool { return len(p.points) == 0 }

func (p *ParetoArchive) SolutionDim() int { return p.solutionDim }
func (p *ParetoArchive) MeasureDim() int  { return p.measureDim }
func (p *ParetoArchive) Cells() int       { return len(p.points) }

func (p *ParetoArchive) Coverage() float64 {
	if len(p.points) == 0 {
		return 0
	}
	return 1
}

func (p *ParetoArchive) ObjMax() float64 {
	max := math.Inf(-1)
	for _, stored := range p.points {
		if stored.objective > max {
			max = stored.objective
		}
	}
	return max
}

func (p *ParetoArchive) ObjMean() float64 {
	if len(p.points) == 0 {
		return 0
	}
	sum := 0.0
	for _, stored := range p.points {
		sum += stored.objective
	}
	return sum / float64(len(p.points))
}

func (p *ParetoArchive) QDScore() float64 {
	score := 0.0
	for _, stored := range p.points {
		score += stored.objective - p.qdScoreOffset
	}
	return score
}

func (p *ParetoArchive) NormQDScore() float64 {
	if len(p.points) == 0 {
		return 0
	}
	return p.QDScore() / float64(len(p.points))
}
